// Package slicer extracts display-ready, time-windowed views of the record
// store: aligned time/value arrays per variable, with the time axis either
// absolute or rescaled to elapsed units, and graph formulas applied to a
// copy of the stored values.
package slicer

import (
	"fmt"
	"math"
	"strings"

	"github.com/seubert/gammalog/internal/pkg/formula"
	"github.com/seubert/gammalog/internal/pkg/store"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Unit selects how the slice's time axis is expressed.
type Unit int

const (
	// UnitAuto picks the coarsest elapsed unit spanning more than ~3 units
	UnitAuto Unit = iota
	// UnitTimeOfDay keeps absolute fractional-day stamps
	UnitTimeOfDay
	UnitSecond
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
)

var unitNames = map[Unit]string{
	UnitAuto:      "auto",
	UnitTimeOfDay: "time",
	UnitSecond:    "second",
	UnitMinute:    "minute",
	UnitHour:      "hour",
	UnitDay:       "day",
	UnitWeek:      "week",
	UnitMonth:     "month",
}

// days per unit
var unitFactors = map[Unit]float64{
	UnitSecond: 1.0 / 86400.0,
	UnitMinute: 1.0 / 1440.0,
	UnitHour:   1.0 / 24.0,
	UnitDay:    1.0,
	UnitWeek:   7.0,
	UnitMonth:  30.44, // mean Gregorian month
}

func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return "unknown"
}

// Factor returns the unit's length in days. Zero for auto and time-of-day.
func (u Unit) Factor() float64 {
	return unitFactors[u]
}

// ParseUnit parses a unit name as it appears in config or on the CLI.
func ParseUnit(s string) (Unit, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for u, name := range unitNames {
		if name == needle {
			return u, nil
		}
	}
	return UnitAuto, fmt.Errorf("unknown time unit %q", s)
}

// Window is a requested stamp range, fractional days since epoch.
type Window struct {
	Left  float64
	Right float64
}

// Slice is an ephemeral windowed view of the store. Recomputed on every
// request; never persisted; owned by the requesting consumer.
type Slice struct {
	Times  []float64
	Values map[vars.Name][]float64
	Unit   Unit   // resolved unit (never UnitAuto)
	Window Window // clamped window actually used
}

// Len returns the number of samples in the slice.
func (s Slice) Len() int {
	return len(s.Times)
}

// Column returns the value array for one variable.
func (s Slice) Column(name vars.Name) []float64 {
	return s.Values[name]
}

// AvgCycleSeconds returns the mean sampling interval of the slice in
// seconds, derived from the absolute window rather than the rescaled axis.
func (s Slice) AvgCycleSeconds() float64 {
	if len(s.Times) < 2 {
		return math.NaN()
	}
	elapsedDays := s.Window.Right - s.Window.Left
	return elapsedDays * 86400.0 / float64(len(s.Times)-1)
}

// Source is the read side of the record store.
type Source interface {
	Range(t0, t1 float64) []store.Record
	Span() (first, last float64, ok bool)
}

// Engine produces slices. It applies graph formulas on the way out; stored
// values are never touched.
type Engine struct {
	formulas *formula.Engine
}

// New creates a slice engine. formulas may be nil when no display-time
// transforms are configured.
func New(formulas *formula.Engine) *Engine {
	return &Engine{formulas: formulas}
}

// Slice materializes the requested window. The window is clamped to the
// store's actual span; a window fully outside it (or an empty store)
// yields a slice with zero-length arrays.
func (e *Engine) Slice(src Source, w Window, unit Unit) Slice {
	out := Slice{
		Values: make(map[vars.Name][]float64, len(vars.Names())),
		Unit:   unit,
		Window: w,
	}

	first, last, ok := src.Span()
	if !ok {
		out.Unit = resolveUnit(unit, 0)
		for _, name := range vars.Names() {
			out.Values[name] = nil
		}
		return out
	}

	if w.Left < first {
		w.Left = first
	}
	if w.Right > last {
		w.Right = last
	}
	out.Window = w

	var records []store.Record
	if w.Left <= w.Right {
		records = src.Range(w.Left, w.Right)
	}

	out.Unit = resolveUnit(unit, w.Right-w.Left)

	out.Times = make([]float64, len(records))
	columns := make([][]float64, len(vars.Names()))
	for i := range columns {
		columns[i] = make([]float64, len(records))
	}

	for i, r := range records {
		out.Times[i] = rescale(r.Stamp, first, out.Unit)
		for j, v := range r.Values {
			// NaN stays NaN: missing is never coerced to zero
			columns[j][i] = v
		}
	}

	for j, name := range vars.Names() {
		if e.formulas != nil {
			out.Values[name] = e.formulas.ApplyGraphColumn(name, columns[j])
		} else {
			out.Values[name] = columns[j]
		}
	}
	return out
}

// resolveUnit turns UnitAuto into the coarsest elapsed unit such that the
// window spans more than ~3 of that unit, keeping tick labels readable.
func resolveUnit(unit Unit, spanDays float64) Unit {
	if unit != UnitAuto {
		return unit
	}
	for _, u := range []Unit{UnitMonth, UnitWeek, UnitDay, UnitHour, UnitMinute} {
		if spanDays/unitFactors[u] > 3 {
			return u
		}
	}
	return UnitSecond
}

func rescale(stamp, firstStamp float64, unit Unit) float64 {
	if unit == UnitTimeOfDay {
		return stamp
	}
	return (stamp - firstStamp) / unitFactors[unit]
}
