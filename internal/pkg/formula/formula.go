// Package formula evaluates per-variable scale and unit-conversion
// expressions. Two separate tables exist: value formulas run exactly once at
// ingestion and permanently alter the stored value; graph formulas run at
// display time on a copy of stored data and must be pure.
//
// Expressions are small JavaScript snippets evaluated with goja. Two names
// are bound before each evaluation: x (the raw reading) and sens (the tube
// sensitivity in CPM per µSv/h for the variable's tube slot, NaN for
// ambient variables). Math built-ins are available, e.g.
//
//	x / sens            CPM to µSv/h
//	Math.log(x + 1)     log scaling
//
// Evaluation failures fail soft: the result becomes NaN and a warning is
// logged once per variable per table, never an error out of the pipeline.
package formula

import (
	"fmt"
	"math"
	"sync"

	"github.com/dop251/goja"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Table selects which formula table an operation applies.
type Table int

const (
	// TableValue is the ingestion-time table
	TableValue Table = iota
	// TableGraph is the display-time table
	TableGraph
)

func (t Table) String() string {
	if t == TableValue {
		return "value"
	}
	return "graph"
}

// Config carries the per-variable expression strings and the tube
// calibration, as read from the configuration file.
type Config struct {
	ValueFormulas map[vars.Name]string
	GraphFormulas map[vars.Name]string
	// Sensitivities is CPM per µSv/h per tube slot; must hold
	// constants.TubeSlots positive finite values
	Sensitivities []float64
}

type compiled struct {
	src  string
	prog *goja.Program
}

// Engine holds the compiled formula tables. Safe for concurrent use; the
// underlying goja runtime is single-threaded and guarded internally.
type Engine struct {
	mu    sync.Mutex
	vm    *goja.Runtime
	value map[vars.Name]compiled
	graph map[vars.Name]compiled
	sens  [constants.TubeSlots]float64

	warned map[string]bool // "<table>/<var>", rate-limits runtime warnings
}

// New compiles both formula tables. Compile errors are configuration
// errors: they are reported and the affected variable falls back to the
// identity formula. The returned engine is always usable.
func New(cfg Config) *Engine {
	e := &Engine{
		vm:     goja.New(),
		value:  make(map[vars.Name]compiled),
		graph:  make(map[vars.Name]compiled),
		warned: make(map[string]bool),
	}

	for i := 0; i < constants.TubeSlots; i++ {
		e.sens[i] = constants.DefaultTubeSensitivity
	}
	for i, s := range cfg.Sensitivities {
		if i >= constants.TubeSlots {
			logger.Warn("Too many tube sensitivities configured, extra values ignored",
				"configured", len(cfg.Sensitivities), "slots", constants.TubeSlots)
			break
		}
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			logger.Warn("Invalid tube sensitivity, using default",
				"slot", i, "value", s, "default", constants.DefaultTubeSensitivity)
			continue
		}
		e.sens[i] = s
	}

	e.compileTable(TableValue, cfg.ValueFormulas, e.value)
	e.compileTable(TableGraph, cfg.GraphFormulas, e.graph)
	return e
}

func (e *Engine) compileTable(table Table, src map[vars.Name]string, dst map[vars.Name]compiled) {
	for name, expr := range src {
		if !vars.IsValid(name) {
			logger.Warn("Formula configured for unknown variable, ignored",
				"table", table.String(), "variable", string(name))
			continue
		}
		if expr == "" {
			continue // identity
		}
		prog, err := goja.Compile(fmt.Sprintf("%s:%s", table, name), expr, true)
		if err != nil {
			logger.Warn("Formula does not compile, falling back to identity",
				"table", table.String(), "variable", string(name), "expr", expr, "error", err)
			continue
		}
		dst[name] = compiled{src: expr, prog: prog}
	}
}

// Sensitivity returns the calibration for a tube slot (0..3).
func (e *Engine) Sensitivity(slot int) float64 {
	if slot < 0 || slot >= constants.TubeSlots {
		return math.NaN()
	}
	return e.sens[slot]
}

// HasValueFormula reports whether the variable has a non-identity value formula.
func (e *Engine) HasValueFormula(name vars.Name) bool {
	_, ok := e.value[name]
	return ok
}

// HasGraphFormula reports whether the variable has a non-identity graph formula.
func (e *Engine) HasGraphFormula(name vars.Name) bool {
	_, ok := e.graph[name]
	return ok
}

// ApplyValue runs the ingestion-time formula for one reading. NaN input
// passes through untouched (a missing reading stays missing).
func (e *Engine) ApplyValue(name vars.Name, x float64) float64 {
	return e.apply(TableValue, name, x)
}

// ApplyGraph runs the display-time formula for one value. Pure: the same
// input always yields the same output.
func (e *Engine) ApplyGraph(name vars.Name, x float64) float64 {
	return e.apply(TableGraph, name, x)
}

// ApplyGraphColumn applies the graph formula to a copy of a whole column.
// The input slice is never mutated.
func (e *Engine) ApplyGraphColumn(name vars.Name, in []float64) []float64 {
	out := make([]float64, len(in))
	if _, ok := e.graph[name]; !ok {
		copy(out, in)
		return out
	}
	for i, x := range in {
		out[i] = e.apply(TableGraph, name, x)
	}
	return out
}

func (e *Engine) apply(table Table, name vars.Name, x float64) float64 {
	var c compiled
	var ok bool
	if table == TableValue {
		c, ok = e.value[name]
	} else {
		c, ok = e.graph[name]
	}
	if !ok {
		return x
	}
	if math.IsNaN(x) {
		return x
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.vm.Set("x", x)
	e.vm.Set("sens", e.tubeSensFor(name))

	val, err := e.vm.RunProgram(c.prog)
	if err != nil {
		e.warnOnce(table, name, "Formula evaluation failed", "error", err)
		return math.NaN()
	}
	res := val.ToFloat()
	if math.IsInf(res, 0) {
		// JS turns division by zero into Infinity rather than an error
		e.warnOnce(table, name, "Formula produced a non-finite result")
		return math.NaN()
	}
	return res
}

func (e *Engine) tubeSensFor(name vars.Name) float64 {
	slot := vars.TubeSlot(name)
	if slot < 0 {
		return math.NaN()
	}
	return e.sens[slot]
}

func (e *Engine) warnOnce(table Table, name vars.Name, msg string, args ...any) {
	key := table.String() + "/" + string(name)
	if e.warned[key] {
		return
	}
	e.warned[key] = true
	args = append([]any{"table", table.String(), "variable", string(name)}, args...)
	logger.Warn(msg, args...)
}
