// Package vars defines the canonical variable catalog: the 12 fixed
// measurement slots every device maps its native readings onto.
package vars

import (
	"fmt"

	"github.com/seubert/gammalog/internal/pkg/constants"
)

// Name identifies one canonical variable slot.
type Name string

// The 12 canonical variables, in record column order.
const (
	CPM    Name = "CPM"
	CPS    Name = "CPS"
	CPM1st Name = "CPM1st"
	CPS1st Name = "CPS1st"
	CPM2nd Name = "CPM2nd"
	CPS2nd Name = "CPS2nd"
	CPM3rd Name = "CPM3rd"
	CPS3rd Name = "CPS3rd"
	Temp   Name = "Temp"
	Press  Name = "Press"
	Humid  Name = "Humid"
	Xtra   Name = "Xtra"
)

// Axis assigns a variable to one of the two display axes.
type Axis int

const (
	// AxisCounter is the left axis: count rates (CPM/CPS)
	AxisCounter Axis = iota
	// AxisAmbient is the right axis: temperature, pressure, humidity, extra
	AxisAmbient
)

// Variable is an immutable descriptor for one canonical variable. Created
// once at startup and shared by reference everywhere; never mutated.
type Variable struct {
	Name        Name
	DisplayName string
	Unit        string
	Color       string // hex, for external renderers
	Axis        Axis
}

var ordered = [constants.VariableCount]Variable{
	{CPM, "CPM", "CPM", "#1f77b4", AxisCounter},
	{CPS, "CPS", "CPS", "#aec7e8", AxisCounter},
	{CPM1st, "CPM 1st tube", "CPM", "#2ca02c", AxisCounter},
	{CPS1st, "CPS 1st tube", "CPS", "#98df8a", AxisCounter},
	{CPM2nd, "CPM 2nd tube", "CPM", "#d62728", AxisCounter},
	{CPS2nd, "CPS 2nd tube", "CPS", "#ff9896", AxisCounter},
	{CPM3rd, "CPM 3rd tube", "CPM", "#9467bd", AxisCounter},
	{CPS3rd, "CPS 3rd tube", "CPS", "#c5b0d5", AxisCounter},
	{Temp, "Temperature", "°C", "#ff7f0e", AxisAmbient},
	{Press, "Pressure", "hPa", "#8c564b", AxisAmbient},
	{Humid, "Humidity", "%", "#17becf", AxisAmbient},
	{Xtra, "Xtra", "a.u.", "#7f7f7f", AxisAmbient},
}

var byName = func() map[Name]int {
	m := make(map[Name]int, len(ordered))
	for i, v := range ordered {
		m[v.Name] = i
	}
	return m
}()

// All returns the canonical variables in record column order.
func All() []Variable {
	out := make([]Variable, len(ordered))
	copy(out, ordered[:])
	return out
}

// Names returns the canonical variable names in record column order.
func Names() []Name {
	out := make([]Name, len(ordered))
	for i, v := range ordered {
		out[i] = v.Name
	}
	return out
}

// Index returns the record column index of the named variable, or an error
// for an unknown name.
func Index(name Name) (int, error) {
	i, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown variable %q", name)
	}
	return i, nil
}

// ByName returns the descriptor for the named variable.
func ByName(name Name) (Variable, error) {
	i, ok := byName[name]
	if !ok {
		return Variable{}, fmt.Errorf("unknown variable %q", name)
	}
	return ordered[i], nil
}

// IsValid reports whether name is one of the 12 canonical variables.
func IsValid(name Name) bool {
	_, ok := byName[name]
	return ok
}

// IsCounter reports whether the variable is a count rate (CPM/CPS family).
func IsCounter(name Name) bool {
	v, err := ByName(name)
	return err == nil && v.Axis == AxisCounter
}

// TubeSlot returns the physical Geiger tube slot (0..3) a counter variable
// reads from: CPM/CPS share slot 0, the 1st/2nd/3rd pairs slots 1..3.
// Ambient variables have no tube; TubeSlot returns -1 for them.
func TubeSlot(name Name) int {
	switch name {
	case CPM, CPS:
		return 0
	case CPM1st, CPS1st:
		return 1
	case CPM2nd, CPS2nd:
		return 2
	case CPM3rd, CPS3rd:
		return 3
	default:
		return -1
	}
}
