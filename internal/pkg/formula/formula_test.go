package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seubert/gammalog/internal/pkg/vars"
)

func TestIdentityWhenUnconfigured(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, 42.0, e.ApplyValue(vars.CPM, 42.0))
	assert.Equal(t, 42.0, e.ApplyGraph(vars.CPM, 42.0))
	assert.False(t, e.HasValueFormula(vars.CPM))
}

func TestValueFormula(t *testing.T) {
	e := New(Config{
		ValueFormulas: map[vars.Name]string{
			vars.Temp: "x - 273.15", // Kelvin sensor to °C
			vars.CPS:  "x * 60",
		},
	})

	assert.InDelta(t, 20.0, e.ApplyValue(vars.Temp, 293.15), 1e-9)
	assert.InDelta(t, 120.0, e.ApplyValue(vars.CPS, 2.0), 1e-9)
	// Other variables stay identity
	assert.Equal(t, 7.5, e.ApplyValue(vars.Humid, 7.5))
}

func TestSensitivityBinding(t *testing.T) {
	e := New(Config{
		ValueFormulas: map[vars.Name]string{
			vars.CPM:    "x / sens",
			vars.CPM2nd: "x / sens",
		},
		Sensitivities: []float64{100, 100, 200, 100},
	})

	assert.InDelta(t, 1.54, e.ApplyValue(vars.CPM, 154), 1e-9)
	assert.InDelta(t, 0.5, e.ApplyValue(vars.CPM2nd, 100), 1e-9)
}

func TestSensitivityValidation(t *testing.T) {
	e := New(Config{Sensitivities: []float64{154, -3, math.NaN(), 2.08}})
	assert.Equal(t, 154.0, e.Sensitivity(0))
	assert.Equal(t, 154.0, e.Sensitivity(1)) // invalid, fell back to default
	assert.Equal(t, 154.0, e.Sensitivity(2)) // NaN, fell back to default
	assert.Equal(t, 2.08, e.Sensitivity(3))
	assert.True(t, math.IsNaN(e.Sensitivity(9)))
}

func TestCompileErrorFallsBackToIdentity(t *testing.T) {
	e := New(Config{
		GraphFormulas: map[vars.Name]string{vars.CPM: "x +* 2"},
	})
	assert.Equal(t, 5.0, e.ApplyGraph(vars.CPM, 5.0))
	assert.False(t, e.HasGraphFormula(vars.CPM))
}

func TestRuntimeFailureYieldsNaN(t *testing.T) {
	e := New(Config{
		GraphFormulas: map[vars.Name]string{
			vars.CPM: "1 / x",        // Infinity at x=0
			vars.CPS: "undefinedRef", // throws
		},
	})

	assert.True(t, math.IsNaN(e.ApplyGraph(vars.CPM, 0)))
	assert.True(t, math.IsNaN(e.ApplyGraph(vars.CPS, 1)))
	// A later valid evaluation still works
	assert.InDelta(t, 0.5, e.ApplyGraph(vars.CPM, 2.0), 1e-9)
}

func TestNaNPassesThrough(t *testing.T) {
	e := New(Config{
		ValueFormulas: map[vars.Name]string{vars.CPM: "x * 2"},
	})
	assert.True(t, math.IsNaN(e.ApplyValue(vars.CPM, math.NaN())))
}

func TestGraphFormulaIdempotentAcrossRequests(t *testing.T) {
	e := New(Config{
		GraphFormulas: map[vars.Name]string{vars.CPM: "Math.log(x + 1)"},
	})

	in := []float64{0, 1, 10, math.NaN(), 100}
	first := e.ApplyGraphColumn(vars.CPM, in)
	second := e.ApplyGraphColumn(vars.CPM, in)

	require.Len(t, first, len(in))
	for i := range first {
		if math.IsNaN(first[i]) {
			assert.True(t, math.IsNaN(second[i]), "NaN pattern must match at %d", i)
			assert.True(t, math.IsNaN(in[i]), "input NaN preserved at %d", i)
		} else {
			assert.Equal(t, first[i], second[i], "bitwise-identical at %d", i)
		}
	}
	// Input untouched
	assert.Equal(t, 1.0, in[1])
}

func TestMathBuiltins(t *testing.T) {
	e := New(Config{
		GraphFormulas: map[vars.Name]string{vars.Press: "Math.round(x * 10) / 10"},
	})
	assert.InDelta(t, 1013.3, e.ApplyGraph(vars.Press, 1013.25), 1e-9)
}
