package slicer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seubert/gammalog/internal/pkg/formula"
	"github.com/seubert/gammalog/internal/pkg/store"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

const day = 1.0
const hour = 1.0 / 24.0
const second = 1.0 / 86400.0

// fill builds a store with n records spaced by step days starting at start,
// CPM = index, Temp = 20, everything else missing.
func fill(t *testing.T, start, step float64, n int) *store.Store {
	t.Helper()
	s := store.NewMemory()
	for i := 0; i < n; i++ {
		r := store.NaNRecord(int64(i+1), start+float64(i)*step)
		r.Values[0] = float64(i + 1) // CPM
		r.Values[8] = 20             // Temp
		require.NoError(t, s.Append(r))
	}
	return s
}

func TestSliceBasic(t *testing.T) {
	s := fill(t, 100, second, 60) // one minute of 1s records
	e := New(nil)

	sl := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitSecond)
	require.Equal(t, 60, sl.Len())

	// Elapsed axis in seconds, relative to the first record
	assert.InDelta(t, 0, sl.Times[0], 1e-6)
	assert.InDelta(t, 59, sl.Times[59], 1e-6)

	cpm := sl.Column(vars.CPM)
	require.Len(t, cpm, 60)
	assert.Equal(t, 1.0, cpm[0])
	assert.Equal(t, 60.0, cpm[59])

	// Missing variables stay NaN, never zero
	for _, v := range sl.Column(vars.Press) {
		assert.True(t, math.IsNaN(v))
	}
	for _, v := range sl.Column(vars.Temp) {
		assert.Equal(t, 20.0, v)
	}
}

func TestWindowClamp(t *testing.T) {
	s := fill(t, 100, second, 10)
	e := New(nil)

	sl := e.Slice(s, Window{Left: 50, Right: 200}, UnitSecond)
	assert.Equal(t, 10, sl.Len())
	assert.Equal(t, 100.0, sl.Window.Left)
	assert.InDelta(t, 100+9*second, sl.Window.Right, 1e-12)
}

func TestWindowSubset(t *testing.T) {
	s := fill(t, 100, second, 100)
	e := New(nil)

	left := 100 + 10*second
	right := 100 + 19*second
	sl := e.Slice(s, Window{Left: left, Right: right}, UnitSecond)
	assert.Equal(t, 10, sl.Len())
	assert.Equal(t, 11.0, sl.Column(vars.CPM)[0])
}

func TestEmptyStoreAndOutsideWindow(t *testing.T) {
	e := New(nil)

	sl := e.Slice(store.NewMemory(), Window{Left: 0, Right: 100}, UnitAuto)
	assert.Zero(t, sl.Len())
	assert.Empty(t, sl.Column(vars.CPM))

	s := fill(t, 100, second, 5)
	sl = e.Slice(s, Window{Left: 500, Right: 600}, UnitMinute)
	assert.Zero(t, sl.Len(), "window fully outside the span is not an error")
}

func TestTimeOfDayKeepsAbsoluteStamps(t *testing.T) {
	s := fill(t, 20514.5, second, 3)
	e := New(nil)

	sl := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitTimeOfDay)
	require.Equal(t, 3, sl.Len())
	assert.InDelta(t, 20514.5, sl.Times[0], 1e-12)
	assert.InDelta(t, 20514.5+2*second, sl.Times[2], 1e-12)
}

func TestAutoUnitSelection(t *testing.T) {
	e := New(nil)

	cases := []struct {
		name string
		span float64 // days
		step float64
		want Unit
	}{
		{"two hours resolves to minutes", 2 * hour, 30 * second, UnitMinute},
		{"five hours resolves to hours", 5 * hour, 60 * second, UnitHour},
		{"ninety seconds resolves to seconds", 90 * second, second, UnitSecond},
		{"two weeks resolves to days", 14 * day, 4 * hour, UnitDay},
		{"half a year resolves to months", 180 * day, day, UnitMonth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := int(tc.span/tc.step) + 1
			s := fill(t, 100, tc.step, n)
			sl := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitAuto)
			assert.Equal(t, tc.want, sl.Unit)
		})
	}
}

func TestGraphFormulaAppliedOnCopy(t *testing.T) {
	s := fill(t, 100, second, 5)
	f := formula.New(formula.Config{
		GraphFormulas: map[vars.Name]string{vars.CPM: "x * 2"},
	})
	e := New(f)

	sl := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitSecond)
	assert.Equal(t, []float64{2, 4, 6, 8, 10}, sl.Column(vars.CPM))

	// Stored values untouched, second request identical (idempotent)
	sl2 := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitSecond)
	assert.Equal(t, sl.Column(vars.CPM), sl2.Column(vars.CPM))
	assert.Equal(t, 1.0, s.All()[0].Values[0])
}

func TestAvgCycleSeconds(t *testing.T) {
	s := fill(t, 100, 2*second, 31) // 60 s span, 31 samples
	e := New(nil)

	sl := e.Slice(s, Window{Left: 0, Right: 1e9}, UnitSecond)
	assert.InDelta(t, 2.0, sl.AvgCycleSeconds(), 1e-9)

	short := e.Slice(fill(t, 100, second, 1), Window{Left: 0, Right: 1e9}, UnitSecond)
	assert.True(t, math.IsNaN(short.AvgCycleSeconds()))
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("Hour")
	require.NoError(t, err)
	assert.Equal(t, UnitHour, u)

	u, err = ParseUnit("auto")
	require.NoError(t, err)
	assert.Equal(t, UnitAuto, u)

	_, err = ParseUnit("fortnight")
	assert.Error(t, err)
}
