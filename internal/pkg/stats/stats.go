// Package stats provides read-only statistics over slice columns: moving
// average, linear regression, Poisson goodness-of-fit, autocorrelation and
// amplitude spectrum. All functions are pure and tolerate sparse live data
// by returning ErrInsufficientData instead of failing.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/seubert/gammalog/internal/pkg/constants"
)

// ErrInsufficientData signals that a column holds too few finite samples
// (or too little variance) for the requested statistic.
var ErrInsufficientData = errors.New("not enough data")

// finitePairs drops every sample whose value (or time) is not finite,
// keeping the remaining pairs aligned.
func finitePairs(times, values []float64) (ts, vs []float64) {
	n := len(values)
	if len(times) < n {
		n = len(times)
	}
	for i := 0; i < n; i++ {
		if isFinite(times[i]) && isFinite(values[i]) {
			ts = append(ts, times[i])
			vs = append(vs, values[i])
		}
	}
	return ts, vs
}

func finite(values []float64) []float64 {
	var out []float64
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MovingAverageResult holds the trimmed moving-average line.
type MovingAverageResult struct {
	Times  []float64
	Values []float64
	// Kernel is the averaging window width in samples
	Kernel int
}

// MovingAverage convolves the column with a uniform kernel whose width is
// derived from the requested averaging period and the slice's mean cycle
// time. Samples within half a kernel of either edge are excluded: their
// averages would cover incomplete windows.
func MovingAverage(times, values []float64, periodSeconds, avgCycleSeconds float64) (MovingAverageResult, error) {
	ts, vs := finitePairs(times, values)
	if len(vs) < constants.MinFiniteSamples {
		return MovingAverageResult{}, ErrInsufficientData
	}
	if !isFinite(avgCycleSeconds) || avgCycleSeconds <= 0 || periodSeconds <= 0 {
		return MovingAverageResult{}, ErrInsufficientData
	}

	kernel := int(math.Round(periodSeconds / avgCycleSeconds))
	if kernel < 1 {
		kernel = 1
	}
	if kernel > len(vs) {
		return MovingAverageResult{}, ErrInsufficientData
	}

	half := kernel / 2
	outLen := len(vs) - 2*half
	if outLen <= 0 {
		return MovingAverageResult{}, ErrInsufficientData
	}

	res := MovingAverageResult{
		Times:  make([]float64, outLen),
		Values: make([]float64, outLen),
		Kernel: kernel,
	}

	// Running sum over the kernel window centered on each kept sample
	var sum float64
	lo, hi := 0, 0 // window [lo, hi)
	for i := half; i < len(vs)-half; i++ {
		wantLo, wantHi := i-half, i+half+1
		if wantHi > len(vs) {
			wantHi = len(vs)
		}
		for hi < wantHi {
			sum += vs[hi]
			hi++
		}
		for lo < wantLo {
			sum -= vs[lo]
			lo++
		}
		res.Times[i-half] = ts[i]
		res.Values[i-half] = sum / float64(hi-lo)
	}
	return res, nil
}

// LinearFitResult is an ordinary least-squares degree-1 fit.
type LinearFitResult struct {
	Slope     float64
	Intercept float64
	// Delta is the total change over the window: slope times window span
	Delta float64
	R2    float64
	N     int
}

// LinearFit fits value = intercept + slope*time over the NaN-filtered
// column.
func LinearFit(times, values []float64) (LinearFitResult, error) {
	ts, vs := finitePairs(times, values)
	if len(vs) < constants.MinFiniteSamples {
		return LinearFitResult{}, ErrInsufficientData
	}
	if stat.Variance(ts, nil) == 0 {
		return LinearFitResult{}, ErrInsufficientData
	}

	intercept, slope := stat.LinearRegression(ts, vs, nil, false)
	if !isFinite(slope) || !isFinite(intercept) {
		return LinearFitResult{}, ErrInsufficientData
	}

	return LinearFitResult{
		Slope:     slope,
		Intercept: intercept,
		Delta:     slope * (ts[len(ts)-1] - ts[0]),
		R2:        stat.RSquared(ts, vs, nil, intercept, slope),
		N:         len(vs),
	}, nil
}
