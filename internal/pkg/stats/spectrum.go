package stats

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/seubert/gammalog/internal/pkg/constants"
)

// Autocorrelation returns the normalized autocorrelation of the
// NaN-filtered column for non-negative lags: ac[0] == 1, |ac[k]| <= 1.
func Autocorrelation(values []float64) ([]float64, error) {
	vs := finite(values)
	n := len(vs)
	if n < constants.MinFiniteSamples {
		return nil, ErrInsufficientData
	}

	mean := stat.Mean(vs, nil)
	var variance float64
	for _, v := range vs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance == 0 {
		return nil, ErrInsufficientData
	}

	ac := make([]float64, n)
	for lag := 0; lag < n; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += (vs[i] - mean) * (vs[i+lag] - mean)
		}
		ac[lag] = sum / (variance * float64(n))
	}
	return ac, nil
}

// SpectrumResult is the one-sided amplitude spectrum of a column.
type SpectrumResult struct {
	// Freqs holds the bin frequencies in cycles per second
	Freqs []float64
	// Amplitudes holds the FFT magnitude per bin
	Amplitudes []float64
	// DominantFreq is the argmax of the non-zero-frequency bins
	DominantFreq float64
	// DominantPeriod is 1/DominantFreq in seconds
	DominantPeriod float64
}

// Spectrum computes the real-FFT amplitude spectrum of the NaN-filtered
// column. times must be in seconds; only the mean sample spacing is used.
func Spectrum(times, values []float64) (SpectrumResult, error) {
	ts, vs := finitePairs(times, values)
	n := len(vs)
	if n < constants.MinFiniteSamples {
		return SpectrumResult{}, ErrInsufficientData
	}

	dt := (ts[n-1] - ts[0]) / float64(n-1)
	if !isFinite(dt) || dt <= 0 {
		return SpectrumResult{}, ErrInsufficientData
	}

	// Remove the mean so the DC bin does not drown the spectrum
	mean := stat.Mean(vs, nil)
	seq := make([]float64, n)
	for i, v := range vs {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, seq)

	res := SpectrumResult{
		Freqs:      make([]float64, len(coeffs)),
		Amplitudes: make([]float64, len(coeffs)),
	}
	for i, c := range coeffs {
		res.Freqs[i] = fft.Freq(i) / dt
		res.Amplitudes[i] = cmplx.Abs(c)
	}

	// Dominant bin, skipping the zero-frequency residual
	best := 1
	for i := 2; i < len(res.Amplitudes); i++ {
		if res.Amplitudes[i] > res.Amplitudes[best] {
			best = i
		}
	}
	if best < len(res.Freqs) && res.Freqs[best] > 0 {
		res.DominantFreq = res.Freqs[best]
		res.DominantPeriod = 1 / res.DominantFreq
	} else {
		res.DominantFreq = math.NaN()
		res.DominantPeriod = math.NaN()
	}
	return res, nil
}
