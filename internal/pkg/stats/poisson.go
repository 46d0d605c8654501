package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/seubert/gammalog/internal/pkg/constants"
)

// PoissonFitResult compares the observed count-rate histogram against the
// Poisson distribution with the sample mean.
type PoissonFitResult struct {
	// BinStarts holds the lower edge of each bin (integer counts)
	BinStarts []float64
	// Observed holds per-bin sample counts (cumulative fractions for the
	// CDF variant)
	Observed []float64
	// Expected holds the Poisson prediction on the same bins
	Expected []float64
	BinWidth float64
	Mean     float64
	N        int
	R2       float64
	// SNRdB is 10*log10(ssTot/ssRes)
	SNRdB float64
}

// PoissonFit bins the column into at most 30 integer-width bins and
// measures how well a Poisson PMF with the sample mean explains the
// observed histogram.
func PoissonFit(values []float64) (PoissonFitResult, error) {
	return poissonFit(values, false)
}

// PoissonCDFFit is the cumulative-distribution variant of PoissonFit.
func PoissonCDFFit(values []float64) (PoissonFitResult, error) {
	return poissonFit(values, true)
}

func poissonFit(values []float64, cumulative bool) (PoissonFitResult, error) {
	vs := finite(values)
	if len(vs) < constants.MinFiniteSamples {
		return PoissonFitResult{}, ErrInsufficientData
	}

	lo, hi := vs[0], vs[0]
	for _, v := range vs {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo < 0 {
		// count rates cannot be negative; a Poisson fit is meaningless here
		return PoissonFitResult{}, ErrInsufficientData
	}
	if hi == lo {
		return PoissonFitResult{}, ErrInsufficientData
	}

	mean := stat.Mean(vs, nil)
	if mean <= 0 {
		return PoissonFitResult{}, ErrInsufficientData
	}

	// Integer bins, width grown until at most MaxHistogramBins bins remain
	loInt := math.Floor(lo)
	hiInt := math.Floor(hi)
	span := hiInt - loInt + 1
	width := math.Ceil(span / float64(constants.MaxHistogramBins))
	if width < 1 {
		width = 1
	}
	nBins := int(math.Ceil(span / width))

	res := PoissonFitResult{
		BinStarts: make([]float64, nBins),
		Observed:  make([]float64, nBins),
		Expected:  make([]float64, nBins),
		BinWidth:  width,
		Mean:      mean,
		N:         len(vs),
	}

	for i := range res.BinStarts {
		res.BinStarts[i] = loInt + float64(i)*width
	}
	for _, v := range vs {
		bin := int((math.Floor(v) - loInt) / width)
		if bin >= nBins {
			bin = nBins - 1
		}
		res.Observed[bin]++
	}

	// Expected counts: Poisson PMF summed over each bin's integers, scaled
	// by the sample count
	dist := distuv.Poisson{Lambda: mean}
	for i := range res.Expected {
		var p float64
		for k := res.BinStarts[i]; k < res.BinStarts[i]+width; k++ {
			p += dist.Prob(k)
		}
		res.Expected[i] = p * float64(len(vs))
	}

	if cumulative {
		total := float64(len(vs))
		var obsSum, expSum float64
		for i := range res.Observed {
			obsSum += res.Observed[i]
			expSum += res.Expected[i]
			res.Observed[i] = obsSum / total
			res.Expected[i] = expSum / total
		}
	}

	obsMean := stat.Mean(res.Observed, nil)
	var ssRes, ssTot float64
	for i := range res.Observed {
		d := res.Observed[i] - res.Expected[i]
		ssRes += d * d
		m := res.Observed[i] - obsMean
		ssTot += m * m
	}
	if ssTot == 0 {
		return PoissonFitResult{}, ErrInsufficientData
	}

	res.R2 = 1 - ssRes/ssTot
	if ssRes == 0 {
		res.SNRdB = math.Inf(1)
	} else {
		res.SNRdB = 10 * math.Log10(ssTot/ssRes)
	}
	return res, nil
}
