// Package stats holds the order statistics shared by the scorer, the
// walk-forward summary and the Monte Carlo summary.
package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// madFloor is the dispersion below which a normalisation falls back to the next estimator.
const madFloor = 1e-12

// Median returns the exact median of xs, or NaN when xs is empty. xs is not modified.
func Median(xs []float64) float64 {
	return Percentile(xs, 0.5)
}

// Percentile returns the p-quantile (0 <= p <= 1) using linear interpolation
// between closest ranks: h = (n-1)p, x[floor(h)] + (h-floor(h))(x[floor(h)+1]-x[floor(h)]).
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(1, p))
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev is the sample (n-1) standard deviation; 0 for fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// PopStdDev is the population (n) standard deviation; 0 for an empty slice.
func PopStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return std
}

// Distribution summarises a sample.
type Distribution struct {
	Count  int     `json:"count"`
	Median float64 `json:"median"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Describe returns the distribution of xs. An empty sample yields all zeros.
func Describe(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return Distribution{
		Count:  len(xs),
		Median: percentileSorted(sorted, 0.5),
		P5:     percentileSorted(sorted, 0.05),
		P25:    percentileSorted(sorted, 0.25),
		P75:    percentileSorted(sorted, 0.75),
		P95:    percentileSorted(sorted, 0.95),
		Mean:   Mean(xs),
		Std:    StdDev(xs),
	}
}

// RobustNormalize maps xs to (x - median) / MAD. When the MAD collapses it
// divides by the population standard deviation instead, and when that
// collapses too every value maps to 0.
func RobustNormalize(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	med := Median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	scale := Median(dev)
	if scale < madFloor {
		scale = PopStdDev(xs)
	}
	if scale < madFloor {
		return out
	}
	for i, x := range xs {
		out[i] = (x - med) / scale
	}
	return out
}
