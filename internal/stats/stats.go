// Package stats provides the small set of pure statistics the enrichment and
// forecasting stages share: mean, population standard deviation, quantiles
// with linear interpolation, and trailing moving averages.
package stats

import (
	"math"
	"sort"
)

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation, computed with Welford's
// algorithm for numeric stability. Returns 0 for fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean, m2 float64
	for i, v := range xs {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}
	variance := m2 / float64(len(xs))
	if variance < 0 {
		variance = 0
	} // clamp; we don't want NaNs
	return math.Sqrt(variance)
}

// Quantile returns the q-th quantile (q in [0,1]) using linear interpolation
// between closest ranks, matching the convention of the analytics exports the
// pipeline has to reproduce. Returns 0 for an empty input.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MovingAverage returns the trailing moving average with the given window.
// Positions with fewer than window preceding values average what is
// available, so the output has the same length as the input.
func MovingAverage(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, v := range xs {
		sum += v
		if i >= window {
			sum -= xs[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
