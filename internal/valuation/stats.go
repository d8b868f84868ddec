package valuation

import (
	"math"
	"sort"
)

// describe computes summary statistics over a non-empty sample. StdDev is the population
// standard deviation.
func describe(values []float64) Statistics {
	n := float64(len(values))

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return Statistics{
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(sq / n),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Count:  len(values),
	}
}
