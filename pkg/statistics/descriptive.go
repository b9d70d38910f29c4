// Package statistics holds the numeric routines the aggregator relies on:
// descriptive statistics, Student's t quantiles and the two one-sample
// location tests used to compare estimates with exact measures.
package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is the nominal level of every interval and test
const DefaultConfidence = 0.95

// Mean returns the arithmetic mean; ok is false for an empty sample
func Mean(x []float64) (mean float64, ok bool) {
	if len(x) == 0 {
		return 0, false
	}
	return stat.Mean(x, nil), true
}

// PopulationStdDev divides by N, around an already computed mean
func PopulationStdDev(x []float64, mean float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(stat.MomentAbout(2, x, mean, nil))
}

// SampleStdDev is the unbiased (N-1) standard deviation
func SampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return math.Sqrt(stat.Variance(x, nil))
}

// TCritical returns the p-quantile of Student's t with df degrees of freedom
func TCritical(p, df float64) float64 {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return t.Quantile(p)
}

// ConfidenceHalfWidth is t_{(1+level)/2, N-1} * sd / sqrt(N), with the N-1
// standard deviation. It is undefined for fewer than two observations.
func ConfidenceHalfWidth(x []float64, level float64) (float64, bool) {
	n := len(x)
	if n < 2 {
		return 0, false
	}
	q := TCritical((1+level)/2, float64(n-1))
	return q * SampleStdDev(x) / math.Sqrt(float64(n)), true
}

// AllEqual reports whether every value in x is identical (true when empty)
func AllEqual(x []float64) bool {
	for _, v := range x[min(1, len(x)):] {
		if v != x[0] {
			return false
		}
	}
	return true
}
