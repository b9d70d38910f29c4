package statistics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// exactSignedRankLimit is the sample size below which the Wilcoxon null
// distribution is enumerated instead of approximated
const exactSignedRankLimit = 50

// OneSampleTTest returns the two-sided p-value of H0: mean(x) == mu.
// Constant samples cannot reject the null and yield 1.
func OneSampleTTest(x []float64, mu float64) float64 {
	if AllEqual(x) {
		return 1
	}

	n := float64(len(x))
	mean := stat.Mean(x, nil)
	se := SampleStdDev(x) / math.Sqrt(n)
	t := (mean - mu) / se

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
	return math.Min(1, 2*dist.CDF(-math.Abs(t)))
}

// WilcoxonSignedRank returns the two-sided p-value of H0: x is symmetric
// around mu. Zero differences are dropped and tied magnitudes get average
// ranks. The exact null distribution is used for small samples without ties
// or zeros; otherwise the normal approximation with tie and continuity
// correction. Constant samples yield 1.
func WilcoxonSignedRank(x []float64, mu float64) float64 {
	if AllEqual(x) {
		return 1
	}

	diffs := make([]float64, 0, len(x))
	zeros := false
	for _, v := range x {
		d := v - mu
		if d == 0 {
			zeros = true
			continue
		}
		diffs = append(diffs, d)
	}

	n := len(diffs)
	if n == 0 {
		return 1
	}

	ranks, tieSizes := absRanks(diffs)

	v := 0.0
	for i, d := range diffs {
		if d > 0 {
			v += ranks[i]
		}
	}

	nf := float64(n)
	expected := nf * (nf + 1) / 4

	if n < exactSignedRankLimit && len(tieSizes) == 0 && !zeros {
		var p float64
		if v > expected {
			p = signedRankUpper(int(math.Round(v)), n)
		} else {
			p = signedRankLower(int(math.Round(v)), n)
		}
		return math.Min(1, 2*p)
	}

	tieCorrection := 0.0
	for _, t := range tieSizes {
		tf := float64(t)
		tieCorrection += tf*tf*tf - tf
	}
	sigma := math.Sqrt(nf*(nf+1)*(2*nf+1)/24 - tieCorrection/48)
	if sigma == 0 {
		return 1
	}

	z := v - expected
	correction := 0.0
	switch {
	case z > 0:
		correction = 0.5
	case z < 0:
		correction = -0.5
	}
	z = (z - correction) / sigma

	p := 2 * math.Min(distuv.UnitNormal.CDF(z), distuv.UnitNormal.Survival(z))
	return math.Min(1, p)
}

// absRanks ranks |d| with average ranks for ties and returns the size of
// every tie group larger than one
func absRanks(diffs []float64) (ranks []float64, tieSizes []int) {
	n := len(diffs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(diffs[order[a]]) < math.Abs(diffs[order[b]])
	})

	ranks = make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && math.Abs(diffs[order[j]]) == math.Abs(diffs[order[i]]) {
			j++
		}
		// positions i..j-1 share ranks i+1..j
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		if j-i > 1 {
			tieSizes = append(tieSizes, j-i)
		}
		i = j
	}
	return ranks, tieSizes
}

// signedRankCounts[s] is the number of subsets of {1..n} summing to s
func signedRankCounts(n int) []float64 {
	maxSum := n * (n + 1) / 2
	counts := make([]float64, maxSum+1)
	counts[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			counts[s] += counts[s-r]
		}
	}
	return counts
}

// signedRankLower is P(V <= v) under the null
func signedRankLower(v, n int) float64 {
	counts := signedRankCounts(n)
	total := math.Ldexp(1, n)
	acc := 0.0
	for s := 0; s <= v && s < len(counts); s++ {
		acc += counts[s]
	}
	return acc / total
}

// signedRankUpper is P(V >= v) under the null
func signedRankUpper(v, n int) float64 {
	counts := signedRankCounts(n)
	total := math.Ldexp(1, n)
	acc := 0.0
	for s := max(v, 0); s < len(counts); s++ {
		acc += counts[s]
	}
	return acc / total
}
