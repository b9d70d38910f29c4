// Package summary aggregates RunRecords of one cohort into summary
// statistics. A summary is built through a fixed chain of stages, each a
// distinct type exposing only the step that follows it:
//
//	Samples -> Means -> Deviations -> Comparison -> Tested
//
// so a stage can never run before its prerequisites.
package summary

import (
	"math"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/statistics"
)

// Stage identifies how far a summary has been computed
type Stage int

const (
	StageSamples Stage = iota
	StageMeans
	StageDeviations
	StageComparison
	StageTests
)

func (s Stage) String() string {
	switch s {
	case StageSamples:
		return "samples"
	case StageMeans:
		return "means"
	case StageDeviations:
		return "deviations"
	case StageComparison:
		return "comparison"
	case StageTests:
		return "tests"
	}
	return "unknown"
}

// Result is the deepest stage reached for one group
type Result interface {
	Key() models.GroupKey
	Stage() Stage
	Sample(models.Metric) []float64
	Mean(models.Metric) (float64, bool)
}

// WithDeviations is implemented by every stage from Deviations on
type WithDeviations interface {
	Result
	StdDev(models.Metric) (float64, bool)
}

// WithComparison is implemented by every stage from Comparison on
type WithComparison interface {
	WithDeviations
	GroundTruth(models.Metric) (float64, bool)
	Residual(models.Metric) (float64, bool)
	ConfidenceInterval(models.Metric) (float64, bool)
}

// WithTests is implemented by Tested
type WithTests interface {
	WithComparison
	TTest(models.Metric) (float64, bool)
	Wilcoxon(models.Metric) (float64, bool)
}

// Samples holds the raw per-metric samples of one cohort
type Samples struct {
	key    models.GroupKey
	values map[models.Metric][]float64
}

// NewSamples collects the samples of runs, in run order. Runs that do not
// carry a metric do not contribute to its sample.
func NewSamples(key models.GroupKey, runs []models.AggregatedRun) *Samples {
	s := &Samples{
		key:    key,
		values: make(map[models.Metric][]float64, len(models.AllMetrics)),
	}
	for _, run := range runs {
		for _, m := range models.AllMetrics {
			if v, ok := run.Value(m); ok {
				s.values[m] = append(s.values[m], v)
			}
		}
	}
	return s
}

func (s *Samples) Key() models.GroupKey { return s.key }
func (s *Samples) Stage() Stage         { return StageSamples }

// Sample returns the ordered sample of metric m
func (s *Samples) Sample(m models.Metric) []float64 { return s.values[m] }

// Mean is never set before the Means stage
func (s *Samples) Mean(models.Metric) (float64, bool) { return 0, false }

// Means computes the arithmetic mean of every non-empty sample
func (s *Samples) Means() *Means {
	means := &Means{
		Samples: s,
		mean:    make(map[models.Metric]float64, len(models.AllMetrics)),
	}
	for _, m := range models.AllMetrics {
		if v, ok := statistics.Mean(s.values[m]); ok {
			means.mean[m] = v
		}
	}
	return means
}

// Means adds sample means. An empty sample leaves its mean unset.
type Means struct {
	*Samples
	mean map[models.Metric]float64
}

func (m *Means) Stage() Stage { return StageMeans }

func (m *Means) Mean(metric models.Metric) (float64, bool) {
	v, ok := m.mean[metric]
	return v, ok
}

// Deviations computes the population (N denominator) standard deviation of
// every sample with a mean
func (m *Means) Deviations() *Deviations {
	d := &Deviations{
		Means: m,
		std:   make(map[models.Metric]float64, len(m.mean)),
	}
	for metric, mean := range m.mean {
		d.std[metric] = statistics.PopulationStdDev(m.values[metric], mean)
	}
	return d
}

// Deviations adds population standard deviations
type Deviations struct {
	*Means
	std map[models.Metric]float64
}

func (d *Deviations) Stage() Stage { return StageDeviations }

func (d *Deviations) StdDev(metric models.Metric) (float64, bool) {
	v, ok := d.std[metric]
	return v, ok
}

// Compare sets the ground truth, then derives the relative residual
// (truth - mean) / truth and the 95% confidence half-width of every compared
// metric. The interval uses the N-1 standard deviation, not the population
// one held by Deviations.
func (d *Deviations) Compare(truth models.GroundTruth) (*Comparison, error) {
	if err := truth.Validate(); err != nil {
		return nil, err
	}

	c := &Comparison{
		Deviations: d,
		truth:      make(map[models.Metric]float64, len(models.ComparedMetrics)),
		residual:   make(map[models.Metric]float64, len(models.ComparedMetrics)),
		ci:         make(map[models.Metric]float64, len(models.ComparedMetrics)),
	}
	for _, m := range models.ComparedMetrics {
		gt, _ := truth.Value(m)
		c.truth[m] = gt

		if mean, ok := d.mean[m]; ok && gt != 0 {
			c.residual[m] = (gt - mean) / gt
		}
		if half, ok := statistics.ConfidenceHalfWidth(d.values[m], statistics.DefaultConfidence); ok {
			c.ci[m] = half
		}
	}
	return c, nil
}

// Comparison adds ground truth, residuals and confidence intervals
type Comparison struct {
	*Deviations
	truth    map[models.Metric]float64
	residual map[models.Metric]float64
	ci       map[models.Metric]float64
}

func (c *Comparison) Stage() Stage { return StageComparison }

func (c *Comparison) GroundTruth(m models.Metric) (float64, bool) {
	v, ok := c.truth[m]
	return v, ok
}

func (c *Comparison) Residual(m models.Metric) (float64, bool) {
	v, ok := c.residual[m]
	return v, ok
}

func (c *Comparison) ConfidenceInterval(m models.Metric) (float64, bool) {
	v, ok := c.ci[m]
	return v, ok
}

// Test runs the one-sample two-sided t-test and Wilcoxon signed-rank test of
// every compared metric against its ground truth. Constant samples get a
// p-value of 1.
func (c *Comparison) Test() *Tested {
	t := &Tested{
		Comparison: c,
		tTest:      make(map[models.Metric]float64, len(models.ComparedMetrics)),
		wilcoxon:   make(map[models.Metric]float64, len(models.ComparedMetrics)),
	}
	for _, m := range models.ComparedMetrics {
		sample := c.values[m]
		if len(sample) == 0 {
			continue
		}
		gt := c.truth[m]
		t.tTest[m] = sanitize(statistics.OneSampleTTest(sample, gt))
		t.wilcoxon[m] = sanitize(statistics.WilcoxonSignedRank(sample, gt))
	}
	return t
}

// Tested adds the p-values of both location tests
type Tested struct {
	*Comparison
	tTest    map[models.Metric]float64
	wilcoxon map[models.Metric]float64
}

func (t *Tested) Stage() Stage { return StageTests }

func (t *Tested) TTest(m models.Metric) (float64, bool) {
	v, ok := t.tTest[m]
	return v, ok
}

func (t *Tested) Wilcoxon(m models.Metric) (float64, bool) {
	v, ok := t.wilcoxon[m]
	return v, ok
}

// sanitize maps NaN p-values to 1
func sanitize(p float64) float64 {
	if math.IsNaN(p) {
		return 1
	}
	return p
}
