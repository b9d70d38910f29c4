package summary

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hopstats/pkg/models"
)

func f(v float64) *float64 { return &v }
func s(v string) *string    { return &v }
func n(v int) *int          { return &v }

func run(algo, dir string, seeds int, avg float64) models.AggregatedRun {
	r := models.AggregatedRun{
		NumSeed:           n(seeds),
		AvgDistance:       f(avg),
		EffectiveDiameter: f(avg + 1),
		LowerBound:        f(avg + 2),
		TotalCouples:      f(avg * 100),
		MemoryUsed:        f(512),
		Time:              f(1.5),
	}
	if algo != "" {
		r.Algorithm = s(algo)
	}
	if dir != "" {
		r.Direction = s(dir)
	}
	return r
}

func truth(avg float64) *models.GroundTruth {
	return &models.GroundTruth{
		AvgDistance:       f(avg),
		EffectiveDiameter: f(avg + 1),
		LowerBound:        f(avg + 2),
		TotalCouples:      f(avg * 100),
	}
}

func TestStagesOnKnownSample(t *testing.T) {
	var runs []models.AggregatedRun
	for _, v := range []float64{1.8, 1.9, 2.0, 2.1, 2.2} {
		runs = append(runs, run("a", "out", 16, v))
	}

	key := models.GroupKey{Algorithm: "a", Direction: "out", SeedCount: 16}
	samples := NewSamples(key, runs)
	assert.Equal(t, []float64{1.8, 1.9, 2.0, 2.1, 2.2}, samples.Sample(models.AvgDistance))
	_, ok := samples.Mean(models.AvgDistance)
	assert.False(t, ok)

	means := samples.Means()
	mean, ok := means.Mean(models.AvgDistance)
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-12)

	deviations := means.Deviations()
	std, ok := deviations.StdDev(models.AvgDistance)
	require.True(t, ok)
	assert.InDelta(t, 0.141421, std, 1e-6)

	comparison, err := deviations.Compare(*truth(2.0))
	require.NoError(t, err)
	residual, ok := comparison.Residual(models.AvgDistance)
	require.True(t, ok)
	assert.InDelta(t, 0.0, residual, 1e-12)

	// interval is built on the N-1 deviation, not the population one
	ci, ok := comparison.ConfidenceInterval(models.AvgDistance)
	require.True(t, ok)
	assert.InDelta(t, 2.776445*math.Sqrt(0.025)/math.Sqrt(5), ci, 1e-5)
	assert.NotEqual(t, 2.776445*std/math.Sqrt(5), ci)

	tested := comparison.Test()
	p, ok := tested.TTest(models.AvgDistance)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p, 1e-9)
	_, ok = tested.TTest(models.MemoryUsed)
	assert.False(t, ok)
	assert.Equal(t, StageTests, tested.Stage())
}

func TestResidualSignLaw(t *testing.T) {
	runs := []models.AggregatedRun{run("a", "out", 8, 3), run("a", "out", 8, 5)}
	means := NewSamples(models.GroupKey{}, runs).Means()

	comparison, err := means.Deviations().Compare(*truth(5))
	require.NoError(t, err)

	for _, m := range models.ComparedMetrics {
		gt, ok := comparison.GroundTruth(m)
		require.True(t, ok)
		mean, ok := comparison.Mean(m)
		require.True(t, ok)
		residual, ok := comparison.Residual(m)
		require.True(t, ok)
		assert.InDelta(t, (gt-mean)/gt, residual, 1e-12, m.Key())
	}

	// ground truth above the estimate gives a positive residual
	residual, _ := comparison.Residual(models.AvgDistance)
	assert.InDelta(t, 0.2, residual, 1e-12)
}

func TestConstantSamplesTestToOne(t *testing.T) {
	runs := []models.AggregatedRun{run("a", "out", 8, 3), run("a", "out", 8, 3), run("a", "out", 8, 3)}
	comparison, err := NewSamples(models.GroupKey{}, runs).Means().Deviations().Compare(*truth(7))
	require.NoError(t, err)

	tested := comparison.Test()
	for _, m := range models.ComparedMetrics {
		p, ok := tested.TTest(m)
		require.True(t, ok)
		assert.Equal(t, 1.0, p)
		p, ok = tested.Wilcoxon(m)
		require.True(t, ok)
		assert.Equal(t, 1.0, p)
	}
}

func TestEmptySampleLeavesMeanUnset(t *testing.T) {
	r := run("a", "out", 8, 3)
	r.MemoryUsed = nil

	means := NewSamples(models.GroupKey{}, []models.AggregatedRun{r}).Means()
	_, ok := means.Mean(models.MemoryUsed)
	assert.False(t, ok)
	_, ok = means.Deviations().StdDev(models.MemoryUsed)
	assert.False(t, ok)

	// a single observation has no confidence interval
	comparison, err := means.Deviations().Compare(*truth(3))
	require.NoError(t, err)
	_, ok = comparison.ConfidenceInterval(models.AvgDistance)
	assert.False(t, ok)
}

func TestCompareRequiresCompleteGroundTruth(t *testing.T) {
	deviations := NewSamples(models.GroupKey{}, []models.AggregatedRun{run("a", "out", 8, 3)}).Means().Deviations()
	gt := truth(3)
	gt.TotalCouples = nil

	_, err := deviations.Compare(*gt)
	var ve models.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "total_couples", ve[0].Field)
}

func TestGroupRunsDefaultsCohort(t *testing.T) {
	runs := []models.AggregatedRun{
		run("", "", 32, 1),
		run("", "", 16, 1),
		run("", "", 32, 2),
		run("", "", 64, 1),
	}

	groups, err := GroupRuns(runs, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, groups, 3)

	for _, g := range groups {
		assert.Equal(t, models.DefaultAlgorithm, g.Key.Algorithm)
		assert.Equal(t, models.DefaultDirection, g.Key.Direction)
	}
	assert.Equal(t, 32, groups[0].Key.SeedCount)
	assert.Equal(t, 16, groups[1].Key.SeedCount)
	assert.Equal(t, 64, groups[2].Key.SeedCount)
	assert.Len(t, groups[0].Runs, 2)
}

func TestGroupRunsEnumerationOrder(t *testing.T) {
	runs := []models.AggregatedRun{
		run("MHSE", "in", 16, 1),
		run("BMinHash", "out", 32, 1),
		run("MHSE", "out", 32, 1),
		run("MHSE", "out", 16, 1),
		run("BMinHash", "in", 16, 1),
	}

	groups, err := GroupRuns(runs, zerolog.Nop())
	require.NoError(t, err)

	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key.String())
	}
	assert.Equal(t, []string{
		"MHSE:in:16",
		"MHSE:out:16",
		"MHSE:out:32",
		"BMinHash:in:16",
		"BMinHash:out:32",
	}, keys)
}

func TestGroupRunsRequiresSeedCount(t *testing.T) {
	r := run("a", "out", 1, 1)
	r.NumSeed = nil
	_, err := GroupRuns([]models.AggregatedRun{r}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAggregateStages(t *testing.T) {
	runs := []models.AggregatedRun{
		run("a", "out", 16, 1.9),
		run("a", "out", 16, 2.1),
		run("a", "out", 32, 2.0),
		run("a", "out", 32, 2.05),
	}

	tests := []struct {
		name  string
		opts  Options
		stage Stage
	}{
		{"means", Options{}, StageMeans},
		{"deviations", Options{StdDev: true}, StageDeviations},
		{"comparison", Options{StdDev: true, GroundTruth: truth(2)}, StageComparison},
		{"tests", Options{StdDev: true, GroundTruth: truth(2), Tests: true, Workers: 2}, StageTests},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Logger = zerolog.Nop()
			report, err := Aggregate(context.Background(), runs, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.stage, report.Stage)
			require.Len(t, report.Results, 2)
			for _, res := range report.Results {
				assert.Equal(t, tc.stage, res.Stage())
			}
			assert.Equal(t, 16, report.Results[0].Key().SeedCount)
			assert.Equal(t, 32, report.Results[1].Key().SeedCount)
		})
	}
}

func TestAggregatePrerequisites(t *testing.T) {
	_, err := Aggregate(context.Background(), nil, Options{StdDev: true, Tests: true})
	assert.ErrorIs(t, err, ErrTestsNeedGroundTruth)

	_, err = Aggregate(context.Background(), nil, Options{GroundTruth: truth(1)})
	assert.ErrorIs(t, err, ErrComparisonNeedsDeviations)
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Aggregate(ctx, []models.AggregatedRun{run("a", "out", 1, 1)}, Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportAlgorithms(t *testing.T) {
	runs := []models.AggregatedRun{run("b", "out", 1, 1), run("a", "out", 1, 1), run("b", "in", 1, 1)}
	report, err := Aggregate(context.Background(), runs, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, report.Algorithms())
}

func TestZeroGroundTruthLeavesResidualUndefined(t *testing.T) {
	runs := []models.AggregatedRun{run("a", "out", 8, 1.8), run("a", "out", 8, 2.2), run("a", "out", 8, 2.0)}
	deviations := NewSamples(models.GroupKey{}, runs).Means().Deviations()
	gt := truth(2)
	gt.AvgDistance = f(0)

	comparison, err := deviations.Compare(*gt)
	require.NoError(t, err)

	_, ok := comparison.Residual(models.AvgDistance)
	assert.False(t, ok)
	v, ok := comparison.GroundTruth(models.AvgDistance)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	residual, ok := comparison.Residual(models.EffectiveDiameter)
	require.True(t, ok)
	assert.InDelta(t, 0.0, residual, 1e-12)

	_, ok = comparison.ConfidenceInterval(models.AvgDistance)
	assert.True(t, ok)
}
