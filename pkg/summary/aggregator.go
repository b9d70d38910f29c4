package summary

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/hopstats/pkg/models"
)

// Stage prerequisite violations of an Options value
var (
	ErrComparisonNeedsDeviations = errors.New("ground truth comparison requires standard deviations")
	ErrTestsNeedGroundTruth      = errors.New("hypothesis tests require ground truth values")
)

// Options selects the optional stages run for every group
type Options struct {
	StdDev      bool
	GroundTruth *models.GroundTruth
	Tests       bool
	Workers     int
	Logger      zerolog.Logger
}

// Validate checks the stage prerequisites before any computation
func (o Options) Validate() error {
	if o.Tests && o.GroundTruth == nil {
		return ErrTestsNeedGroundTruth
	}
	if o.GroundTruth != nil && !o.StdDev {
		return ErrComparisonNeedsDeviations
	}
	if o.GroundTruth != nil {
		if err := o.GroundTruth.Validate(); err != nil {
			return fmt.Errorf("invalid ground truth: %w", err)
		}
	}
	return nil
}

// Stage is the deepest stage the options ask for
func (o Options) Stage() Stage {
	switch {
	case o.Tests:
		return StageTests
	case o.GroundTruth != nil:
		return StageComparison
	case o.StdDev:
		return StageDeviations
	}
	return StageMeans
}

// Group is one cohort of runs sharing a GroupKey
type Group struct {
	Key  models.GroupKey
	Runs []models.AggregatedRun
}

// Report is the aggregation of every cohort, in enumeration order
type Report struct {
	Stage       Stage
	GroundTruth *models.GroundTruth
	Results     []Result
}

// Algorithms lists the algorithms of the report in order of appearance
func (r *Report) Algorithms() []string {
	var out []string
	seen := make(map[string]bool)
	for _, res := range r.Results {
		if a := res.Key().Algorithm; !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Aggregate groups runs and computes the requested stages for every group.
// Groups are independent and computed concurrently; the result order is the
// group enumeration order.
func Aggregate(ctx context.Context, runs []models.AggregatedRun, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	groups, err := GroupRuns(runs, opts.Logger)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := summarize(group, opts)
			if err != nil {
				return fmt.Errorf("group %s: %w", group.Key, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts.Logger.Info().
		Int("groups", len(results)).
		Int("runs", len(runs)).
		Str("stage", opts.Stage().String()).
		Msg("Aggregation completed")

	return &Report{
		Stage:       opts.Stage(),
		GroundTruth: opts.GroundTruth,
		Results:     results,
	}, nil
}

// summarize runs the stage chain selected by opts for one group
func summarize(group Group, opts Options) (Result, error) {
	means := NewSamples(group.Key, group.Runs).Means()
	if !opts.StdDev {
		return means, nil
	}

	deviations := means.Deviations()
	if opts.GroundTruth == nil {
		return deviations, nil
	}

	comparison, err := deviations.Compare(*opts.GroundTruth)
	if err != nil {
		return nil, err
	}
	if !opts.Tests {
		return comparison, nil
	}
	return comparison.Test(), nil
}

// GroupRuns resolves each run's cohort and enumerates groups algorithm ->
// direction -> seed count, each dimension in order of first appearance.
// Runs without algorithm or direction fall into the default cohort.
func GroupRuns(runs []models.AggregatedRun, logger zerolog.Logger) ([]Group, error) {
	var (
		algorithms, directions []string
		seeds                  []int
		seenAlgo               = make(map[string]bool)
		seenDir                = make(map[string]bool)
		seenSeed               = make(map[int]bool)
		byKey                  = make(map[models.GroupKey][]models.AggregatedRun)
		defaultedAlgo          bool
		defaultedDir           bool
	)

	for i, run := range runs {
		if run.NumSeed == nil {
			return nil, models.ValidationError{Field: "num_seed", Message: "every run must carry num_seed", Value: fmt.Sprintf("run %d", i)}
		}

		key := models.GroupKey{
			Algorithm: models.DefaultAlgorithm,
			Direction: models.DefaultDirection,
			SeedCount: *run.NumSeed,
		}
		if run.Algorithm != nil {
			key.Algorithm = *run.Algorithm
		} else {
			defaultedAlgo = true
		}
		if run.Direction != nil {
			key.Direction = *run.Direction
		} else {
			defaultedDir = true
		}

		if !seenAlgo[key.Algorithm] {
			seenAlgo[key.Algorithm] = true
			algorithms = append(algorithms, key.Algorithm)
		}
		if !seenDir[key.Direction] {
			seenDir[key.Direction] = true
			directions = append(directions, key.Direction)
		}
		if !seenSeed[key.SeedCount] {
			seenSeed[key.SeedCount] = true
			seeds = append(seeds, key.SeedCount)
		}
		byKey[key] = append(byKey[key], run)
	}

	if defaultedAlgo {
		logger.Info().Str("algorithm", models.DefaultAlgorithm).Msg("No algorithm in some runs, assuming default algorithm")
	}
	if defaultedDir {
		logger.Info().Str("direction", models.DefaultDirection).Msg("No direction in some runs, assuming default direction")
	}

	groups := make([]Group, 0, len(byKey))
	for _, algorithm := range algorithms {
		for _, direction := range directions {
			for _, seed := range seeds {
				key := models.GroupKey{Algorithm: algorithm, Direction: direction, SeedCount: seed}
				if members, ok := byKey[key]; ok {
					groups = append(groups, Group{Key: key, Runs: members})
				}
			}
		}
	}
	return groups, nil
}
