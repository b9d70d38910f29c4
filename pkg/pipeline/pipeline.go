// Package pipeline chains loading, reduction, aggregation and output into
// the two batch operations of the tool: extraction of per-run metrics from
// collision tables and computation of the cohort summaries.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/output"
	"github.com/gilchrisn/hopstats/pkg/reducer"
	"github.com/gilchrisn/hopstats/pkg/summary"
	"github.com/gilchrisn/hopstats/pkg/validation"
)

// DefaultSeeds are the active seed counts reduced when none are given
var DefaultSeeds = []int{16, 32, 64, 128, 256}

// ExtractOptions configures the reduction of raw runs into RunRecords
type ExtractOptions struct {
	InputFile          string
	OutputPrefix       string
	AdditionalInfoFile string
	Seeds              []int
	Threshold          float64
}

// ComputeOptions configures the aggregation of RunRecords into summaries
type ComputeOptions struct {
	InputFile       string
	OutputPrefix    string
	GroundTruthFile string
	LabelFile       string
	StdDev          bool
	Tests           bool
	Tabular         bool
	Workers         int
}

// ExtractResult describes a completed extraction
type ExtractResult struct {
	Runs           int    `json:"runs"`
	Records        int    `json:"records"`
	OutputFile     string `json:"output_file"`
	TotalRuntimeMS int64  `json:"total_runtime_ms"`
}

// ComputeResult describes a completed computation
type ComputeResult struct {
	Runs           int      `json:"runs"`
	Groups         int      `json:"groups"`
	Stage          string   `json:"stage"`
	OutputFiles    []string `json:"output_files"`
	TotalRuntimeMS int64    `json:"total_runtime_ms"`
}

// Pipeline runs the batch operations and writes their outputs
type Pipeline struct {
	Writer output.OutputWriter
	Logger zerolog.Logger
}

// NewPipeline creates a pipeline writing files rounded to precision digits
func NewPipeline(precision int, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Writer: output.NewFileWriter(precision),
		Logger: logger,
	}
}

// DefaultExtractOptions mirrors the defaults of the configuration file
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		OutputPrefix: "./outputs/out_from_collision/outCollision",
		Seeds:        DefaultSeeds,
		Threshold:    models.DefaultThreshold,
	}
}

// DefaultComputeOptions enables every stage and the tabular outputs
func DefaultComputeOptions() ComputeOptions {
	return ComputeOptions{
		OutputPrefix: "./outResults",
		StdDev:       true,
		Tests:        true,
		Tabular:      true,
	}
}

// Validate checks the options before any file is touched
func (o ExtractOptions) Validate() error {
	var errors models.ValidationErrors
	if o.InputFile == "" {
		errors = append(errors, models.ValidationError{Field: "input_file", Message: "input file is required"})
	}
	if o.OutputPrefix == "" {
		errors = append(errors, models.ValidationError{Field: "output_folder", Message: "output prefix is required"})
	}
	if len(o.Seeds) == 0 {
		errors = append(errors, models.ValidationError{Field: "seed_number", Message: "at least one seed count is required"})
	}
	for _, k := range o.Seeds {
		if k <= 0 {
			errors = append(errors, models.ValidationError{Field: "seed_number", Message: "seed counts must be positive", Value: fmt.Sprintf("%d", k)})
		}
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		errors = append(errors, models.ValidationError{Field: "threshold", Message: "threshold must be in (0, 1]", Value: fmt.Sprintf("%g", o.Threshold)})
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}

// Validate checks the options before any file is touched
func (o ComputeOptions) Validate() error {
	if o.Tests && o.GroundTruthFile == "" {
		return summary.ErrTestsNeedGroundTruth
	}
	if o.GroundTruthFile != "" && !o.StdDev {
		return summary.ErrComparisonNeedsDeviations
	}

	var errors models.ValidationErrors
	if o.InputFile == "" {
		errors = append(errors, models.ValidationError{Field: "input_file_estimation", Message: "estimation file is required"})
	}
	if o.OutputPrefix == "" {
		errors = append(errors, models.ValidationError{Field: "output_folder", Message: "output prefix is required"})
	}
	if len(errors) > 0 {
		return errors
	}
	return nil
}

// Extract reduces every raw run for every seed count and writes the records
// to <OutputPrefix>.json
func (p *Pipeline) Extract(ctx context.Context, opts ExtractOptions) (*ExtractResult, error) {
	startTime := time.Now()

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction options: %w", err)
	}

	runs, err := validation.LoadRawRuns(opts.InputFile)
	if err != nil {
		return nil, err
	}
	fields, err := validation.LoadAdditionalInfo(opts.AdditionalInfoFile)
	if err != nil {
		return nil, err
	}

	p.Logger.Info().
		Str("input", opts.InputFile).
		Int("runs", len(runs)).
		Ints("seeds", opts.Seeds).
		Strs("fields", fields).
		Msg("Starting extraction")

	r := reducer.NewReducer(p.Logger)
	r.Threshold = opts.Threshold
	r.Fields = fields

	records, err := r.ReduceAll(runs, opts.Seeds)
	if err != nil {
		return nil, fmt.Errorf("reduction failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := p.Writer.WriteRecords(records, opts.OutputPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	result := &ExtractResult{
		Runs:           len(runs),
		Records:        len(records),
		OutputFile:     path,
		TotalRuntimeMS: time.Since(startTime).Milliseconds(),
	}

	p.Logger.Info().
		Str("output", path).
		Int("records", result.Records).
		Int64("runtime_ms", result.TotalRuntimeMS).
		Msg("Extraction completed")

	return result, nil
}

// Compute aggregates the estimation file and writes the keyed JSON, CSV and
// relabeled CSV outputs. Every input is loaded before the first output is
// written.
func (p *Pipeline) Compute(ctx context.Context, opts ComputeOptions) (*ComputeResult, error) {
	startTime := time.Now()

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compute options: %w", err)
	}

	runs, err := validation.LoadAggregatedRuns(opts.InputFile)
	if err != nil {
		return nil, err
	}

	var gt *models.GroundTruth
	if opts.GroundTruthFile != "" {
		if gt, err = validation.LoadGroundTruth(opts.GroundTruthFile); err != nil {
			return nil, err
		}
	}

	var labels map[string]string
	if opts.LabelFile != "" && opts.Tests && opts.Tabular {
		if labels, err = validation.LoadLabels(opts.LabelFile); err != nil {
			return nil, err
		}
	}

	p.Logger.Info().
		Str("input", opts.InputFile).
		Int("runs", len(runs)).
		Bool("std", opts.StdDev).
		Bool("ground_truth", gt != nil).
		Bool("tests", opts.Tests).
		Msg("Starting computation")

	report, err := summary.Aggregate(ctx, runs, summary.Options{
		StdDev:      opts.StdDev,
		GroundTruth: gt,
		Tests:       opts.Tests,
		Workers:     opts.Workers,
		Logger:      p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	files, err := p.Writer.WriteAll(report, labels, opts.Tabular, opts.OutputPrefix)
	if err != nil {
		return nil, fmt.Errorf("output generation failed: %w", err)
	}

	result := &ComputeResult{
		Runs:           len(runs),
		Groups:         len(report.Results),
		Stage:          report.Stage.String(),
		OutputFiles:    files,
		TotalRuntimeMS: time.Since(startTime).Milliseconds(),
	}

	p.Logger.Info().
		Strs("outputs", files).
		Int("groups", result.Groups).
		Int64("runtime_ms", result.TotalRuntimeMS).
		Msg("Computation completed")

	return result, nil
}
