// Package config reads the INI configuration file of the tool. Blank values
// fall back to their defaults with an info notice, and every key can be
// overridden from the environment (HOPSTATS_<SECTION>_<KEY>).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/output"
	"github.com/gilchrisn/hopstats/pkg/pipeline"
	"github.com/gilchrisn/hopstats/pkg/service"
)

// ErrNoMode is returned when neither input file of the two modes is set
var ErrNoMode = errors.New("you must choose something to do: set values_from_collision_table.input_file or compute_results.input_file_estimation")

// ErrMissingExactMeasures is returned in compute mode without ground truth
var ErrMissingExactMeasures = errors.New("no exact measures given: compute_results.input_file_exact_measures is required")

const (
	extractSection = "values_from_collision_table"
	computeSection = "compute_results"
)

// Mode is the batch operation selected by the configuration file
type Mode string

const (
	ModeExtract Mode = "extract"
	ModeCompute Mode = "compute"
)

// fallbacks apply when a key is present but blank
var fallbacks = map[string]string{
	extractSection + ".seed_number":            "16,32,64,128,256",
	extractSection + ".output_folder":          "./outputs/out_from_collision/outCollision",
	extractSection + ".additional_information": "./additional_info/addInfos.json",
	extractSection + ".threshold":              "0.9",
	computeSection + ".output_folder":          "./outResults",
	computeSection + ".label_path":             "./table_relabeling/relabel.json",
}

// Config manages the tool configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	for key, value := range fallbacks {
		v.SetDefault(key, value)
	}
	v.SetDefault(extractSection+".input_file", "")
	v.SetDefault(computeSection+".input_file_estimation", "")
	v.SetDefault(computeSection+".input_file_exact_measures", "")

	// Output parameters
	v.SetDefault("output.precision", output.DefaultPrecision)

	// Performance parameters
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Logging parameters
	v.SetDefault("logging.level", "info")

	// Server parameters
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.allowed_origins", "*")

	// Job parameters
	jobs := service.DefaultJobConfig()
	v.SetDefault("jobs.max_workers", jobs.MaxWorkers)
	v.SetDefault("jobs.job_timeout", jobs.JobTimeout.String())
	v.SetDefault("jobs.cleanup_interval", jobs.CleanupInterval.String())
	v.SetDefault("jobs.result_ttl", jobs.ResultTTL.String())

	v.SetEnvPrefix("HOPSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file; files without an extension
// are read as INI
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		c.v.SetConfigType("ini")
	}
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Getters for the extraction section
func (c *Config) InputFile() string             { return c.value(extractSection + ".input_file") }
func (c *Config) ExtractOutputFolder() string   { return c.value(extractSection + ".output_folder") }
func (c *Config) AdditionalInformation() string { return c.value(extractSection + ".additional_information") }

// Getters for the compute section
func (c *Config) EstimationFile() string      { return c.value(computeSection + ".input_file_estimation") }
func (c *Config) ExactMeasuresFile() string   { return c.value(computeSection + ".input_file_exact_measures") }
func (c *Config) ComputeOutputFolder() string { return c.value(computeSection + ".output_folder") }
func (c *Config) LabelPath() string           { return c.value(computeSection + ".label_path") }

func (c *Config) Precision() int   { return c.v.GetInt("output.precision") }
func (c *Config) NumWorkers() int  { return c.v.GetInt("performance.num_workers") }
func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

func (c *Config) ServerAddress() string          { return c.v.GetString("server.address") }
func (c *Config) ReadTimeout() time.Duration     { return c.v.GetDuration("server.read_timeout") }
func (c *Config) WriteTimeout() time.Duration    { return c.v.GetDuration("server.write_timeout") }
func (c *Config) AllowedOrigins() []string       { return splitList(c.v.GetString("server.allowed_origins")) }
func (c *Config) MaxJobWorkers() int             { return c.v.GetInt("jobs.max_workers") }
func (c *Config) JobTimeout() time.Duration      { return c.v.GetDuration("jobs.job_timeout") }
func (c *Config) CleanupInterval() time.Duration { return c.v.GetDuration("jobs.cleanup_interval") }
func (c *Config) ResultTTL() time.Duration       { return c.v.GetDuration("jobs.result_ttl") }

// SeedNumbers parses the comma separated seed counts
func (c *Config) SeedNumbers() ([]int, error) {
	raw := c.value(extractSection + ".seed_number")
	var seeds []int
	for _, part := range splitList(raw) {
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, models.ValidationError{Field: "seed_number", Message: "seed counts must be integers", Value: part}
		}
		seeds = append(seeds, k)
	}
	return seeds, nil
}

// Threshold parses the effective diameter threshold
func (c *Config) Threshold() (float64, error) {
	raw := c.value(extractSection + ".threshold")
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.ValidationError{Field: "threshold", Message: "threshold must be a number", Value: raw}
	}
	return threshold, nil
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Mode picks extraction when its input file is set, else computation
func (c *Config) Mode() (Mode, error) {
	switch {
	case c.InputFile() != "":
		return ModeExtract, nil
	case c.EstimationFile() != "":
		return ModeCompute, nil
	default:
		return "", ErrNoMode
	}
}

// ExtractOptions builds the extraction options of the file
func (c *Config) ExtractOptions() (pipeline.ExtractOptions, error) {
	seeds, err := c.SeedNumbers()
	if err != nil {
		return pipeline.ExtractOptions{}, err
	}
	threshold, err := c.Threshold()
	if err != nil {
		return pipeline.ExtractOptions{}, err
	}

	opts := pipeline.ExtractOptions{
		InputFile:          c.InputFile(),
		OutputPrefix:       c.ExtractOutputFolder(),
		AdditionalInfoFile: c.AdditionalInformation(),
		Seeds:              seeds,
		Threshold:          threshold,
	}
	return opts, opts.Validate()
}

// ComputeOptions builds the compute options of the file. Every stage and
// the tabular outputs are always on in file-driven runs.
func (c *Config) ComputeOptions() (pipeline.ComputeOptions, error) {
	if c.ExactMeasuresFile() == "" {
		return pipeline.ComputeOptions{}, ErrMissingExactMeasures
	}

	opts := pipeline.DefaultComputeOptions()
	opts.InputFile = c.EstimationFile()
	opts.OutputPrefix = c.ComputeOutputFolder()
	opts.GroundTruthFile = c.ExactMeasuresFile()
	opts.LabelFile = c.LabelPath()
	opts.Workers = c.NumWorkers()
	return opts, opts.Validate()
}

// JobConfig builds the limits of the background summary jobs
func (c *Config) JobConfig() service.JobConfig {
	return service.JobConfig{
		MaxWorkers:      c.MaxJobWorkers(),
		JobTimeout:      c.JobTimeout(),
		CleanupInterval: c.CleanupInterval(),
		ResultTTL:       c.ResultTTL(),
		Precision:       c.Precision(),
		GroupWorkers:    c.NumWorkers(),
	}
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "hopstats").Logger()
}

// value reads a string key, replacing a blank value by its fallback
func (c *Config) value(key string) string {
	raw := strings.TrimSpace(c.v.GetString(key))
	if raw != "" {
		return raw
	}
	fallback, ok := fallbacks[key]
	if !ok {
		return ""
	}
	log.Info().
		Str("key", key).
		Str("default", fallback).
		Msg("No value given, assuming default")
	return fallback
}

func splitList(raw string) []string {
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
