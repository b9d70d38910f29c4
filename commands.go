package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/hopstats/pkg/api"
	"github.com/gilchrisn/hopstats/pkg/config"
	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/output"
	"github.com/gilchrisn/hopstats/pkg/pipeline"
	"github.com/gilchrisn/hopstats/pkg/service"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string

	extractOpts = pipeline.DefaultExtractOptions()
	computeOpts = pipeline.DefaultComputeOptions()
	precision   = output.DefaultPrecision
	address     string

	rootCmd = &cobra.Command{
		Use:   "hopstats",
		Short: "Distance statistics for probabilistic hop-count estimators",
		Long: `hopstats reduces the collision tables of an estimator simulation into
per-run distance metrics and summarizes them per algorithm, direction and
seed count against the exact measures of the graph.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the operation selected by the configuration file",
		RunE:  runFromConfig,
	}

	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Reduce raw runs into per-run records",
		RunE:  runExtract,
	}

	computeCmd = &cobra.Command{
		Use:   "compute",
		Short: "Summarize per-run records per algorithm, direction and seed count",
		RunE:  runCompute,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve extractions and summaries over HTTP",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides logging.level)")

	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.ini", "configuration file")

	extractCmd.Flags().StringVarP(&extractOpts.InputFile, "input", "i", "", "raw runs JSON file")
	extractCmd.Flags().StringVarP(&extractOpts.OutputPrefix, "output", "o", extractOpts.OutputPrefix, "output path prefix")
	extractCmd.Flags().StringVarP(&extractOpts.AdditionalInfoFile, "additional-info", "a", "", "JSON file naming the fields copied into every record")
	extractCmd.Flags().IntSliceVarP(&extractOpts.Seeds, "seeds", "s", pipeline.DefaultSeeds, "active seed counts")
	extractCmd.Flags().Float64VarP(&extractOpts.Threshold, "threshold", "t", models.DefaultThreshold, "effective diameter threshold")
	_ = extractCmd.MarkFlagRequired("input")

	computeCmd.Flags().StringVarP(&computeOpts.InputFile, "input", "i", "", "per-run records JSON file")
	computeCmd.Flags().StringVarP(&computeOpts.OutputPrefix, "output", "o", computeOpts.OutputPrefix, "output path prefix")
	computeCmd.Flags().StringVarP(&computeOpts.GroundTruthFile, "ground-truth", "g", "", "exact measures JSON file")
	computeCmd.Flags().StringVarP(&computeOpts.LabelFile, "labels", "l", "", "relabel table JSON file")
	computeCmd.Flags().IntVarP(&precision, "round", "r", output.DefaultPrecision, "digits kept in the outputs")
	computeCmd.Flags().BoolVar(&computeOpts.StdDev, "std", true, "compute standard deviations")
	computeCmd.Flags().BoolVar(&computeOpts.Tests, "ttest", true, "run the significance tests")
	computeCmd.Flags().BoolVar(&computeOpts.Tabular, "csv", true, "write the CSV and relabeled tables")
	computeCmd.Flags().IntVarP(&computeOpts.Workers, "workers", "w", 0, "groups summarized concurrently (0 = NumCPU)")
	_ = computeCmd.MarkFlagRequired("input")

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	serveCmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")

	rootCmd.AddCommand(runCmd, extractCmd, computeCmd, serveCmd)
}

// loadConfig reads the optional configuration file and installs its logger
func loadConfig(path string) (*config.Config, error) {
	cfg := config.NewConfig()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Set("logging.level", logLevel)
	}
	log.Logger = cfg.CreateLogger()
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runFromConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	p := pipeline.NewPipeline(cfg.Precision(), log.Logger)

	switch mode {
	case config.ModeExtract:
		opts, err := cfg.ExtractOptions()
		if err != nil {
			return err
		}
		return extract(ctx, p, opts)
	case config.ModeCompute:
		opts, err := cfg.ComputeOptions()
		if err != nil {
			return err
		}
		return compute(ctx, p, opts)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return extract(ctx, pipeline.NewPipeline(cfg.Precision(), log.Logger), extractOpts)
}

func runCompute(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(""); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return compute(ctx, pipeline.NewPipeline(precision, log.Logger), computeOpts)
}

func extract(ctx context.Context, p *pipeline.Pipeline, opts pipeline.ExtractOptions) error {
	result, err := p.Extract(ctx, opts)
	if err != nil {
		return err
	}

	log.Info().
		Int("runs", result.Runs).
		Int("records", result.Records).
		Str("output", result.OutputFile).
		Int64("total_runtime_ms", result.TotalRuntimeMS).
		Msg("Extraction completed")
	return nil
}

func compute(ctx context.Context, p *pipeline.Pipeline, opts pipeline.ComputeOptions) error {
	result, err := p.Compute(ctx, opts)
	if err != nil {
		return err
	}

	log.Info().
		Int("runs", result.Runs).
		Int("groups", result.Groups).
		Str("stage", result.Stage).
		Strs("outputs", result.OutputFiles).
		Int64("total_runtime_ms", result.TotalRuntimeMS).
		Msg("Computation completed")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Set("server.address", address)
	}

	jobConfig := cfg.JobConfig()
	log.Info().
		Str("address", cfg.ServerAddress()).
		Int("max_workers", jobConfig.MaxWorkers).
		Dur("job_timeout", jobConfig.JobTimeout).
		Msg("Configuration loaded")

	jobService := service.NewJobService(jobConfig)
	defer jobService.Close()
	handlers := api.NewHandlers(service.NewExtractionService(), jobService)

	// Create HTTP server with proper timeouts
	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      api.NewRouter(handlers, cfg.AllowedOrigins()),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", server.Addr).
			Msg("HTTP server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}
