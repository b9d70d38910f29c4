package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/output"
	"github.com/gilchrisn/hopstats/pkg/summary"
	"github.com/gilchrisn/hopstats/pkg/validation"
)

// ErrJobNotFound is returned for unknown or expired job ids
var ErrJobNotFound = errors.New("job not found")

// ErrResultNotReady is returned when a job has no result yet
var ErrResultNotReady = errors.New("job result not available")

// JobConfig bounds the background summary jobs
type JobConfig struct {
	MaxWorkers      int
	JobTimeout      time.Duration
	CleanupInterval time.Duration
	ResultTTL       time.Duration
	Precision       int
	// GroupWorkers bounds the groups aggregated concurrently within one job
	GroupWorkers int
}

// DefaultJobConfig returns the job limits used when none are configured
func DefaultJobConfig() JobConfig {
	return JobConfig{
		MaxWorkers:      4,
		JobTimeout:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		ResultTTL:       time.Hour,
		Precision:       output.DefaultPrecision,
	}
}

// JobService handles background summary jobs
type JobService struct {
	jobs    map[string]*models.Job
	results map[string]map[string]interface{}
	cancels map[string]context.CancelFunc
	workers chan struct{}
	config  JobConfig
	mutex   sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

// NewJobService creates a job service and starts its cleanup loop
func NewJobService(config JobConfig) *JobService {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	service := &JobService{
		jobs:    make(map[string]*models.Job),
		results: make(map[string]map[string]interface{}),
		cancels: make(map[string]context.CancelFunc),
		workers: make(chan struct{}, config.MaxWorkers),
		config:  config,
		done:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go service.cleanupLoop()
	}

	return service
}

// Close stops the cleanup loop and cancels every unfinished job
func (s *JobService) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mutex.Lock()
		defer s.mutex.Unlock()
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

// Submit validates a summary request and queues it
func (s *JobService) Submit(req models.SummaryRequest) (*models.Job, error) {
	opts := summary.Options{
		StdDev:      req.StdDev,
		GroundTruth: req.GroundTruth,
		Tests:       req.Tests,
		Workers:     s.config.GroupWorkers,
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if len(req.Runs) == 0 {
		return nil, models.ValidationError{Field: "runs", Message: "at least one run is required"}
	}
	if err := validation.ValidateAggregatedRuns(req.Runs); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	jobID := uuid.New().String()
	now := time.Now()
	job := &models.Job{
		ID:     jobID,
		Status: models.JobStatusQueued,
		Progress: models.JobProgress{
			Percentage: 0,
			Message:    "Queued",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[jobID] = job

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[jobID] = cancel

	recordJob("submitted")
	log.Info().
		Str("job_id", jobID).
		Int("runs", len(req.Runs)).
		Str("stage", opts.Stage().String()).
		Msg("Job submitted")

	go s.processJob(ctx, jobID, req.Runs, opts)

	return s.snapshot(job), nil
}

// Get retrieves a copy of a job by ID
func (s *JobService) Get(jobID string) (*models.Job, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return s.snapshot(job), nil
}

// GetResult retrieves the keyed summary of a completed job
func (s *JobService) GetResult(jobID string) (map[string]interface{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, exists := s.jobs[jobID]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	result, exists := s.results[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrResultNotReady, jobID)
	}

	return result, nil
}

// Cancel cancels a queued or running job; finished jobs are left untouched
func (s *JobService) Cancel(jobID string) (*models.Job, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if !job.Status.Finished() {
		if cancel, ok := s.cancels[jobID]; ok {
			cancel()
			delete(s.cancels, jobID)
		}
		job.Status = models.JobStatusCancelled
		job.Progress.Message = "Cancelled"
		now := time.Now()
		job.CompletedAt = &now
		job.UpdatedAt = now

		recordJob(string(models.JobStatusCancelled))
		log.Info().
			Str("job_id", jobID).
			Msg("Job cancelled")
	}

	return s.snapshot(job), nil
}

// ActiveJobs counts queued and running jobs
func (s *JobService) ActiveJobs() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, job := range s.jobs {
		if !job.Status.Finished() {
			active++
		}
	}
	return active
}

// processJob processes a job in the background
func (s *JobService) processJob(ctx context.Context, jobID string, runs []models.AggregatedRun, opts summary.Options) {
	// Acquire worker slot
	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		return
	}

	startTime := time.Now()
	if !s.start(jobID, startTime) {
		return
	}

	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	opts.Logger = log.With().Str("job_id", jobID).Logger()
	report, err := summary.Aggregate(ctx, runs, opts)
	if err != nil {
		s.failJob(jobID, fmt.Errorf("aggregation failed: %w", err))
		return
	}

	keyed := output.Flatten(output.Summarize(report, s.config.Precision))
	s.completeJob(jobID, keyed, &models.JobResult{
		Runs:             len(runs),
		Groups:           len(report.Results),
		Stage:            report.Stage.String(),
		ProcessingTimeMS: time.Since(startTime).Milliseconds(),
	})
}

// start moves a queued job to running; false when it was cancelled meanwhile
func (s *JobService) start(jobID string, startTime time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusQueued {
		return false
	}

	job.Status = models.JobStatusRunning
	job.Progress.Message = "Aggregating"
	job.StartedAt = &startTime
	job.UpdatedAt = startTime

	log.Debug().
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Msg("Job status updated with start time")
	return true
}

// completeJob marks a job as completed with results
func (s *JobService) completeJob(jobID string, keyed map[string]interface{}, result *models.JobResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusRunning {
		return
	}

	job.Status = models.JobStatusCompleted
	job.Progress.Percentage = 100
	job.Progress.Message = "Complete"
	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.Result = result

	s.results[jobID] = keyed
	s.release(jobID)

	recordJob(string(models.JobStatusCompleted))
	jobDuration.Observe(float64(result.ProcessingTimeMS) / 1000)

	log.Info().
		Str("job_id", jobID).
		Int("groups", result.Groups).
		Str("stage", result.Stage).
		Int64("processing_time_ms", result.ProcessingTimeMS).
		Msg("Job completed successfully")
}

// failJob marks a job as failed, unless it was cancelled
func (s *JobService) failJob(jobID string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobStatusRunning {
		return
	}

	job.Status = models.JobStatusFailed
	job.Error = err.Error()
	job.Progress.Message = "Failed"
	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.release(jobID)

	recordJob(string(models.JobStatusFailed))
	log.Error().
		Str("job_id", jobID).
		Err(err).
		Msg("Job failed")
}

// release drops the cancel func of a finished job; caller holds the lock
func (s *JobService) release(jobID string) {
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
}

// snapshot copies a job so callers never share state with the workers;
// caller holds the lock
func (s *JobService) snapshot(job *models.Job) *models.Job {
	c := *job
	if job.Result != nil {
		r := *job.Result
		c.Result = &r
	}
	return &c
}

// cleanupLoop periodically cleans up old jobs and results
func (s *JobService) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.done:
			return
		}
	}
}

// cleanup removes finished jobs not updated within the result TTL
func (s *JobService) cleanup(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := now.Add(-s.config.ResultTTL)
	cleaned := 0

	for jobID, job := range s.jobs {
		if job.Status.Finished() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, jobID)
			delete(s.results, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Info().
			Int("cleaned_jobs", cleaned).
			Msg("Job cleanup completed")
	}
	return cleaned
}
