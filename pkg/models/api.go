package models

import "time"

// APIResponse is the envelope of every HTTP response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExtractionRequest asks for the RunRecords of raw runs
type ExtractionRequest struct {
	Runs      []*RawRun `json:"runs"`
	Seeds     []int     `json:"seeds"`
	Threshold *float64  `json:"threshold,omitempty"`
	Fields    []string  `json:"fields,omitempty"`
}

// ExtractionResponse carries the records in seed-major order
type ExtractionResponse struct {
	Records          []*RunRecord `json:"records"`
	ProcessingTimeMS int64        `json:"processingTimeMS"`
}

// SummaryRequest asks for the cohort summaries of aggregated runs
type SummaryRequest struct {
	Runs        []AggregatedRun `json:"runs"`
	GroundTruth *GroundTruth    `json:"ground_truth,omitempty"`
	StdDev      bool            `json:"std"`
	Tests       bool            `json:"tests"`
}

// Job tracks one asynchronous summary computation
type Job struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	Progress    JobProgress `json:"progress"`
	Result      *JobResult  `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the job can no longer change state
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobProgress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// JobResult summarizes a completed job; the keyed summary is fetched apart
type JobResult struct {
	Runs             int    `json:"runs"`
	Groups           int    `json:"groups"`
	Stage            string `json:"stage"`
	ProcessingTimeMS int64  `json:"processingTimeMS"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"activeJobs"`
	Uptime     string `json:"uptime"`
}
