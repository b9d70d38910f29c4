package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/service"
	"github.com/gilchrisn/hopstats/pkg/utils"
)

// Handlers contains HTTP request handlers
type Handlers struct {
	extractionService *service.ExtractionService
	jobService        *service.JobService
	started           time.Time
}

// NewHandlers creates new API handlers
func NewHandlers(extractionService *service.ExtractionService, jobService *service.JobService) *Handlers {
	return &Handlers{
		extractionService: extractionService,
		jobService:        jobService,
		started:           time.Now(),
	}
}

// CreateExtraction reduces the posted raw runs and answers with the records
func (h *Handlers) CreateExtraction(w http.ResponseWriter, r *http.Request) {
	if !utils.ValidateContentType(r, "application/json") {
		utils.WriteErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	var req models.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Failed to decode extraction request")
		utils.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	response, err := h.extractionService.Extract(req)
	if err != nil {
		log.Error().Err(err).Msg("Extraction failed")
		utils.WriteValidationErrorResponse(w, "Extraction failed", err)
		return
	}

	utils.WriteSuccessResponse(w, "Extraction completed successfully", response)
}

// CreateSummary queues a summary job
func (h *Handlers) CreateSummary(w http.ResponseWriter, r *http.Request) {
	if !utils.ValidateContentType(r, "application/json") {
		utils.WriteErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	var req models.SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Failed to decode summary request")
		utils.WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.jobService.Submit(req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to submit summary job")
		utils.WriteValidationErrorResponse(w, "Invalid summary request", err)
		return
	}

	utils.WriteSuccessResponseWithStatus(w, http.StatusAccepted, "Summary job started", job)
}

// GetJob retrieves job status
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]

	job, err := h.jobService.Get(jobID)
	if err != nil {
		log.Error().
			Str("job_id", jobID).
			Err(err).
			Msg("Job not found")
		utils.WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	utils.WriteSuccessResponse(w, "Job retrieved successfully", job)
}

// GetJobResult returns the keyed summary of a completed job
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]

	result, err := h.jobService.GetResult(jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		utils.WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	case errors.Is(err, service.ErrResultNotReady):
		utils.WriteErrorResponse(w, http.StatusConflict, "Job result not ready", err)
		return
	case err != nil:
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to get job result", err)
		return
	}

	utils.WriteSuccessResponse(w, "Job result retrieved successfully", result)
}

// CancelJob cancels a queued or running job
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]

	job, err := h.jobService.Cancel(jobID)
	if err != nil {
		log.Error().
			Str("job_id", jobID).
			Err(err).
			Msg("Job cancellation failed")
		utils.WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	utils.WriteSuccessResponse(w, "Job cancelled successfully", job)
}

// HealthCheck provides health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:     "healthy",
		ActiveJobs: h.jobService.ActiveJobs(),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}

	utils.WriteSuccessResponse(w, "Service is healthy", response)
}
