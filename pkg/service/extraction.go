package service

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/hopstats/pkg/models"
	"github.com/gilchrisn/hopstats/pkg/reducer"
	"github.com/gilchrisn/hopstats/pkg/validation"
)

// ExtractionService reduces raw runs synchronously
type ExtractionService struct{}

func NewExtractionService() *ExtractionService {
	return &ExtractionService{}
}

// Extract validates the request and reduces every run for every seed count
func (s *ExtractionService) Extract(req models.ExtractionRequest) (*models.ExtractionResponse, error) {
	startTime := time.Now()

	if err := validation.ValidateRawRuns(req.Runs); err != nil {
		return nil, err
	}
	if len(req.Seeds) == 0 {
		return nil, models.ValidationError{Field: "seeds", Message: "at least one seed count is required"}
	}

	r := reducer.NewReducer(log.With().Str("component", "reducer").Logger())
	if req.Threshold != nil {
		r.Threshold = *req.Threshold
	}
	r.Fields = req.Fields

	records, err := r.ReduceAll(req.Runs, req.Seeds)
	if err != nil {
		return nil, fmt.Errorf("reduction failed: %w", err)
	}

	extractedRecords.Add(float64(len(records)))

	response := &models.ExtractionResponse{
		Records:          records,
		ProcessingTimeMS: time.Since(startTime).Milliseconds(),
	}

	log.Info().
		Int("runs", len(req.Runs)).
		Ints("seeds", req.Seeds).
		Int("records", len(records)).
		Int64("processing_time_ms", response.ProcessingTimeMS).
		Msg("Extraction completed")

	return response, nil
}
