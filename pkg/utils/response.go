package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/hopstats/pkg/models"
)

// WriteSuccessResponse writes a successful JSON response
func WriteSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteSuccessResponseWithStatus(w, http.StatusOK, message, data)
}

// WriteSuccessResponseWithStatus writes a successful JSON response with a
// status other than 200
func WriteSuccessResponseWithStatus(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	response := models.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}

	writeJSONResponse(w, statusCode, response)
}

// WriteErrorResponse writes an error JSON response
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := models.APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	writeJSONResponse(w, statusCode, response)
}

// WriteValidationErrorResponse writes a 400 listing every validation error
// found in err, or a plain error response when err carries none
func WriteValidationErrorResponse(w http.ResponseWriter, message string, err error) {
	fields := make(map[string]string)

	var many models.ValidationErrors
	var one models.ValidationError
	switch {
	case errors.As(err, &many):
		for _, ve := range many {
			if prev, ok := fields[ve.Field]; ok {
				fields[ve.Field] = prev + "; " + ve.Message
				continue
			}
			fields[ve.Field] = ve.Message
		}
	case errors.As(err, &one):
		fields[one.Field] = one.Message
	default:
		WriteErrorResponse(w, http.StatusBadRequest, message, err)
		return
	}

	response := models.APIResponse{
		Success: false,
		Message: message,
		Data:    map[string]interface{}{"validation_errors": fields},
		Error:   err.Error(),
	}

	writeJSONResponse(w, http.StatusBadRequest, response)
}

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("Failed to encode JSON response")
	}
}

// ValidateContentType checks if request has correct content type
func ValidateContentType(r *http.Request, expectedType string) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, expectedType)
}
