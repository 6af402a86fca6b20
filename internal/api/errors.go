package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps an engine error onto the HTTP surface.
func respondServiceError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatusCode(err)
	serviceErr := apperrors.Categorize(err).ToServiceError()
	respondError(w, status, serviceErr.Code, serviceErr.Message, serviceErr.Details)
}
