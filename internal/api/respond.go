// Package api exposes the registry over HTTP: dataset discovery and
// listings, scrape triggering, job and version history, auth, and health.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Stable machine-readable error codes. Each pipeline failure class keeps its
// own code so callers can react without parsing messages.
const (
	CodeSourceNotWhitelisted = "source_not_whitelisted"
	CodeDatasetNotFound      = "dataset_not_found"
	CodeTiersExhausted       = "tiers_exhausted"
	CodeTierDisabled         = "tier_disabled"
	CodeStorageFailed        = "storage_failed"
	CodeJobInProgress        = "job_in_progress"
	CodeValidationError      = "validation_error"
	CodeNotFound             = "not_found"
	CodeInternalError        = "internal_error"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	writeJSON(w, logger, status, errorResponse{Error: message, Code: code})
}
