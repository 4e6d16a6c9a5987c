package api

import (
	"log/slog"
	"net/http"

	"github.com/healthpulse/registry/internal/models"
)

// JobHandler serves the ETL job audit trail.
type JobHandler struct {
	jobs   models.JobRepository
	logger *slog.Logger
}

// NewJobHandler creates a job handler.
func NewJobHandler(jobs models.JobRepository, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// JobsResponse is the body of GET /api/jobs.
type JobsResponse struct {
	Jobs  []models.ETLJob `json:"jobs"`
	Count int             `json:"count"`
}

// List handles GET /api/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := h.jobs.List(r.Context(), queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// Get handles GET /api/jobs/:id
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := pathSegment(r.URL.Path, 2)
	if jobID == "" {
		writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "job ID required")
		return
	}

	job, err := h.jobs.GetByJobID(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to load job", "job_id", jobID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}
	if job == nil {
		writeError(w, h.logger, http.StatusNotFound, CodeNotFound, "job not found: "+jobID)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, job)
}
