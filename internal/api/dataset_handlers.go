package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/healthpulse/registry/internal/discovery"
	"github.com/healthpulse/registry/internal/etl"
	"github.com/healthpulse/registry/internal/models"
	"github.com/healthpulse/registry/internal/scraper"
	"github.com/healthpulse/registry/internal/version"
)

// DatasetHandler serves dataset listings, version history, discovery runs
// and scrape triggers.
type DatasetHandler struct {
	datasets     models.DatasetRepository
	versions     models.VersionRepository
	orchestrator *etl.Orchestrator
	discoverer   *discovery.Service
	logger       *slog.Logger
}

// NewDatasetHandler creates a dataset handler.
func NewDatasetHandler(datasets models.DatasetRepository, versions models.VersionRepository, orchestrator *etl.Orchestrator, discoverer *discovery.Service, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{
		datasets:     datasets,
		versions:     versions,
		orchestrator: orchestrator,
		discoverer:   discoverer,
		logger:       logger,
	}
}

// DatasetsResponse is the body of GET /api/datasets.
type DatasetsResponse struct {
	Datasets []models.Dataset `json:"datasets"`
	Count    int              `json:"count"`
}

// List handles GET /api/datasets
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var isActive *bool
	if v := r.URL.Query().Get("is_active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "is_active must be a boolean")
			return
		}
		isActive = &parsed
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	datasets, err := h.datasets.List(r.Context(), isActive, limit, offset)
	if err != nil {
		h.logger.Error("failed to list datasets", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, DatasetsResponse{Datasets: datasets, Count: len(datasets)})
}

// Get handles GET /api/datasets/:id
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasetID := pathSegment(r.URL.Path, 2)
	if datasetID == "" {
		writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "dataset ID required")
		return
	}

	ds, err := h.datasets.GetByDatasetID(r.Context(), datasetID)
	if err != nil {
		h.logger.Error("failed to load dataset", "dataset_id", datasetID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}
	if ds == nil {
		writeError(w, h.logger, http.StatusNotFound, CodeDatasetNotFound, "dataset not found: "+datasetID)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ds)
}

// VersionsResponse is the body of GET /api/datasets/:id/versions.
type VersionsResponse struct {
	DatasetID string                  `json:"dataset_id"`
	Versions  []models.DatasetVersion `json:"versions"`
	Count     int                     `json:"count"`
}

// Versions handles GET /api/datasets/:id/versions
func (h *DatasetHandler) Versions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasetID := pathSegment(r.URL.Path, 2)
	ds, err := h.datasets.GetByDatasetID(r.Context(), datasetID)
	if err != nil {
		h.logger.Error("failed to load dataset", "dataset_id", datasetID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}
	if ds == nil {
		writeError(w, h.logger, http.StatusNotFound, CodeDatasetNotFound, "dataset not found: "+datasetID)
		return
	}

	versions, err := h.versions.ListVersions(r.Context(), datasetID, queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error("failed to list versions", "dataset_id", datasetID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, VersionsResponse{
		DatasetID: datasetID,
		Versions:  versions,
		Count:     len(versions),
	})
}

// ScrapeRequest is the body of POST /api/datasets/:id/scrape.
type ScrapeRequest struct {
	Force        bool `json:"force"`
	TierOverride *int `json:"tier_override,omitempty"`
}

// ScrapeResponse is the success body of POST /api/datasets/:id/scrape.
type ScrapeResponse struct {
	Job        *models.ETLJob         `json:"job"`
	NewVersion bool                   `json:"new_version"`
	Version    *models.DatasetVersion `json:"version,omitempty"`
}

// Scrape handles POST /api/datasets/:id/scrape
func (h *DatasetHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasetID := pathSegment(r.URL.Path, 2)
	if datasetID == "" {
		writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "dataset ID required")
		return
	}

	var req ScrapeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "invalid request body")
			return
		}
	}

	opts := etl.Options{Force: req.Force}
	if req.TierOverride != nil {
		tier := models.Tier(*req.TierOverride)
		if !tier.Valid() {
			writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "tier_override must be between 1 and 5")
			return
		}
		opts.TierOverride = &tier
	}

	out, err := h.orchestrator.RunScrape(r.Context(), datasetID, opts)
	if err != nil {
		h.writeScrapeError(w, err)
		return
	}
	if out.Err != nil {
		h.writeScrapeError(w, out.Err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ScrapeResponse{
		Job:        out.Job,
		NewVersion: out.NewVersion,
		Version:    out.Version,
	})
}

// writeScrapeError maps pipeline failure classes onto distinct error codes.
func (h *DatasetHandler) writeScrapeError(w http.ResponseWriter, err error) {
	var (
		inProgress *etl.ErrJobInProgress
		gateErr    *scraper.GateError
		disabled   *scraper.DisabledError
		exhausted  *scraper.ExhaustedError
		storage    *version.StorageError
	)

	switch {
	case errors.Is(err, etl.ErrDatasetNotFound):
		writeError(w, h.logger, http.StatusNotFound, CodeDatasetNotFound, err.Error())
	case errors.As(err, &inProgress):
		writeError(w, h.logger, http.StatusConflict, CodeJobInProgress, err.Error())
	case errors.As(err, &gateErr):
		writeError(w, h.logger, http.StatusForbidden, CodeSourceNotWhitelisted, err.Error())
	case errors.As(err, &disabled):
		writeError(w, h.logger, http.StatusBadRequest, CodeTierDisabled, err.Error())
	case errors.As(err, &exhausted):
		writeError(w, h.logger, http.StatusBadGateway, CodeTiersExhausted, err.Error())
	case errors.As(err, &storage):
		writeError(w, h.logger, http.StatusInternalServerError, CodeStorageFailed, err.Error())
	default:
		h.logger.Error("scrape failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, CodeInternalError, err.Error())
	}
}

// Discover handles POST /api/datasets/discover
func (h *DatasetHandler) Discover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Category        string `json:"category"`
		Limit           int    `json:"limit"`
		AutoAssignTiers *bool  `json:"auto_assign_tiers,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, CodeValidationError, "invalid request body")
			return
		}
	}

	assignTiers := true
	if req.AutoAssignTiers != nil {
		assignTiers = *req.AutoAssignTiers
	}

	summary, err := h.discoverer.Run(r.Context(), discovery.Request{
		Category:    req.Category,
		Limit:       req.Limit,
		AssignTiers: assignTiers,
	})
	if err != nil {
		h.logger.Error("discovery run failed", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, CodeInternalError, err.Error())
		return
	}

	writeJSON(w, h.logger, http.StatusOK, summary)
}

// pathSegment returns the n-th path segment after "/api", empty when absent.
func pathSegment(path string, n int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) <= n {
		return ""
	}
	return parts[n]
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
