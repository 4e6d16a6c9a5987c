package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/healthpulse/registry/internal/auth"
	"github.com/healthpulse/registry/internal/database"
	"github.com/healthpulse/registry/internal/discovery"
	"github.com/healthpulse/registry/internal/etl"
	"github.com/healthpulse/registry/internal/metrics"
	"github.com/healthpulse/registry/internal/models"
)

// SetupRoutes configures all API routes. Read routes are public; scrape and
// discovery triggers require a bearer token.
func SetupRoutes(mux *http.ServeMux, db *sql.DB, datasets models.DatasetRepository, versions models.VersionRepository, jobs models.JobRepository, orchestrator *etl.Orchestrator, discoverer *discovery.Service, collector *metrics.Collector, authConfig auth.Config, logger *slog.Logger) {
	datasetHandler := NewDatasetHandler(datasets, versions, orchestrator, discoverer, logger)
	jobHandler := NewJobHandler(jobs, logger)
	authHandler := NewAuthHandler(authConfig, logger)
	healthHandler := NewHealthHandler(db, logger)

	authMiddleware := auth.Middleware(authConfig)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", withCORS(authHandler.Login))

	// Dataset routes
	mux.HandleFunc("/api/datasets", withCORS(datasetHandler.List))
	mux.HandleFunc("/api/datasets/", withCORS(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/datasets/discover":
			protect(datasetHandler.Discover).ServeHTTP(w, r)
		case strings.HasSuffix(r.URL.Path, "/scrape"):
			protect(datasetHandler.Scrape).ServeHTTP(w, r)
		case strings.HasSuffix(r.URL.Path, "/versions"):
			datasetHandler.Versions(w, r)
		default:
			datasetHandler.Get(w, r)
		}
	}))

	// Job audit routes (public for reading)
	mux.HandleFunc("/api/jobs", withCORS(jobHandler.List))
	mux.HandleFunc("/api/jobs/", withCORS(jobHandler.Get))

	// Operational routes
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.Handle("/metrics", collector.Handler())
}

// withCORS sets permissive CORS headers and short-circuits preflights.
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. db may be nil when the service
// runs on in-memory storage.
func NewHealthHandler(db *sql.DB, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}

	if h.db != nil {
		if err := database.HealthCheck(r.Context(), h.db); err != nil {
			h.logger.Error("health check failed", "error", err)
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, h.logger, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
		status["pool"] = database.Stats(h.db)
	}

	writeJSON(w, h.logger, http.StatusOK, status)
}
