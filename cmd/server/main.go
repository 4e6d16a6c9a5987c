package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/healthpulse/registry/internal/api"
	"github.com/healthpulse/registry/internal/auth"
	"github.com/healthpulse/registry/internal/cloudsql"
	"github.com/healthpulse/registry/internal/config"
	"github.com/healthpulse/registry/internal/database"
	"github.com/healthpulse/registry/internal/discovery"
	"github.com/healthpulse/registry/internal/etl"
	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/logging"
	"github.com/healthpulse/registry/internal/metrics"
	"github.com/healthpulse/registry/internal/models"
	"github.com/healthpulse/registry/internal/scheduler"
	"github.com/healthpulse/registry/internal/scraper"
	"github.com/healthpulse/registry/internal/server"
	"github.com/healthpulse/registry/internal/version"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting HealthPulse registry")

	dbURL, err := cloudsql.ResolveDatabaseURL()
	if err != nil {
		logger.Error("failed to resolve database URL", "error", err)
		os.Exit(1)
	}
	logger.Info("database configuration", "config", cloudsql.ConnectionInfo())

	// Without a configured database the service runs on in-memory
	// repositories. That mode loses state on restart and exists for local
	// development.
	var (
		db       *sql.DB
		datasets models.DatasetRepository
		versions models.VersionRepository
		jobs     models.JobRepository
	)
	if dbURL != "" {
		logger.Info("connecting to database")
		db, err = database.Connect(context.Background(), database.Config{
			URL:                dbURL,
			MaxConnections:     cfg.Database.MaxConnections,
			MaxIdleConnections: cfg.Database.MaxIdleConnections,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			ConnectTimeout:     cfg.Database.ConnectTimeout,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("database connected")

		if err := database.RunMigrations(db, cfg.Database.MigrationsDir, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		datasets = database.NewPostgresDatasetRepository(db)
		versions = database.NewPostgresVersionRepository(db)
		jobs = database.NewPostgresJobRepository(db)
	} else {
		logger.Warn("no database configured, using in-memory storage")
		datasets = database.NewMemoryDatasetRepository()
		versions = database.NewMemoryVersionRepository()
		jobs = database.NewMemoryJobRepository()
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Acquisition pipeline: source gate, tier scrapers, dispatcher.
	sourceGate := gate.New(cfg.Scraper.AllowedDomains)
	pipeline := scraper.NewPipeline(cfg.Scraper, sourceGate, logger)
	defer pipeline.Close()

	tracker := version.NewTracker(versions, logger)
	orchestrator := etl.NewOrchestrator(datasets, jobs, pipeline, tracker, collector, cfg.Scraper.DeactivateAfterFailures, logger)
	discoverer := discovery.NewService(datasets, sourceGate, cfg.Scraper.CatalogURL, cfg.Scraper.UserAgent, logger)

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	mux := http.NewServeMux()
	api.SetupRoutes(mux, db, datasets, versions, jobs, orchestrator, discoverer, collector, authConfig, logger)

	scrapeScheduler := scheduler.NewScrapeScheduler(datasets, orchestrator, cfg.Scheduler.Interval, logger)
	go scrapeScheduler.Start(context.Background())

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("HealthPulse registry started", "port", cfg.Server.Port,
		"browser_tier_enabled", cfg.Scraper.EnableBrowser,
		"allowed_domains", cfg.Scraper.AllowedDomains)

	waitForSignal(logger)

	logger.Info("shutting down")
	scrapeScheduler.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
