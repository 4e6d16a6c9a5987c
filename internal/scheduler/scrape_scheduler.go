package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/healthpulse/registry/internal/etl"
	"github.com/healthpulse/registry/internal/models"
)

// ScrapeScheduler manages periodic re-scraping of active datasets
type ScrapeScheduler struct {
	datasets      models.DatasetRepository
	orchestrator  *etl.Orchestrator
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
}

// NewScrapeScheduler creates a new scrape scheduler. A zero interval
// disables the sweep.
func NewScrapeScheduler(
	datasets models.DatasetRepository,
	orchestrator *etl.Orchestrator,
	checkInterval time.Duration,
	logger *slog.Logger,
) *ScrapeScheduler {
	return &ScrapeScheduler{
		datasets:      datasets,
		orchestrator:  orchestrator,
		logger:        logger,
		stopChan:      make(chan struct{}),
		checkInterval: checkInterval,
	}
}

// Start begins the scheduler loop
func (s *ScrapeScheduler) Start(ctx context.Context) {
	if s.checkInterval <= 0 {
		s.logger.Info("Scrape scheduler disabled")
		return
	}

	s.logger.Info("Starting scrape scheduler", "check_interval", s.checkInterval)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Scrape scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Scrape scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler
func (s *ScrapeScheduler) Stop() {
	close(s.stopChan)
}

// sweep re-scrapes every active dataset, skipping datasets that already have
// a job in flight.
func (s *ScrapeScheduler) sweep(ctx context.Context) {
	active := true
	datasets, err := s.datasets.List(ctx, &active, 0, 0)
	if err != nil {
		s.logger.Error("Failed to list active datasets", "error", err)
		return
	}

	for _, ds := range datasets {
		if ctx.Err() != nil {
			return
		}
		if s.orchestrator.InFlight(ds.DatasetID) {
			s.logger.Debug("Dataset already has a job in flight, skipping",
				"dataset_id", ds.DatasetID)
			continue
		}

		out, err := s.orchestrator.RunScrape(ctx, ds.DatasetID, etl.Options{})
		if err != nil {
			var inProgress *etl.ErrJobInProgress
			if errors.As(err, &inProgress) {
				continue
			}
			s.logger.Error("Scheduled scrape failed to start",
				"dataset_id", ds.DatasetID, "error", err)
			continue
		}

		s.logger.Info("Scheduled scrape finished",
			"dataset_id", ds.DatasetID,
			"job_id", out.Job.JobID,
			"status", string(out.Job.Status),
		)
	}
}
