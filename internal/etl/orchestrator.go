// Package etl drives the acquisition job lifecycle: one job per scrape
// attempt, a monotonic Pending -> Processing -> {Completed, Failed} state
// machine, and per-dataset single-flight so two scrapes never race on the
// same version history.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthpulse/registry/internal/metrics"
	"github.com/healthpulse/registry/internal/models"
	"github.com/healthpulse/registry/internal/scraper"
	"github.com/healthpulse/registry/internal/version"
)

// Options modify a single scrape run.
type Options struct {
	// Force marks an operator-requested scrape. It never fabricates a
	// version for unchanged content.
	Force bool

	// TierOverride pins extraction to exactly one tier with no fallback.
	TierOverride *models.Tier
}

// RunOutcome is the result of a completed scrape run.
type RunOutcome struct {
	Job        *models.ETLJob
	NewVersion bool
	Version    *models.DatasetVersion

	// Err is the failure that drove the job to Failed, nil on Completed.
	// Kept alongside the job so the API boundary can map failure classes
	// to distinct error codes.
	Err error
}

// Dispatcher is the tier-walking extraction entry point.
type Dispatcher interface {
	Dispatch(ctx context.Context, desc scraper.Descriptor, override *models.Tier) (*scraper.Dispatch, error)
}

// Orchestrator coordinates one scrape: job bookkeeping, dispatch, version
// recording, and dataset health updates.
type Orchestrator struct {
	datasets   models.DatasetRepository
	jobs       models.JobRepository
	dispatcher Dispatcher
	tracker    *version.Tracker
	metrics    *metrics.Collector
	logger     *slog.Logger

	// deactivateAfter marks a dataset inactive once this many consecutive
	// runs fail. Zero disables deactivation.
	deactivateAfter int

	mu       sync.Mutex
	inFlight map[string]string // dataset id -> job id
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(datasets models.DatasetRepository, jobs models.JobRepository, dispatcher Dispatcher, tracker *version.Tracker, collector *metrics.Collector, deactivateAfter int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		datasets:        datasets,
		jobs:            jobs,
		dispatcher:      dispatcher,
		tracker:         tracker,
		metrics:         collector,
		logger:          logger,
		deactivateAfter: deactivateAfter,
		inFlight:        make(map[string]string),
	}
}

// InFlight reports whether the dataset currently has a non-terminal job.
func (o *Orchestrator) InFlight(datasetID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[datasetID]
	return ok
}

// RunScrape executes one scrape against the dataset and returns the terminal
// job. A second concurrent call for the same dataset fails fast with
// *ErrJobInProgress; runs against distinct datasets proceed in parallel.
func (o *Orchestrator) RunScrape(ctx context.Context, datasetID string, opts Options) (*RunOutcome, error) {
	ds, err := o.datasets.GetByDatasetID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}

	job := &models.ETLJob{
		JobID:     uuid.New().String(),
		Source:    datasetID,
		Status:    models.JobStatusPending,
		StartTime: time.Now().UTC(),
	}

	if err := o.acquire(datasetID, job.JobID); err != nil {
		return nil, err
	}
	defer o.release(datasetID)

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	outcome := o.run(ctx, ds, job, opts)
	o.metrics.ObserveJob(string(job.Status))
	return outcome, nil
}

func (o *Orchestrator) acquire(datasetID, jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.inFlight[datasetID]; ok {
		return &ErrJobInProgress{DatasetID: datasetID, JobID: existing}
	}
	o.inFlight[datasetID] = jobID
	return nil
}

func (o *Orchestrator) release(datasetID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, datasetID)
}

// run drives the job to a terminal state. It always returns a RunOutcome with
// the terminal job; extraction problems surface on the job, not as errors.
func (o *Orchestrator) run(ctx context.Context, ds *models.Dataset, job *models.ETLJob, opts Options) *RunOutcome {
	o.transition(ctx, job, models.JobStatusProcessing)

	// Cancellation before the dispatch starts fails cleanly.
	if ctx.Err() != nil {
		return o.fail(ctx, ds, job, fmt.Errorf("cancelled: %w", ctx.Err()))
	}

	desc := scraper.Descriptor{
		DatasetID: ds.DatasetID,
		SourceURL: ds.SourceURL,
		Tier:      ds.ScrapingTier,
	}

	dispatch, err := o.dispatcher.Dispatch(ctx, desc, opts.TierOverride)
	o.observeAttempts(dispatch, err)
	if err != nil {
		var exhausted *scraper.ExhaustedError
		if errors.As(err, &exhausted) {
			for _, attempt := range exhausted.Attempts {
				job.AddWarning(fmt.Sprintf("%s: %s: %s", attempt.Tier, attempt.Kind, attempt.Err))
			}
		}
		return o.fail(ctx, ds, job, err)
	}

	for _, attempt := range dispatch.Attempts {
		if attempt.Kind != "" {
			job.AddWarning(fmt.Sprintf("%s: %s: %s", attempt.Tier, attempt.Kind, attempt.Err))
			job.Errors++
		}
	}

	meta := models.RecordMetadata{
		DatasetID:    ds.DatasetID,
		SourceURL:    ds.SourceURL,
		ScrapeMethod: dispatch.TierUsed.Method(),
		Confidence:   dispatch.TierUsed.Confidence(),
		RetrievedAt:  time.Now().UTC(),
	}

	// Past this point the job runs to a terminal state even if the caller's
	// context is cancelled: the version write must not be torn.
	outcome, err := o.tracker.Record(context.WithoutCancel(ctx), ds.DatasetID, dispatch.Result.Records, meta, len(dispatch.Result.RawContent), opts.Force)
	if err != nil {
		return o.fail(ctx, ds, job, err)
	}
	if outcome.New {
		o.metrics.ObserveVersionCreated()
	}

	job.RecordsProcessed = len(dispatch.Result.Records)
	tierUsed := dispatch.TierUsed
	job.TierUsed = &tierUsed
	if !outcome.New {
		job.Reason = "content unchanged"
	}
	o.transition(ctx, job, models.JobStatusCompleted)

	o.recordSuccess(ctx, ds, dispatch.TierUsed)

	o.logger.Info("scrape job completed",
		"job_id", job.JobID,
		"dataset_id", ds.DatasetID,
		"tier", dispatch.TierUsed.String(),
		"records", job.RecordsProcessed,
		"new_version", outcome.New,
	)

	return &RunOutcome{Job: job, NewVersion: outcome.New, Version: outcome.Version}
}

// fail drives the job to Failed and updates dataset failure accounting.
func (o *Orchestrator) fail(ctx context.Context, ds *models.Dataset, job *models.ETLJob, cause error) *RunOutcome {
	job.Reason = cause.Error()
	job.Errors++
	o.transition(ctx, job, models.JobStatusFailed)

	now := time.Now().UTC()
	ds.LastChecked = &now
	ds.ConsecutiveFailures++
	if o.deactivateAfter > 0 && ds.ConsecutiveFailures >= o.deactivateAfter && ds.IsActive {
		ds.IsActive = false
		o.logger.Warn("dataset deactivated after repeated failures",
			"dataset_id", ds.DatasetID,
			"consecutive_failures", ds.ConsecutiveFailures,
		)
	}
	if err := o.datasets.Update(context.WithoutCancel(ctx), ds); err != nil {
		o.logger.Error("updating dataset after failed job", "dataset_id", ds.DatasetID, "error", err)
	}

	o.logger.Warn("scrape job failed",
		"job_id", job.JobID,
		"dataset_id", ds.DatasetID,
		"reason", job.Reason,
	)

	return &RunOutcome{Job: job, Err: cause}
}

// recordSuccess refreshes dataset health and feeds the tier estimate back.
// The estimate only ever moves to a safer (lower) tier; a success on a higher
// tier than estimated never downgrades the dataset to the riskier strategy.
func (o *Orchestrator) recordSuccess(ctx context.Context, ds *models.Dataset, tierUsed models.Tier) {
	ctx = context.WithoutCancel(ctx)

	if tierUsed < ds.ScrapingTier {
		applied, err := o.datasets.UpdateTierEstimate(ctx, ds.DatasetID, ds.ScrapingTier, tierUsed)
		if err != nil {
			o.logger.Error("updating tier estimate", "dataset_id", ds.DatasetID, "error", err)
		} else if applied {
			ds.ScrapingTier = tierUsed
			o.logger.Info("tier estimate lowered",
				"dataset_id", ds.DatasetID,
				"tier", tierUsed.String(),
			)
		}
	}

	now := time.Now().UTC()
	ds.LastChecked = &now
	ds.LastSuccessfulScrape = &now
	ds.ConsecutiveFailures = 0
	ds.Confidence = ds.ScrapingTier.Confidence()
	if err := o.datasets.Update(ctx, ds); err != nil {
		o.logger.Error("updating dataset after completed job", "dataset_id", ds.DatasetID, "error", err)
	}
}

// transition applies a job state change and persists it.
func (o *Orchestrator) transition(ctx context.Context, job *models.ETLJob, next models.JobStatus) {
	if err := job.Transition(next); err != nil {
		o.logger.Error("job transition rejected", "job_id", job.JobID, "error", err)
		return
	}
	if err := o.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		o.logger.Error("persisting job state", "job_id", job.JobID, "status", string(next), "error", err)
	}
}

// observeAttempts feeds tier attempt metrics from a dispatch outcome.
func (o *Orchestrator) observeAttempts(dispatch *scraper.Dispatch, err error) {
	record := func(attempts []scraper.Attempt) {
		for _, a := range attempts {
			outcome := "success"
			if a.Kind != "" {
				outcome = string(a.Kind)
			}
			o.metrics.ObserveTierAttempt(a.Tier.String(), outcome)
		}
	}

	if dispatch != nil {
		record(dispatch.Attempts)
		return
	}

	var exhausted *scraper.ExhaustedError
	if errors.As(err, &exhausted) {
		record(exhausted.Attempts)
	}
}
