package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/healthpulse/registry/internal/models"
)

// Attempt records one tier invocation during a dispatch.
type Attempt struct {
	Tier models.Tier
	Kind FailureKind // empty on the successful attempt
	Err  string
}

// Dispatch is the outcome of a successful dispatch: the extraction result,
// the tier that produced it, and every attempt made along the way.
type Dispatch struct {
	Result   *Result
	TierUsed models.Tier
	Attempts []Attempt
}

// ExhaustedError is returned when every eligible tier failed.
type ExhaustedError struct {
	DatasetID string
	Attempts  []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s=%s", a.Tier, a.Kind)
	}
	return fmt.Sprintf("all tiers exhausted for %s: %s", e.DatasetID, strings.Join(parts, ", "))
}

// DisabledError is returned when an override names a tier whose scraper is
// switched off.
type DisabledError struct {
	Tier models.Tier
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("%s is disabled", e.Tier)
}

// GateError is returned when the source gate rejects the dataset URL; no
// further tiers are attempted since the gate verdict is tier-independent.
type GateError struct {
	Tier models.Tier
	Err  error
}

func (e *GateError) Error() string { return e.Err.Error() }
func (e *GateError) Unwrap() error { return e.Err }

// Dispatcher walks the tier ladder for a dataset: start at its estimated
// tier, escalate to less-preferred tiers on failure, stop at the first
// success.
type Dispatcher struct {
	scrapers  map[models.Tier]Scraper
	browserOn bool
	logger    *slog.Logger
}

// NewDispatcher indexes the given scrapers by tier. browserOn controls
// whether the browser tier participates in fallback.
func NewDispatcher(scrapers []Scraper, browserOn bool, logger *slog.Logger) *Dispatcher {
	byTier := make(map[models.Tier]Scraper, len(scrapers))
	for _, s := range scrapers {
		byTier[s.Tier()] = s
	}
	return &Dispatcher{scrapers: byTier, browserOn: browserOn, logger: logger}
}

// Dispatch runs the tier ladder for the dataset. A non-nil override pins
// extraction to exactly that tier with no fallback. On total failure the
// returned error is a *GateError, *DisabledError, or *ExhaustedError.
func (d *Dispatcher) Dispatch(ctx context.Context, desc Descriptor, override *models.Tier) (*Dispatch, error) {
	if override != nil {
		return d.dispatchSingle(ctx, desc, *override)
	}

	start := desc.Tier
	if !start.Valid() {
		start = models.MinTier
	}

	var attempts []Attempt
	for tier := start; tier <= models.MaxTier; tier++ {
		if tier == models.TierBrowserAutomation && !d.browserOn {
			continue
		}
		scraper, ok := d.scrapers[tier]
		if !ok {
			continue
		}

		result, err := scraper.Extract(ctx, desc)
		if err == nil {
			attempts = append(attempts, Attempt{Tier: tier})
			d.logger.Info("tier dispatch succeeded",
				"dataset_id", desc.DatasetID,
				"tier", tier.String(),
				"attempts", len(attempts),
			)
			return &Dispatch{Result: result, TierUsed: tier, Attempts: attempts}, nil
		}

		attempt := attemptFromError(tier, err)
		attempts = append(attempts, attempt)

		if attempt.Kind == FailGate {
			// The gate verdict holds for every tier.
			return nil, &GateError{Tier: tier, Err: err}
		}
		if ctx.Err() != nil {
			// The budget is spent; remaining tiers would fail the same way.
			return nil, &ExhaustedError{DatasetID: desc.DatasetID, Attempts: attempts}
		}

		d.logger.Warn("tier attempt failed",
			"dataset_id", desc.DatasetID,
			"tier", tier.String(),
			"kind", string(attempt.Kind),
			"error", attempt.Err,
		)
	}

	return nil, &ExhaustedError{DatasetID: desc.DatasetID, Attempts: attempts}
}

// dispatchSingle runs exactly one tier, honoring the operator's override.
func (d *Dispatcher) dispatchSingle(ctx context.Context, desc Descriptor, tier models.Tier) (*Dispatch, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier override %d", int(tier))
	}
	if tier == models.TierBrowserAutomation && !d.browserOn {
		return nil, &DisabledError{Tier: tier}
	}
	scraper, ok := d.scrapers[tier]
	if !ok {
		return nil, &DisabledError{Tier: tier}
	}

	result, err := scraper.Extract(ctx, desc)
	if err != nil {
		attempt := attemptFromError(tier, err)
		if attempt.Kind == FailGate {
			return nil, &GateError{Tier: tier, Err: err}
		}
		if attempt.Kind == FailDisabled {
			return nil, &DisabledError{Tier: tier}
		}
		return nil, &ExhaustedError{DatasetID: desc.DatasetID, Attempts: []Attempt{attempt}}
	}

	return &Dispatch{
		Result:   result,
		TierUsed: tier,
		Attempts: []Attempt{{Tier: tier}},
	}, nil
}

func attemptFromError(tier models.Tier, err error) Attempt {
	var failure *Failure
	if errors.As(err, &failure) {
		return Attempt{Tier: tier, Kind: failure.Kind, Err: err.Error()}
	}
	return Attempt{Tier: tier, Kind: FailNetwork, Err: err.Error()}
}
