// Package scraper implements the tiered acquisition pipeline: five ordered
// extraction strategies behind one interface, a dispatcher that falls back
// through them, and the shared outbound plumbing (source gating, per-host
// throttling, retries) they all use.
package scraper

import (
	"context"
	"fmt"

	"github.com/healthpulse/registry/internal/models"
)

// Descriptor identifies the dataset a scraper should extract.
type Descriptor struct {
	DatasetID string
	SourceURL string
	Tier      models.Tier // the tier estimate to start dispatch from
}

// Result is a successful extraction: normalized records plus the raw payload
// they were derived from.
type Result struct {
	Records    []models.Fields
	RawContent []byte
}

// FailureKind classifies an extraction failure.
type FailureKind string

const (
	FailNetwork   FailureKind = "network_error"
	FailParse     FailureKind = "parse_error"
	FailEmpty     FailureKind = "empty_result"
	FailTimeout   FailureKind = "timeout"
	FailCancelled FailureKind = "cancelled"
	FailDisabled  FailureKind = "disabled"
	FailGate      FailureKind = "gate_rejected"
)

// Failure is the typed error every tier returns instead of propagating raw
// transport errors.
type Failure struct {
	Tier models.Tier
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Tier, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Tier, f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure builds a Failure for the given tier and kind.
func newFailure(tier models.Tier, kind FailureKind, err error) *Failure {
	return &Failure{Tier: tier, Kind: kind, Err: err}
}

// Scraper is one extraction strategy. Implementations must call the source
// gate before any network I/O, honor the context deadline, and return a
// *Failure rather than a raw error.
type Scraper interface {
	// Tier returns the tier this scraper implements.
	Tier() models.Tier

	// Extract fetches and normalizes the dataset payload.
	Extract(ctx context.Context, desc Descriptor) (*Result, error)
}
