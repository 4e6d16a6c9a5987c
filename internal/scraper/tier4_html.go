package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthpulse/registry/internal/models"
)

// HTMLScraper is Tier 4: fetch a publisher page over plain HTTP and pull
// records out of its HTML tables. Brittle against markup changes, so it sits
// behind the structured tiers.
type HTMLScraper struct {
	fetcher *fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTMLScraper constructs the Tier 4 scraper.
func NewHTMLScraper(f *fetcher, timeout time.Duration, logger *slog.Logger) *HTMLScraper {
	return &HTMLScraper{fetcher: f, timeout: timeout, logger: logger}
}

// Tier returns the tier this scraper implements.
func (s *HTMLScraper) Tier() models.Tier { return models.TierMarkupParsing }

// Extract fetches the page and parses its tables into records.
func (s *HTMLScraper) Extract(ctx context.Context, desc Descriptor) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.fetcher.fetch(ctx, s.Tier(), desc.SourceURL, "text/html")
	if err != nil {
		return nil, err
	}

	records, err := parseHTMLTables(body)
	if err != nil {
		return nil, newFailure(s.Tier(), FailParse, err)
	}
	if len(records) == 0 {
		return nil, newFailure(s.Tier(), FailEmpty, fmt.Errorf("no tabular data found in page"))
	}

	s.logger.Info("extracted records from HTML tables",
		"dataset_id", desc.DatasetID,
		"records", len(records),
	)

	return &Result{Records: records, RawContent: body}, nil
}
