package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthpulse/registry/internal/models"
)

// APIScraper is Tier 1: a known JSON data API on the publisher. Fastest and
// most reliable; preferred whenever the dataset exposes one.
type APIScraper struct {
	fetcher *fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewAPIScraper constructs the Tier 1 scraper.
func NewAPIScraper(f *fetcher, timeout time.Duration, logger *slog.Logger) *APIScraper {
	return &APIScraper{fetcher: f, timeout: timeout, logger: logger}
}

// Tier returns the tier this scraper implements.
func (s *APIScraper) Tier() models.Tier { return models.TierStructuredAPI }

// Extract calls the API endpoint and normalizes the JSON response into
// records.
func (s *APIScraper) Extract(ctx context.Context, desc Descriptor) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.fetcher.fetch(ctx, s.Tier(), desc.SourceURL, "application/json")
	if err != nil {
		return nil, err
	}

	records, err := decodeAPIResponse(body)
	if err != nil {
		return nil, newFailure(s.Tier(), FailParse, err)
	}
	if len(records) == 0 {
		return nil, newFailure(s.Tier(), FailEmpty, fmt.Errorf("API returned no records"))
	}

	s.logger.Info("extracted records from API",
		"dataset_id", desc.DatasetID,
		"records", len(records),
	)

	return &Result{Records: records, RawContent: body}, nil
}

// decodeAPIResponse unwraps the common API envelope shapes: a bare array,
// a wrapper object keyed data/results/records/items, or a single object.
func decodeAPIResponse(body []byte) ([]models.Fields, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		return fieldsFromList(v)
	case map[string]any:
		for _, key := range []string{"data", "results", "records", "items"} {
			if inner, ok := v[key].([]any); ok {
				return fieldsFromList(inner)
			}
		}
		// A single object is one record.
		return []models.Fields{models.Fields(v)}, nil
	default:
		return nil, fmt.Errorf("unexpected API response shape %T", raw)
	}
}

func fieldsFromList(list []any) ([]models.Fields, error) {
	records := make([]models.Fields, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("array element is %T, expected object", item)
		}
		records = append(records, models.Fields(obj))
	}
	return records, nil
}
