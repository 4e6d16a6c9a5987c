// Package discovery queries the publisher's data catalog and registers the
// entries that pass the source gate as scrapeable datasets. Discovery is
// idempotent: re-running it never duplicates or mutates existing datasets.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/models"
)

// maxCatalogSize caps the catalog payload at 16MB.
const maxCatalogSize = 16 << 20

// Request scopes one discovery run.
type Request struct {
	// Category filters candidates by keyword against title, description and
	// category. Empty matches everything.
	Category string

	// Limit caps the number of newly registered datasets. Zero means no cap.
	Limit int

	// AssignTiers applies the URL-shape tier heuristic to new datasets.
	// When false new datasets start at the markup-parsing tier.
	AssignTiers bool
}

// Summary reports what a discovery run did.
type Summary struct {
	Discovered int      `json:"discovered"` // catalog entries considered
	Registered int      `json:"registered"` // new datasets created
	Skipped    int      `json:"skipped"`    // already registered
	Rejected   int      `json:"rejected"`   // dropped by the source gate
	DatasetIDs []string `json:"dataset_ids,omitempty"`
}

// catalogEntry is one item of the publisher catalog. The catalog schema is
// loose, so common aliases are accepted for each field.
type catalogEntry struct {
	ID              string
	Title           string
	Description     string
	Category        string
	URL             string
	UpdateFrequency string
}

// Service runs catalog discovery.
type Service struct {
	datasets   models.DatasetRepository
	gate       *gate.Gate
	client     *http.Client
	catalogURL string
	userAgent  string
	logger     *slog.Logger
}

// NewService constructs a discovery service against the configured catalog.
func NewService(datasets models.DatasetRepository, g *gate.Gate, catalogURL, userAgent string, logger *slog.Logger) *Service {
	return &Service{
		datasets:   datasets,
		gate:       g,
		client:     &http.Client{Timeout: 30 * time.Second},
		catalogURL: catalogURL,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Run fetches the catalog and registers eligible entries. Entries whose URL
// the gate rejects are dropped silently (counted, not errored); entries
// already registered are left untouched.
func (s *Service) Run(ctx context.Context, req Request) (*Summary, error) {
	if d := s.gate.Authorize(s.catalogURL); !d.Allowed {
		return nil, fmt.Errorf("catalog URL rejected by source gate: %s", d.Reason)
	}

	entries, err := s.fetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, entry := range entries {
		if req.Category != "" && !matchesCategory(entry, req.Category) {
			continue
		}
		summary.Discovered++

		if d := s.gate.Authorize(entry.URL); !d.Allowed {
			summary.Rejected++
			s.logger.Debug("catalog entry dropped by source gate",
				"dataset_id", entry.ID,
				"url", entry.URL,
				"reason", string(d.Reason),
			)
			continue
		}

		existing, err := s.datasets.GetByDatasetID(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("check dataset %s: %w", entry.ID, err)
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		if req.Limit > 0 && summary.Registered >= req.Limit {
			continue
		}

		tier := models.TierMarkupParsing
		if req.AssignTiers {
			tier = gate.EstimateTier(entry.URL)
		}

		ds := &models.Dataset{
			DatasetID:       entry.ID,
			Title:           entry.Title,
			Description:     entry.Description,
			Category:        entry.Category,
			SourceURL:       entry.URL,
			ScrapingTier:    tier,
			UpdateFrequency: entry.UpdateFrequency,
			Confidence:      tier.Confidence(),
			IsActive:        true,
		}
		if err := ds.Validate(); err != nil {
			s.logger.Warn("catalog entry failed validation", "dataset_id", entry.ID, "error", err)
			continue
		}
		if err := s.datasets.Create(ctx, ds); err != nil {
			return nil, fmt.Errorf("register dataset %s: %w", entry.ID, err)
		}

		summary.Registered++
		summary.DatasetIDs = append(summary.DatasetIDs, entry.ID)
	}

	s.logger.Info("discovery run finished",
		"discovered", summary.Discovered,
		"registered", summary.Registered,
		"skipped", summary.Skipped,
		"rejected", summary.Rejected,
	)

	return summary, nil
}

// fetchCatalog downloads and decodes the catalog listing.
func (s *Service) fetchCatalog(ctx context.Context) ([]catalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return decodeCatalog(body)
}

// decodeCatalog accepts a bare array or a data/results/datasets envelope.
func decodeCatalog(body []byte) ([]catalogEntry, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"data", "results", "datasets"} {
			if inner, ok := v[key].([]any); ok {
				list = inner
				break
			}
		}
		if list == nil {
			return nil, fmt.Errorf("catalog response has no dataset list")
		}
	default:
		return nil, fmt.Errorf("unexpected catalog shape %T", raw)
	}

	var entries []catalogEntry
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := catalogEntry{
			ID:              stringField(obj, "id", "dataset_id", "identifier"),
			Title:           stringField(obj, "title", "name"),
			Description:     stringField(obj, "description"),
			Category:        stringField(obj, "category", "group"),
			URL:             stringField(obj, "url", "source_url", "link", "api_url"),
			UpdateFrequency: stringField(obj, "update_frequency", "frequency"),
		}
		// Incomplete entries cannot be registered or scraped.
		if entry.ID == "" || entry.Title == "" || entry.URL == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// matchesCategory checks the filter keyword against the entry's descriptive
// fields, case-insensitively.
func matchesCategory(entry catalogEntry, category string) bool {
	needle := strings.ToLower(category)
	for _, hay := range []string{entry.Category, entry.Title, entry.Description} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
