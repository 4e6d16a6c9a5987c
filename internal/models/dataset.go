package models

import (
	"fmt"
	"time"
)

// Dataset represents a registered, scrapeable data source from an official
// publisher. Datasets are created by discovery and re-scraped over time.
type Dataset struct {
	ID                  int        `json:"-"`
	DatasetID           string     `json:"dataset_id"` // stable external key
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Category            string     `json:"category,omitempty"`
	SourceURL           string     `json:"source_url"`
	ScrapingTier        Tier       `json:"scraping_tier"` // current tier estimate, refined by dispatch feedback
	UpdateFrequency     string     `json:"update_frequency,omitempty"` // e.g. "monthly", "quarterly"
	Confidence          string     `json:"confidence"`                 // derived from tier: high/medium/low
	IsActive            bool       `json:"is_active"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastChecked         *time.Time `json:"last_checked,omitempty"`
	LastSuccessfulScrape *time.Time `json:"last_successful_scrape,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Tier identifies one of the five ordered extraction strategies, from least
// to most intrusive. Lower numbers are safer and cheaper.
type Tier int

const (
	TierStructuredAPI      Tier = 1 // versioned JSON/data API
	TierFileDownload       Tier = 2 // direct CSV/spreadsheet download
	TierDocumentExtraction Tier = 3 // PDF table extraction
	TierMarkupParsing      Tier = 4 // HTML DOM parsing
	TierBrowserAutomation  Tier = 5 // headless browser session
)

// MinTier and MaxTier bound the valid tier range.
const (
	MinTier = TierStructuredAPI
	MaxTier = TierBrowserAutomation
)

// Valid reports whether the tier is within the supported range.
func (t Tier) Valid() bool {
	return t >= MinTier && t <= MaxTier
}

// String returns the stable identifier used in logs, metrics and storage.
func (t Tier) String() string {
	switch t {
	case TierStructuredAPI:
		return "tier1_api"
	case TierFileDownload:
		return "tier2_direct_download"
	case TierDocumentExtraction:
		return "tier3_pdf_extraction"
	case TierMarkupParsing:
		return "tier4_html_parsing"
	case TierBrowserAutomation:
		return "tier5_browser_automation"
	default:
		return fmt.Sprintf("tier_unknown(%d)", int(t))
	}
}

// Method returns the scrape method label recorded on extracted records.
func (t Tier) Method() string {
	switch t {
	case TierStructuredAPI:
		return "api"
	case TierFileDownload:
		return "direct_download"
	case TierDocumentExtraction:
		return "pdf_extraction"
	case TierMarkupParsing:
		return "html_parsing"
	case TierBrowserAutomation:
		return "browser_automation"
	default:
		return "unknown"
	}
}

// Confidence returns the extraction confidence class for the tier. Structured
// sources are trusted more than layout-derived ones.
func (t Tier) Confidence() string {
	switch t {
	case TierStructuredAPI, TierFileDownload:
		return "high"
	case TierDocumentExtraction, TierMarkupParsing:
		return "medium"
	case TierBrowserAutomation:
		return "low"
	default:
		return "medium"
	}
}

// Validate checks dataset invariants prior to persistence.
func (d *Dataset) Validate() error {
	if d.DatasetID == "" {
		return fmt.Errorf("dataset_id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.SourceURL == "" {
		return fmt.Errorf("source_url is required")
	}
	if !d.ScrapingTier.Valid() {
		return fmt.Errorf("scraping_tier must be between %d and %d", MinTier, MaxTier)
	}
	return nil
}
