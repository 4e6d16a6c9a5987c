package scraper

import (
	"log/slog"

	"github.com/healthpulse/registry/internal/config"
	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/models"
)

// Pipeline bundles the dispatcher with the resources behind it so the server
// can shut the browser session down cleanly.
type Pipeline struct {
	*Dispatcher
	browser *BrowserScraper
}

// NewPipeline wires the five tier scrapers, the per-host throttle, and the
// dispatcher from configuration.
func NewPipeline(cfg config.ScraperConfig, g *gate.Gate, logger *slog.Logger) *Pipeline {
	throttle := NewThrottle(cfg.RequestsPerMinute)

	retry := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		retry.InitialBackoff = cfg.RetryBackoff
	}

	f := newFetcher(g, throttle, cfg.UserAgent, retry, logger)

	browser := NewBrowserScraper(g, throttle, cfg.EnableBrowser,
		cfg.TierTimeout(int(models.TierBrowserAutomation)), cfg.BrowserSessionLifetime, logger)

	scrapers := []Scraper{
		NewAPIScraper(f, cfg.TierTimeout(int(models.TierStructuredAPI)), logger),
		NewDownloadScraper(f, cfg.TierTimeout(int(models.TierFileDownload)), logger),
		NewPDFScraper(f, cfg.TierTimeout(int(models.TierDocumentExtraction)), logger),
		NewHTMLScraper(f, cfg.TierTimeout(int(models.TierMarkupParsing)), logger),
		browser,
	}

	return &Pipeline{
		Dispatcher: NewDispatcher(scrapers, cfg.EnableBrowser, logger),
		browser:    browser,
	}
}

// Close releases the browser session if one was launched.
func (p *Pipeline) Close() error {
	return p.browser.Close()
}
