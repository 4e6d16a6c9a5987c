package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/models"
)

// BrowserScraper is Tier 5: drive a headless Chrome session, let the page's
// scripts render, and parse the resulting DOM for tables. The heaviest and
// most detectable strategy, so it ships disabled and must be switched on
// explicitly. When disabled, Extract fails immediately without touching the
// network or launching a browser.
type BrowserScraper struct {
	gate     *gate.Gate
	throttle *Throttle
	enabled  bool
	timeout  time.Duration
	lifetime time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	launched time.Time
}

// NewBrowserScraper constructs the Tier 5 scraper. The browser itself is
// launched lazily on first use and recycled after lifetime elapses.
func NewBrowserScraper(g *gate.Gate, throttle *Throttle, enabled bool, timeout, lifetime time.Duration, logger *slog.Logger) *BrowserScraper {
	return &BrowserScraper{
		gate:     g,
		throttle: throttle,
		enabled:  enabled,
		timeout:  timeout,
		lifetime: lifetime,
		logger:   logger,
	}
}

// Tier returns the tier this scraper implements.
func (s *BrowserScraper) Tier() models.Tier { return models.TierBrowserAutomation }

// Extract renders the page in headless Chrome and parses its tables.
func (s *BrowserScraper) Extract(ctx context.Context, desc Descriptor) (*Result, error) {
	if !s.enabled {
		return nil, newFailure(s.Tier(), FailDisabled, fmt.Errorf("browser automation is disabled"))
	}

	if d := s.gate.Authorize(desc.SourceURL); !d.Allowed {
		return nil, newFailure(s.Tier(), FailGate, fmt.Errorf("source gate rejected %s: %s", desc.SourceURL, d.Reason))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.throttle.Wait(ctx, desc.SourceURL); err != nil {
		return nil, classifyTransport(s.Tier(), err)
	}

	html, err := s.renderPage(ctx, desc.SourceURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifyTransport(s.Tier(), fmt.Errorf("%w: %v", ctxErr, err))
		}
		return nil, newFailure(s.Tier(), FailNetwork, err)
	}

	records, err := parseHTMLTables([]byte(html))
	if err != nil {
		return nil, newFailure(s.Tier(), FailParse, err)
	}
	if len(records) == 0 {
		return nil, newFailure(s.Tier(), FailEmpty, fmt.Errorf("no tabular data found in rendered page"))
	}

	s.logger.Info("extracted records via browser automation",
		"dataset_id", desc.DatasetID,
		"records", len(records),
	)

	return &Result{Records: records, RawContent: []byte(html)}, nil
}

// renderPage navigates a fresh page, waits for it to load, and returns the
// rendered HTML.
func (s *BrowserScraper) renderPage(ctx context.Context, url string) (string, error) {
	browser, err := s.sessionBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read DOM: %w", err)
	}
	return html, nil
}

// sessionBrowser returns the shared browser handle, launching a new Chrome
// when none exists or the previous session outlived its lifetime.
func (s *BrowserScraper) sessionBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil && time.Since(s.launched) < s.lifetime {
		return s.browser, nil
	}
	s.closeLocked()

	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	s.browser = browser
	s.lnch = l
	s.launched = time.Now()
	s.logger.Info("launched browser session", "lifetime", s.lifetime)
	return browser, nil
}

// Close shuts down the browser session if one is running.
func (s *BrowserScraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *BrowserScraper) closeLocked() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("closing browser session", "error", err)
		}
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
