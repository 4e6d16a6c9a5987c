package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
	MigrationsDir      string
}

// ScraperConfig controls the acquisition pipeline: source gating, per-tier
// timeouts, outbound throttling, and the browser-automation kill switch.
type ScraperConfig struct {
	// AllowedDomains is the publisher whitelist checked by the source gate.
	AllowedDomains []string

	// CatalogURL is the dataset catalog endpoint queried by discovery.
	CatalogURL string

	// UserAgent sent on every outbound request.
	UserAgent string

	// RequestsPerMinute caps outbound requests per source host.
	RequestsPerMinute int

	// TierTimeouts maps tier number (1-5) to its overall timeout budget.
	TierTimeouts [5]time.Duration

	// BrowserSessionLifetime bounds a Tier 5 session independent of
	// individual navigation timeouts.
	BrowserSessionLifetime time.Duration

	// EnableBrowser gates Tier 5. When false any Tier 5 invocation fails
	// immediately without opening a session.
	EnableBrowser bool

	// MaxRetries and RetryBackoff drive the transient-failure retry policy
	// for idempotent reads.
	MaxRetries   int
	RetryBackoff time.Duration

	// DeactivateAfterFailures marks a dataset inactive once this many
	// consecutive jobs against it fail. Zero disables deactivation.
	DeactivateAfterFailures int
}

// SchedulerConfig controls the periodic re-scrape sweep.
type SchedulerConfig struct {
	// Interval between sweeps over active datasets. Zero disables the
	// scheduler.
	Interval time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultCatalogURL        = "https://open.dosm.gov.my/api/data-catalogue"
	defaultUserAgent         = "HealthPulse-Registry/1.0 (Data Collection Bot)"
	defaultRequestsPerMinute = 30
	defaultMaxRetries        = 3
	defaultRetryBackoff      = 2 * time.Second
	defaultDeactivateAfter   = 5
)

// defaultAllowedDomains lists the official publisher domains trusted out of
// the box. Overridable via SOURCE_ALLOWED_DOMAINS.
var defaultAllowedDomains = []string{
	"open.dosm.gov.my",
	"statsdw.dosm.gov.my",
	"www.dosm.gov.my",
	"dosm.gov.my",
	"data.gov.my",
}

// defaultTierTimeouts increase with tier cost: structured API calls are quick,
// browser sessions get the largest budget.
var defaultTierTimeouts = [5]time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    5 * time.Minute,
			ConnectTimeout:     10 * time.Second,
			MigrationsDir:      "./migrations",
		},
		Scraper: ScraperConfig{
			AllowedDomains:          defaultAllowedDomains,
			CatalogURL:              defaultCatalogURL,
			UserAgent:               defaultUserAgent,
			RequestsPerMinute:       defaultRequestsPerMinute,
			TierTimeouts:            defaultTierTimeouts,
			BrowserSessionLifetime:  3 * time.Minute,
			EnableBrowser:           false,
			MaxRetries:              defaultMaxRetries,
			RetryBackoff:            defaultRetryBackoff,
			DeactivateAfterFailures: defaultDeactivateAfter,
		},
	}

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	} else if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DATABASE_MIGRATIONS_DIR"); v != "" {
		cfg.Database.MigrationsDir = v
	}

	if v := os.Getenv("SOURCE_ALLOWED_DOMAINS"); v != "" {
		domains := splitAndTrim(v)
		if len(domains) == 0 {
			return Config{}, fmt.Errorf("invalid SOURCE_ALLOWED_DOMAINS: empty list")
		}
		cfg.Scraper.AllowedDomains = domains
	}

	if v := os.Getenv("SCRAPER_CATALOG_URL"); v != "" {
		cfg.Scraper.CatalogURL = v
	}

	if v := os.Getenv("SCRAPER_USER_AGENT"); v != "" {
		cfg.Scraper.UserAgent = v
	}

	if v := os.Getenv("SCRAPER_RATE_LIMIT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCRAPER_RATE_LIMIT: %w", err)
		}
		cfg.Scraper.RequestsPerMinute = n
	}

	if v := os.Getenv("SCRAPER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid SCRAPER_MAX_RETRIES: must be a non-negative integer")
		}
		cfg.Scraper.MaxRetries = n
	}

	for i := range cfg.Scraper.TierTimeouts {
		key := fmt.Sprintf("SCRAPER_TIER%d_TIMEOUT_SECONDS", i+1)
		if v := os.Getenv(key); v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", key, err)
			}
			cfg.Scraper.TierTimeouts[i] = d
		}
	}

	if v := os.Getenv("SCRAPER_ENABLE_BROWSER"); v != "" {
		cfg.Scraper.EnableBrowser = strings.EqualFold(v, "true")
	}

	if v := os.Getenv("SCRAPER_DEACTIVATE_AFTER_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid SCRAPER_DEACTIVATE_AFTER_FAILURES: must be a non-negative integer")
		}
		cfg.Scraper.DeactivateAfterFailures = n
	}

	if v := os.Getenv("SCHEDULER_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_INTERVAL_SECONDS: %w", err)
		}
		cfg.Scheduler.Interval = d
	}

	return cfg, nil
}

// TierTimeout returns the timeout budget for a 1-based tier number.
func (c ScraperConfig) TierTimeout(tier int) time.Duration {
	if tier < 1 || tier > len(c.TierTimeouts) {
		return c.TierTimeouts[len(c.TierTimeouts)-1]
	}
	return c.TierTimeouts[tier-1]
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
