// Package logging builds the process-wide structured logger. JSON output is
// the default so Cloud Run log aggregation parses severity and attributes.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/healthpulse/registry/internal/config"
)

// serviceName is stamped on every log line so registry output is filterable
// when aggregated alongside other services.
const serviceName = "healthpulse-registry"

// New constructs the root slog.Logger on stdout according to the provided
// settings.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter is New with an explicit destination, for tests.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	handler, err := buildHandler(w, cfg)
	if err != nil {
		return nil, err
	}

	return slog.New(handler).With("service", serviceName), nil
}

func buildHandler(w io.Writer, cfg config.LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json", "":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
