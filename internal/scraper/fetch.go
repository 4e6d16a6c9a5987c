package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/models"
)

// maxPayloadSize caps a single downloaded payload at 64MB.
const maxPayloadSize = 64 << 20

// fetcher is the outbound plumbing shared by all tiers: gate check, per-host
// throttle, user agent, bounded retries on transient failures.
type fetcher struct {
	gate      *gate.Gate
	throttle  *Throttle
	client    *http.Client
	userAgent string
	retry     RetryPolicy
	logger    *slog.Logger
}

func newFetcher(g *gate.Gate, throttle *Throttle, userAgent string, retry RetryPolicy, logger *slog.Logger) *fetcher {
	return &fetcher{
		gate:      g,
		throttle:  throttle,
		client:    &http.Client{},
		userAgent: userAgent,
		retry:     retry,
		logger:    logger,
	}
}

// fetch downloads the URL body on behalf of the given tier. The returned
// error is always a *Failure.
func (f *fetcher) fetch(ctx context.Context, tier models.Tier, rawURL string, accept string) ([]byte, error) {
	if d := f.gate.Authorize(rawURL); !d.Allowed {
		return nil, newFailure(tier, FailGate, fmt.Errorf("source gate rejected %s: %s", rawURL, d.Reason))
	}

	if err := f.throttle.Wait(ctx, rawURL); err != nil {
		return nil, classifyTransport(tier, err)
	}

	var body []byte
	err := Retry(ctx, f.retry, func() error {
		b, err := f.get(ctx, rawURL, accept)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, classifyTransport(tier, err)
	}

	return body, nil
}

// get performs one GET, marking transport errors and 5xx responses retryable.
func (f *fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, NewRetryableError(fmt.Errorf("server error: %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, NewRetryableError(err)
	}

	f.logger.Debug("fetched source payload",
		"url", rawURL,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	return body, nil
}

// classifyTransport converts transport-level errors into typed failures. A
// spent deadline is a timeout; caller cancellation is reported as such, not
// as a source timing out.
func classifyTransport(tier models.Tier, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return newFailure(tier, FailTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return newFailure(tier, FailCancelled, err)
	}
	return newFailure(tier, FailNetwork, err)
}
