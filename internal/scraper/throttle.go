package scraper

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle enforces a requests-per-minute ceiling per source host. When the
// ceiling is hit callers block until a slot frees or their context (bounded
// by the tier's timeout budget) expires. Attempts are queued, not dropped.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rpm      int
}

// NewThrottle creates a throttle allowing rpm requests per minute per host.
func NewThrottle(rpm int) *Throttle {
	if rpm <= 0 {
		rpm = 30
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rpm:      rpm,
	}
}

// Wait blocks until the host's limiter admits one request or ctx expires.
func (t *Throttle) Wait(ctx context.Context, rawURL string) error {
	return t.limiterFor(rawURL).Wait(ctx)
}

func (t *Throttle) limiterFor(rawURL string) *rate.Limiter {
	host := hostOf(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters[host]
	if !ok {
		// Burst of 1 keeps requests evenly spaced within the minute.
		lim = rate.NewLimiter(rate.Limit(float64(t.rpm)/60.0), 1)
		t.limiters[host] = lim
	}
	return lim
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return strings.ToLower(parsed.Hostname())
}
