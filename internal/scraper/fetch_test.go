package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/models"
)

// testFetcher builds a fetcher whose gate trusts the given test server.
func testFetcher(t *testing.T, server *httptest.Server) *fetcher {
	t.Helper()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	g := gate.New([]string{u.Hostname()})
	retry := RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffFactor: 2.0}
	return newFetcher(g, NewThrottle(600), "test-agent/1.0", retry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchRejectsUntrustedURLWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	g := gate.New([]string{"open.dosm.gov.my"})
	f := newFetcher(g, NewThrottle(600), "test-agent/1.0", DefaultRetryPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := f.fetch(context.Background(), models.TierStructuredAPI, server.URL+"/data", "")
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("fetch() error = %v, want *Failure", err)
	}
	if failure.Kind != FailGate {
		t.Errorf("Kind = %s, want %s", failure.Kind, FailGate)
	}
	if hits.Load() != 0 {
		t.Errorf("server received %d requests for a gated URL", hits.Load())
	}
}

func TestFetchSetsUserAgent(t *testing.T) {
	var gotAgent string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := testFetcher(t, server)
	f.client = server.Client()

	body, err := f.fetch(context.Background(), models.TierStructuredAPI, server.URL, "application/json")
	if err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if gotAgent != "test-agent/1.0" {
		t.Errorf("User-Agent = %q, want test-agent/1.0", gotAgent)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	f := testFetcher(t, server)
	f.client = server.Client()

	body, err := f.fetch(context.Background(), models.TierFileDownload, server.URL, "")
	if err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("body = %q, want recovered", body)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := testFetcher(t, server)
	f.client = server.Client()

	_, err := f.fetch(context.Background(), models.TierStructuredAPI, server.URL, "")
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("fetch() error = %v, want *Failure", err)
	}
	if failure.Kind != FailNetwork {
		t.Errorf("Kind = %s, want %s", failure.Kind, FailNetwork)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (4xx is not retryable)", hits.Load())
	}
}

func TestFetchClassifiesTimeout(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	f := testFetcher(t, server)
	f.client = server.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.fetch(ctx, models.TierStructuredAPI, server.URL, "")
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("fetch() error = %v, want *Failure", err)
	}
	if failure.Kind != FailTimeout {
		t.Errorf("Kind = %s, want %s", failure.Kind, FailTimeout)
	}
}

func TestFetchClassifiesCancellation(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	f := testFetcher(t, server)
	f.client = server.Client()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.fetch(ctx, models.TierStructuredAPI, server.URL, "")
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("fetch() error = %v, want *Failure", err)
	}
	if failure.Kind != FailCancelled {
		t.Errorf("Kind = %s, want %s", failure.Kind, FailCancelled)
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"deadline", context.DeadlineExceeded, FailTimeout},
		{"cancellation", context.Canceled, FailCancelled},
		{"transport", errors.New("connection reset"), FailNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := classifyTransport(models.TierStructuredAPI, tt.err)
			if failure.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", failure.Kind, tt.want)
			}
			if !errors.Is(failure, tt.err) {
				t.Error("failure does not wrap the original error")
			}
		})
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	// 60 rpm = one slot per second; the second request must wait.
	throttle := NewThrottle(60)

	start := time.Now()
	if err := throttle.Wait(context.Background(), "https://open.dosm.gov.my/a"); err != nil {
		t.Fatal(err)
	}
	if err := throttle.Wait(context.Background(), "https://open.dosm.gov.my/b"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("second request admitted after %v, want >= ~1s spacing", elapsed)
	}
}

func TestThrottleIsPerHost(t *testing.T) {
	throttle := NewThrottle(60)

	start := time.Now()
	if err := throttle.Wait(context.Background(), "https://open.dosm.gov.my/a"); err != nil {
		t.Fatal(err)
	}
	if err := throttle.Wait(context.Background(), "https://data.gov.my/b"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("distinct hosts serialized: second admit took %v", elapsed)
	}
}

func TestThrottleHonorsContext(t *testing.T) {
	throttle := NewThrottle(1)

	if err := throttle.Wait(context.Background(), "https://open.dosm.gov.my/a"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := throttle.Wait(ctx, "https://open.dosm.gov.my/b"); err == nil {
		t.Error("expected context error while queued behind the limiter")
	}
}
