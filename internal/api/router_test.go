package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/healthpulse/registry/internal/auth"
	"github.com/healthpulse/registry/internal/database"
	"github.com/healthpulse/registry/internal/discovery"
	"github.com/healthpulse/registry/internal/etl"
	"github.com/healthpulse/registry/internal/gate"
	"github.com/healthpulse/registry/internal/metrics"
	"github.com/healthpulse/registry/internal/models"
	"github.com/healthpulse/registry/internal/scraper"
	"github.com/healthpulse/registry/internal/version"
)

// stubDispatcher returns a canned dispatch outcome.
type stubDispatcher struct {
	dispatch *scraper.Dispatch
	err      error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, desc scraper.Descriptor, override *models.Tier) (*scraper.Dispatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.dispatch, nil
}

type testEnv struct {
	mux      *http.ServeMux
	datasets *database.MemoryDatasetRepository
	jobs     *database.MemoryJobRepository
	versions *database.MemoryVersionRepository
	auth     auth.Config
}

func newTestEnv(t *testing.T, d etl.Dispatcher) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	datasets := database.NewMemoryDatasetRepository()
	jobs := database.NewMemoryJobRepository()
	versions := database.NewMemoryVersionRepository()

	collector, err := metrics.NewCollector()
	if err != nil {
		t.Fatal(err)
	}

	tracker := version.NewTracker(versions, logger)
	orchestrator := etl.NewOrchestrator(datasets, jobs, d, tracker, collector, 0, logger)

	g := gate.New([]string{"open.dosm.gov.my"})
	discoverer := discovery.NewService(datasets, g, "https://open.dosm.gov.my/api/data-catalogue", "test-agent", logger)

	authConfig := auth.Config{
		JWTSecret:     "test-secret",
		AdminPassword: "test-password",
		TokenDuration: time.Hour,
	}

	mux := http.NewServeMux()
	SetupRoutes(mux, nil, datasets, versions, jobs, orchestrator, discoverer, collector, authConfig, logger)

	return &testEnv{mux: mux, datasets: datasets, jobs: jobs, versions: versions, auth: authConfig}
}

func (e *testEnv) seedDataset(t *testing.T) {
	t.Helper()
	ds := &models.Dataset{
		DatasetID:    "unemployment-rate",
		Title:        "Unemployment Rate by State",
		SourceURL:    "https://open.dosm.gov.my/api/unemployment",
		ScrapingTier: models.TierStructuredAPI,
		Confidence:   "high",
		IsActive:     true,
	}
	if err := e.datasets.Create(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken("admin", e.auth.JWTSecret, e.auth.TokenDuration)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func okDispatch() *scraper.Dispatch {
	return &scraper.Dispatch{
		Result: &scraper.Result{
			Records:    []models.Fields{{"state": "Johor", "rate": 4.1}},
			RawContent: []byte(`[]`),
		},
		TierUsed: models.TierStructuredAPI,
		Attempts: []scraper.Attempt{{Tier: models.TierStructuredAPI}},
	}
}

func TestScrapeEndpointSuccess(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", strings.NewReader(`{"force":false}`))
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ScrapeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Job.Status != models.JobStatusCompleted {
		t.Errorf("job status = %s, want Completed", resp.Job.Status)
	}
	if !resp.NewVersion || resp.Version == nil {
		t.Error("expected a new version in the response")
	}
}

func TestScrapeEndpointRequiresAuth(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", nil)
	rec := env.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestScrapeEndpointDatasetNotFound(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/no-such/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := env.do(req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != CodeDatasetNotFound {
		t.Errorf("code = %s, want %s", resp.Code, CodeDatasetNotFound)
	}
}

func TestScrapeEndpointErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "gate rejection",
			err:        &scraper.GateError{Tier: models.TierStructuredAPI, Err: context.DeadlineExceeded},
			wantStatus: http.StatusForbidden,
			wantCode:   CodeSourceNotWhitelisted,
		},
		{
			name:       "tiers exhausted",
			err:        &scraper.ExhaustedError{DatasetID: "unemployment-rate"},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeTiersExhausted,
		},
		{
			name:       "tier disabled",
			err:        &scraper.DisabledError{Tier: models.TierBrowserAutomation},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeTierDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &stubDispatcher{err: tt.err})
			env.seedDataset(t)

			req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", nil)
			req.Header.Set("Authorization", "Bearer "+env.token(t))
			rec := env.do(req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestScrapeEndpointInvalidTierOverride(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", strings.NewReader(`{"tier_override":9}`))
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	rec := env.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != CodeValidationError {
		t.Errorf("code = %s, want %s", resp.Code, CodeValidationError)
	}
}

func TestDatasetListAndGet(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list DatasetsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/datasets/unemployment-rate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/datasets/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", rec.Code)
	}
}

func TestVersionHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	// A scrape creates version 1.
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/datasets/unemployment-rate/versions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("versions status = %d", rec.Code)
	}
	var resp VersionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Versions[0].VersionNumber != 1 {
		t.Errorf("versions = %+v, want one version numbered 1", resp.Versions)
	}
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("jobs status = %d", rec.Code)
	}
	var list JobsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Fatalf("jobs = %d, want 1", list.Count)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+list.Jobs[0].JobID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("job get status = %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/unknown-id", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})
	env.seedDataset(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"test-password"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/unemployment-rate/scrape", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("scrape with issued token status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &stubDispatcher{dispatch: okDispatch()})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}
