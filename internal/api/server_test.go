package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/collector"
	"github.com/IntelliTrade-io/IntelliTrade/internal/config"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRunner struct {
	mu      sync.Mutex
	windows []calendar.Window
	result  collector.Result
	err     error
	panicOn bool
}

func (r *fakeRunner) Collect(_ context.Context, window calendar.Window) (collector.Result, error) {
	r.mu.Lock()
	r.windows = append(r.windows, window)
	r.mu.Unlock()
	if r.panicOn {
		panic("selector exploded")
	}
	return r.result, r.err
}

func (r *fakeRunner) lastWindow(t *testing.T) calendar.Window {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.windows)
	return r.windows[len(r.windows)-1]
}

func testConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{Port: 8080},
		Collector: config.CollectorConfig{MaxConcurrent: 6, WindowDays: 60},
	}
}

func newTestServer(runner *fakeRunner, cfg config.Config) *Server {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)}
	return NewServer(runner, clock, cfg, zap.NewNop())
}

func TestServer_GetCalendar_ReturnsFeedAndHealth(t *testing.T) {
	t.Parallel()

	ev := calendar.NewEvent("BLS", "BLS", "US", "Consumer Price Index",
		time.Date(2026, 6, 10, 12, 30, 0, 0, time.UTC), "America/New_York",
		"https://www.bls.gov/cpi")
	runner := &fakeRunner{result: collector.Result{
		Events: []calendar.Event{ev},
		Report: calendar.HealthReport{
			RunID:       "run-1",
			Overall:     calendar.StatusHealthy,
			TotalEvents: 1,
		},
	}}
	server := newTestServer(runner, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar?since=2026-06-01&until=2026-06-30", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp calendarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	require.Equal(t, ev.ID, resp.Events[0].ID)
	require.Equal(t, "run-1", resp.Health.RunID)
	require.Equal(t, calendar.StatusHealthy, resp.Health.Overall)

	window := runner.lastWindow(t)
	require.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), window.Since)
	require.Equal(t, time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC), window.Until)
}

func TestServer_GetCalendar_DefaultsWindow(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: collector.Result{}}
	server := newTestServer(runner, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	window := runner.lastWindow(t)
	require.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), window.Since)
	require.Equal(t, time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC), window.Until)

	var resp calendarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Events)
	require.Empty(t, resp.Events)
}

func TestServer_GetCalendar_RejectsBadDates(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(runner, testConfig())

	for _, query := range []string{
		"?since=June-1st",
		"?until=20260630",
		"?since=2026-06-30&until=2026-06-01",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/calendar"+query, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		require.Contains(t, rec.Body.String(), "error", query)
	}
	require.Empty(t, runner.windows)
}

func TestServer_GetCalendar_SurfacesRunFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("state store unavailable")}
	server := newTestServer(runner, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "state store unavailable")
}

func TestServer_GetCalendar_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{panicOn: true}
	server := newTestServer(runner, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestServer_APIKey_GuardsRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	runner := &fakeRunner{result: collector.Result{}}
	server := newTestServer(runner, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/calendar", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/calendar", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/calendar?api_key=secret", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "probes are never keyed")
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{}, testConfig())

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/readyz":  "ready",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Body.String(), want, path)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_SetsRequestID(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
