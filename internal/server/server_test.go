package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/crypto-dashboard/internal/adapters"
	"github.com/Rajchodisetti/crypto-dashboard/internal/market"
	"github.com/Rajchodisetti/crypto-dashboard/internal/transport"
)

var fixedNow = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

type fakeMarket struct {
	lastID      string
	lastDetails bool
	err         error
}

func (f *fakeMarket) Indices(context.Context) ([]market.Index, market.Source) {
	return []market.Index{{ID: "btc", Symbol: "BTC", Value: 1}}, market.SourceAPI
}

func (f *fakeMarket) Indicators(context.Context) ([]market.Indicator, market.Source) {
	return []market.Indicator{{ID: "rsi-btc", Signal: market.SignalBullish}}, market.SourceMock
}

func (f *fakeMarket) Index(_ context.Context, id string, details bool) (market.IndexDetail, market.Source, error) {
	f.lastID, f.lastDetails = id, details
	if f.err != nil {
		return market.IndexDetail{}, market.SourceMock, f.err
	}
	d := market.IndexDetail{Index: market.Index{ID: id}}
	if details {
		d.DailyData = []market.DailyDataPoint{{Date: "2026-05-01", Value: 1}}
	}
	return d, market.SourceMock, nil
}

func (f *fakeMarket) Indicator(_ context.Context, id string, details bool) (market.IndicatorDetail, market.Source, error) {
	f.lastID, f.lastDetails = id, details
	if f.err != nil {
		return market.IndicatorDetail{}, market.SourceMock, f.err
	}
	return market.IndicatorDetail{Indicator: market.Indicator{ID: id}}, market.SourceAPI, nil
}

type fakeQuota struct {
	configured bool
	info       adapters.RateLimitInfo
}

func (f fakeQuota) Configured() bool                      { return f.configured }
func (f fakeQuota) RateLimitInfo() adapters.RateLimitInfo { return f.info }

type countingClearer struct{ n int }

func (c *countingClearer) ClearCache() { c.n++ }

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Market == nil {
		cfg.Market = &fakeMarket{}
	}
	cfg.Clock = func() time.Time { return fixedNow }
	return New(cfg)
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestIndices_ListEnvelope(t *testing.T) {
	s := newTestServer(t, Config{})
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/indices")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api", body["source"])
	assert.Equal(t, "2026-05-01T09:30:00Z", body["timestamp"])
	require.Len(t, body["data"], 1)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestIndices_Detail(t *testing.T) {
	fm := &fakeMarket{}
	s := newTestServer(t, Config{Market: fm})
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/indices?id=fear-greed&details=true")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fear-greed", fm.lastID)
	assert.True(t, fm.lastDetails)
	data := body["data"].(map[string]any)
	assert.Equal(t, "fear-greed", data["id"])
	assert.Len(t, data["dailyData"], 1)

	_, body = do(t, s.Handler(), http.MethodGet, "/api/indices?id=fear-greed")
	assert.False(t, fm.lastDetails)
	assert.NotContains(t, body["data"].(map[string]any), "dailyData")
}

func TestLookupErrors(t *testing.T) {
	s := newTestServer(t, Config{Market: &fakeMarket{err: market.ErrNotFound}})
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/indices?id=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Index not found", body["error"])

	rec, body = do(t, s.Handler(), http.MethodGet, "/api/indicators?id=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Indicator not found", body["error"])

	s = newTestServer(t, Config{Market: &fakeMarket{err: assert.AnError}})
	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/indicators?id=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIndicators_List(t *testing.T) {
	s := newTestServer(t, Config{})
	_, body := do(t, s.Handler(), http.MethodGet, "/api/indicators")
	assert.Equal(t, "mock", body["source"])
}

func TestRateLimit_Configured(t *testing.T) {
	quota := fakeQuota{configured: true, info: adapters.RateLimitInfo{RequestsLastMinute: 3, MonthlyCalls: 42, MaxPerMinute: 20, MaxMonthly: 500}}
	s := newTestServer(t, Config{Quota: quota})
	_, body := do(t, s.Handler(), http.MethodGet, "/api/rate-limit")

	assert.Equal(t, float64(3), body["requestsLastMinute"])
	assert.Equal(t, float64(42), body["monthlyCalls"])
	assert.Equal(t, float64(20), body["maxPerMinute"])
	assert.Equal(t, float64(500), body["maxMonthly"])
	assert.NotContains(t, body, "note")
}

func TestRateLimit_MockMode(t *testing.T) {
	for name, quota := range map[string]QuotaReporter{
		"nil":          nil,
		"unconfigured": fakeQuota{info: adapters.RateLimitInfo{MaxPerMinute: 20, MaxMonthly: 500}},
	} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, Config{Quota: quota})
			_, body := do(t, s.Handler(), http.MethodGet, "/api/rate-limit")
			assert.Equal(t, float64(0), body["requestsLastMinute"])
			assert.Equal(t, float64(0), body["monthlyCalls"])
			assert.Equal(t, float64(20), body["maxPerMinute"])
			assert.Equal(t, float64(500), body["maxMonthly"])
			assert.Equal(t, mockModeNote, body["note"])
		})
	}
}

func TestCacheClear(t *testing.T) {
	a, b := &countingClearer{}, &countingClearer{}
	s := newTestServer(t, Config{Caches: []CacheClearer{a, b}})

	rec, body := do(t, s.Handler(), http.MethodPost, "/api/cache/clear")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["cleared"])
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/cache/clear")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInboundRateLimit(t *testing.T) {
	s := newTestServer(t, Config{RatePerSec: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		rec, _ := do(t, s.Handler(), http.MethodGet, "/api/indices")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/indices")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests", body["error"])

	// Health and metrics are not throttled.
	rec, _ = do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/indices", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	quota := fakeQuota{configured: true, info: adapters.RateLimitInfo{MonthlyCalls: 500, MaxMonthly: 500}}
	s := newTestServer(t, Config{Quota: quota})
	rec, body := do(t, s.Handler(), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	details := body["details"].(map[string]any)
	assert.Equal(t, true, details["tokenmetrics_configured"])
	assert.Equal(t, "disconnected", details["feed"])

	s = newTestServer(t, Config{})
	_, body = do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard_")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, Config{})
	rec, body := do(t, s.Handler(), http.MethodGet, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t, Config{})
	s.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, body := do(t, s.Handler(), http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestFeedStatus(t *testing.T) {
	s := newTestServer(t, Config{})
	_, body := do(t, s.Handler(), http.MethodGet, "/api/ws/status")
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, "disconnected", data["state"])

	client := transport.NewWSClient(transport.WSConfig{URL: "ws://127.0.0.1:1/ws"})
	monitor := NewFeedMonitor(client, func() time.Time { return fixedNow })
	monitor.observe(transport.Message{Type: "price"})
	monitor.observe(transport.Message{Type: "volume"})

	s = newTestServer(t, Config{Feed: monitor})
	_, body = do(t, s.Handler(), http.MethodGet, "/api/ws/status")
	data = body["data"].(map[string]any)
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, false, data["connected"])
	assert.Equal(t, float64(2), data["messages"])
	assert.Equal(t, "volume", data["lastType"])
	assert.Equal(t, "2026-05-01T09:30:00Z", data["lastUpdate"])
}
