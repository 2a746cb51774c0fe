package observ

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider request counters and latency.
var (
	// ProviderRequests counts outbound provider calls labelled by outcome
	// ("success", "transport_error").
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_provider_requests_total",
			Help: "Outbound requests issued to upstream data providers.",
		},
		[]string{"provider", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_provider_request_duration_seconds",
			Help:    "Upstream provider request latency in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// CacheLookups counts response cache lookups, result is "hit" or "miss".
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_lookups_total",
			Help: "Response cache lookups by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// RateLimitRejections counts local quota denials ("monthly", "per_minute").
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_rate_limit_rejections_total",
			Help: "Requests denied by the local rate limiter before dispatch.",
		},
		[]string{"reason"},
	)

	MonthlyCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_monthly_calls",
		Help: "Requests counted against the monthly quota in the current calendar month.",
	})

	InboundRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_inbound_rate_limit_rejections_total",
		Help: "Inbound API requests rejected by the server limiter.",
	})
)

// WebSocket feed metrics.
var (
	WSReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_ws_reconnect_attempts_total",
		Help: "Scheduled WebSocket reconnect attempts.",
	})

	WSConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_ws_connected",
		Help: "1 when the WebSocket feed is connected.",
	})

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_ws_messages_total",
			Help: "Inbound WebSocket messages by declared type.",
		},
		[]string{"type"},
	)

	WSMalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_ws_malformed_messages_total",
		Help: "Inbound WebSocket frames dropped because they were not valid JSON.",
	})
)

// RecordCacheLookup counts a cache hit or miss for a provider.
func RecordCacheLookup(provider string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(provider, result).Inc()
}

// RecordProviderRequest records an outbound call outcome and its latency.
func RecordProviderRequest(provider, outcome string, d time.Duration) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// SetWSConnected flips the connection gauge.
func SetWSConnected(connected bool) {
	if connected {
		WSConnected.Set(1)
		return
	}
	WSConnected.Set(0)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status    string         `json:"status"` // "healthy" or "degraded"
	Timestamp string         `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Version   string         `json:"version"`
	Details   map[string]any `json:"details,omitempty"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// HealthHandler reports process health. details is called per request and
// its "degraded" key, when true, downgrades the status.
func HealthHandler(details func() map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Version:   version,
		}
		if details != nil {
			health.Details = details()
			if degraded, _ := health.Details["degraded"].(bool); degraded {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	})
}
