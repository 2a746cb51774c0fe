package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/crypto-dashboard/internal/adapters"
	"github.com/Rajchodisetti/crypto-dashboard/internal/market"
	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
)

const mockModeNote = "Using mock data mode - rate limits not tracked"

type envelope struct {
	Data      any           `json:"data"`
	Timestamp string        `json:"timestamp"`
	Source    market.Source `json:"source,omitempty"`
}

type rateLimitResponse struct {
	adapters.RateLimitInfo
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) registerRoutes(limiter *rate.Limiter) {
	s.router.Get("/health", observ.HealthHandler(s.healthDetails).ServeHTTP)
	s.router.Get("/metrics", observ.Handler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(inboundLimit(limiter))
		r.Get("/indices", s.handleIndices)
		r.Get("/indicators", s.handleIndicators)
		r.Get("/rate-limit", s.handleRateLimit)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Get("/ws/status", s.handleFeedStatus)
	})
}

func (s *Server) now() string {
	return s.clock().UTC().Format(time.RFC3339Nano)
}

func (s *Server) handleIndices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		indices, source := s.config.Market.Indices(r.Context())
		writeJSON(w, http.StatusOK, envelope{Data: indices, Timestamp: s.now(), Source: source})
		return
	}

	detail, source, err := s.config.Market.Index(r.Context(), id, q.Get("details") == "true")
	if err != nil {
		s.writeLookupError(w, r, err, "Index not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: detail, Timestamp: s.now(), Source: source})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		indicators, source := s.config.Market.Indicators(r.Context())
		writeJSON(w, http.StatusOK, envelope{Data: indicators, Timestamp: s.now(), Source: source})
		return
	}

	detail, source, err := s.config.Market.Indicator(r.Context(), id, q.Get("details") == "true")
	if err != nil {
		s.writeLookupError(w, r, err, "Indicator not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: detail, Timestamp: s.now(), Source: source})
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("lookup failed", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	resp := rateLimitResponse{Timestamp: s.now()}
	if s.config.Quota == nil || !s.config.Quota.Configured() {
		resp.RateLimitInfo = adapters.RateLimitInfo{
			MaxPerMinute: adapters.DefaultMaxRequestsPerMinute,
			MaxMonthly:   adapters.DefaultMaxMonthlyCalls,
		}
		if s.config.Quota != nil {
			info := s.config.Quota.RateLimitInfo()
			resp.MaxPerMinute, resp.MaxMonthly = info.MaxPerMinute, info.MaxMonthly
		}
		resp.Note = mockModeNote
	} else {
		resp.RateLimitInfo = s.config.Quota.RateLimitInfo()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.config.Caches {
		c.ClearCache()
	}
	s.logger.Info("provider caches cleared",
		zap.Int("caches", len(s.config.Caches)),
		zap.String("request_id", GetRequestID(r.Context())))
	writeJSON(w, http.StatusOK, map[string]any{
		"cleared":   len(s.config.Caches),
		"timestamp": s.now(),
	})
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Data: s.config.Feed.Status(), Timestamp: s.now()})
}

func (s *Server) healthDetails() map[string]any {
	details := map[string]any{
		"tokenmetrics_configured": s.config.Quota != nil && s.config.Quota.Configured(),
		"feed":                    s.config.Feed.Status().State,
	}
	if s.config.Quota != nil && s.config.Quota.Configured() {
		info := s.config.Quota.RateLimitInfo()
		details["monthly_calls"] = info.MonthlyCalls
		if info.MonthlyCalls >= info.MaxMonthly {
			details["degraded"] = true
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
