package stubs

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Upstream imitates the TokenMetrics and CoinGecko REST APIs and hosts the
// price feed at /ws.
type Upstream struct {
	router   *chi.Mux
	fixtures Fixtures
	apiKey   string
	feed     *FeedServer
	logger   *zap.Logger

	hits       atomic.Int64
	failStatus atomic.Int64
}

// UpstreamConfig configures an Upstream. An empty APIKey accepts any caller.
type UpstreamConfig struct {
	Fixtures Fixtures
	APIKey   string
	Feed     *FeedServer
	Logger   *zap.Logger
}

func NewUpstream(config UpstreamConfig) *Upstream {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	u := &Upstream{
		router:   chi.NewRouter(),
		fixtures: config.Fixtures,
		apiKey:   config.APIKey,
		feed:     config.Feed,
		logger:   config.Logger,
	}

	u.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if u.feed != nil {
		u.router.Handle("/ws", u.feed)
	}

	u.router.Group(func(r chi.Router) {
		r.Use(u.count, u.injectFailure, u.requireKey)
		r.Get("/tokens", u.handleTokens)
		r.Get("/trading-signals", u.handleSignals)
		r.Get("/indices/{id}", u.handleDetail(func() map[string]map[string]any { return u.fixtures.Indices }))
		r.Get("/indicators/{id}", u.handleDetail(func() map[string]map[string]any { return u.fixtures.Indicators }))
	})
	u.router.Group(func(r chi.Router) {
		r.Use(u.count, u.injectFailure)
		r.Get("/coins/markets", u.handleMarkets)
	})
	return u
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.router.ServeHTTP(w, r)
}

// Hits counts REST requests served, including injected failures.
func (u *Upstream) Hits() int64 {
	return u.hits.Load()
}

// FailWith makes every REST endpoint answer status until called with 0.
func (u *Upstream) FailWith(status int) {
	u.failStatus.Store(int64(status))
}

func (u *Upstream) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.logger.Debug("stub request", zap.String("path", r.URL.Path), zap.String("query", r.URL.RawQuery))
		next.ServeHTTP(w, r)
	})
}

func (u *Upstream) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := int(u.failStatus.Load()); status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (u *Upstream) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.apiKey != "" && r.Header.Get("x-api-key") != u.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (u *Upstream) handleTokens(w http.ResponseWriter, r *http.Request) {
	rows := limitRows(u.fixtures.Tokens, r)
	writeJSON(w, http.StatusOK, listEnvelope{Success: true, Message: "Data fetched successfully", Length: len(rows), Data: rows})
}

func (u *Upstream) handleSignals(w http.ResponseWriter, r *http.Request) {
	rows := limitRows(u.fixtures.Signals, r)
	writeJSON(w, http.StatusOK, listEnvelope{Success: true, Message: "Data fetched successfully", Length: len(rows), Data: rows})
}

func (u *Upstream) handleDetail(source func() map[string]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, ok := source()[chi.URLParam(r, "id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": item})
	}
}

func (u *Upstream) handleMarkets(w http.ResponseWriter, r *http.Request) {
	rows := u.fixtures.Markets
	if n, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	writeJSON(w, http.StatusOK, rows)
}

func limitRows[T any](rows []T, r *http.Request) []T {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 && n < len(rows) {
		return rows[:n]
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
