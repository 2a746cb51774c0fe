package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/crypto-dashboard/internal/adapters"
	"github.com/Rajchodisetti/crypto-dashboard/internal/market"
)

const (
	defaultRatePerSec = 10
	defaultBurst      = 20
)

// MarketService answers the listing and detail queries.
type MarketService interface {
	Indices(ctx context.Context) ([]market.Index, market.Source)
	Indicators(ctx context.Context) ([]market.Indicator, market.Source)
	Index(ctx context.Context, id string, details bool) (market.IndexDetail, market.Source, error)
	Indicator(ctx context.Context, id string, details bool) (market.IndicatorDetail, market.Source, error)
}

// QuotaReporter exposes the keyed provider's quota usage.
type QuotaReporter interface {
	Configured() bool
	RateLimitInfo() adapters.RateLimitInfo
}

// CacheClearer is implemented by both provider clients.
type CacheClearer interface {
	ClearCache()
}

// Config wires a Server. Quota and Feed may be nil.
type Config struct {
	Addr        string
	RatePerSec  float64
	Burst       int
	ReadTimeout time.Duration

	Market MarketService
	Quota  QuotaReporter
	Caches []CacheClearer
	Feed   *FeedMonitor

	Logger *zap.Logger
	Clock  func() time.Time
}

// Server is the dashboard's JSON API.
type Server struct {
	router *chi.Mux
	server *http.Server
	config Config
	logger *zap.Logger
	clock  func() time.Time
}

func New(config Config) *Server {
	if config.RatePerSec <= 0 {
		config.RatePerSec = defaultRatePerSec
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	s := &Server{
		router: chi.NewRouter(),
		config: config,
		logger: config.Logger,
		clock:  config.Clock,
	}

	s.router.Use(RequestID)
	s.router.Use(accessLog(s.logger))
	s.router.Use(recovery(s.logger))
	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "The requested resource was not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.registerRoutes(rate.NewLimiter(rate.Limit(config.RatePerSec), config.Burst))
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("starting HTTP server", zap.String("addr", s.config.Addr))
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
