package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Rajchodisetti/crypto-dashboard/internal/adapters"
	"github.com/Rajchodisetti/crypto-dashboard/internal/config"
	"github.com/Rajchodisetti/crypto-dashboard/internal/market"
	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
	"github.com/Rajchodisetti/crypto-dashboard/internal/server"
	"github.com/Rajchodisetti/crypto-dashboard/internal/transport"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with the API key masked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.TokenMetrics.APIKey != "" {
			cfg.TokenMetrics.APIKey = adapters.MaskAPIKey(cfg.TokenMetrics.APIKey)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.WithMessage(err, "load config")
	}

	logger, err := observ.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout()}
	tm := adapters.NewTokenMetricsClient(adapters.TokenMetricsConfig{
		APIKey:               cfg.TokenMetrics.APIKey,
		BaseURL:              cfg.TokenMetrics.BaseURL,
		MaxRequestsPerMinute: cfg.TokenMetrics.MaxRequestsPerMinute,
		MaxMonthlyCalls:      cfg.TokenMetrics.MaxMonthlyCalls,
		CacheTTLMin:          cfg.Cache.TTLMin(),
		CacheTTLMax:          cfg.Cache.TTLMax(),
		Timeout:              cfg.HTTP.Timeout(),
		HTTPClient:           httpClient,
		Logger:               logger.Named("tokenmetrics"),
	})
	cg := adapters.NewCoinGeckoClient(adapters.CoinGeckoConfig{
		BaseURL:     cfg.CoinGecko.BaseURL,
		CacheTTLMin: cfg.Cache.TTLMin(),
		CacheTTLMax: cfg.Cache.TTLMax(),
		Timeout:     cfg.HTTP.Timeout(),
		HTTPClient:  httpClient,
		Logger:      logger.Named("coingecko"),
	})

	svc := market.NewService(market.ServiceConfig{
		TokenMetrics: tm,
		CoinGecko:    cg,
		Logger:       logger.Named("market"),
	})

	feed := startFeed(ctx, cfg.WebSocket, logger.Named("feed"))
	if feed != nil {
		defer feed.client.Disconnect()
	}

	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		RatePerSec:  cfg.Server.RatePerSec,
		Burst:       cfg.Server.Burst,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutS) * time.Second,
		Market:      svc,
		Quota:       tm,
		Caches:      []server.CacheClearer{tm, cg},
		Feed:        feed.monitor(),
		Logger:      logger.Named("http"),
	})

	observ.Log("dashboard_starting", map[string]any{
		"addr":                    cfg.Server.Addr,
		"tokenmetrics_configured": tm.Configured(),
		"tokenmetrics_url":        cfg.TokenMetrics.BaseURL,
		"coingecko_url":           cfg.CoinGecko.BaseURL,
		"feed_enabled":            feed != nil,
		"version":                 version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.WithMessage(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WithMessage(err, "http server shutdown")
	}
	logger.Info("HTTP server stopped gracefully")
	return nil
}

type feedHandle struct {
	client *transport.WSClient
	mon    *server.FeedMonitor
}

func (f *feedHandle) monitor() *server.FeedMonitor {
	if f == nil {
		return nil
	}
	return f.mon
}

// startFeed connects the optional price feed. A failed first dial is logged
// and leaves the feed disconnected; the dashboard still serves REST data.
func startFeed(ctx context.Context, cfg config.WebSocket, logger *zap.Logger) *feedHandle {
	if cfg.URL == "" {
		logger.Info("websocket feed disabled, no url configured")
		return nil
	}

	client := transport.NewWSClient(transport.WSConfig{
		URL: cfg.URL,
		Reconnect: transport.ReconnectConfig{
			Delay:       cfg.ReconnectDelay(),
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		Logger: logger,
	})
	handle := &feedHandle{client: client, mon: server.NewFeedMonitor(client, nil)}
	client.Subscribe("price", func(msg transport.Message) {
		logger.Debug("price update", zap.Any("data", msg.Data["data"]))
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		logger.Warn("websocket feed unavailable", zap.Error(err))
	}
	return handle
}
