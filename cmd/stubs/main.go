package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
	"github.com/Rajchodisetti/crypto-dashboard/internal/stubs"
)

var (
	addr         string
	apiKey       string
	tickInterval time.Duration
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "stubs",
	Short: "Run a local TokenMetrics/CoinGecko look-alike with a WebSocket price feed",
	Long: `Serves /tokens, /trading-signals, /indices/{id}, /indicators/{id} and
/coins/markets from fixtures, and a price feed at /ws.

Point the dashboard at it with:
  TOKENMETRICS_API_URL=http://localhost:8091 COINGECKO_API_URL=http://localhost:8091 WS_URL=ws://localhost:8091/ws`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", ":8091", "listen address")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "require this x-api-key on TokenMetrics routes")
	rootCmd.Flags().DurationVar(&tickInterval, "tick", 2*time.Second, "price feed tick interval")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

func run(cmd *cobra.Command, _ []string) error {
	logger, err := observ.Init(logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := stubs.NewFeedServer(stubs.FeedConfig{
		Prices: map[string]float64{"BTC": 64250.12, "ETH": 3120.55, "SOL": 148.3},
		Logger: logger.Named("feed"),
	})
	go feed.Run(ctx, tickInterval)

	srv := &http.Server{
		Addr: addr,
		Handler: stubs.NewUpstream(stubs.UpstreamConfig{
			Fixtures: stubs.DefaultFixtures(),
			APIKey:   apiKey,
			Feed:     feed,
			Logger:   logger.Named("upstream"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	observ.Log("stub_upstream_listening", map[string]any{
		"addr":         addr,
		"key_required": apiKey != "",
		"tick":         tickInterval.String(),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "stub server")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
