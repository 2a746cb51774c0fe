package adapters

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	CoinGeckoProvider       = "coingecko"
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
)

// CoinGeckoConfig holds configuration for the keyless CoinGecko client
type CoinGeckoConfig struct {
	BaseURL     string
	CacheTTLMin time.Duration
	CacheTTLMax time.Duration
	Timeout     time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
	Rand       *rand.Rand
}

// CoinGeckoClient targets the public free tier. It caches like the keyed
// client but enforces no local quota.
type CoinGeckoClient struct {
	core *providerClient
}

// NewCoinGeckoClient creates the keyless client
func NewCoinGeckoClient(config CoinGeckoConfig) *CoinGeckoClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultCoinGeckoBaseURL
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	config.Logger.Info("coingecko client initialized", zap.String("base_url", config.BaseURL))

	return &CoinGeckoClient{
		core: &providerClient{
			name:       CoinGeckoProvider,
			baseURL:    strings.TrimRight(config.BaseURL, "/"),
			httpClient: httpClientWithTimeout(config.HTTPClient, config.Timeout),
			cache: NewResponseCache[json.RawMessage](CacheConfig{
				TTLMin: config.CacheTTLMin,
				TTLMax: config.CacheTTLMax,
				Clock:  config.Clock,
				Rand:   config.Rand,
			}),
			logger: config.Logger,
		},
	}
}

// Request fetches endpoint with params and reports whether the cache served it.
func (c *CoinGeckoClient) Request(ctx context.Context, endpoint string, params Params) (json.RawMessage, CacheStatus, error) {
	return c.core.request(ctx, endpoint, params)
}

// ClearCache drops every cached response.
func (c *CoinGeckoClient) ClearCache() {
	c.core.cache.Clear()
}
