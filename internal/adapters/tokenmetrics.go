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
	TokenMetricsProvider       = "tokenmetrics"
	DefaultTokenMetricsBaseURL = "https://api.tokenmetrics.com/v2"
)

// TokenMetricsConfig holds configuration for the TokenMetrics client
type TokenMetricsConfig struct {
	APIKey               string
	BaseURL              string
	MaxRequestsPerMinute int
	MaxMonthlyCalls      int
	CacheTTLMin          time.Duration
	CacheTTLMax          time.Duration
	Timeout              time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
	Rand       *rand.Rand
}

// TokenMetricsClient is the keyed provider client. It always constructs;
// without an API key it is "not configured" and every Request fails with
// ErrNotConfigured while RateLimitInfo keeps working.
type TokenMetricsClient struct {
	core       *providerClient
	configured bool
}

// NewTokenMetricsClient creates the keyed client
func NewTokenMetricsClient(config TokenMetricsConfig) *TokenMetricsClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultTokenMetricsBaseURL
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	apiKey := strings.TrimSpace(config.APIKey)
	header := http.Header{}
	if apiKey != "" {
		// TokenMetrics authenticates with x-api-key, not a bearer token.
		header.Set("x-api-key", apiKey)
		config.Logger.Info("tokenmetrics client initialized",
			zap.String("base_url", config.BaseURL),
			zap.String("api_key", MaskAPIKey(apiKey)))
	} else {
		config.Logger.Info("tokenmetrics client has no API key, mock data mode")
	}

	return &TokenMetricsClient{
		configured: apiKey != "",
		core: &providerClient{
			name:       TokenMetricsProvider,
			baseURL:    strings.TrimRight(config.BaseURL, "/"),
			header:     header,
			httpClient: httpClientWithTimeout(config.HTTPClient, config.Timeout),
			cache: NewResponseCache[json.RawMessage](CacheConfig{
				TTLMin: config.CacheTTLMin,
				TTLMax: config.CacheTTLMax,
				Clock:  config.Clock,
				Rand:   config.Rand,
			}),
			limiter: NewRequestLimiter(config.MaxRequestsPerMinute, config.MaxMonthlyCalls, config.Clock),
			logger:  config.Logger,
		},
	}
}

// Configured reports whether an API key was supplied.
func (c *TokenMetricsClient) Configured() bool {
	return c.configured
}

// Request fetches endpoint with params, serving from cache when possible.
// Cache hits do not consume quota.
func (c *TokenMetricsClient) Request(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	if !c.configured {
		return nil, NewNotConfiguredError(TokenMetricsProvider, "TOKENMETRICS_API_KEY is required for real API calls")
	}
	payload, _, err := c.core.request(ctx, endpoint, params)
	return payload, err
}

// RateLimitInfo reports quota usage.
func (c *TokenMetricsClient) RateLimitInfo() RateLimitInfo {
	return c.core.limiter.Info()
}

// ClearCache drops every cached response.
func (c *TokenMetricsClient) ClearCache() {
	c.core.cache.Clear()
}

// MaskAPIKey masks sensitive API key for logging
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}
