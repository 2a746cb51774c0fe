package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type TokenMetrics struct {
	APIKey               string `yaml:"api_key"`
	BaseURL              string `yaml:"base_url"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute"`
	MaxMonthlyCalls      int    `yaml:"max_monthly_calls"`
}

type CoinGecko struct {
	BaseURL string `yaml:"base_url"`
}

type Cache struct {
	TTLMinSeconds int `yaml:"ttl_min_seconds"`
	TTLMaxSeconds int `yaml:"ttl_max_seconds"`
}

type HTTP struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

type WebSocket struct {
	URL                  string `yaml:"url"` // empty disables the price feed
	ReconnectDelayMs     int    `yaml:"reconnect_delay_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
}

type Server struct {
	Addr         string  `yaml:"addr"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	Burst        int     `yaml:"burst"`
	ReadTimeoutS int     `yaml:"read_timeout_seconds"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type Root struct {
	TokenMetrics TokenMetrics `yaml:"tokenmetrics"`
	CoinGecko    CoinGecko    `yaml:"coingecko"`
	Cache        Cache        `yaml:"cache"`
	HTTP         HTTP         `yaml:"http"`
	WebSocket    WebSocket    `yaml:"websocket"`
	Server       Server       `yaml:"server"`
	Logging      Logging      `yaml:"logging"`
}

// Default returns a configuration with every default applied and the
// environment overrides read.
func Default() Root {
	var c Root
	c.applyDefaults()
	c.applyEnv(os.LookupEnv)
	return c
}

// Load reads a YAML file. An empty path yields Default().
func Load(path string) (Root, error) {
	if path == "" {
		return Default(), nil
	}

	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, errors.WithMessagef(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, errors.WithMessagef(err, "parse config %s", path)
	}
	c.applyDefaults()
	c.applyEnv(os.LookupEnv)
	return c, nil
}

func (c *Root) applyDefaults() {
	if c.TokenMetrics.BaseURL == "" {
		c.TokenMetrics.BaseURL = "https://api.tokenmetrics.com/v2"
	}
	if c.TokenMetrics.MaxRequestsPerMinute == 0 {
		c.TokenMetrics.MaxRequestsPerMinute = 20
	}
	if c.TokenMetrics.MaxMonthlyCalls == 0 {
		c.TokenMetrics.MaxMonthlyCalls = 500
	}
	if c.CoinGecko.BaseURL == "" {
		c.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}

	if c.Cache.TTLMinSeconds == 0 {
		c.Cache.TTLMinSeconds = 60
	}
	if c.Cache.TTLMaxSeconds == 0 {
		c.Cache.TTLMaxSeconds = 120
	}
	if c.HTTP.TimeoutMs == 0 {
		c.HTTP.TimeoutMs = 10000
	}

	if c.WebSocket.ReconnectDelayMs == 0 {
		c.WebSocket.ReconnectDelayMs = 3000
	}
	if c.WebSocket.MaxReconnectAttempts == 0 {
		c.WebSocket.MaxReconnectAttempts = 5
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RatePerSec == 0 {
		c.Server.RatePerSec = 10
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 20
	}
	if c.Server.ReadTimeoutS == 0 {
		c.Server.ReadTimeoutS = 15
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// applyEnv lets the provider environment variables win over the file.
func (c *Root) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TOKENMETRICS_API_KEY"); ok && v != "" {
		c.TokenMetrics.APIKey = v
	}
	if v, ok := lookup("TOKENMETRICS_API_URL"); ok && v != "" {
		c.TokenMetrics.BaseURL = v
	}
	if v, ok := lookup("COINGECKO_API_URL"); ok && v != "" {
		c.CoinGecko.BaseURL = v
	}
	if v, ok := lookup("WS_URL"); ok && v != "" {
		c.WebSocket.URL = v
	}
}

// Validate rejects configurations the clients cannot honour.
func (c Root) Validate() error {
	switch {
	case c.Cache.TTLMinSeconds < 0 || c.Cache.TTLMaxSeconds < 0:
		return errors.New("cache ttl must not be negative")
	case c.Cache.TTLMinSeconds > c.Cache.TTLMaxSeconds:
		return errors.Errorf("cache ttl_min_seconds (%d) exceeds ttl_max_seconds (%d)",
			c.Cache.TTLMinSeconds, c.Cache.TTLMaxSeconds)
	case c.TokenMetrics.MaxRequestsPerMinute < 0:
		return errors.New("tokenmetrics max_requests_per_minute must be positive")
	case c.TokenMetrics.MaxMonthlyCalls < 0:
		return errors.New("tokenmetrics max_monthly_calls must be positive")
	case c.Server.RatePerSec < 0 || c.Server.Burst < 0:
		return errors.New("server rate limit must be positive")
	case c.WebSocket.MaxReconnectAttempts < -1:
		return errors.New("websocket max_reconnect_attempts must be -1 (disabled) or positive")
	}
	return nil
}

func (c Cache) TTLMin() time.Duration { return time.Duration(c.TTLMinSeconds) * time.Second }
func (c Cache) TTLMax() time.Duration { return time.Duration(c.TTLMaxSeconds) * time.Second }

func (h HTTP) Timeout() time.Duration { return time.Duration(h.TimeoutMs) * time.Millisecond }

func (w WebSocket) ReconnectDelay() time.Duration {
	return time.Duration(w.ReconnectDelayMs) * time.Millisecond
}
