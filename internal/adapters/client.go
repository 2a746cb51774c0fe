package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 512

// CacheStatus tells whether a payload came from the response cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

// providerClient is the request path shared by both provider wrappers:
// cache lookup, optional admission check, GET, record, cache write.
type providerClient struct {
	name       string
	baseURL    string
	header     http.Header
	httpClient *http.Client
	cache      *ResponseCache[json.RawMessage]
	limiter    *RequestLimiter // nil disables quota enforcement
	logger     *zap.Logger
}

func (c *providerClient) request(ctx context.Context, endpoint string, params Params) (json.RawMessage, CacheStatus, error) {
	key := CacheKey(endpoint, params)
	if payload, ok := c.cache.Get(key); ok {
		observ.RecordCacheLookup(c.name, true)
		c.logger.Debug("cache hit", zap.String("provider", c.name), zap.String("key", key))
		return payload, CacheHit, nil
	}
	observ.RecordCacheLookup(c.name, false)

	if c.limiter != nil {
		if adm := c.limiter.CheckAdmission(); !adm.Allowed {
			observ.RateLimitRejections.WithLabelValues(string(adm.Reason)).Inc()
			c.logger.Warn("request blocked by rate limiter",
				zap.String("provider", c.name),
				zap.String("endpoint", endpoint),
				zap.String("reason", adm.Message))
			return nil, CacheMiss, NewRateLimitError(c.name, adm.Reason, adm.Message)
		}
	}

	req, err := c.newRequest(ctx, endpoint, params)
	if err != nil {
		return nil, CacheMiss, NewTransportError(c.name, 0, "build request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	// The attempt counts against quota whatever the network outcome.
	if c.limiter != nil {
		c.limiter.RecordRequest()
	}
	if err != nil {
		observ.RecordProviderRequest(c.name, "transport_error", time.Since(start))
		c.logger.Warn("provider request failed",
			zap.String("provider", c.name),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, CacheMiss, NewTransportError(c.name, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observ.RecordProviderRequest(c.name, "transport_error", time.Since(start))
		return nil, CacheMiss, NewTransportError(c.name, resp.StatusCode, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observ.RecordProviderRequest(c.name, "transport_error", time.Since(start))
		msg := http.StatusText(resp.StatusCode)
		if excerpt := strings.TrimSpace(truncate(string(body), maxErrorBody)); excerpt != "" {
			msg = fmt.Sprintf("%s: %s", msg, excerpt)
		}
		c.logger.Warn("provider returned error status",
			zap.String("provider", c.name),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, CacheMiss, NewTransportError(c.name, resp.StatusCode, msg, nil)
	}

	if !json.Valid(body) {
		observ.RecordProviderRequest(c.name, "transport_error", time.Since(start))
		return nil, CacheMiss, NewTransportError(c.name, resp.StatusCode, "response is not valid JSON", nil)
	}

	observ.RecordProviderRequest(c.name, "success", time.Since(start))
	payload := json.RawMessage(body)
	c.cache.Put(key, payload)
	c.logger.Debug("cache miss, stored response",
		zap.String("provider", c.name),
		zap.String("key", key),
		zap.Duration("latency", time.Since(start)))

	return payload, CacheMiss, nil
}

func (c *providerClient) newRequest(ctx context.Context, endpoint string, params Params) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for k, v := range params.Values() {
		q[k] = v
	}
	req.URL.RawQuery = q.Encode()

	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func httpClientWithTimeout(client *http.Client, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		return &http.Client{Timeout: timeout}
	}
	clone := *client
	clone.Timeout = timeout
	return &clone
}
