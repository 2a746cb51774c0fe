package adapters

import (
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"
)

// Default TTL bounds for cached provider responses.
const (
	DefaultCacheTTLMin = 60 * time.Second
	DefaultCacheTTLMax = 120 * time.Second
)

// Params are the query parameters of a provider request.
type Params map[string]any

// Values renders params as url.Values. Values are formatted with fmt.Sprint.
func (p Params) Values() url.Values {
	vals := make(url.Values, len(p))
	for k, v := range p {
		vals.Set(k, fmt.Sprint(v))
	}
	return vals
}

// CacheKey derives a deterministic key from an endpoint and its params.
// url.Values.Encode sorts by key, so parameter order never matters.
func CacheKey(endpoint string, params Params) string {
	q := params.Values().Encode()
	if q == "" {
		return endpoint
	}
	return endpoint + "?" + q
}

// CacheConfig configures a ResponseCache.
type CacheConfig struct {
	TTLMin time.Duration
	TTLMax time.Duration
	Clock  func() time.Time
	Rand   *rand.Rand
}

// ResponseCache stores payloads with a TTL sampled per insertion from
// [TTLMin, TTLMax]. Expired entries are evicted lazily on read; there is no
// background sweep and no size bound.
type ResponseCache[V any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	ttlMin  time.Duration
	ttlMax  time.Duration
	clock   func() time.Time
	rnd     *rand.Rand
}

type cacheEntry[V any] struct {
	payload   V
	createdAt time.Time
	expiresAt time.Time
}

// NewResponseCache creates a cache, defaulting unset fields.
func NewResponseCache[V any](cfg CacheConfig) *ResponseCache[V] {
	if cfg.TTLMin <= 0 {
		cfg.TTLMin = DefaultCacheTTLMin
	}
	if cfg.TTLMax < cfg.TTLMin {
		cfg.TTLMax = cfg.TTLMin
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &ResponseCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttlMin:  cfg.TTLMin,
		ttlMax:  cfg.TTLMax,
		clock:   cfg.Clock,
		rnd:     cfg.Rand,
	}
}

// Get returns the payload for key if present and not expired.
func (c *ResponseCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.clock().After(entry.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return entry.payload, true
}

// Put stores payload under key with a freshly sampled TTL, replacing any
// existing entry.
func (c *ResponseCache[V]) Put(key string, payload V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.entries[key] = cacheEntry[V]{
		payload:   payload,
		createdAt: now,
		expiresAt: now.Add(c.sampleTTL()),
	}
}

// Clear drops every entry.
func (c *ResponseCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[V])
}

// Len reports the number of stored entries, expired ones included.
func (c *ResponseCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sampleTTL must be called with mu held; rand.Rand is not safe for concurrent use.
func (c *ResponseCache[V]) sampleTTL() time.Duration {
	span := c.ttlMax - c.ttlMin
	if span <= 0 {
		return c.ttlMin
	}
	return c.ttlMin + time.Duration(c.rnd.Int63n(int64(span)+1))
}
