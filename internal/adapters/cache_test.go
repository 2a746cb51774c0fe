package adapters

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_CanonicalParamOrder(t *testing.T) {
	a := CacheKey("/tokens", Params{"limit": 10, "symbol": "BTC", "page": 1})
	b := CacheKey("/tokens", Params{"page": 1, "symbol": "BTC", "limit": 10})

	assert.Equal(t, a, b)
	assert.Equal(t, "/tokens?limit=10&page=1&symbol=BTC", a)
	assert.Equal(t, "/tokens", CacheKey("/tokens", nil))
	assert.NotEqual(t, a, CacheKey("/indices", Params{"limit": 10, "symbol": "BTC", "page": 1}))
}

func TestResponseCache_RoundTrip(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cache := NewResponseCache[string](CacheConfig{Clock: clock.Now, Rand: rand.New(rand.NewSource(1))})

	cache.Put("k", "v1")
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	cache.Put("k", "v2")
	got, ok = cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestResponseCache_LazyEvictionAfterExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cache := NewResponseCache[string](CacheConfig{Clock: clock.Now, Rand: rand.New(rand.NewSource(7))})

	cache.Put("k", "v")
	expiresAt := cache.entries["k"].expiresAt

	// Exactly at expiresAt the entry is still live.
	clock.Set(expiresAt)
	_, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())

	clock.Set(expiresAt.Add(time.Nanosecond))
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "expired entry should be evicted on read")
}

func TestResponseCache_TTLWithinBoundsAndResampled(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cache := NewResponseCache[int](CacheConfig{
		TTLMin: 60 * time.Second,
		TTLMax: 120 * time.Second,
		Clock:  clock.Now,
		Rand:   rand.New(rand.NewSource(42)),
	})

	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		cache.Put("same-key", i)
		entry := cache.entries["same-key"]
		ttl := entry.expiresAt.Sub(entry.createdAt)

		assert.GreaterOrEqual(t, ttl, 60*time.Second)
		assert.LessOrEqual(t, ttl, 120*time.Second)
		seen[ttl] = true
	}
	assert.Greater(t, len(seen), 1, "TTL should be sampled independently on each put")
}

func TestResponseCache_FixedTTLWhenBoundsEqual(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cache := NewResponseCache[int](CacheConfig{TTLMin: 5 * time.Second, TTLMax: 5 * time.Second, Clock: clock.Now})

	cache.Put("k", 1)
	entry := cache.entries["k"]
	assert.Equal(t, 5*time.Second, entry.expiresAt.Sub(entry.createdAt))
}

func TestResponseCache_Clear(t *testing.T) {
	cache := NewResponseCache[int](CacheConfig{})
	cache.Put("a", 1)
	cache.Put("b", 2)
	require.Equal(t, 2, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok)
}
