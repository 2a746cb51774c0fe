package adapters

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL and window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// countingServer is an upstream double that counts every request it serves.
type countingServer struct {
	*httptest.Server
	hits    atomic.Int64
	status  atomic.Int64
	lastReq atomic.Pointer[http.Request]
}

func newCountingServer(t *testing.T, body string) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.status.Store(http.StatusOK)
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		cs.lastReq.Store(r.Clone(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(cs.status.Load()))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}
