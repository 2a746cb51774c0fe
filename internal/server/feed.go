package server

import (
	"sync"
	"time"

	"github.com/Rajchodisetti/crypto-dashboard/internal/transport"
)

// FeedStatus is the payload of /api/ws/status.
type FeedStatus struct {
	Enabled           bool   `json:"enabled"`
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	Messages          int64  `json:"messages"`
	LastType          string `json:"lastType,omitempty"`
	LastUpdate        string `json:"lastUpdate,omitempty"`
}

// FeedMonitor watches a WSClient through a wildcard subscription and keeps
// the last update for status reporting.
type FeedMonitor struct {
	client *transport.WSClient
	clock  func() time.Time

	mu         sync.Mutex
	messages   int64
	lastType   string
	lastUpdate time.Time
}

func NewFeedMonitor(client *transport.WSClient, clock func() time.Time) *FeedMonitor {
	if clock == nil {
		clock = time.Now
	}
	m := &FeedMonitor{client: client, clock: clock}
	client.Subscribe(transport.Wildcard, m.observe)
	return m
}

func (m *FeedMonitor) observe(msg transport.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages++
	m.lastType = msg.Type
	m.lastUpdate = m.clock()
}

// Status snapshots the feed. A nil monitor reports a disabled feed.
func (m *FeedMonitor) Status() FeedStatus {
	if m == nil {
		return FeedStatus{State: transport.StateDisconnected.String()}
	}

	m.mu.Lock()
	st := FeedStatus{
		Enabled:  true,
		Messages: m.messages,
		LastType: m.lastType,
	}
	if !m.lastUpdate.IsZero() {
		st.LastUpdate = m.lastUpdate.UTC().Format(time.RFC3339Nano)
	}
	m.mu.Unlock()

	st.State = m.client.State().String()
	st.Connected = m.client.IsConnected()
	st.ReconnectAttempts = m.client.ReconnectAttempts()
	return st
}
