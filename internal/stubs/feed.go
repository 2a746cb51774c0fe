package stubs

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientBuffer = 100

// FeedServer is a WebSocket price feed. Each client first receives a
// snapshot event, then every broadcast event; idle connections get pings.
type FeedServer struct {
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	logger    *zap.Logger
	clock     func() time.Time

	clientsMu sync.RWMutex
	clients   map[string]chan FeedEvent

	pricesMu sync.Mutex
	prices   map[string]float64
	rnd      *rand.Rand
}

// FeedConfig configures a FeedServer.
type FeedConfig struct {
	Prices    map[string]float64 // symbol -> starting price
	Heartbeat time.Duration
	Logger    *zap.Logger
	Clock     func() time.Time
	Rand      *rand.Rand
}

func NewFeedServer(config FeedConfig) *FeedServer {
	if config.Heartbeat <= 0 {
		config.Heartbeat = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewSource(config.Clock().UnixNano()))
	}
	prices := make(map[string]float64, len(config.Prices))
	for k, v := range config.Prices {
		prices[k] = v
	}

	return &FeedServer{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		heartbeat: config.Heartbeat,
		logger:    config.Logger,
		clock:     config.Clock,
		clients:   make(map[string]chan FeedEvent),
		prices:    prices,
		rnd:       config.Rand,
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (s *FeedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	events := make(chan FeedEvent, clientBuffer)

	s.clientsMu.Lock()
	s.clients[clientID] = events
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientID)
		s.clientsMu.Unlock()
		s.logger.Info("feed client disconnected", zap.String("client_id", clientID))
	}()
	s.logger.Info("feed client connected", zap.String("client_id", clientID))

	// The read side only drains control frames and notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.event("snapshot", s.Snapshot())); err != nil {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("feed write failed", zap.String("client_id", clientID), zap.Error(err))
				return
			}
		}
	}
}

// Broadcast queues ev for every client. Slow clients whose buffer is full
// miss the event.
func (s *FeedServer) Broadcast(ev FeedEvent) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for id, ch := range s.clients {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("feed client buffer full, dropping event", zap.String("client_id", id))
		}
	}
}

// Clients returns the number of connected clients.
func (s *FeedServer) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Snapshot returns the current price of every symbol, sorted by symbol.
func (s *FeedServer) Snapshot() []PriceTick {
	s.pricesMu.Lock()
	defer s.pricesMu.Unlock()

	ticks := make([]PriceTick, 0, len(s.prices))
	for sym, p := range s.prices {
		ticks = append(ticks, PriceTick{Symbol: sym, Price: p})
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })
	return ticks
}

// Tick moves every price by up to 0.5% and broadcasts one price event per symbol.
func (s *FeedServer) Tick() {
	s.pricesMu.Lock()
	ticks := make([]PriceTick, 0, len(s.prices))
	for sym, p := range s.prices {
		move := (s.rnd.Float64() - 0.5) * 0.01
		next := math.Round(p*(1+move)*100) / 100
		s.prices[sym] = next
		ticks = append(ticks, PriceTick{Symbol: sym, Price: next, ChangePercent24h: math.Round(move*10000) / 100})
	}
	s.pricesMu.Unlock()

	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })
	for _, t := range ticks {
		s.Broadcast(s.event("price", t))
	}
}

// Run ticks every interval until ctx is done.
func (s *FeedServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *FeedServer) event(kind string, data any) FeedEvent {
	return FeedEvent{
		Type:  kind,
		ID:    uuid.NewString(),
		TsUTC: s.clock().UTC().Format(time.RFC3339),
		Data:  data,
		V:     1,
	}
}
