package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rajchodisetti/crypto-dashboard/internal/observ"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// WSConfig configures a WSClient.
type WSConfig struct {
	URL       string
	Header    http.Header
	Reconnect ReconnectConfig // zero fields take the defaults; MaxAttempts < 0 disables reconnection

	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
	Logger           *zap.Logger
}

// Handler receives messages for a subscribed topic.
type Handler func(Message)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	client  *WSClient
	topic   string
	handler Handler
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes this subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.client.Unsubscribe(s)
}

type stopper interface {
	Stop() bool
}

// WSClient keeps one outbound WebSocket connection to a feed, reconnects
// after unexpected closes with a fixed delay up to a bounded number of
// attempts, and fans inbound messages out to topic subscribers.
type WSClient struct {
	url              string
	header           http.Header
	dialer           *websocket.Dialer
	reconnect        ReconnectConfig
	handshakeTimeout time.Duration
	logger           *zap.Logger

	state atomic.Int32 // ConnectionState

	mu        sync.Mutex
	conn      *websocket.Conn
	attempts  int
	scheduled int // reconnect timers created since construction
	timer     stopper
	stopped   bool
	subs      map[string][]*Subscription

	writeMu sync.Mutex

	afterFunc func(time.Duration, func()) stopper
}

// NewWSClient creates a disconnected client.
func NewWSClient(config WSConfig) *WSClient {
	if config.Reconnect.Delay <= 0 {
		config.Reconnect.Delay = DefaultReconnectDelay
	}
	switch {
	case config.Reconnect.MaxAttempts == 0:
		config.Reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	case config.Reconnect.MaxAttempts < 0:
		config.Reconnect.MaxAttempts = 0
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.Dialer == nil {
		config.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	c := &WSClient{
		url:              config.URL,
		header:           config.Header,
		dialer:           config.Dialer,
		reconnect:        config.Reconnect,
		handshakeTimeout: config.HandshakeTimeout,
		logger:           config.Logger.With(zap.String("url", config.URL)),
		subs:             make(map[string][]*Subscription),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Connect dials the feed and returns once the connection is open or the
// dial fails. A failed initial dial is returned to the caller and does not
// start the reconnect policy.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
	return c.dial(ctx)
}

func (c *WSClient) dial(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return errors.WithMessagef(err, "websocket: dial %s", c.url)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.state.Store(int32(StateDisconnected))
		_ = conn.Close()
		return errors.New("websocket: disconnected while connecting")
	}
	previous := c.conn
	c.conn = conn
	c.attempts = 0
	c.state.Store(int32(StateConnected))
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	observ.SetWSConnected(true)
	c.logger.Info("websocket connected")

	go c.readLoop(conn)
	return nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		msg, err := parseMessage(frame)
		if err != nil {
			observ.WSMalformedMessages.Inc()
			c.logger.Warn("dropping unparseable websocket message", zap.Error(err), zap.Int("bytes", len(frame)))
			continue
		}
		observ.WSMessages.WithLabelValues(msg.Type).Inc()
		c.dispatch(msg)
	}
}

// handleClose runs when conn's read side fails. Closes of a replaced or
// deliberately disconnected connection are ignored.
func (c *WSClient) handleClose(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
	if !c.stopped {
		c.logger.Info("websocket disconnected", zap.Error(cause))
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	observ.SetWSConnected(false)
	_ = conn.Close()
}

func (c *WSClient) scheduleReconnectLocked() {
	if c.attempts >= c.reconnect.MaxAttempts {
		c.logger.Error("max reconnection attempts reached", zap.Int("attempts", c.attempts))
		return
	}
	c.attempts++
	c.scheduled++
	attempt := c.attempts
	observ.WSReconnectAttempts.Inc()
	c.timer = c.afterFunc(c.reconnect.Delay, func() {
		c.reconnectAttempt(attempt)
	})
}

func (c *WSClient) reconnectAttempt(attempt int) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.logger.Info("attempting to reconnect",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", c.reconnect.MaxAttempts))

	ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout)
	defer cancel()

	if err := c.dial(ctx); err != nil {
		c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		c.mu.Lock()
		if !c.stopped {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
	}
}

func (c *WSClient) dispatch(msg Message) {
	c.mu.Lock()
	var handlers []Handler
	if msg.Type != "" && msg.Type != Wildcard {
		for _, s := range c.subs[msg.Type] {
			handlers = append(handlers, s.handler)
		}
	}
	for _, s := range c.subs[Wildcard] {
		handlers = append(handlers, s.handler)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Subscribe registers handler for messages whose type equals topic.
// Handlers on Wildcard receive every message. Handlers of a topic run in
// registration order.
func (c *WSClient) Subscribe(topic string, handler Handler) *Subscription {
	sub := &Subscription{client: c, topic: topic, handler: handler}
	c.mu.Lock()
	c.subs[topic] = append(c.subs[topic], sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes sub from its topic; absent subscriptions are ignored.
func (c *WSClient) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			c.subs[sub.topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.topic]) == 0 {
		delete(c.subs, sub.topic)
	}
}

// Send encodes v as JSON and writes it when connected. While disconnected
// the message is dropped with a warning and Send returns nil.
func (c *WSClient) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.IsConnected() {
		c.logger.Warn("websocket is not connected, dropping outbound message")
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return errors.WithMessage(err, "websocket: encode message")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.WithMessage(err, "websocket: write message")
	}
	return nil
}

// Disconnect closes the connection, drops all subscriptions and cancels any
// pending reconnect.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.attempts = 0
	c.subs = make(map[string][]*Subscription)
	c.state.Store(int32(StateDisconnected))
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
		c.logger.Info("websocket closed by client")
	}
	observ.SetWSConnected(false)
}

// IsConnected reports whether the connection is open.
func (c *WSClient) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *WSClient) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// ReconnectAttempts returns the attempt counter; it resets on a successful connect.
func (c *WSClient) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
