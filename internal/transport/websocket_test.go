package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer accepts WebSocket upgrades and hands each server-side
// connection to the test. Frames sent by the client land in received.
type feedServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{
		conns:    make(chan *websocket.Conn, 16),
		received: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				_, frame, err := conn.ReadMessage()
				if err != nil {
					return
				}
				fs.received <- frame
			}
		}()
		fs.conns <- conn
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *feedServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection accepted")
		return nil
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string) Handler {
	return func(msg Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name+":"+msg.Type)
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func connectClient(t *testing.T, fs *feedServer, reconnect ReconnectConfig) (*WSClient, *websocket.Conn) {
	t.Helper()
	client := NewWSClient(WSConfig{URL: fs.wsURL(), Reconnect: reconnect})
	t.Cleanup(client.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	return client, fs.nextConn(t)
}

func scheduledTimers(c *WSClient) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduled
}

func TestWSClient_ConnectSetsState(t *testing.T) {
	fs := newFeedServer(t)
	client := NewWSClient(WSConfig{URL: fs.wsURL()})
	t.Cleanup(client.Disconnect)

	assert.Equal(t, StateDisconnected, client.State())
	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())
	assert.Equal(t, "connected", client.State().String())
	assert.Equal(t, 0, client.ReconnectAttempts())
}

func TestWSClient_InitialDialFailureDoesNotReconnect(t *testing.T) {
	fs := newFeedServer(t)
	url := fs.wsURL()
	fs.Close()

	client := NewWSClient(WSConfig{URL: url, Reconnect: ReconnectConfig{Delay: time.Millisecond}})
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket: dial")
	assert.Equal(t, StateDisconnected, client.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, scheduledTimers(client))
}

func TestWSClient_DispatchTypedThenWildcard(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{})

	rec := &recorder{}
	client.Subscribe(Wildcard, rec.handler("all"))
	client.Subscribe("price", rec.handler("first"))
	client.Subscribe("price", rec.handler("second"))

	writeJSON(t, server, map[string]any{"type": "price", "symbol": "BTC", "price": 42000.5})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first:price", "second:price", "all:price"}, rec.snapshot())

	writeJSON(t, server, map[string]any{"type": "volume"})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "all:volume", rec.snapshot()[3])
}

func TestWSClient_MessagePayloadIsDecodable(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{})

	got := make(chan Message, 1)
	client.Subscribe("price", func(msg Message) { got <- msg })
	writeJSON(t, server, map[string]any{"type": "price", "symbol": "ETH", "price": 3100.25})

	select {
	case msg := <-got:
		assert.Equal(t, "ETH", msg.Data["symbol"])
		var tick struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
		}
		require.NoError(t, msg.Decode(&tick))
		assert.Equal(t, 3100.25, tick.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWSClient_MalformedMessageIsDropped(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{})

	rec := &recorder{}
	client.Subscribe(Wildcard, rec.handler("all"))

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`["array"]`)))
	writeJSON(t, server, map[string]any{"type": "price"})

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"all:price"}, rec.snapshot())
	assert.True(t, client.IsConnected())
}

func TestWSClient_Unsubscribe(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{})

	rec := &recorder{}
	sub := client.Subscribe("price", rec.handler("gone"))
	client.Subscribe(Wildcard, rec.handler("all"))
	sub.Unsubscribe()
	sub.Unsubscribe()
	client.Unsubscribe(nil)

	writeJSON(t, server, map[string]any{"type": "price"})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"all:price"}, rec.snapshot())
}

func TestWSClient_Send(t *testing.T) {
	fs := newFeedServer(t)
	client, _ := connectClient(t, fs, ReconnectConfig{})

	require.NoError(t, client.Send(map[string]any{"type": "subscribe", "channel": "prices"}))

	select {
	case frame := <-fs.received:
		var got map[string]any
		require.NoError(t, json.Unmarshal(frame, &got))
		assert.Equal(t, "subscribe", got["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}
}

func TestWSClient_SendWhileDisconnectedIsNoop(t *testing.T) {
	client := NewWSClient(WSConfig{URL: "ws://127.0.0.1:1"})
	assert.NoError(t, client.Send(map[string]any{"type": "ping"}))
}

func TestWSClient_ReconnectBoundedAttempts(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{Delay: 5 * time.Millisecond, MaxAttempts: 5})

	// Stop accepting, then drop the live connection so every reconnect fails.
	fs.Close()
	require.NoError(t, server.Close())

	require.Eventually(t, func() bool {
		return client.ReconnectAttempts() == 5
	}, 3*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 5, scheduledTimers(client))
	assert.Equal(t, 5, client.ReconnectAttempts())
	assert.Equal(t, StateDisconnected, client.State())
}

func TestWSClient_ReconnectResetsAttemptsOnSuccess(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{Delay: 5 * time.Millisecond, MaxAttempts: 5})

	rec := &recorder{}
	client.Subscribe("price", rec.handler("p"))

	require.NoError(t, server.Close())
	replacement := fs.nextConn(t)

	require.Eventually(t, client.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, client.ReconnectAttempts())
	assert.Equal(t, 1, scheduledTimers(client))

	// Subscriptions survive a reconnect.
	writeJSON(t, replacement, map[string]any{"type": "price"})
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWSClient_DisconnectSuppressesReconnect(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{Delay: 5 * time.Millisecond})

	rec := &recorder{}
	client.Subscribe(Wildcard, rec.handler("all"))
	client.Disconnect()

	assert.False(t, client.IsConnected())
	_ = server.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, scheduledTimers(client))
	assert.Empty(t, rec.snapshot())

	select {
	case <-fs.conns:
		t.Fatal("client reconnected after Disconnect")
	default:
	}
}

func TestWSClient_DisconnectCancelsPendingTimer(t *testing.T) {
	fs := newFeedServer(t)
	client, server := connectClient(t, fs, ReconnectConfig{Delay: time.Hour})

	require.NoError(t, server.Close())
	require.Eventually(t, func() bool { return scheduledTimers(client) == 1 }, 2*time.Second, 5*time.Millisecond)

	client.Disconnect()
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Nil(t, client.timer)
	assert.True(t, client.stopped)
}

func TestNewWSClient_Defaults(t *testing.T) {
	c := NewWSClient(WSConfig{URL: "ws://example.invalid"})
	assert.Equal(t, DefaultReconnectDelay, c.reconnect.Delay)
	assert.Equal(t, DefaultMaxReconnectAttempts, c.reconnect.MaxAttempts)

	disabled := NewWSClient(WSConfig{URL: "ws://example.invalid", Reconnect: ReconnectConfig{MaxAttempts: -1}})
	assert.Equal(t, 0, disabled.reconnect.MaxAttempts)
}

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage([]byte(`{"type":"price","v":1}`))
	require.NoError(t, err)
	assert.Equal(t, "price", msg.Type)
	assert.Equal(t, float64(1), msg.Data["v"])

	msg, err = parseMessage([]byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Empty(t, msg.Type)

	for _, frame := range []string{"", "null", "42", `"x"`, "[1]", "{broken"} {
		_, err := parseMessage([]byte(frame))
		assert.ErrorIs(t, err, ErrMalformedMessage, frame)
	}
}
