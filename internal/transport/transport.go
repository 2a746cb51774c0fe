package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// Wildcard subscribers receive every inbound message regardless of type.
const Wildcard = "*"

// Reconnect policy defaults.
const (
	DefaultReconnectDelay       = 3000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
)

// ErrMalformedMessage marks an inbound frame that is not a JSON object.
// It is logged and dropped, never delivered to subscribers.
var ErrMalformedMessage = errors.New("malformed websocket message")

// Message is one inbound feed message. Type routes it to subscribers; Data
// holds the decoded object and Raw the original frame.
type Message struct {
	Type string          `json:"type"`
	Data map[string]any  `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

// Decode unmarshals the raw frame into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

func parseMessage(frame []byte) (Message, error) {
	var data map[string]any
	if err := json.Unmarshal(frame, &data); err != nil || data == nil {
		return Message{}, ErrMalformedMessage
	}
	msgType, _ := data["type"].(string)
	return Message{Type: msgType, Data: data, Raw: append(json.RawMessage(nil), frame...)}, nil
}

// ConnectionState represents the current state of a transport connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota // 0 = down
	StateConnecting                          // 1 = connecting
	StateConnected                           // 2 = up
)

// String returns human-readable connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ReconnectConfig controls automatic reconnection after an unexpected close.
type ReconnectConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}
