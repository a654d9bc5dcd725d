// Package relay implements the websocket publish/subscribe bus: a hub that
// fans frames out to topic subscribers and keeps the presence list, and a
// reconnecting client satisfying signaling.Bus.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("relay client closed")

	// ErrDisconnected is returned by Publish while the client is reconnecting.
	// The message is dropped.
	ErrDisconnected = errors.New("relay client disconnected")

	// ErrQueueFull is returned when the outbound queue cannot take a frame.
	ErrQueueFull = errors.New("relay send queue full")
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Keepalive timing. Vars so tests can shorten them.
var (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Op is the kind of a relay frame.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"
	OpMessage     Op = "message" // hub -> client delivery
)

// Frame is the single message shape exchanged over the relay websocket.
type Frame struct {
	Op    Op     `json:"op"`
	Topic string `json:"topic"`
	Body  string `json:"body,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Op {
	case OpSubscribe, OpUnsubscribe, OpPublish, OpMessage:
	default:
		return Frame{}, fmt.Errorf("decode frame: unknown op %q", f.Op)
	}
	if f.Topic == "" {
		return Frame{}, errors.New("decode frame: missing topic")
	}
	return f, nil
}
