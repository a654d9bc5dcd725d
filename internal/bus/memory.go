// Package bus provides an in-process publish/subscribe bus with the same
// delivery guarantees as the network buses: ordered per publisher and
// subscriber pair, at-most-once, nothing retained for absent subscribers.
package bus

import (
	"errors"
	"sync"

	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// ErrClosed is returned by operations on a closed or disconnected client.
var ErrClosed = errors.New("bus client closed")

// Compile-time interface check.
var _ signaling.Bus = (*Client)(nil)

// Memory is the hub shared by every Client obtained from Connect.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[*Client]*subscription
}

// NewMemory returns an empty hub.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*Client]*subscription)}
}

// Connect attaches a new client to the hub.
func (m *Memory) Connect() *Client {
	return &Client{hub: m}
}

// Subscribers returns how many clients are subscribed to topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}

func (m *Memory) publish(topic string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs[topic] {
		sub.deliver(append([]byte(nil), body...))
	}
}

func (m *Memory) subscribe(c *Client, topic string, fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[topic] == nil {
		m.subs[topic] = make(map[*Client]*subscription)
	}
	if old := m.subs[topic][c]; old != nil {
		old.serial.Close()
	}
	m.subs[topic][c] = &subscription{fn: fn, serial: util.NewSerial()}
}

func (m *Memory) unsubscribe(c *Client, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub := m.subs[topic][c]; sub != nil {
		sub.serial.Close()
		delete(m.subs[topic], c)
		if len(m.subs[topic]) == 0 {
			delete(m.subs, topic)
		}
	}
}

func (m *Memory) drop(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic, clients := range m.subs {
		if sub := clients[c]; sub != nil {
			sub.serial.Close()
			delete(clients, c)
		}
		if len(clients) == 0 {
			delete(m.subs, topic)
		}
	}
}

// subscription delivers to one handler in publish order.
type subscription struct {
	fn     func([]byte)
	serial *util.Serial
}

func (s *subscription) deliver(body []byte) {
	s.serial.Do(func() { s.fn(body) })
}

// Client is one connection to a Memory hub.
type Client struct {
	hub *Memory

	mu           sync.Mutex
	closed       bool
	onDisconnect []func()
}

// Publish delivers body to every current subscriber of topic.
func (c *Client) Publish(topic string, body []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.hub.publish(topic, body)
	return nil
}

// Subscribe replaces any previous handler of this client for topic.
func (c *Client) Subscribe(topic string, fn func(body []byte)) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.hub.subscribe(c, topic, fn)
	return nil
}

// Unsubscribe stops delivery on topic.
func (c *Client) Unsubscribe(topic string) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.hub.unsubscribe(c, topic)
	return nil
}

// OnDisconnect registers fn to run when the client loses its connection.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Disconnect simulates a transport loss: subscriptions are dropped and the
// disconnect handlers run.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handlers := c.onDisconnect
	c.mu.Unlock()

	c.hub.drop(c)
	for _, fn := range handlers {
		fn()
	}
}

// Close detaches the client without running disconnect handlers.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.drop(c)
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
