package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// Compile-time interface check.
var _ signaling.Bus = (*Client)(nil)

// Client is a signaling.Bus over a relay hub. It reconnects after a fixed
// delay, re-subscribes every active topic and replays the last JOIN. Nothing
// published while disconnected is queued for later.
type Client struct {
	url    string
	delay  time.Duration
	dialer websocket.Dialer

	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan []byte
	closedCh chan struct{}

	mu           sync.Mutex
	conn         *websocket.Conn
	closed       bool
	handlers     map[string]func([]byte)
	join         []byte
	onDisconnect []func()
}

// Dial connects to the hub at url. The first connection attempt is made
// synchronously; later ones happen in the background every delay.
func Dial(ctx context.Context, url string, delay time.Duration) (*Client, error) {
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:      url,
		delay:    delay,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ctx:      cctx,
		cancel:   cancel,
		sendCh:   make(chan []byte, sendBufferSize),
		closedCh: make(chan struct{}),
		handlers: make(map[string]func([]byte)),
	}

	conn, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.runLoop(conn)
	return c, nil
}

// ---------------------------------------------------------------------------
// signaling.Bus
// ---------------------------------------------------------------------------

// Publish sends body to topic. It fails with ErrDisconnected while the
// connection is down.
func (c *Client) Publish(topic string, body []byte) error {
	if topic == signaling.JoinDestination {
		c.rememberJoin(body)
	}
	return c.enqueue(Frame{Op: OpPublish, Topic: topic, Body: string(body)}, true)
}

// Subscribe registers fn for topic, replacing any earlier handler. The
// subscription survives reconnects. Handlers run on the read goroutine in
// arrival order.
func (c *Client) Subscribe(topic string, fn func(body []byte)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handlers[topic] = fn
	c.mu.Unlock()

	return c.enqueue(Frame{Op: OpSubscribe, Topic: topic}, false)
}

// Unsubscribe drops the handler for topic.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.handlers, topic)
	c.mu.Unlock()

	return c.enqueue(Frame{Op: OpUnsubscribe, Topic: topic}, false)
}

// OnDisconnect registers fn to run each time the connection is lost.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Connected reports whether a websocket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close stops reconnecting and closes the websocket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	}

	select {
	case <-c.closedCh:
	case <-time.After(2 * time.Second):
		util.LogWarning("relay client: close timed out")
	}
	return nil
}

// rememberJoin keeps the last JOIN for replay and forgets it on LEAVE.
func (c *Client) rememberJoin(body []byte) {
	env, err := signaling.DecodeEnvelope(body)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch env.Type {
	case signaling.KindJoin:
		c.join = append([]byte(nil), body...)
	case signaling.KindLeave:
		c.join = nil
	}
}

// enqueue hands a frame to the write loop. Subscription changes made while
// disconnected are applied on reconnect, so only publishes fail then. The
// send happens under mu so that nothing is queued after disconnect has
// flushed the queue.
func (c *Client) enqueue(f Frame, mustDeliver bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.conn == nil && mustDeliver:
		return ErrDisconnected
	case c.conn == nil:
		return nil
	}

	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// dropQueuedLocked discards frames the write loop never sent. They belonged
// to the lost connection and are not replayed on the next one.
func (c *Client) dropQueuedLocked() int {
	n := 0
	for {
		select {
		case <-c.sendCh:
			n++
		default:
			return n
		}
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// connect dials the hub, restores subscriptions and the JOIN, then publishes
// the connection to enqueue.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var frames []Frame
	for topic := range c.handlers {
		frames = append(frames, Frame{Op: OpSubscribe, Topic: topic})
	}
	if c.join != nil {
		frames = append(frames, Frame{Op: OpPublish, Topic: signaling.JoinDestination, Body: string(c.join)})
	}
	for _, f := range frames {
		data, _ := encodeFrame(f)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			return nil, fmt.Errorf("restore subscriptions: %w", err)
		}
	}

	c.conn = conn
	util.LogDebug("relay client: connected to %s", c.url)
	return conn, nil
}

// runLoop serves conn until it fails, then reconnects every delay until the
// client is closed.
func (c *Client) runLoop(conn *websocket.Conn) {
	defer close(c.closedCh)

	for {
		errCh := make(chan error, 2)
		stop := make(chan struct{})
		go c.readLoop(conn, errCh)
		go c.writeLoop(conn, errCh, stop)

		select {
		case err := <-errCh:
			if c.ctx.Err() == nil {
				util.LogWarning("relay client: connection lost: %v", err)
			}
		case <-c.ctx.Done():
		}
		close(stop)
		c.disconnect(conn)

		if c.ctx.Err() != nil {
			return
		}
		c.fireDisconnect()

		for {
			select {
			case <-time.After(c.delay):
			case <-c.ctx.Done():
				return
			}

			var err error
			if conn, err = c.connect(c.ctx); err == nil {
				util.LogInfo("relay client: reconnected")
				break
			}
			util.LogWarning("relay client: %v, retrying in %v", err, c.delay)
		}
	}
}

func (c *Client) disconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	dropped := c.dropQueuedLocked()
	c.mu.Unlock()

	if dropped > 0 {
		util.LogDebug("relay client: dropped %d unsent frames", dropped)
	}
	conn.Close()
}

func (c *Client) fireDisconnect() {
	c.mu.Lock()
	handlers := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// readLoop dispatches message frames to their topic handler.
func (c *Client) readLoop(conn *websocket.Conn, errCh chan<- error) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		f, err := decodeFrame(data)
		if err != nil || f.Op != OpMessage {
			util.LogDebug("relay client: ignoring frame: %v", err)
			continue
		}

		c.mu.Lock()
		fn := c.handlers[f.Topic]
		c.mu.Unlock()
		if fn != nil {
			fn([]byte(f.Body))
		}
	}
}

// writeLoop is the single writer of conn; it also sends keepalive pings.
func (c *Client) writeLoop(conn *websocket.Conn, errCh chan<- error, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				errCh <- err
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				errCh <- err
				return
			}
		case <-stop:
			return
		}
	}
}
