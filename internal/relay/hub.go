package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/sharelink/internal/presence"
	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// Hub is the relay server side. It keeps no message history: a frame reaches
// the subscribers present when it is published, or nobody.
type Hub struct {
	upgrader websocket.Upgrader
	presence *presence.Registry

	mu     sync.Mutex
	conns  map[*conn]struct{}
	topics map[string]map[*conn]struct{}
}

// conn is one client websocket attached to the hub.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		presence: presence.NewRegistry(),
		conns:    make(map[*conn]struct{}),
		topics:   make(map[string]map[*conn]struct{}),
	}
}

// Users returns the users currently online.
func (h *Hub) Users() []string { return h.presence.Users() }

// Subscribers returns how many connections are subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Kick closes the connection that announced user. It reports whether one was
// found.
func (h *Hub) Kick(user string) bool {
	owner, ok := h.presence.Owner(user)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if c.id == owner {
			c.ws.Close()
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and attaches the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("websocket upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	util.LogDebug("relay: connection %s from %s", c.id[:8], r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// remove detaches c from every topic, drops its users and closes its queue.
func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	close(c.send)

	if gone := h.presence.Drop(c.id); len(gone) > 0 {
		util.LogInfo("relay: %v disconnected", gone)
		h.broadcastLocked(signaling.PublicTopic, h.presence.Snapshot())
	}
}

func (h *Hub) subscribe(c *conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*conn]struct{})
	}
	h.topics[topic][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], c)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

// publish handles a client publish. The join destination is consumed here;
// every other topic is fanned out.
func (h *Hub) publish(c *conn, topic, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topic != signaling.JoinDestination {
		h.broadcastLocked(topic, []byte(body))
		return
	}

	env, err := signaling.DecodeEnvelope([]byte(body))
	if err != nil {
		util.LogWarning("relay: bad join envelope: %v", err)
		return
	}
	switch env.Type {
	case signaling.KindJoin:
		h.presence.Join(c.id, env.Sender)
		util.LogInfo("relay: %s joined", env.Sender)
	case signaling.KindLeave:
		if !h.presence.Leave(c.id, env.Sender) {
			return
		}
		util.LogInfo("relay: %s left", env.Sender)
	default:
		util.LogDebug("relay: ignoring %s on join destination", env.Type)
		return
	}
	h.broadcastLocked(signaling.PublicTopic, h.presence.Snapshot())
}

// broadcastLocked queues a message frame for every subscriber of topic. A
// subscriber whose queue is full misses the frame.
func (h *Hub) broadcastLocked(topic string, body []byte) {
	subs := h.topics[topic]
	if len(subs) == 0 {
		return
	}

	data, err := encodeFrame(Frame{Op: OpMessage, Topic: topic, Body: string(body)})
	if err != nil {
		util.LogError("relay: encode frame: %v", err)
		return
	}
	for c := range subs {
		select {
		case c.send <- data:
		default:
			util.LogWarning("relay: connection %s too slow, dropped frame on %s", c.id[:8], topic)
		}
	}
}

// readPump reads frames until the websocket fails, then detaches c.
func (c *conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.LogDebug("relay: connection %s: %v", c.id[:8], err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		f, err := decodeFrame(data)
		if err != nil {
			util.LogWarning("relay: connection %s: %v", c.id[:8], err)
			continue
		}

		switch f.Op {
		case OpSubscribe:
			c.hub.subscribe(c, f.Topic)
		case OpUnsubscribe:
			c.hub.unsubscribe(c, f.Topic)
		case OpPublish:
			c.hub.publish(c, f.Topic, f.Body)
		default:
			util.LogDebug("relay: connection %s sent %s frame", c.id[:8], f.Op)
		}
	}
}

// writePump is the single writer of c.ws.
func (c *conn) writePump() {
	defer c.ws.Close()

	for data := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			util.LogDebug("relay: write to %s: %v", c.id[:8], err)
			return
		}
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
