package wampbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"

	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// Compile-time interface check.
var _ signaling.Bus = (*Client)(nil)

// ErrBadEvent is logged for events whose payload is not a single string.
var ErrBadEvent = errors.New("event without string payload")

// Client is a signaling.Bus backed by a nexus WAMP client. Every body travels
// as the first positional argument of an event.
type Client struct {
	cli *client.Client

	mu           sync.Mutex
	closed       bool
	onDisconnect []func()
}

func newConfig(realm string) client.Config {
	return client.Config{
		Realm:           realm,
		ResponseTimeout: 10 * time.Second,
		Logger:          util.StdLogger{Prefix: "wamp client"},
	}
}

// Dial connects to the router websocket at url and joins realm.
func Dial(ctx context.Context, url, realm string) (*Client, error) {
	cli, err := client.ConnectNet(ctx, url, newConfig(realm))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WAMP router: %w", err)
	}
	return wrap(cli), nil
}

// Local attaches an in-process client to r.
func Local(r router.Router, realm string) (*Client, error) {
	cli, err := client.ConnectLocal(r, newConfig(realm))
	if err != nil {
		return nil, err
	}
	return wrap(cli), nil
}

func wrap(cli *client.Client) *Client {
	c := &Client{cli: cli}
	go c.watch()
	return c
}

// watch runs the disconnect handlers when the session ends without Close.
func (c *Client) watch() {
	<-c.cli.Done()

	c.mu.Lock()
	closed := c.closed
	handlers := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()

	if closed {
		return
	}
	util.LogWarning("WAMP session lost")
	for _, fn := range handlers {
		fn()
	}
}

// Publish sends body on topic. The publisher itself is not a recipient.
func (c *Client) Publish(topic string, body []byte) error {
	return c.cli.Publish(string(TopicURI(topic)), nil, wamp.List{string(body)}, nil)
}

// Subscribe registers fn for topic.
func (c *Client) Subscribe(topic string, fn func(body []byte)) error {
	uri := TopicURI(topic)
	return c.cli.Subscribe(string(uri), func(ev *wamp.Event) {
		if len(ev.Arguments) == 0 {
			util.LogDebug("%s: %v", uri, ErrBadEvent)
			return
		}
		body, ok := wamp.AsString(ev.Arguments[0])
		if !ok {
			util.LogDebug("%s: %v", uri, ErrBadEvent)
			return
		}
		fn([]byte(body))
	}, nil)
}

// Unsubscribe stops delivery on topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.cli.Unsubscribe(string(TopicURI(topic)))
}

// OnDisconnect registers fn to run when the session ends unexpectedly.
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Close leaves the realm.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.cli.Close()
}
