// Package signaling carries session descriptions and network candidates between
// two peers over an out-of-band publish/subscribe bus. It owns the envelope wire
// format and the topic layout; it keeps no negotiation state of its own.
package signaling

import (
	"fmt"
	"sync/atomic"
)

// Topic layout shared by every bus implementation.
const (
	// PublicTopic carries the JSON array of active user names.
	PublicTopic = "/topic/public"

	// JoinDestination receives JOIN and LEAVE envelopes; it is consumed by the server.
	JoinDestination = "/app/chat.addUser"
)

// MessagesTopic is the per-recipient topic for CHAT and FILE envelopes.
func MessagesTopic(user string) string {
	return fmt.Sprintf("/user/%s/queue/messages", user)
}

// SignalTopic is the per-recipient topic for SIGNAL envelopes.
func SignalTopic(user string) string {
	return fmt.Sprintf("/user/%s/queue/webrtc", user)
}

// Bus is the publish/subscribe collaborator. Delivery is ordered per publisher
// and subscriber pair and at-most-once: nothing published while a subscriber is
// unreachable is replayed. Implementations re-subscribe their topics after a
// transport reconnect.
type Bus interface {
	Publish(topic string, body []byte) error
	Subscribe(topic string, fn func(body []byte)) error
	Unsubscribe(topic string) error
}

// Channel is the signaling adapter bound to one local user. It scopes sends to
// the recipient's signal topic and receives only on the local user's topic.
type Channel struct {
	bus   Bus
	local string

	sent     atomic.Int64
	received atomic.Int64
}

// NewChannel returns a Channel publishing as localUser on bus.
func NewChannel(bus Bus, localUser string) *Channel {
	return &Channel{bus: bus, local: localUser}
}

// LocalUser returns the user name this channel sends as.
func (c *Channel) LocalUser() string { return c.local }

// Counts returns the number of SIGNAL envelopes sent and accepted so far.
func (c *Channel) Counts() (sent, received int64) {
	return c.sent.Load(), c.received.Load()
}
