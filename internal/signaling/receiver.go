package signaling

import (
	"github.com/1ureka/sharelink/internal/util"
)

// Subscribe registers handler for every SIGNAL envelope addressed to the local
// user. Envelopes of any other type, or addressed to someone else, are dropped.
// The handler runs on the bus delivery goroutine, once per envelope.
func (c *Channel) Subscribe(handler func(Envelope)) error {
	return c.bus.Subscribe(SignalTopic(c.local), func(body []byte) {
		env, err := DecodeEnvelope(body)
		if err != nil {
			util.LogWarning("dropping undecodable signal envelope: %v", err)
			return
		}

		switch {
		case env.Type != KindSignal:
			util.LogDebug("dropping %s envelope from %s on signal topic", env.Type, env.Sender)
			return
		case env.Recipient != c.local:
			util.LogDebug("dropping signal from %s addressed to %q", env.Sender, env.Recipient)
			return
		}

		c.received.Add(1)
		util.Stats.AddEnvelopeRecv()
		handler(env)
	})
}

// Unsubscribe stops delivery of inbound signals.
func (c *Channel) Unsubscribe() error {
	return c.bus.Unsubscribe(SignalTopic(c.local))
}
