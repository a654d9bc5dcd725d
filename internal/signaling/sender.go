package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/1ureka/sharelink/internal/util"
)

// Send wraps sig in a SIGNAL envelope addressed to recipient and publishes it on
// the recipient's signal topic. A publish failure means the signal is lost; it
// is never retried here.
func (c *Channel) Send(recipient string, sig Signal) error {
	content, err := EncodeSignal(sig)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{
		Sender:    c.local,
		Recipient: recipient,
		Type:      KindSignal,
		Content:   content,
	})
	if err != nil {
		return err
	}

	if err := c.bus.Publish(SignalTopic(recipient), data); err != nil {
		return fmt.Errorf("publish signal to %s: %w", recipient, err)
	}
	c.sent.Add(1)
	util.Stats.AddEnvelopeSent()
	return nil
}
