package presence

import (
	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// Agent serves the join destination on a bus that has no server of its own:
// it consumes JOIN and LEAVE envelopes and republishes the user list.
type Agent struct {
	bus      signaling.Bus
	registry *Registry
}

// NewAgent returns an agent bound to bus. Start subscribes it.
func NewAgent(bus signaling.Bus) *Agent {
	return &Agent{bus: bus, registry: NewRegistry()}
}

// Registry exposes the agent's registry.
func (a *Agent) Registry() *Registry { return a.registry }

// Start subscribes to the join destination.
func (a *Agent) Start() error {
	return a.bus.Subscribe(signaling.JoinDestination, a.handle)
}

// Stop unsubscribes from the join destination.
func (a *Agent) Stop() error {
	return a.bus.Unsubscribe(signaling.JoinDestination)
}

func (a *Agent) handle(body []byte) {
	env, err := signaling.DecodeEnvelope(body)
	if err != nil {
		util.LogWarning("presence: %v", err)
		return
	}

	var changed bool
	switch env.Type {
	case signaling.KindJoin:
		changed = a.registry.Join(env.Sender, env.Sender)
		util.LogInfo("%s joined", env.Sender)
	case signaling.KindLeave:
		changed = a.registry.Leave(env.Sender, env.Sender)
		util.LogInfo("%s left", env.Sender)
	default:
		util.LogDebug("presence: ignoring %s from %s", env.Type, env.Sender)
		return
	}

	// A repeated JOIN still republishes so a reconnected client gets the list.
	if changed || env.Type == signaling.KindJoin {
		a.announce()
	}
}

func (a *Agent) announce() {
	if err := a.bus.Publish(signaling.PublicTopic, a.registry.Snapshot()); err != nil {
		util.LogWarning("presence: publish user list: %v", err)
	}
}
