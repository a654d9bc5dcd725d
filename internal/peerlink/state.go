package peerlink

// State is the lifecycle state of the active peer link.
type State int

const (
	Idle State = iota
	Offering
	Answering
	Connected

	// Closed marks a link mid-teardown. It is never observable outside the
	// manager's lock; teardown always ends in Idle.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case Answering:
		return "answering"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// pending reports whether a link exists and is still negotiating.
func (s State) pending() bool {
	return s == Offering || s == Answering
}
