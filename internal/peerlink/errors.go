package peerlink

import "errors"

// Failure classes. None of them is fatal: every negotiation failure is handled
// locally by returning the manager to Idle, and nothing is reported to the
// remote peer.
var (
	// ErrPermission: local capture was denied or revoked. No signal was sent.
	ErrPermission = errors.New("permission error")

	// ErrNegotiation: a descriptor or candidate was malformed or rejected by the
	// peer connection. The link has been reset to Idle.
	ErrNegotiation = errors.New("negotiation error")

	// ErrState: a signal arrived with no matching pending state. It was
	// discarded and nothing changed.
	ErrState = errors.New("state error")

	// ErrTransport: the signaling bus refused an outbound signal. The signal is
	// lost; the link keeps waiting.
	ErrTransport = errors.New("transport error")

	// ErrSuperseded: an asynchronous step finished after its link was replaced
	// or stopped, and its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer link")
)
