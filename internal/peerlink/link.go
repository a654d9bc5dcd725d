package peerlink

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/signaling"
)

// Link is the underlying peer connection of one negotiation. CreateOffer and
// CreateAnswer also apply the result as the local description.
//
// The Manager calls Link methods, Close included, while holding its lock, and
// callbacks take that lock. Implementations must therefore never run a callback
// on the goroutine of a Link method, and Close must not wait for callbacks in
// flight.
type Link interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))

	Close() error
}

// LinkFactory creates a fresh Link for each negotiation.
type LinkFactory func() (Link, error)

// RemoteTrack is the handle of an inbound media track. *webrtc.TrackRemote
// satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// Signaler sends a signal to a peer. *signaling.Channel satisfies it.
type Signaler interface {
	Send(recipient string, sig signaling.Signal) error
}

// Sink receives the local and remote track slots for display. Both are cleared
// with nil on teardown. Sink methods run under the manager's lock and must not
// call back into the Manager.
type Sink interface {
	SetLocalTracks(tracks []webrtc.TrackLocal)
	SetRemoteTrack(track RemoteTrack)
}

// Compile-time interface check.
var _ Signaler = (*signaling.Channel)(nil)
