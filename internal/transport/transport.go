// Package transport backs a peer link with a pion PeerConnection carrying
// media tracks.
package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/peerlink"
	"github.com/1ureka/sharelink/internal/util"
)

// Compile-time interface check.
var _ peerlink.Link = (*Transport)(nil)

// Transport wraps a single PeerConnection.
//
// Every pion callback is handed to an ordered callback queue instead of being
// run on pion's goroutine, and Close stops that queue before closing the
// PeerConnection. A callback may therefore block on its owner's lock while the
// owner closes the Transport.
type Transport struct {
	pc    *webrtc.PeerConnection
	queue *util.Serial
}

// NewTransport creates a Transport backed by a new PeerConnection using the
// given STUN servers.
func NewTransport(stunServers []string) (*Transport, error) {
	pc, err := newPeerConnection(stunServers)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		pc:    pc,
		queue: util.NewSerial(),
	}
	return t, nil
}

// Factory returns a link factory creating one Transport per negotiation.
func Factory(stunServers []string) peerlink.LinkFactory {
	return func() (peerlink.Link, error) {
		return NewTransport(stunServers)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close drops pending callbacks and shuts down the PeerConnection.
func (t *Transport) Close() error {
	t.queue.Close()
	return t.pc.Close()
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches a local track and starts reading its RTCP.
func (t *Transport) AddTrack(track webrtc.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go drainRTCP(sender)
	return nil
}

// OnTrack registers a callback invoked for every inbound track.
func (t *Transport) OnTrack(fn func(peerlink.RemoteTrack)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogDebug("inbound %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)
		t.queue.Do(func() { fn(track) })
	})
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer and applies it as the local description.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// CreateAnswer generates an SDP answer and applies it as the local description.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// AddICECandidate adds a remote ICE candidate received through signaling. An
// empty candidate string is the browser end-of-candidates marker and is passed
// through as such.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. The end of gathering is not reported.
func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		t.queue.Do(func() { fn(cand) })
	})
}

// OnConnectionStateChange forwards PeerConnection state changes.
func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.queue.Do(func() { fn(state) })
	})
}
