// Package peerlink owns the single active peer link of a client: creating it
// from a local share or an inbound offer, applying remote descriptors and
// candidates, and tearing it down.
package peerlink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/media"
	"github.com/1ureka/sharelink/internal/signaling"
	"github.com/1ureka/sharelink/internal/util"
)

// Config wires a Manager to its collaborators. Sink may be nil.
type Config struct {
	Signaler Signaler
	Source   media.Source
	NewLink  LinkFactory
	Sink     Sink
}

// Manager is the sole owner of the active link and its state. All mutation is
// serialized behind mu. Every asynchronous continuation (capture, pion
// callbacks) captures the epoch current when it started and is discarded if
// the epoch has moved on.
//
// Switching conversation partner is the caller's job: Stop must run before a
// StartLocalShare towards a different partner.
type Manager struct {
	signaler Signaler
	source   media.Source
	newLink  LinkFactory
	sink     Sink

	mu        sync.Mutex
	state     State
	epoch     uint64
	partner   string
	link      Link
	linkID    string
	stream    media.Stream
	buffer    *CandidateBuffer
	localSet  bool
	remoteSet bool
	trackSeen bool
	remote    RemoteTrack
}

// NewManager returns an Idle manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		signaler: cfg.Signaler,
		source:   cfg.Source,
		newLink:  cfg.NewLink,
		sink:     cfg.Sink,
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Epoch returns the current generation counter.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Partner returns the peer of the active link, or of a share still waiting on
// capture. It is "" otherwise.
func (m *Manager) Partner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partner
}

// PendingCandidates returns how many remote candidates are parked.
func (m *Manager) PendingCandidates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buffer == nil {
		return 0
	}
	return m.buffer.Len()
}

// LocalTracks returns the local track slot.
func (m *Manager) LocalTracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	return m.stream.Tracks()
}

// RemoteTrack returns the remote track slot.
func (m *Manager) RemoteTrack() RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// StartLocalShare replaces any existing link with a new one towards partner:
// it captures local media, attaches the tracks, creates an offer and sends it.
// A denied capture returns ErrPermission, leaves the manager Idle and sends
// nothing.
func (m *Manager) StartLocalShare(ctx context.Context, partner string, req media.Request) error {
	m.mu.Lock()
	m.teardownLocked()
	epoch := m.epoch
	m.partner = partner
	m.mu.Unlock()

	stream, err := m.source.Capture(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		if stream != nil {
			stream.Stop()
		}
		return fmt.Errorf("%w: capture for %s finished after the link changed", ErrSuperseded, partner)
	}
	if err != nil {
		m.partner = ""
		if errors.Is(err, media.ErrPermissionDenied) {
			util.LogWarning("share with %s aborted: %v", partner, err)
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("capture: %w", err)
	}

	link, err := m.openLocked(epoch)
	if err != nil {
		stream.Stop()
		return m.failLocked(fmt.Errorf("create link: %w", err))
	}
	m.stream = stream

	for _, track := range stream.Tracks() {
		if err := link.AddTrack(track); err != nil {
			return m.failLocked(fmt.Errorf("add %s track: %w", track.Kind(), err))
		}
	}
	if m.sink != nil {
		m.sink.SetLocalTracks(stream.Tracks())
	}
	m.state = Offering

	offer, err := link.CreateOffer()
	if err != nil {
		return m.failLocked(fmt.Errorf("create offer: %w", err))
	}
	m.localSet = true

	util.LogInfo("link %s: offering to %s", m.linkID, partner)
	if err := m.signaler.Send(partner, signaling.Description(offer)); err != nil {
		return fmt.Errorf("%w: offer to %s lost: %v", ErrTransport, partner, err)
	}
	return nil
}

// HandleInboundSignal applies one SIGNAL envelope from the remote peer.
//
// An offer always replaces the current link and is answered. An answer is
// accepted only while Offering towards its sender. A candidate is applied at
// once when the remote description is set, and parked otherwise.
func (m *Manager) HandleInboundSignal(env signaling.Envelope) error {
	sig, err := env.Signal()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if m.link != nil && env.Sender == m.partner {
			return m.failLocked(err)
		}
		return fmt.Errorf("%w: %v", ErrState, err)
	}

	switch {
	case sig.IsOffer():
		return m.acceptOfferLocked(env.Sender, *sig.SDP)
	case sig.IsAnswer():
		return m.acceptAnswerLocked(env.Sender, *sig.SDP)
	default:
		return m.addCandidateLocked(env.Sender, *sig.ICE)
	}
}

// Stop releases local media, closes the link, clears pending candidates and
// returns to Idle. It is safe from every state, including Idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != nil {
		util.LogInfo("link %s: stopped", m.linkID)
	}
	m.teardownLocked()
}

// ---------------------------------------------------------------------------
// Negotiation steps (mu held)
// ---------------------------------------------------------------------------

func (m *Manager) acceptOfferLocked(from string, offer webrtc.SessionDescription) error {
	if m.link != nil {
		util.LogInfo("link %s: superseded by offer from %s", m.linkID, from)
	}
	m.teardownLocked()
	epoch := m.epoch
	m.partner = from

	link, err := m.openLocked(epoch)
	if err != nil {
		return m.failLocked(fmt.Errorf("create link: %w", err))
	}
	m.state = Answering

	if err := link.SetRemoteDescription(offer); err != nil {
		return m.failLocked(fmt.Errorf("apply offer: %w", err))
	}
	m.remoteSet = true
	if err := m.drainLocked(); err != nil {
		return m.failLocked(err)
	}

	answer, err := link.CreateAnswer()
	if err != nil {
		return m.failLocked(fmt.Errorf("create answer: %w", err))
	}
	m.localSet = true
	m.maybeConnectLocked()

	util.LogInfo("link %s: answering %s", m.linkID, from)
	if err := m.signaler.Send(from, signaling.Description(answer)); err != nil {
		return fmt.Errorf("%w: answer to %s lost: %v", ErrTransport, from, err)
	}
	return nil
}

func (m *Manager) acceptAnswerLocked(from string, answer webrtc.SessionDescription) error {
	switch {
	case m.state != Offering:
		return fmt.Errorf("%w: answer from %s while %s", ErrState, from, m.state)
	case from != m.partner:
		return fmt.Errorf("%w: answer from %s while offering to %s", ErrState, from, m.partner)
	case m.remoteSet:
		return fmt.Errorf("%w: duplicate answer from %s", ErrState, from)
	}

	if err := m.link.SetRemoteDescription(answer); err != nil {
		return m.failLocked(fmt.Errorf("apply answer: %w", err))
	}
	m.remoteSet = true
	if err := m.drainLocked(); err != nil {
		return m.failLocked(err)
	}

	util.LogDebug("link %s: answer from %s applied", m.linkID, from)
	m.maybeConnectLocked()
	return nil
}

func (m *Manager) addCandidateLocked(from string, c webrtc.ICECandidateInit) error {
	switch {
	case m.link == nil:
		return fmt.Errorf("%w: candidate from %s with no active link", ErrState, from)
	case from != m.partner:
		return fmt.Errorf("%w: candidate from %s while linked to %s", ErrState, from, m.partner)
	}

	if !m.remoteSet && m.buffer.Push(c) {
		util.Stats.AddCandidateQueued()
		util.LogDebug("link %s: candidate parked (%d pending)", m.linkID, m.buffer.Len())
		return nil
	}

	if err := m.link.AddICECandidate(c); err != nil {
		return m.failLocked(fmt.Errorf("apply candidate: %w", err))
	}
	util.Stats.AddCandidateAdded()
	return nil
}

// drainLocked replays parked candidates right after the remote description is
// set, inside the same critical section.
func (m *Manager) drainLocked() error {
	n := m.buffer.Len()
	err := m.buffer.Drain(func(c webrtc.ICECandidateInit) error {
		if err := m.link.AddICECandidate(c); err != nil {
			return err
		}
		util.Stats.AddCandidateAdded()
		return nil
	})
	if err != nil {
		return err
	}
	if n > 0 {
		util.LogDebug("link %s: applied %d parked candidates", m.linkID, n)
	}
	return nil
}

// maybeConnectLocked enters Connected once both descriptions are set and a
// remote track has been observed.
func (m *Manager) maybeConnectLocked() {
	if m.state.pending() && m.localSet && m.remoteSet && m.trackSeen {
		m.state = Connected
		util.LogSuccess("link %s: connected to %s", m.linkID, m.partner)
	}
}

// ---------------------------------------------------------------------------
// Link lifecycle (mu held)
// ---------------------------------------------------------------------------

// openLocked creates the link of generation epoch and binds its callbacks to
// that generation.
func (m *Manager) openLocked(epoch uint64) (Link, error) {
	link, err := m.newLink()
	if err != nil {
		return nil, err
	}

	link.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.sendLocalCandidate(epoch, c)
	})
	link.OnTrack(func(track RemoteTrack) {
		m.guard(epoch, func() { m.acceptTrackLocked(track) })
	})
	link.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.guard(epoch, func() { m.connectionStateLocked(s) })
	})

	m.link = link
	m.linkID = uuid.NewString()[:8]
	m.buffer = NewCandidateBuffer()
	util.Stats.AddLinkOpened()
	return link, nil
}

// teardownLocked advances the epoch, stops local media, closes the link,
// clears both track slots and leaves the manager Idle.
func (m *Manager) teardownLocked() {
	m.epoch++
	m.state = Closed

	if m.stream != nil {
		m.stream.Stop()
	}
	if m.link != nil {
		if err := m.link.Close(); err != nil {
			util.LogDebug("link %s close: %v", m.linkID, err)
		}
		util.Stats.AddLinkClosed()
	}
	if m.sink != nil && (m.stream != nil || m.remote != nil) {
		m.sink.SetLocalTracks(nil)
		m.sink.SetRemoteTrack(nil)
	}

	m.link = nil
	m.linkID = ""
	m.stream = nil
	m.buffer = nil
	m.partner = ""
	m.localSet = false
	m.remoteSet = false
	m.trackSeen = false
	m.remote = nil
	m.state = Idle
}

// failLocked resets to Idle after a negotiation failure.
func (m *Manager) failLocked(err error) error {
	util.LogWarning("link %s with %s failed: %v", m.linkID, m.partner, err)
	m.teardownLocked()
	return fmt.Errorf("%w: %v", ErrNegotiation, err)
}

// ---------------------------------------------------------------------------
// Epoch-guarded callbacks
// ---------------------------------------------------------------------------

// guard runs fn under mu only if epoch is still current.
func (m *Manager) guard(epoch uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		util.LogDebug("discarding callback of epoch %d (current %d)", epoch, m.epoch)
		return false
	}
	fn()
	return true
}

func (m *Manager) acceptTrackLocked(track RemoteTrack) {
	util.LogInfo("link %s: remote %s track %s", m.linkID, track.Kind(), track.ID())
	m.remote = track
	m.trackSeen = true
	if m.sink != nil {
		m.sink.SetRemoteTrack(track)
	}
	m.maybeConnectLocked()
}

func (m *Manager) connectionStateLocked(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		util.LogWarning("link %s: peer connection %s, returning to idle", m.linkID, s)
		m.teardownLocked()
	default:
		util.LogDebug("link %s: peer connection %s", m.linkID, s)
	}
}

// sendLocalCandidate trickles a locally gathered candidate to the partner of
// generation epoch. The send happens outside mu.
func (m *Manager) sendLocalCandidate(epoch uint64, c webrtc.ICECandidateInit) {
	var partner string
	if !m.guard(epoch, func() { partner = m.partner }) || partner == "" {
		return
	}

	if err := m.signaler.Send(partner, signaling.Candidate(c)); err != nil {
		util.LogWarning("candidate to %s lost: %v", partner, err)
	}
}
