package app

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sharelink/internal/peerlink"
	"github.com/1ureka/sharelink/internal/util"
)

// Compile-time interface check.
var _ peerlink.Sink = (*ConsoleSink)(nil)

// ConsoleSink stands in for the two video elements of a graphical client. It
// logs slot changes and reads inbound RTP so the statistics show received
// media.
type ConsoleSink struct {
	mu     sync.Mutex
	local  []webrtc.TrackLocal
	remote peerlink.RemoteTrack
}

// SetLocalTracks fills or clears the local slot.
func (s *ConsoleSink) SetLocalTracks(tracks []webrtc.TrackLocal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = tracks
	if len(tracks) == 0 {
		util.LogDebug("local preview cleared")
		return
	}
	for _, t := range tracks {
		util.LogInfo("local preview: %s track %s", t.Kind(), t.ID())
	}
}

// SetRemoteTrack fills or clears the remote slot. It runs under the link
// manager's lock, so the RTP reader gets its own goroutine.
func (s *ConsoleSink) SetRemoteTrack(track peerlink.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remote = track
	if track == nil {
		util.LogDebug("remote view cleared")
		return
	}

	util.LogSuccess("receiving %s track %s from stream %s", track.Kind(), track.ID(), track.StreamID())
	if rt, ok := track.(*webrtc.TrackRemote); ok {
		go readRTP(rt)
	}
}

// Slots returns the current local tracks and remote track.
func (s *ConsoleSink) Slots() ([]webrtc.TrackLocal, peerlink.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.remote
}

// readRTP consumes track until its peer connection closes.
func readRTP(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				util.LogDebug("remote %s track %s: %v", track.Kind(), track.ID(), err)
			}
			return
		}
		util.Stats.AddMediaRecv(n)
	}
}
