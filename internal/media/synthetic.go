package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/sharelink/internal/util"
)

const (
	videoFrameInterval = 33 * time.Millisecond
	audioFrameInterval = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic is a capture source with no device behind it: it produces a VP8
// video track and an Opus audio track fed with filler samples until stopped.
type Synthetic struct {
	StreamID string
}

// Compile-time interface check.
var _ Source = (*Synthetic)(nil)

// Capture creates the requested tracks and starts their sample pumps.
func (s *Synthetic) Capture(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := s.StreamID
	if streamID == "" {
		streamID = "screen"
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	st := &sampleStream{cancel: cancel}

	if req.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create video track: %w", err)
		}
		st.tracks = append(st.tracks, track)
		st.wg.Add(1)
		go st.pump(pumpCtx, track, syntheticFrame(), videoFrameInterval)
	}

	if req.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", streamID,
		)
		if err != nil {
			st.Stop()
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		st.tracks = append(st.tracks, track)
		st.wg.Add(1)
		go st.pump(pumpCtx, track, opusSilence, audioFrameInterval)
	}

	return st, nil
}

// sampleStream owns the pump goroutines of one Capture call.
type sampleStream struct {
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (st *sampleStream) Tracks() []webrtc.TrackLocal { return st.tracks }

func (st *sampleStream) Stop() {
	st.once.Do(func() {
		st.cancel()
		st.wg.Wait()
	})
}

// pump writes payload to track once per interval until ctx is cancelled.
// Writes before the track is bound to a peer connection are no-ops.
func (st *sampleStream) pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, payload []byte, interval time.Duration) {
	defer st.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: payload, Duration: interval}); err != nil {
				util.LogDebug("sample write on %s failed: %v", track.ID(), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// syntheticFrame returns a small VP8 keyframe-shaped payload. Receivers cannot
// decode it into a picture; it only keeps RTP flowing so the remote track fires.
func syntheticFrame() []byte {
	frame := make([]byte, 64)
	frame[0] = 0x10 // keyframe, show_frame
	frame[3], frame[4], frame[5] = 0x9d, 0x01, 0x2a
	return frame
}
