package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling and media counter.
var Stats = &stats{}

type stats struct {
	EnvelopesSent    atomic.Int64 // SIGNAL envelopes published
	EnvelopesRecv    atomic.Int64 // SIGNAL envelopes accepted for the local user
	CandidatesQueued atomic.Int64 // candidates parked before a remote description existed
	CandidatesAdded  atomic.Int64 // candidates applied to a peer connection
	LinksOpened      atomic.Int64 // peer links created
	LinksClosed      atomic.Int64 // peer links torn down
	MediaBytesRecv   atomic.Int64 // RTP payload bytes read from remote tracks
}

func (s *stats) AddEnvelopeSent()    { s.EnvelopesSent.Add(1) }
func (s *stats) AddEnvelopeRecv()    { s.EnvelopesRecv.Add(1) }
func (s *stats) AddCandidateQueued() { s.CandidatesQueued.Add(1) }
func (s *stats) AddCandidateAdded()  { s.CandidatesAdded.Add(1) }
func (s *stats) AddLinkOpened()      { s.LinksOpened.Add(1) }
func (s *stats) AddLinkClosed()      { s.LinksClosed.Add(1) }
func (s *stats) AddMediaRecv(n int)  { s.MediaBytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevMedia int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.EnvelopesSent.Load()
				recv := Stats.EnvelopesRecv.Load()
				media := Stats.MediaBytesRecv.Load()

				rate := float64(media-prevMedia) / interval.Seconds()

				if sent != prevSent || recv != prevRecv || rate > 10 {
					pterm.DefaultLogger.Info(formatStats(sent-prevSent, recv-prevRecv, rate))
				}

				prevSent = sent
				prevRecv = recv
				prevMedia = media

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sent, recv int64, mediaRate float64) string {
	return fmt.Sprintf("Signals: %2d↑ %2d↓ | Candidates: %d queued, %d applied | Links: %d/%d | Media: %s/s",
		sent,
		recv,
		Stats.CandidatesQueued.Load(),
		Stats.CandidatesAdded.Load(),
		Stats.LinksOpened.Load(),
		Stats.LinksClosed.Load(),
		formatBytes(mediaRate),
	)
}
