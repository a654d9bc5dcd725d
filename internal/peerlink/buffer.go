package peerlink

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrDrained is returned by a second Drain on the same buffer.
var ErrDrained = errors.New("candidate buffer already drained")

// CandidateBuffer parks remote candidates that arrive before the link's remote
// description is set. It belongs to a single link and is not safe for
// concurrent use; the Manager guards it with its own lock.
type CandidateBuffer struct {
	queue   []webrtc.ICECandidateInit
	drained bool
}

// NewCandidateBuffer returns an empty, undrained buffer.
func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

// Push appends c. Once the buffer has been drained it rejects the candidate and
// returns false; the caller must apply it directly.
func (b *CandidateBuffer) Push(c webrtc.ICECandidateInit) bool {
	if b.drained {
		return false
	}
	b.queue = append(b.queue, c)
	return true
}

// Len returns the number of parked candidates.
func (b *CandidateBuffer) Len() int { return len(b.queue) }

// Drained reports whether Drain has been called.
func (b *CandidateBuffer) Drained() bool { return b.drained }

// Drain replays every parked candidate through apply in arrival order and
// empties the buffer. It may run once; the buffer stays sealed even when apply
// fails part way.
func (b *CandidateBuffer) Drain(apply func(webrtc.ICECandidateInit) error) error {
	if b.drained {
		return ErrDrained
	}
	b.drained = true

	queue := b.queue
	b.queue = nil

	for i, c := range queue {
		if err := apply(c); err != nil {
			return fmt.Errorf("apply buffered candidate %d of %d: %w", i+1, len(queue), err)
		}
	}
	return nil
}
