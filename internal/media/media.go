// Package media defines the local capture collaborator: a Source yields a
// Stream of local tracks, or fails with ErrPermissionDenied. The peer link only
// holds track handles; it never implements capture.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrPermissionDenied is returned when the user refuses or revokes capture.
var ErrPermissionDenied = errors.New("media capture permission denied")

// Request describes what the caller wants captured.
type Request struct {
	Video bool
	Audio bool
}

// Stream is a set of live local tracks. Stop releases the capture and is safe
// to call more than once.
type Stream interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// Source acquires local media. Capture may block (device start, permission
// prompt) and honors ctx cancellation.
type Source interface {
	Capture(ctx context.Context, req Request) (Stream, error)
}
