package l1landmarks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDetectorInit marks a failure to set up the pose-estimation
// collaborator. It is a setup error and is never returned for a single
// frame that produced no detection.
var ErrDetectorInit = errors.New("pose detector initialisation failed")

// InitError wraps err so that errors.Is(err, ErrDetectorInit) holds.
func InitError(detector string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDetectorInit, detector, err)
}

// FrameHandle is an opaque reference to a source frame that only the
// detector knows how to interpret (a decoded image, a replay index, ...).
type FrameHandle any

// Detector is the external pose-estimation service. A nil error with an
// empty Frame means no pose was found; callers treat that the same as a
// quality gate failure. Detect may block for an arbitrary time.
type Detector interface {
	Detect(ctx context.Context, handle FrameHandle, timestampMs float64) (Frame, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, handle FrameHandle, timestampMs float64) (Frame, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, handle FrameHandle, timestampMs float64) (Frame, error) {
	return f(ctx, handle, timestampMs)
}

// Source is a frame source with its own time cursor (a video file, a
// replay log, a camera). The scheduler only does work when Cursor moves.
type Source interface {
	// ID names the source for logs and session metadata.
	ID() string
	// Cursor is the source's current playback position.
	Cursor() time.Duration
	// Handle returns the frame at a cursor value previously read from
	// Cursor.
	Handle(cursor time.Duration) FrameHandle
}
