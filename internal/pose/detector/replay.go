package detector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// ReadJSONL reads one l1landmarks.Frame per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]l1landmarks.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var frames []l1landmarks.Frame
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var f l1landmarks.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

// WriteJSONL writes one frame per line.
func WriteJSONL(w io.Writer, frames []l1landmarks.Frame) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// Replay plays back recorded frames against a clock. It is both the
// source (cursor and handle) and the detector that resolves the handle, so
// recorded detector output can be fed through the pipeline unchanged.
type Replay struct {
	id      string
	frames  []l1landmarks.Frame
	offsets []time.Duration // from the first frame
	clock   timeutil.Clock
	start   time.Time
}

var (
	_ l1landmarks.Source   = (*Replay)(nil)
	_ l1landmarks.Detector = (*Replay)(nil)
)

// NewReplay plays frames from the clock's current time. Frame timestamps
// must not decrease.
func NewReplay(id string, frames []l1landmarks.Frame, clock timeutil.Clock) (*Replay, error) {
	if len(frames) == 0 {
		return nil, errors.New("replay has no frames")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	base := frames[0].TimestampMs
	offsets := make([]time.Duration, len(frames))
	for i, f := range frames {
		if i > 0 && f.TimestampMs < frames[i-1].TimestampMs {
			return nil, fmt.Errorf("frame %d: timestamp %.3fms goes backwards", i, f.TimestampMs)
		}
		offsets[i] = timeutil.FromMillis(f.TimestampMs - base)
	}
	return &Replay{id: id, frames: frames, offsets: offsets, clock: clock, start: clock.Now()}, nil
}

// OpenReplay loads a JSONL file. Failures wrap l1landmarks.ErrDetectorInit.
func OpenReplay(path string, clock timeutil.Clock) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, l1landmarks.InitError("replay", err)
	}
	defer f.Close()
	frames, err := ReadJSONL(f)
	if err != nil {
		return nil, l1landmarks.InitError("replay", fmt.Errorf("%s: %w", path, err))
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r, err := NewReplay(id, frames, clock)
	if err != nil {
		return nil, l1landmarks.InitError("replay", err)
	}
	return r, nil
}

// Len returns the number of frames.
func (r *Replay) Len() int { return len(r.frames) }

// indexAt returns the last frame due at elapsed playback time. Times before
// the first frame map to frame 0 and times past the end hold the last frame.
func (r *Replay) indexAt(elapsed time.Duration) int {
	i := sort.Search(len(r.offsets), func(i int) bool { return r.offsets[i] > elapsed })
	if i == 0 {
		return 0
	}
	return i - 1
}

// ID implements l1landmarks.Source.
func (r *Replay) ID() string { return r.id }

// Cursor implements l1landmarks.Source. It only moves when a new frame
// becomes due.
func (r *Replay) Cursor() time.Duration {
	return r.offsets[r.indexAt(r.clock.Since(r.start))]
}

// Handle implements l1landmarks.Source. The handle is the index of the
// frame at cursor.
func (r *Replay) Handle(cursor time.Duration) l1landmarks.FrameHandle { return r.indexAt(cursor) }

// Done reports whether cursor is at the last frame.
func (r *Replay) Done(cursor time.Duration) bool { return cursor >= r.offsets[len(r.offsets)-1] }

// Detect implements l1landmarks.Detector by looking up the recorded frame.
// An int handle is a frame index from this replay. Any other handle, such
// as a camera cursor that crossed a gRPC hop, is resolved by timestampMs
// against the recording's own timeline.
func (r *Replay) Detect(ctx context.Context, handle l1landmarks.FrameHandle, timestampMs float64) (l1landmarks.Frame, error) {
	if err := ctx.Err(); err != nil {
		return l1landmarks.Frame{}, err
	}
	var i int
	switch h := handle.(type) {
	case int:
		i = h
	case time.Duration:
		i = r.indexAt(h)
	default:
		if math.IsNaN(timestampMs) || math.IsInf(timestampMs, 0) {
			return l1landmarks.Frame{}, fmt.Errorf("replay: invalid timestamp %v", timestampMs)
		}
		i = r.indexAt(time.Duration(math.Round(timestampMs * float64(time.Millisecond))))
	}
	if i < 0 || i >= len(r.frames) {
		return l1landmarks.Frame{}, fmt.Errorf("replay: frame %d out of range [0,%d)", i, len(r.frames))
	}
	f := r.frames[i]
	out := l1landmarks.Frame{TimestampMs: timestampMs, Landmarks: make([]l1landmarks.Landmark, len(f.Landmarks))}
	copy(out.Landmarks, f.Landmarks)
	return out, nil
}
