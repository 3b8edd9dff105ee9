package detector

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/timeutil"
)

// SyntheticGenerator produces poses of a subject slowly abducting and
// adducting both hips. It implements l1landmarks.Detector and ignores the
// frame handle: the pose is a function of the timestamp plus noise.
type SyntheticGenerator struct {
	frames atomic.Uint64

	// Configuration
	MinAngle    float64       // degrees, trough of the abduction cycle
	MaxAngle    float64       // degrees, peak of the abduction cycle
	Period      time.Duration // one full cycle
	RightOffset float64       // degrees added to the right side
	Noise       float64       // std dev of landmark jitter, normalised units
	DropoutRate float64       // fraction of frames with no detection
	Visibility  float64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ l1landmarks.Detector = (*SyntheticGenerator)(nil)

// NewSyntheticGenerator returns a generator with demo defaults. The same
// seed yields the same sequence.
func NewSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		MinAngle:    10,
		MaxAngle:    55,
		Period:      4 * time.Second,
		RightOffset: -3,
		Noise:       0.003,
		DropoutRate: 0.02,
		Visibility:  0.9,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// AnglesAt returns the noiseless left and right abduction at timestampMs.
func (g *SyntheticGenerator) AnglesAt(timestampMs float64) (left, right float64) {
	period := timeutil.Millis(g.Period)
	phase := 0.0
	if period > 0 {
		phase = 2 * math.Pi * timestampMs / period
	}
	mid := (g.MinAngle + g.MaxAngle) / 2
	amp := (g.MaxAngle - g.MinAngle) / 2
	left = mid - amp*math.Cos(phase)
	return left, left + g.RightOffset
}

// FrameAt builds a full 33-landmark frame for timestampMs.
func (g *SyntheticGenerator) FrameAt(timestampMs float64) l1landmarks.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.frames.Add(1)
	if g.DropoutRate > 0 && g.rng.Float64() < g.DropoutRate {
		return l1landmarks.Frame{TimestampMs: timestampMs}
	}

	left, right := g.AnglesAt(timestampMs)
	s := Pose(left, right, g.Visibility)
	lm := make([]l1landmarks.Landmark, l1landmarks.NumLandmarks)
	for i := range lm {
		lm[i] = l1landmarks.Landmark{X: 0.5, Y: 0.45, Visibility: g.Visibility}
	}
	for i, p := range s.Points() {
		lm[l1landmarks.RequiredIndices[i]] = p
	}
	for i := range lm {
		lm[i].X += g.rng.NormFloat64() * g.Noise
		lm[i].Y += g.rng.NormFloat64() * g.Noise
		lm[i].Z += g.rng.NormFloat64() * g.Noise
	}
	return l1landmarks.Frame{TimestampMs: timestampMs, Landmarks: lm}
}

// Detect implements l1landmarks.Detector.
func (g *SyntheticGenerator) Detect(ctx context.Context, _ l1landmarks.FrameHandle, timestampMs float64) (l1landmarks.Frame, error) {
	if err := ctx.Err(); err != nil {
		return l1landmarks.Frame{}, err
	}
	return g.FrameAt(timestampMs), nil
}

// Frames generates n frames spaced by interval, starting at 0.
func (g *SyntheticGenerator) Frames(n int, interval time.Duration) []l1landmarks.Frame {
	out := make([]l1landmarks.Frame, n)
	step := timeutil.Millis(interval)
	for i := range out {
		out[i] = g.FrameAt(float64(i) * step)
	}
	return out
}

// FrameCount returns how many frames have been generated.
func (g *SyntheticGenerator) FrameCount() uint64 { return g.frames.Load() }

// Pose returns the six measured landmarks of an upright subject facing
// the camera with the given hip abduction angles. The subject's left side
// is on the right of the image.
func Pose(leftDeg, rightDeg, visibility float64) l1landmarks.Skeleton {
	const (
		centreX       = 0.5
		shoulderY     = 0.30
		hipY          = 0.60
		shoulderHalfW = 0.07
		hipHalfW      = 0.05
		thigh         = 0.22
	)
	lm := func(x, y float64) l1landmarks.Landmark {
		return l1landmarks.Landmark{X: x, Y: y, Visibility: visibility}
	}
	lr := leftDeg * math.Pi / 180
	rr := rightDeg * math.Pi / 180
	return l1landmarks.Skeleton{
		LeftShoulder:  lm(centreX+shoulderHalfW, shoulderY),
		RightShoulder: lm(centreX-shoulderHalfW, shoulderY),
		LeftHip:       lm(centreX+hipHalfW, hipY),
		RightHip:      lm(centreX-hipHalfW, hipY),
		LeftKnee:      lm(centreX+hipHalfW+thigh*math.Sin(lr), hipY+thigh*math.Cos(lr)),
		RightKnee:     lm(centreX-hipHalfW-thigh*math.Sin(rr), hipY+thigh*math.Cos(rr)),
	}
}
