package l4quality

import (
	"fmt"
	"math"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
)

// Reason explains why a frame was rejected. The empty reason means the
// frame passed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNoDetection      Reason = "no_detection"
	ReasonMissingLandmarks Reason = "missing_landmarks"
	ReasonLowVisibility    Reason = "low_visibility"
	ReasonNonFinite        Reason = "non_finite"
	ReasonShoulders        Reason = "degenerate_shoulders"
	ReasonHips             Reason = "degenerate_hips"
	ReasonTorso            Reason = "degenerate_torso"
	ReasonDetectorError    Reason = "detector_error"
	ReasonUndefinedAngle   Reason = "undefined_angle"
)

// Config holds the gate thresholds. Distances are fractions of the
// normalised frame size.
type Config struct {
	MinVisibility    float64 `json:"min_visibility"`
	MinShoulderWidth float64 `json:"min_shoulder_width"`
	MinHipWidth      float64 `json:"min_hip_width"`
	MinTorsoLength   float64 `json:"min_torso_length"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinVisibility:    0.5,
		MinShoulderWidth: 0.02,
		MinHipWidth:      0.02,
		MinTorsoLength:   0.05,
	}
}

// Validate checks the thresholds are in range.
func (c Config) Validate() error {
	if !(c.MinVisibility >= 0 && c.MinVisibility <= 1) {
		return fmt.Errorf("min_visibility must be between 0 and 1, got %f", c.MinVisibility)
	}
	for name, v := range map[string]float64{
		"min_shoulder_width": c.MinShoulderWidth,
		"min_hip_width":      c.MinHipWidth,
		"min_torso_length":   c.MinTorsoLength,
	} {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
		}
	}
	return nil
}

// Verdict is the outcome of evaluating one frame.
type Verdict struct {
	OK     bool
	Reason Reason
	// Landmark is the index of the offending landmark for visibility and
	// finiteness failures, otherwise -1.
	Landmark int
}

func pass() Verdict { return Verdict{OK: true, Landmark: -1} }

func reject(r Reason, landmark int) Verdict {
	return Verdict{Reason: r, Landmark: landmark}
}

// String renders the verdict for logs.
func (v Verdict) String() string {
	if v.OK {
		return "ok"
	}
	if v.Landmark >= 0 {
		return fmt.Sprintf("%s (%s)", v.Reason, l1landmarks.Name(v.Landmark))
	}
	return string(v.Reason)
}

// Gate evaluates frames against a Config.
type Gate struct {
	cfg Config
}

// NewGate validates cfg and returns a gate.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the gate thresholds.
func (g *Gate) Config() Config { return g.cfg }

// Evaluate checks a detector frame. An empty frame is rejected as
// ReasonNoDetection.
func (g *Gate) Evaluate(frame l1landmarks.Frame) (l1landmarks.Skeleton, Verdict) {
	if frame.Empty() {
		return l1landmarks.Skeleton{}, reject(ReasonNoDetection, -1)
	}
	s, ok := l1landmarks.SkeletonFromFrame(frame)
	if !ok {
		return l1landmarks.Skeleton{}, reject(ReasonMissingLandmarks, -1)
	}
	return s, g.EvaluateSkeleton(s)
}

// EvaluateSkeleton checks visibility first, then plausibility.
func (g *Gate) EvaluateSkeleton(s l1landmarks.Skeleton) Verdict {
	points := s.Points()
	for i, p := range points {
		if !(p.Visibility >= g.cfg.MinVisibility) {
			return reject(ReasonLowVisibility, l1landmarks.RequiredIndices[i])
		}
	}
	for i, p := range points {
		if !p.IsFinite() {
			return reject(ReasonNonFinite, l1landmarks.RequiredIndices[i])
		}
	}

	if d := l3geometry.Distance2D(s.LeftShoulder, s.RightShoulder); !longer(d, g.cfg.MinShoulderWidth) {
		return reject(ReasonShoulders, -1)
	}
	if d := l3geometry.Distance2D(s.LeftHip, s.RightHip); !longer(d, g.cfg.MinHipWidth) {
		return reject(ReasonHips, -1)
	}
	sm := l3geometry.Midpoint(s.LeftShoulder, s.RightShoulder)
	hm := l3geometry.Midpoint(s.LeftHip, s.RightHip)
	torso := math.Hypot(hm.X-sm.X, hm.Y-sm.Y)
	if !longer(torso, g.cfg.MinTorsoLength) {
		return reject(ReasonTorso, -1)
	}
	return pass()
}

// longer reports whether d is finite and strictly exceeds floor and the
// degenerate-vector floor.
func longer(d, floor float64) bool {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return false
	}
	return d > floor && d > l3geometry.DegenerateNorm
}
