package l1landmarks

import (
	"encoding/json"
	"math"
)

// NumLandmarks is the size of the MediaPipe pose topology.
const NumLandmarks = 33

// Landmark indices used by the abduction measurement (MediaPipe pose).
const (
	LeftShoulder  = 11
	RightShoulder = 12
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
)

// Axis identifies one scalar channel of a landmark.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	NumAxes
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// Landmark is a single tracked skeletal point in normalised image
// coordinates. X and Y are nominally in [0,1] (Y grows downwards), Z is the
// detector's relative depth and Visibility its confidence in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// UnmarshalJSON applies the detector defaults: a missing depth is 0 and a
// missing visibility is 1.
func (l *Landmark) UnmarshalJSON(data []byte) error {
	var raw struct {
		X          float64  `json:"x"`
		Y          float64  `json:"y"`
		Z          *float64 `json:"z"`
		Visibility *float64 `json:"visibility"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.X, l.Y = raw.X, raw.Y
	l.Z = 0
	if raw.Z != nil {
		l.Z = *raw.Z
	}
	l.Visibility = 1
	if raw.Visibility != nil {
		l.Visibility = *raw.Visibility
	}
	return nil
}

// Component returns the value of the given axis.
func (l Landmark) Component(a Axis) float64 {
	switch a {
	case AxisX:
		return l.X
	case AxisY:
		return l.Y
	case AxisZ:
		return l.Z
	}
	return math.NaN()
}

// WithComponent returns a copy of l with axis a set to v.
func (l Landmark) WithComponent(a Axis, v float64) Landmark {
	switch a {
	case AxisX:
		l.X = v
	case AxisY:
		l.Y = v
	case AxisZ:
		l.Z = v
	}
	return l
}

// IsFinite reports whether every coordinate is a finite number.
func (l Landmark) IsFinite() bool {
	for _, v := range [...]float64{l.X, l.Y, l.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Frame is one detector result: the landmarks of a single pose at a point
// in source time.
type Frame struct {
	TimestampMs float64    `json:"timestamp_ms"`
	Landmarks   []Landmark `json:"landmarks"`
}

// Empty reports whether the detector found no pose.
func (f Frame) Empty() bool {
	return len(f.Landmarks) == 0
}

// Skeleton holds the six landmarks the midline and abduction angles are
// computed from.
type Skeleton struct {
	LeftShoulder  Landmark `json:"leftShoulder"`
	RightShoulder Landmark `json:"rightShoulder"`
	LeftHip       Landmark `json:"leftHip"`
	RightHip      Landmark `json:"rightHip"`
	LeftKnee      Landmark `json:"leftKnee"`
	RightKnee     Landmark `json:"rightKnee"`
}

// RequiredIndices lists the landmark indices a Skeleton is built from.
var RequiredIndices = [6]int{LeftShoulder, RightShoulder, LeftHip, RightHip, LeftKnee, RightKnee}

// Name returns the export name of a required landmark index, or "" for any
// other index.
func Name(index int) string {
	switch index {
	case LeftShoulder:
		return "leftShoulder"
	case RightShoulder:
		return "rightShoulder"
	case LeftHip:
		return "leftHip"
	case RightHip:
		return "rightHip"
	case LeftKnee:
		return "leftKnee"
	case RightKnee:
		return "rightKnee"
	}
	return ""
}

// SkeletonFromFrame extracts the six required landmarks. It returns false
// when the frame is too short to contain them.
func SkeletonFromFrame(f Frame) (Skeleton, bool) {
	if len(f.Landmarks) <= RightKnee {
		return Skeleton{}, false
	}
	lm := f.Landmarks
	return Skeleton{
		LeftShoulder:  lm[LeftShoulder],
		RightShoulder: lm[RightShoulder],
		LeftHip:       lm[LeftHip],
		RightHip:      lm[RightHip],
		LeftKnee:      lm[LeftKnee],
		RightKnee:     lm[RightKnee],
	}, true
}

// Points returns the landmarks in RequiredIndices order.
func (s Skeleton) Points() [6]Landmark {
	return [6]Landmark{s.LeftShoulder, s.RightShoulder, s.LeftHip, s.RightHip, s.LeftKnee, s.RightKnee}
}

// Mirrored swaps every left landmark with its right counterpart.
func (s Skeleton) Mirrored() Skeleton {
	return Skeleton{
		LeftShoulder:  s.RightShoulder,
		RightShoulder: s.LeftShoulder,
		LeftHip:       s.RightHip,
		RightHip:      s.LeftHip,
		LeftKnee:      s.RightKnee,
		RightKnee:     s.LeftKnee,
	}
}
