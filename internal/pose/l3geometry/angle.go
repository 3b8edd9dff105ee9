package l3geometry

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DegenerateNorm is the length below which a vector is treated as zero.
const DegenerateNorm = 1e-6

// Angle is an angle in degrees that may be undefined.
type Angle struct {
	Deg     float64
	Defined bool
}

// Degrees returns a defined angle.
func Degrees(d float64) Angle { return Angle{Deg: d, Defined: true} }

// Undefined returns the undefined angle.
func Undefined() Angle { return Angle{} }

// Ptr returns nil for an undefined angle, otherwise a pointer to the value.
func (a Angle) Ptr() *float64 {
	if !a.Defined {
		return nil
	}
	d := a.Deg
	return &d
}

// MarshalJSON encodes an undefined angle as null.
func (a Angle) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Ptr())
}

// UnmarshalJSON decodes null as an undefined angle.
func (a *Angle) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*a = Undefined()
		return nil
	}
	*a = Degrees(*v)
	return nil
}

// Unit returns v scaled to unit length, or the zero vector when v is too
// short (or not finite) to have a direction.
func Unit(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if !(n > DegenerateNorm) || math.IsInf(n, 0) {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// AngleBetween returns the angle between a and b in [0, 180] degrees. It is
// undefined when either vector has no direction.
func AngleBetween(a, b r2.Vec) Angle {
	ua, ub := Unit(a), Unit(b)
	if ua == (r2.Vec{}) || ub == (r2.Vec{}) {
		return Undefined()
	}
	c := math.Max(-1, math.Min(1, r2.Dot(ua, ub)))
	return Degrees(math.Acos(c) * 180 / math.Pi)
}

// foldSupplementary maps a reflex angle onto its explement. AngleBetween
// already yields [0,180], so this only changes malformed input.
func foldSupplementary(a Angle) Angle {
	if a.Defined && a.Deg > 180 {
		return Degrees(360 - a.Deg)
	}
	return a
}

// AngleReading holds both abduction angles and their mean.
type AngleReading struct {
	Left    Angle `json:"leftAngle"`
	Right   Angle `json:"rightAngle"`
	Average Angle `json:"avgAngle"`
}

// Defined reports whether both sides (and so the average) are defined.
func (r AngleReading) Defined() bool {
	return r.Left.Defined && r.Right.Defined
}

// Average returns the arithmetic mean of two angles, undefined if either
// is undefined.
func Average(left, right Angle) Angle {
	if !left.Defined || !right.Defined {
		return Undefined()
	}
	return Degrees((left.Deg + right.Deg) / 2)
}
