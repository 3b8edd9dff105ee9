package l3geometry

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

// Midline is the body reference axis. Axis points from the shoulder
// midpoint towards the hip midpoint in the image plane, has unit length,
// and its Y component is never negative. A degenerate torso yields a zero
// Axis.
type Midline struct {
	ShoulderMid r3.Vec
	HipMid      r3.Vec
	Axis        r2.Vec
}

// Degenerate reports whether the axis has no direction.
func (m Midline) Degenerate() bool {
	return m.Axis == (r2.Vec{})
}

// Length returns the image-plane distance between the two midpoints.
func (m Midline) Length() float64 {
	return r2.Norm(r2.Sub(planar(m.HipMid), planar(m.ShoulderMid)))
}

func point3(l l1landmarks.Landmark) r3.Vec {
	return r3.Vec{X: l.X, Y: l.Y, Z: l.Z}
}

func point2(l l1landmarks.Landmark) r2.Vec {
	return r2.Vec{X: l.X, Y: l.Y}
}

func planar(v r3.Vec) r2.Vec {
	return r2.Vec{X: v.X, Y: v.Y}
}

// Midpoint returns the arithmetic mean of two landmark positions.
func Midpoint(a, b l1landmarks.Landmark) r3.Vec {
	return r3.Scale(0.5, r3.Add(point3(a), point3(b)))
}

// Distance2D returns the image-plane distance between two landmarks.
func Distance2D(a, b l1landmarks.Landmark) float64 {
	return r2.Norm(r2.Sub(point2(b), point2(a)))
}

// canonicalAxis normalises v and flips it so the vertical component is
// non-negative.
func canonicalAxis(v r2.Vec) r2.Vec {
	u := Unit(v)
	if u.Y < 0 {
		u = r2.Scale(-1, u)
	}
	return u
}

// ComputeMidline derives the midline from a skeleton. A fresh value is
// returned on every call.
func ComputeMidline(s l1landmarks.Skeleton) Midline {
	sm := Midpoint(s.LeftShoulder, s.RightShoulder)
	hm := Midpoint(s.LeftHip, s.RightHip)
	return Midline{
		ShoulderMid: sm,
		HipMid:      hm,
		Axis:        canonicalAxis(r2.Sub(planar(hm), planar(sm))),
	}
}

// Abduction returns the angle between the thigh (hip to knee) and the
// midline axis.
func Abduction(hip, knee l1landmarks.Landmark, axis r2.Vec) Angle {
	thigh := r2.Sub(point2(knee), point2(hip))
	return foldSupplementary(AngleBetween(thigh, axis))
}

// ComputeAngles returns both abduction angles and their mean.
func ComputeAngles(s l1landmarks.Skeleton, m Midline) AngleReading {
	left := Abduction(s.LeftHip, s.LeftKnee, m.Axis)
	right := Abduction(s.RightHip, s.RightKnee, m.Axis)
	return AngleReading{
		Left:    left,
		Right:   right,
		Average: Average(left, right),
	}
}

// Measure runs the whole geometry stage on a skeleton.
func Measure(s l1landmarks.Skeleton) (Midline, AngleReading) {
	m := ComputeMidline(s)
	return m, ComputeAngles(s, m)
}
