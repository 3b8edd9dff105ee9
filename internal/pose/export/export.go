// Package export serialises recorded sessions at fixed precision so that
// repeated exports of the same data are byte-identical.
//
// Coordinates are written with 5 decimal places, angles with 2 and time
// offsets with 1. Fields of invalid records are written as null.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/units"
)

// Vec3 is a midline endpoint.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point is an exported landmark with its visibility.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	V float64 `json:"v"`
}

// Midline holds the two midline endpoints.
type Midline struct {
	ShoulderMid Vec3 `json:"S_mid"`
	HipMid      Vec3 `json:"H_mid"`
}

// Record is the export form of one sample.
type Record struct {
	PatientCode   string   `json:"patientCode"`
	Index         int      `json:"index"`
	Timestamp     float64  `json:"timestamp"` // offset from session start, ms
	AvgAngle      *float64 `json:"avgAngle"`
	LeftAngle     *float64 `json:"leftAngle"`
	RightAngle    *float64 `json:"rightAngle"`
	Valid         bool     `json:"valid"`
	Quality       string   `json:"quality"`
	Midline       *Midline `json:"midline"`
	LeftShoulder  *Point   `json:"leftShoulder"`
	RightShoulder *Point   `json:"rightShoulder"`
	LeftHip       *Point   `json:"leftHip"`
	RightHip      *Point   `json:"rightHip"`
	LeftKnee      *Point   `json:"leftKnee"`
	RightKnee     *Point   `json:"rightKnee"`
}

func coord(v float64) float64 { return units.Round(v, units.CoordinatePlaces) }

func angle(a l3geometry.Angle) *float64 {
	return units.RoundPtr(a.Ptr(), units.AnglePlaces)
}

func point(l l1landmarks.Landmark) *Point {
	return &Point{X: coord(l.X), Y: coord(l.Y), Z: coord(l.Z), V: coord(l.Visibility)}
}

// FromSample converts one sample record to its rounded export form.
func FromSample(r sampler.SampleRecord) Record {
	out := Record{
		PatientCode: r.SubjectID,
		Index:       r.Index,
		Timestamp:   units.Round(r.OffsetMs, units.OffsetPlaces),
		Valid:       r.Valid,
		Quality:     r.Quality,
	}
	if !r.Valid {
		return out
	}
	out.AvgAngle = angle(r.Angles.Average)
	out.LeftAngle = angle(r.Angles.Left)
	out.RightAngle = angle(r.Angles.Right)
	if m := r.Midline; m != nil {
		out.Midline = &Midline{
			ShoulderMid: Vec3{X: coord(m.ShoulderMid.X), Y: coord(m.ShoulderMid.Y), Z: coord(m.ShoulderMid.Z)},
			HipMid:      Vec3{X: coord(m.HipMid.X), Y: coord(m.HipMid.Y), Z: coord(m.HipMid.Z)},
		}
	}
	if s := r.Landmarks; s != nil {
		out.LeftShoulder = point(s.LeftShoulder)
		out.RightShoulder = point(s.RightShoulder)
		out.LeftHip = point(s.LeftHip)
		out.RightHip = point(s.RightHip)
		out.LeftKnee = point(s.LeftKnee)
		out.RightKnee = point(s.RightKnee)
	}
	return out
}

// FromSession converts every record of sess in order.
func FromSession(sess *sampler.Session) []Record {
	out := make([]Record, len(sess.Records))
	for i, r := range sess.Records {
		out[i] = FromSample(r)
	}
	return out
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

// ReadJSON parses a JSON array written by WriteJSON.
func ReadJSON(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
