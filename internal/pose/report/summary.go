// Package report summarises recorded sessions and renders them as a PNG
// plot or an interactive HTML chart.
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/units"
)

// AngleStats describes one angle channel over the valid records of a
// session. All fields are zero when Count is zero.
type AngleStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summary is the per-session report.
type Summary struct {
	SessionID     string                  `json:"session_id"`
	SubjectID     string                  `json:"subject_id"`
	StartedAt     time.Time               `json:"started_at"`
	Timezone      string                  `json:"timezone"`
	Status        sampler.Status          `json:"status"`
	Records       int                     `json:"records"`
	Valid         int                     `json:"valid"`
	ValidFraction float64                 `json:"valid_fraction"`
	Left          AngleStats              `json:"left"`
	Right         AngleStats              `json:"right"`
	Average       AngleStats              `json:"average"`
	Asymmetry     float64                 `json:"asymmetry"` // mean |left - right|
	Zones         map[l3geometry.Zone]int `json:"zones"`
	Quality       map[string]int          `json:"quality"`
}

func angleStats(xs []float64) AngleStats {
	if len(xs) == 0 {
		return AngleStats{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return AngleStats{
		Count:  len(sorted),
		Mean:   units.Round(mean, units.AnglePlaces),
		StdDev: units.Round(std, units.AnglePlaces),
		Min:    units.Round(floats.Min(sorted), units.AnglePlaces),
		Median: units.Round(stat.Quantile(0.5, stat.Empirical, sorted, nil), units.AnglePlaces),
		P90:    units.Round(stat.Quantile(0.9, stat.Empirical, sorted, nil), units.AnglePlaces),
		Max:    units.Round(floats.Max(sorted), units.AnglePlaces),
	}
}

// Summarize computes per-channel statistics and zone occupancy of the
// average angle. StartedAt is expressed in tz ("" means UTC).
func Summarize(sess *sampler.Session, zones l3geometry.Zones, tz string) (Summary, error) {
	if sess == nil {
		return Summary{}, sampler.ErrNoSession
	}
	started, err := units.ConvertTime(sess.StartedAt, tz)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		SessionID: sess.ID,
		SubjectID: sess.SubjectID,
		StartedAt: started,
		Timezone:  units.TimezoneLabel(tz, sess.StartedAt),
		Status:    sess.Status,
		Records:   len(sess.Records),
		Zones:     map[l3geometry.Zone]int{},
		Quality:   map[string]int{},
	}

	var left, right, avg, diff []float64
	for _, r := range sess.Records {
		sum.Quality[r.Quality]++
		if !r.Valid {
			continue
		}
		sum.Valid++
		sum.Zones[zones.Classify(r.Angles.Average)]++
		if r.Angles.Left.Defined {
			left = append(left, r.Angles.Left.Deg)
		}
		if r.Angles.Right.Defined {
			right = append(right, r.Angles.Right.Deg)
		}
		if r.Angles.Average.Defined {
			avg = append(avg, r.Angles.Average.Deg)
		}
		if r.Angles.Left.Defined && r.Angles.Right.Defined {
			d := r.Angles.Left.Deg - r.Angles.Right.Deg
			if d < 0 {
				d = -d
			}
			diff = append(diff, d)
		}
	}
	if sum.Records > 0 {
		sum.ValidFraction = units.Round(float64(sum.Valid)/float64(sum.Records), 4)
	}
	sum.Left = angleStats(left)
	sum.Right = angleStats(right)
	sum.Average = angleStats(avg)
	if len(diff) > 0 {
		sum.Asymmetry = units.Round(stat.Mean(diff, nil), units.AnglePlaces)
	}
	return sum, nil
}

// series is one angle channel as parallel offset/value slices, with NaN
// marking records without a measurement.
type series struct {
	name   string
	offset []float64 // seconds
	value  []float64
}

func channels(sess *sampler.Session) []series {
	pick := []struct {
		name string
		get  func(l3geometry.AngleReading) l3geometry.Angle
	}{
		{"left", func(a l3geometry.AngleReading) l3geometry.Angle { return a.Left }},
		{"right", func(a l3geometry.AngleReading) l3geometry.Angle { return a.Right }},
		{"average", func(a l3geometry.AngleReading) l3geometry.Angle { return a.Average }},
	}
	out := make([]series, len(pick))
	for i, p := range pick {
		s := series{name: p.name, offset: make([]float64, len(sess.Records)), value: make([]float64, len(sess.Records))}
		for j, r := range sess.Records {
			s.offset[j] = r.OffsetMs / 1000
			a := p.get(r.Angles)
			if r.Valid && a.Defined {
				s.value[j] = a.Deg
			} else {
				s.value[j] = nan
			}
		}
		out[i] = s
	}
	return out
}
