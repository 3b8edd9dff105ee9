package l3geometry

import "fmt"

// Zone is the clinical band an abduction angle falls into.
type Zone string

const (
	ZoneNominal    Zone = "nominal"
	ZoneCaution    Zone = "caution"
	ZoneOutOfRange Zone = "out_of_range"
	ZoneUndefined  Zone = "undefined"
)

// Color returns the overlay colour renderers use for the zone.
func (z Zone) Color() string {
	switch z {
	case ZoneNominal:
		return "#34a853"
	case ZoneCaution:
		return "#f9ab00"
	case ZoneOutOfRange:
		return "#ea4335"
	default:
		return "#9aa0a6"
	}
}

// Zones holds the angle thresholds (degrees). Angles in
// [NominalMin, NominalMax] are nominal, (NominalMax, CautionMax] caution,
// everything else out of range.
type Zones struct {
	NominalMin float64 `json:"nominal_min"`
	NominalMax float64 `json:"nominal_max"`
	CautionMax float64 `json:"caution_max"`
}

// DefaultZones returns the thresholds used in clinic.
func DefaultZones() Zones {
	return Zones{NominalMin: 30, NominalMax: 45, CautionMax: 60}
}

// Validate checks the thresholds are ordered and within [0, 180].
func (z Zones) Validate() error {
	if z.NominalMin < 0 || z.CautionMax > 180 {
		return fmt.Errorf("zone thresholds must lie in [0, 180], got %v..%v", z.NominalMin, z.CautionMax)
	}
	if !(z.NominalMin <= z.NominalMax && z.NominalMax <= z.CautionMax) {
		return fmt.Errorf("zone thresholds must be ordered nominal_min <= nominal_max <= caution_max, got %v, %v, %v",
			z.NominalMin, z.NominalMax, z.CautionMax)
	}
	return nil
}

// Classify returns the zone of a.
func (z Zones) Classify(a Angle) Zone {
	switch {
	case !a.Defined:
		return ZoneUndefined
	case a.Deg >= z.NominalMin && a.Deg <= z.NominalMax:
		return ZoneNominal
	case a.Deg > z.NominalMax && a.Deg <= z.CautionMax:
		return ZoneCaution
	default:
		return ZoneOutOfRange
	}
}
