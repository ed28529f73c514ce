// Package units provides the aviation unit constants used by the detector
// and speed display units for the HTTP API.
package units

// Speed display units
const (
	KT  = "kt"
	MPS = "mps"
	MPH = "mph"
	KPH = "kph"
)

// ValidUnits contains all valid display units
var ValidUnits = []string{KT, MPS, MPH, KPH}

// Conversion factors. Telemetry carries knots, feet and feet per minute.
const (
	FeetPerSecondPerKnot = 1.68781
	MetersPerFoot        = 0.3048
	// FeetPerDegreeLatitude is the flat-earth length of one degree of
	// latitude (60 nautical miles).
	FeetPerDegreeLatitude = 60 * 6076.12
)

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kt, mps, mph, kph"
}

// ConvertSpeed converts a speed in knots to the target units.
// Unknown units return knots unchanged.
func ConvertSpeed(knots float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return knots * 0.514444
	case MPH:
		return knots * 1.150779
	case KPH:
		return knots * 1.852
	default:
		return knots
	}
}

// KnotsToFeetPerSecond converts a horizontal speed.
func KnotsToFeetPerSecond(kt float64) float64 { return kt * FeetPerSecondPerKnot }

// FeetPerMinuteToFeetPerSecond converts a vertical speed.
func FeetPerMinuteToFeetPerSecond(fpm float64) float64 { return fpm / 60 }
