// Package monitor runs the pairwise well-clear scan over the vehicle
// registry and hands detector verdicts to alert sinks.
package monitor

import (
	"github.com/banshee-data/wellclear/internal/telemetry"
)

// Thresholds are the detection limits passed unchanged to every detector
// call. They are fixed at startup.
type Thresholds struct {
	DistanceFt  float64 `json:"dthr"`    // horizontal distance threshold
	TauSeconds  float64 `json:"tthr"`    // horizontal time threshold
	AltitudeFt  float64 `json:"zthr"`    // vertical distance threshold
	TCOASeconds float64 `json:"tcoathr"` // time-to-co-altitude threshold
}

// DefaultThresholds are the well-clear limits used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{DistanceFt: 4000, TauSeconds: 35, AltitudeFt: 450, TCOASeconds: 0}
}

// Detector decides whether an ownship/intruder pair is in well-clear
// violation. Implementations must keep no state between calls.
type Detector interface {
	Detect(ownship, intruder telemetry.VehicleSnapshot, th Thresholds) bool
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ownship, intruder telemetry.VehicleSnapshot, th Thresholds) bool

func (f DetectorFunc) Detect(ownship, intruder telemetry.VehicleSnapshot, th Thresholds) bool {
	return f(ownship, intruder, th)
}
