// Package wellclear is the default well-clear violation detector. It
// projects the pair onto a local flat-earth plane centred on the ownship
// and applies the horizontal modified-tau and vertical co-altitude tests.
package wellclear

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/wellclear/internal/monitor"
	"github.com/banshee-data/wellclear/internal/telemetry"
	"github.com/banshee-data/wellclear/internal/units"
)

// Geometry is the relative state of one encounter and the verdict of each
// test. Times are in seconds and distances in feet. Times that do not apply
// are NaN.
type Geometry struct {
	Position r2.Vec // intruder relative to ownship, x east, y north
	Velocity r2.Vec // intruder velocity relative to ownship

	Range  float64
	TauMod float64
	TCPA   float64
	DCPA   float64

	DZ   float64 // intruder altitude minus ownship altitude
	VZ   float64 // relative vertical speed
	TCOA float64

	Horizontal bool
	Vertical   bool
}

// Violation reports a loss of well clear: both tests failed at once.
func (g Geometry) Violation() bool { return g.Horizontal && g.Vertical }

// Detector is stateless and safe for concurrent use.
type Detector struct{}

var _ monitor.Detector = Detector{}

// Detect implements monitor.Detector.
func (Detector) Detect(ownship, intruder telemetry.VehicleSnapshot, th monitor.Thresholds) bool {
	return Analyze(ownship, intruder, th).Violation()
}

// Analyze computes the encounter geometry for one ownship/intruder pair.
func Analyze(ownship, intruder telemetry.VehicleSnapshot, th monitor.Thresholds) Geometry {
	g := Geometry{
		Position: relativePosition(ownship, intruder),
		Velocity: r2.Sub(velocity(intruder), velocity(ownship)),
		TauMod:   math.NaN(),
		TCPA:     math.NaN(),
		DCPA:     math.NaN(),
		TCOA:     math.NaN(),
		DZ:       intruder.Altitude - ownship.Altitude,
		VZ: units.FeetPerMinuteToFeetPerSecond(intruder.VerticalSpeed) -
			units.FeetPerMinuteToFeetPerSecond(ownship.VerticalSpeed),
	}
	g.Range = r2.Norm(g.Position)

	sv := r2.Dot(g.Position, g.Velocity)
	if vv := r2.Dot(g.Velocity, g.Velocity); vv > 0 {
		g.TCPA = -sv / vv
		g.DCPA = r2.Norm(r2.Add(g.Position, r2.Scale(math.Max(g.TCPA, 0), g.Velocity)))
	}
	if sv < 0 {
		g.TauMod = (th.DistanceFt*th.DistanceFt - r2.Dot(g.Position, g.Position)) / sv
	}
	g.Horizontal = g.Range <= th.DistanceFt ||
		(sv < 0 && g.TauMod >= 0 && g.TauMod <= th.TauSeconds && g.DCPA <= th.DistanceFt)

	if g.DZ*g.VZ < 0 {
		g.TCOA = -g.DZ / g.VZ
	}
	g.Vertical = math.Abs(g.DZ) <= th.AltitudeFt ||
		(g.TCOA >= 0 && g.TCOA <= th.TCOASeconds)
	return g
}

// relativePosition projects the intruder onto an east/north plane in feet
// around the pair's mean latitude.
func relativePosition(own, intr telemetry.VehicleSnapshot) r2.Vec {
	meanLat := (own.Latitude + intr.Latitude) / 2 * math.Pi / 180
	return r2.Vec{
		X: (intr.Longitude - own.Longitude) * units.FeetPerDegreeLatitude * math.Cos(meanLat),
		Y: (intr.Latitude - own.Latitude) * units.FeetPerDegreeLatitude,
	}
}

// velocity returns ground velocity in ft/s; track is degrees clockwise
// from true north.
func velocity(v telemetry.VehicleSnapshot) r2.Vec {
	gs := units.KnotsToFeetPerSecond(v.GroundSpeed)
	trk := v.GroundTrack * math.Pi / 180
	return r2.Vec{X: gs * math.Sin(trk), Y: gs * math.Cos(trk)}
}
