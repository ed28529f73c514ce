// Package telemetry defines the vehicle snapshot carried in each telemetry
// datagram and the fixed-size binary record used on the wire.
package telemetry

import "fmt"

// IdentifierSize is the width of the identifier field on the wire: seven
// usable characters plus a NUL terminator.
const IdentifierSize = 8

// MaxIdentifierLen is the longest identifier that can be encoded.
const MaxIdentifierLen = IdentifierSize - 1

// VehicleSnapshot is one vehicle's kinematic state as reported by the
// producer. It is a plain value and is copied, never shared, across
// goroutines.
type VehicleSnapshot struct {
	ID            string  `json:"id"`
	Latitude      float64 `json:"lat"`     // degrees
	Longitude     float64 `json:"lon"`     // degrees
	Altitude      float64 `json:"alt_ft"`  // feet
	GroundSpeed   float64 `json:"gs_kt"`   // knots
	GroundTrack   float64 `json:"trk_deg"` // degrees clockwise from true north
	VerticalSpeed float64 `json:"vs_fpm"`  // feet per minute
	TimeMs        uint32  `json:"time_ms"` // producer timestamp
}

func (v VehicleSnapshot) String() string {
	return fmt.Sprintf("%s lat=%.6f lon=%.6f alt=%.0fft gs=%.1fkt trk=%.1f vs=%.0ffpm t=%dms",
		v.ID, v.Latitude, v.Longitude, v.Altitude, v.GroundSpeed, v.GroundTrack, v.VerticalSpeed, v.TimeMs)
}

// Message is a decoded telemetry datagram.
type Message struct {
	Sequence int64
	Vehicle  VehicleSnapshot
}
