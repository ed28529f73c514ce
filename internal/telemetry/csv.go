package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseReplayLine parses one line of a replay file. Columns are:
//
//	name, latitude, longitude, altitude (ft), track (deg), ground speed (kt),
//	vertical speed (ft/min), time (s)
//
// Note the file order puts track before ground speed, unlike the wire record.
func ParseReplayLine(line string) (VehicleSnapshot, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 8 {
		return VehicleSnapshot{}, fmt.Errorf("expected 8 columns, got %d", len(fields))
	}

	name := strings.TrimSpace(fields[0])
	if name == "" || len(name) > MaxIdentifierLen {
		return VehicleSnapshot{}, fmt.Errorf("%w: %q", ErrIdentifier, name)
	}

	var vals [7]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return VehicleSnapshot{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}

	secs := vals[6]
	if math.IsNaN(secs) || secs < 0 || secs*1000 > math.MaxUint32 {
		return VehicleSnapshot{}, fmt.Errorf("time %v s out of range", secs)
	}

	return VehicleSnapshot{
		ID:            name,
		Latitude:      vals[0],
		Longitude:     vals[1],
		Altitude:      vals[2],
		GroundTrack:   vals[3],
		GroundSpeed:   vals[4],
		VerticalSpeed: vals[5],
		TimeMs:        uint32(secs * 1000),
	}, nil
}
