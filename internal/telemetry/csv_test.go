package telemetry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplayLine(t *testing.T) {
	got, err := ParseReplayLine("TRAF1, 37.02641019, -76.59844441, 656.36590000, 128.55563983, 26.38695916, 0.00000000, 22.0\n")
	require.NoError(t, err)

	want := VehicleSnapshot{
		ID:            "TRAF1",
		Latitude:      37.02641019,
		Longitude:     -76.59844441,
		Altitude:      656.3659,
		GroundTrack:   128.55563983,
		GroundSpeed:   26.38695916,
		VerticalSpeed: 0,
		TimeMs:        22000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseReplayLine mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReplayLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few columns", "TRAF1, 1, 2, 3"},
		{"name too long", "TRAFFIC1, 1, 2, 3, 4, 5, 6, 7"},
		{"empty name", " , 1, 2, 3, 4, 5, 6, 7"},
		{"bad number", "TRAF1, 1, x, 3, 4, 5, 6, 7"},
		{"negative time", "TRAF1, 1, 2, 3, 4, 5, 6, -1"},
		{"NaN time", "TRAF1, 1, 2, 3, 4, 5, 6, NaN"},
		{"infinite time", "TRAF1, 1, 2, 3, 4, 5, 6, +Inf"},
		{"time past uint32 ms", "TRAF1, 1, 2, 3, 4, 5, 6, 4294968"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReplayLine(tt.line)
			assert.Error(t, err)
		})
	}
}
