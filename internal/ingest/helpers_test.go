package ingest

import (
	"testing"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

// muteLogs silences the package logger for the duration of a test.
func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func record(t *testing.T, seq int64, id string, alt float64) []byte {
	t.Helper()
	b, err := telemetry.Encode(telemetry.Message{
		Sequence: seq,
		Vehicle: telemetry.VehicleSnapshot{
			ID: id, Latitude: 37.0, Longitude: -76.5, Altitude: alt,
			GroundSpeed: 90, GroundTrack: 45, VerticalSpeed: 0, TimeMs: uint32(seq) * 100,
		},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

func newWorker(t *testing.T, capacity int) (*Worker, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(capacity)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	w, err := NewWorker(WorkerConfig{Registry: reg})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w, reg
}

func mustRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(8)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}
