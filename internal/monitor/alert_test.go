package monitor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

func alertFor(own, intr string) Alert {
	return Alert{Ownship: vehicle(own), Intruder: vehicle(intr)}
}

func TestMemorySink_Ring(t *testing.T) {
	m := NewMemorySink(3)
	assert.Empty(t, m.Recent(0))

	for i := 0; i < 5; i++ {
		m.Alert(alertFor(fmt.Sprintf("O%d", i), "I"))
	}

	got := m.Recent(0)
	assert.Len(t, got, 3)
	assert.Equal(t, "O4", got[0].Ownship.ID)
	assert.Equal(t, "O2", got[2].Ownship.ID)
	assert.Len(t, m.Recent(2), 2)
	assert.Equal(t, int64(5), m.Total())
}

func TestMemorySink_MinimumSize(t *testing.T) {
	m := NewMemorySink(0)
	m.Alert(alertFor("A", "B"))
	m.Alert(alertFor("C", "D"))
	got := m.Recent(10)
	assert.Len(t, got, 1)
	assert.Equal(t, "C", got[0].Ownship.ID)
}

func TestLogSink(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	LogSink{}.Alert(alertFor("N123", "N456"))
	assert.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[1], "Ownship: N123, Intruder: N456"), lines[1])
}

func TestMultiSink(t *testing.T) {
	a, b := NewMemorySink(2), NewMemorySink(2)
	MultiSink{a, b}.Alert(alertFor("A", "B"))
	assert.Equal(t, int64(1), a.Total())
	assert.Equal(t, int64(1), b.Total())
}

func TestDetectorFunc(t *testing.T) {
	var d Detector = DetectorFunc(func(own, intr telemetry.VehicleSnapshot, th Thresholds) bool {
		return own.ID == "A" && th.DistanceFt > 0
	})
	assert.True(t, d.Detect(vehicle("A"), vehicle("B"), DefaultThresholds()))
	assert.False(t, d.Detect(vehicle("B"), vehicle("A"), DefaultThresholds()))
}
