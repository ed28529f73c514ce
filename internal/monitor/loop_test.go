package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/telemetry"
	"github.com/banshee-data/wellclear/internal/timeutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

type pair struct{ own, intr string }

// recordingDetector remembers every pair it is asked about and flags the
// pairs listed in violations.
type recordingDetector struct {
	mu         sync.Mutex
	calls      []pair
	thresholds []Thresholds
	violations map[pair]bool
}

func (d *recordingDetector) Detect(own, intr telemetry.VehicleSnapshot, th Thresholds) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := pair{own.ID, intr.ID}
	d.calls = append(d.calls, p)
	d.thresholds = append(d.thresholds, th)
	return d.violations[p]
}

func (d *recordingDetector) Calls() []pair {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pair(nil), d.calls...)
}

func vehicle(id string) telemetry.VehicleSnapshot {
	return telemetry.VehicleSnapshot{ID: id, Latitude: 37, Longitude: -76, Altitude: 1000}
}

func newReg(t *testing.T, capacity int) *registry.Registry {
	t.Helper()
	r, err := registry.New(capacity)
	require.NoError(t, err)
	return r
}

func TestNewLoop_Validation(t *testing.T) {
	reg := newReg(t, 2)
	_, err := NewLoop(Config{Detector: &recordingDetector{}})
	assert.Error(t, err)
	_, err = NewLoop(Config{Registry: reg})
	assert.Error(t, err)

	l, err := NewLoop(Config{Registry: reg, Detector: &recordingDetector{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultCycleDelay, l.delay)
	assert.IsType(t, LogSink{}, l.sink)
	assert.Equal(t, Waiting, l.State())
}

// TestScan_BothDirections: two fresh vehicles are each checked as ownship
// against the other exactly once in one pass.
func TestScan_BothDirections(t *testing.T) {
	reg := newReg(t, 2)
	reg.Upsert("AAA", 1, vehicle("AAA"))
	reg.Upsert("BBB", 2, vehicle("BBB"))
	require.Equal(t, 2, reg.Count())

	det := &recordingDetector{}
	th := Thresholds{DistanceFt: 1000, TauSeconds: 1000, AltitudeFt: 1000, TCOASeconds: 1000}
	l, err := NewLoop(Config{Registry: reg, Detector: det, Thresholds: th})
	require.NoError(t, err)

	calls, err := l.Scan()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []pair{{"AAA", "BBB"}, {"BBB", "AAA"}}, det.Calls())
	for _, got := range det.thresholds {
		assert.Equal(t, th, got)
	}

	// Nothing new arrived: the next pass checks nothing.
	calls, err = l.Scan()
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Len(t, det.Calls(), 2)
}

func TestScan_OnlyFreshOwnshipsPair(t *testing.T) {
	reg := newReg(t, 4)
	for i, id := range []string{"AAA", "BBB", "CCC"} {
		reg.Upsert(id, int64(i), vehicle(id))
	}
	det := &recordingDetector{}
	l, err := NewLoop(Config{Registry: reg, Detector: det})
	require.NoError(t, err)

	_, err = l.Scan()
	require.NoError(t, err)
	require.Len(t, det.Calls(), 6)

	// Only CCC updates; it is checked against both others, in index order.
	reg.Upsert("CCC", 10, vehicle("CCC"))
	calls, err := l.Scan()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []pair{{"CCC", "AAA"}, {"CCC", "BBB"}}, det.Calls()[6:])
}

func TestScan_AlertDoesNotStopScan(t *testing.T) {
	muteLogs(t)
	reg := newReg(t, 3)
	for i, id := range []string{"AAA", "BBB", "CCC"} {
		reg.Upsert(id, int64(i), vehicle(id))
	}
	det := &recordingDetector{violations: map[pair]bool{{"AAA", "BBB"}: true, {"CCC", "BBB"}: true}}
	mem := NewMemorySink(10)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	l, err := NewLoop(Config{
		Registry: reg,
		Detector: det,
		Sink:     MultiSink{LogSink{}, mem},
		Clock:    timeutil.NewMockClock(start),
		Verbose:  true,
	})
	require.NoError(t, err)

	calls, err := l.Scan()
	require.NoError(t, err)
	assert.Equal(t, 6, calls)

	alerts := mem.Recent(0)
	require.Len(t, alerts, 2)
	assert.Equal(t, "CCC", alerts[0].Ownship.ID)
	assert.Equal(t, "BBB", alerts[0].Intruder.ID)
	assert.Equal(t, "AAA", alerts[1].Ownship.ID)
	assert.Equal(t, start, alerts[1].DetectedAt)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)

	st := l.Stats()
	assert.Equal(t, int64(1), st.Cycles)
	assert.Equal(t, int64(6), st.Checks)
	assert.Equal(t, int64(2), st.Alerts)
}

// TestRun_WaitsForSecondVehicle: with a single identifier ever seen, the
// loop stays in Waiting and never calls the detector.
func TestRun_WaitsForSecondVehicle(t *testing.T) {
	muteLogs(t)
	reg := newReg(t, 4)
	reg.Upsert("AAA", 1, vehicle("AAA"))
	reg.Upsert("AAA", 2, vehicle("AAA"))

	det := &recordingDetector{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	l, err := NewLoop(Config{Registry: reg, Detector: det, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Waiting, l.State())
	assert.Empty(t, det.Calls())

	reg.Upsert("BBB", 3, vehicle("BBB"))
	require.Eventually(t, func() bool { return l.Stats().Cycles == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, det.Calls(), 2)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRun_PacesWithCycleDelay(t *testing.T) {
	muteLogs(t)
	reg := newReg(t, 4)
	reg.Upsert("AAA", 1, vehicle("AAA"))
	reg.Upsert("BBB", 2, vehicle("BBB"))

	det := &recordingDetector{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	l, err := NewLoop(Config{Registry: reg, Detector: det, Clock: clock, CycleDelay: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, Idle, l.State())
	assert.Equal(t, int64(1), l.Stats().Cycles)

	reg.Upsert("AAA", 3, vehicle("AAA"))
	clock.Advance(999 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), l.Stats().Cycles, "scanned before the delay elapsed")

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return l.Stats().Cycles == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []pair{{"AAA", "BBB"}, {"BBB", "AAA"}, {"AAA", "BBB"}}, det.Calls())

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	l, err := NewLoop(Config{Registry: newReg(t, 2), Detector: &recordingDetector{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
}

// brokenRegistry reports more entries than it can serve.
type brokenRegistry struct{ *registry.Registry }

func (b brokenRegistry) Count() int { return b.Registry.Count() + 1 }

func TestScan_RegistryErrorIsReturned(t *testing.T) {
	reg := newReg(t, 2)
	reg.Upsert("AAA", 1, vehicle("AAA"))
	reg.Upsert("BBB", 2, vehicle("BBB"))
	l, err := NewLoop(Config{Registry: brokenRegistry{reg}, Detector: &recordingDetector{}})
	require.NoError(t, err)

	_, err = l.Scan()
	assert.ErrorIs(t, err, registry.ErrNoEntry)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "pairing", Pairing.String())
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "State(7)", State(7).String())
}
