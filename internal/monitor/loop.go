package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/telemetry"
	"github.com/banshee-data/wellclear/internal/timeutil"
)

// DefaultCycleDelay is the pause between full scans.
const DefaultCycleDelay = 500 * time.Millisecond

// State is the monitor loop's position in its cycle.
type State int32

const (
	Waiting  State = iota // fewer than two vehicles tracked
	Scanning              // walking ownship candidates
	Pairing               // checking one fresh ownship against every intruder
	Idle                  // inter-cycle delay
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Scanning:
		return "scanning"
	case Pairing:
		return "pairing"
	case Idle:
		return "idle"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Registry is the read side of the vehicle registry.
type Registry interface {
	Count() int
	Ready() <-chan struct{}
	ConsumeFreshness(i int) (bool, telemetry.VehicleSnapshot, error)
	ReadSnapshot(i int) (telemetry.VehicleSnapshot, error)
}

// Config configures a Loop.
type Config struct {
	Registry   Registry
	Detector   Detector
	Thresholds Thresholds
	Sink       AlertSink      // defaults to LogSink
	CycleDelay time.Duration  // defaults to DefaultCycleDelay
	Clock      timeutil.Clock // defaults to the real clock
	Verbose    bool           // log every pair checked
}

// LoopStats are cumulative loop counters.
type LoopStats struct {
	State  string `json:"state"`
	Cycles int64  `json:"cycles"`
	Checks int64  `json:"checks"`
	Alerts int64  `json:"alerts"`
}

// Loop is the monitor control loop. Run drives it; Scan performs a single
// pass and is exposed for callers that pace themselves.
type Loop struct {
	registry   Registry
	detector   Detector
	thresholds Thresholds
	sink       AlertSink
	delay      time.Duration
	clock      timeutil.Clock
	verbose    bool

	state  atomic.Int32
	cycles atomic.Int64
	checks atomic.Int64
	alerts atomic.Int64
}

// NewLoop validates cfg and returns a loop in the Waiting state.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Registry == nil {
		return nil, errors.New("monitor: loop requires a registry")
	}
	if cfg.Detector == nil {
		return nil, errors.New("monitor: loop requires a detector")
	}
	l := &Loop{
		registry:   cfg.Registry,
		detector:   cfg.Detector,
		thresholds: cfg.Thresholds,
		sink:       cfg.Sink,
		delay:      cfg.CycleDelay,
		clock:      cfg.Clock,
		verbose:    cfg.Verbose,
	}
	if l.sink == nil {
		l.sink = LogSink{}
	}
	if l.delay <= 0 {
		l.delay = DefaultCycleDelay
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l, nil
}

// State returns the loop's current state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Stats returns the loop counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		State:  l.State().String(),
		Cycles: l.cycles.Load(),
		Checks: l.checks.Load(),
		Alerts: l.alerts.Load(),
	}
}

// Run waits until two vehicles are tracked, then scans and sleeps in a loop
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.state.Store(int32(Waiting))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.registry.Ready():
	}
	monitoring.Logf("monitor: %d vehicles tracked, starting scans every %v", l.registry.Count(), l.delay)

	for {
		if _, err := l.Scan(); err != nil {
			return err
		}
		l.state.Store(int32(Idle))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.delay):
		}
	}
}

// Scan performs one pass over every ownship candidate and returns the
// number of detector calls made. A fresh ownship is checked against every
// other entry live at the start of its pairing pass.
func (l *Loop) Scan() (int, error) {
	l.state.Store(int32(Scanning))
	calls := 0
	for own := 0; own < l.registry.Count(); own++ {
		fresh, ownship, err := l.registry.ConsumeFreshness(own)
		if err != nil {
			return calls, fmt.Errorf("monitor: reading ownship %d: %w", own, err)
		}
		if !fresh {
			continue
		}

		l.state.Store(int32(Pairing))
		n := l.registry.Count()
		for intr := 0; intr < n; intr++ {
			if intr == own {
				continue
			}
			intruder, err := l.registry.ReadSnapshot(intr)
			if err != nil {
				return calls, fmt.Errorf("monitor: reading intruder %d: %w", intr, err)
			}
			l.check(ownship, intruder)
			calls++
		}
		l.state.Store(int32(Scanning))
	}
	l.cycles.Add(1)
	return calls, nil
}

func (l *Loop) check(ownship, intruder telemetry.VehicleSnapshot) {
	if l.verbose {
		monitoring.Logf("Checking: %s <==> %s", ownship.ID, intruder.ID)
	}
	l.checks.Add(1)
	if !l.detector.Detect(ownship, intruder, l.thresholds) {
		return
	}
	l.alerts.Add(1)
	l.sink.Alert(Alert{
		ID:         uuid.New(),
		Ownship:    ownship,
		Intruder:   intruder,
		DetectedAt: l.clock.Now(),
	})
}
