package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/wellclear/internal/monitoring"
)

// Stats counts datagrams through the ingest path. Interval counters are
// reset by LogStats; totals accumulate for the lifetime of the process.
type Stats struct {
	mu        sync.Mutex
	interval  Counters
	total     Counters
	lastReset time.Time
	startTime time.Time
}

// Counters is one set of ingest counters.
type Counters struct {
	Packets    int64 `json:"packets"`
	Bytes      int64 `json:"bytes"`
	Accepted   int64 `json:"accepted"`
	Malformed  int64 `json:"malformed"`
	OutOfOrder int64 `json:"out_of_order"`
	Evictions  int64 `json:"evictions"`
	Dropped    int64 `json:"forward_dropped"`
}

// StatsSnapshot is a copy of the cumulative counters.
type StatsSnapshot struct {
	Counters
	Uptime time.Duration `json:"uptime_ns"`
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	now := time.Now()
	return &Stats{lastReset: now, startTime: now}
}

func (s *Stats) add(f func(c *Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.interval)
	f(&s.total)
}

// AddPacket records a received datagram of the given size.
func (s *Stats) AddPacket(bytes int) {
	s.add(func(c *Counters) { c.Packets++; c.Bytes += int64(bytes) })
}

func (s *Stats) AddAccepted()   { s.add(func(c *Counters) { c.Accepted++ }) }
func (s *Stats) AddMalformed()  { s.add(func(c *Counters) { c.Malformed++ }) }
func (s *Stats) AddOutOfOrder() { s.add(func(c *Counters) { c.OutOfOrder++ }) }
func (s *Stats) AddEviction()   { s.add(func(c *Counters) { c.Evictions++ }) }

// AddDropped counts a datagram the forwarder could not queue.
func (s *Stats) AddDropped() { s.add(func(c *Counters) { c.Dropped++ }) }

// GetAndReset returns the interval counters and resets them.
func (s *Stats) GetAndReset() (c Counters, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	c, d = s.interval, now.Sub(s.lastReset)
	s.interval = Counters{}
	s.lastReset = now
	return c, d
}

// Snapshot returns the cumulative counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{Counters: s.total, Uptime: time.Since(s.startTime)}
}

// LogStats logs the interval rates and resets the interval counters.
func (s *Stats) LogStats() {
	c, d := s.GetAndReset()
	if c.Packets == 0 || d <= 0 {
		return
	}
	msg := fmt.Sprintf("Telemetry stats (/sec): %.1f packets, %.1f accepted",
		float64(c.Packets)/d.Seconds(), float64(c.Accepted)/d.Seconds())
	if c.Malformed > 0 {
		msg += fmt.Sprintf(", %d malformed", c.Malformed)
	}
	if c.OutOfOrder > 0 {
		msg += fmt.Sprintf(", %d out-of-order", c.OutOfOrder)
	}
	if c.Evictions > 0 {
		msg += fmt.Sprintf(", %d evictions", c.Evictions)
	}
	if c.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped on forward", c.Dropped)
	}
	monitoring.Logf("%s", msg)
}
