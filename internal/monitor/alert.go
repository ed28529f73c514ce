package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

// Alert is one reported well-clear violation.
type Alert struct {
	ID         uuid.UUID                 `json:"id"`
	Ownship    telemetry.VehicleSnapshot `json:"ownship"`
	Intruder   telemetry.VehicleSnapshot `json:"intruder"`
	DetectedAt time.Time                 `json:"detected_at"`
}

// AlertSink receives alerts synchronously from the monitor loop. A sink
// must not block for long and must not fail the loop: errors are its own
// to log.
type AlertSink interface {
	Alert(a Alert)
}

// LogSink writes each alert to the diagnostic log.
type LogSink struct{}

func (LogSink) Alert(a Alert) {
	monitoring.Logf("*** Alert triggered: well-clear violation!")
	monitoring.Logf("*** Ownship: %s, Intruder: %s", a.Ownship.ID, a.Intruder.ID)
}

// MultiSink fans an alert out to several sinks in order.
type MultiSink []AlertSink

func (m MultiSink) Alert(a Alert) {
	for _, s := range m {
		s.Alert(a)
	}
}

// MemorySink keeps the most recent alerts in a fixed-size ring.
type MemorySink struct {
	mu    sync.Mutex
	buf   []Alert
	next  int
	full  bool
	total int64
}

// NewMemorySink returns a ring holding up to size alerts.
func NewMemorySink(size int) *MemorySink {
	if size < 1 {
		size = 1
	}
	return &MemorySink{buf: make([]Alert, size)}
}

func (m *MemorySink) Alert(a Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = a
	m.next = (m.next + 1) % len(m.buf)
	if m.next == 0 {
		m.full = true
	}
	m.total++
}

// Recent returns up to limit alerts, newest first. limit <= 0 means all.
func (m *MemorySink) Recent(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.next
	if m.full {
		n = len(m.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, m.buf[(m.next-i+len(m.buf))%len(m.buf)])
	}
	return out
}

// Total returns the number of alerts ever received.
func (m *MemorySink) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
