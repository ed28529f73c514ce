package ingest

import "sync"

// SequenceGate is the single process-wide ordering check applied to every
// datagram before it reaches the registry. It is deliberately coarse: one
// counter across all vehicles, so a producer restart or two interleaved
// producers will see packets discarded until their numbering catches up.
type SequenceGate struct {
	mu   sync.Mutex
	last int64
}

// NewSequenceGate returns a gate whose last accepted sequence is zero, so
// negative sequence numbers are rejected until something larger is seen.
func NewSequenceGate() *SequenceGate {
	return &SequenceGate{}
}

// Admit reports whether seq may proceed. Equal sequence numbers are
// admitted; only a strict regression is refused. Admitted numbers become
// the new high-water mark.
func (g *SequenceGate) Admit(seq int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq < g.last {
		return false
	}
	g.last = seq
	return true
}

// Last returns the most recently admitted sequence number.
func (g *SequenceGate) Last() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
