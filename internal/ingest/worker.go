// Package ingest turns telemetry datagrams into registry updates. A single
// Worker owns the global sequence gate; the UDPListener and ReplayPCAP are
// the two ways datagrams are fed to it.
package ingest

import (
	"errors"
	"fmt"
	"net"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

// Outcome classifies one datagram.
type Outcome int

const (
	Accepted Outcome = iota
	Malformed
	OutOfOrder
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Malformed:
		return "malformed"
	case OutOfOrder:
		return "out-of-order"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Upserter is the registry write path.
type Upserter interface {
	Upsert(id string, seq int64, snap telemetry.VehicleSnapshot) registry.Result
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Registry  Upserter
	Gate      *SequenceGate    // defaults to a fresh gate
	Stats     *Stats           // defaults to a private Stats
	Forwarder *PacketForwarder // optional; receives every accepted datagram
	Verbose   bool             // log every datagram, not just discards
}

// Worker validates, orders and applies datagrams.
type Worker struct {
	registry  Upserter
	gate      *SequenceGate
	stats     *Stats
	forwarder *PacketForwarder
	verbose   bool
}

// NewWorker creates a worker. Registry is required.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Registry == nil {
		return nil, errors.New("ingest: worker requires a registry")
	}
	w := &Worker{
		registry:  cfg.Registry,
		gate:      cfg.Gate,
		stats:     cfg.Stats,
		forwarder: cfg.Forwarder,
		verbose:   cfg.Verbose,
	}
	if w.gate == nil {
		w.gate = NewSequenceGate()
	}
	if w.stats == nil {
		w.stats = NewStats()
	}
	return w, nil
}

// Stats returns the worker's counters.
func (w *Worker) Stats() *Stats { return w.stats }

// Gate returns the worker's sequence gate.
func (w *Worker) Gate() *SequenceGate { return w.gate }

// HandleDatagram applies one datagram. Malformed and out-of-order datagrams
// are logged and dropped without touching the registry or the gate; the
// caller just moves on to the next one.
func (w *Worker) HandleDatagram(b []byte, from net.Addr) Outcome {
	w.stats.AddPacket(len(b))

	msg, err := telemetry.Decode(b)
	if err != nil {
		w.stats.AddMalformed()
		if errors.Is(err, telemetry.ErrRecordSize) && len(b) < telemetry.RecordSize {
			monitoring.Logf("received packet fragment from %v (%d bytes); discarding instead of attempting reassembly", from, len(b))
		} else {
			monitoring.Logf("discarding datagram from %v: %v", from, err)
		}
		return Malformed
	}

	if w.verbose {
		monitoring.Logf("received #%d %s from %v", msg.Sequence, msg.Vehicle.ID, from)
	}

	if !w.gate.Admit(msg.Sequence) {
		w.stats.AddOutOfOrder()
		monitoring.Logf("received out-of-order packet #%d for %s (last accepted #%d); discarding",
			msg.Sequence, msg.Vehicle.ID, w.gate.Last())
		return OutOfOrder
	}

	res := w.registry.Upsert(msg.Vehicle.ID, msg.Sequence, msg.Vehicle)
	w.stats.AddAccepted()
	if res.Op == registry.Evicted {
		w.stats.AddEviction()
		monitoring.Logf("too many vehicles, replaced oldest %s (#%d) with %s in slot %d",
			res.EvictedID, res.EvictedSequence, msg.Vehicle.ID, res.Index)
	}

	if w.forwarder != nil {
		w.forwarder.ForwardAsync(b)
	}
	return Accepted
}
