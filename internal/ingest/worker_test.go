package ingest

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

var testAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func TestNewWorker_RequiresRegistry(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)
}

func TestHandleDatagram_Accepts(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 4)

	assert.Equal(t, Accepted, w.HandleDatagram(record(t, 1, "AAA", 1000), testAddr))
	assert.Equal(t, Accepted, w.HandleDatagram(record(t, 2, "BBB", 2000), testAddr))
	assert.Equal(t, Accepted, w.HandleDatagram(record(t, 3, "AAA", 1500), testAddr))

	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, int64(3), w.Gate().Last())

	i, ok := reg.Lookup("AAA")
	require.True(t, ok)
	got, err := reg.ReadSnapshot(i)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got.Altitude)

	s := w.Stats().Snapshot()
	assert.Equal(t, int64(3), s.Packets)
	assert.Equal(t, int64(3), s.Accepted)
	assert.Equal(t, int64(3*telemetry.RecordSize), s.Bytes)
}

func TestHandleDatagram_WrongSizeLeavesStateAlone(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 4)
	require.Equal(t, Accepted, w.HandleDatagram(record(t, 10, "AAA", 1000), testAddr))
	before := reg.Entries()

	full := record(t, 50, "BBB", 2000)
	for _, b := range [][]byte{nil, full[:20], full[:telemetry.RecordSize-1], append(full, 0, 0)} {
		assert.Equal(t, Malformed, w.HandleDatagram(b, testAddr), "len %d", len(b))
	}

	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, int64(10), w.Gate().Last(), "malformed input must not move the gate")
	assert.Equal(t, before, reg.Entries())
	assert.Equal(t, int64(4), w.Stats().Snapshot().Malformed)
}

func TestHandleDatagram_UndecodableIdentifier(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 4)
	b := record(t, 1, "AAA", 0)
	copy(b[8:16], "12345678") // no terminator

	assert.Equal(t, Malformed, w.HandleDatagram(b, testAddr))
	assert.Equal(t, 0, reg.Count())
}

// TestHandleDatagram_OutOfOrder: with the gate at 100, a record numbered 99
// is dropped and the registry is untouched.
func TestHandleDatagram_OutOfOrder(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 4)
	require.Equal(t, Accepted, w.HandleDatagram(record(t, 100, "AAA", 1000), testAddr))
	before := reg.Entries()

	assert.Equal(t, OutOfOrder, w.HandleDatagram(record(t, 99, "BBB", 2000), testAddr))
	assert.Equal(t, OutOfOrder, w.HandleDatagram(record(t, 99, "AAA", 9999), testAddr))

	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, before, reg.Entries())
	assert.Equal(t, int64(100), w.Gate().Last())
	assert.Equal(t, int64(2), w.Stats().Snapshot().OutOfOrder)
}

func TestHandleDatagram_GateIsGlobal(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 4)
	require.Equal(t, Accepted, w.HandleDatagram(record(t, 20, "AAA", 0), testAddr))

	// BBB has never been seen, but its number is behind AAA's.
	assert.Equal(t, OutOfOrder, w.HandleDatagram(record(t, 19, "BBB", 0), testAddr))
	_, ok := reg.Lookup("BBB")
	assert.False(t, ok)
}

func TestHandleDatagram_CountsEvictions(t *testing.T) {
	muteLogs(t)
	w, reg := newWorker(t, 2)
	w.HandleDatagram(record(t, 5, "AAA", 0), testAddr)
	w.HandleDatagram(record(t, 10, "BBB", 0), testAddr)
	w.HandleDatagram(record(t, 11, "CCC", 0), testAddr)

	assert.Equal(t, 2, reg.Count())
	_, ok := reg.Lookup("AAA")
	assert.False(t, ok)
	assert.Equal(t, int64(1), w.Stats().Snapshot().Evictions)
}

type recordingUpserter struct {
	calls []string
}

func (r *recordingUpserter) Upsert(id string, seq int64, snap telemetry.VehicleSnapshot) registry.Result {
	r.calls = append(r.calls, id)
	return registry.Result{Op: registry.Inserted}
}

func TestHandleDatagram_UsesInjectedGate(t *testing.T) {
	muteLogs(t)
	up := &recordingUpserter{}
	gate := NewSequenceGate()
	gate.Admit(100)
	w, err := NewWorker(WorkerConfig{Registry: up, Gate: gate, Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, OutOfOrder, w.HandleDatagram(record(t, 99, "AAA", 0), nil))
	assert.Equal(t, Accepted, w.HandleDatagram(record(t, 101, "AAA", 0), nil))
	assert.Equal(t, []string{"AAA"}, up.calls)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "malformed", Malformed.String())
	assert.Equal(t, "out-of-order", OutOfOrder.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
