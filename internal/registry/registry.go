// Package registry holds the latest known state of every tracked vehicle.
//
// The registry is a fixed-capacity arena of entries addressed by index. Each
// entry carries its own mutex; no operation ever holds more than one entry
// lock, so ingestion of one vehicle never contends with monitoring of
// another. Slots are allocated in order and never released: once the arena
// is full, a new identifier overwrites the entry with the smallest sequence
// number.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/wellclear/internal/telemetry"
	"github.com/banshee-data/wellclear/internal/timeutil"
)

// DefaultCapacity matches the vehicle limit of the deployed monitor.
const DefaultCapacity = 500

// ErrNoEntry is returned when an index does not address a live entry.
var ErrNoEntry = errors.New("registry: no live entry at index")

// Op describes what an Upsert did.
type Op int

const (
	Updated  Op = iota // existing entry for the identifier was overwritten
	Inserted           // a fresh slot was allocated
	Evicted            // the oldest entry was replaced
)

func (o Op) String() string {
	switch o {
	case Updated:
		return "updated"
	case Inserted:
		return "inserted"
	case Evicted:
		return "evicted"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Result reports the outcome of an Upsert.
type Result struct {
	Op    Op
	Index int
	// EvictedID is the identifier that was replaced when Op == Evicted.
	EvictedID       string
	EvictedSequence int64
}

// entry is one tracked vehicle. All fields are guarded by mu.
type entry struct {
	mu       sync.Mutex
	sequence int64
	fresh    bool
	snapshot telemetry.VehicleSnapshot
	updated  time.Time
}

func (e *entry) set(seq int64, snap telemetry.VehicleSnapshot, now time.Time) {
	e.sequence = seq
	e.snapshot = snap
	e.fresh = true
	e.updated = now
}

// EntryView is a point-in-time copy of one entry, for display.
type EntryView struct {
	Index     int                       `json:"index"`
	Sequence  int64                     `json:"sequence"`
	Fresh     bool                      `json:"fresh"`
	Snapshot  telemetry.VehicleSnapshot `json:"vehicle"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Registry is a capacity-bounded map from vehicle identifier to entry.
type Registry struct {
	entries []entry
	count   atomic.Int64

	// allocMu serialises slot allocation and eviction. Updates to an
	// already-tracked identifier never take it.
	allocMu sync.Mutex
	// index maps identifier -> slot. A hit is only a hint: the slot is
	// re-checked under its own lock because eviction may have reassigned it.
	index sync.Map

	clock     timeutil.Clock
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used to stamp entry update times.
func WithClock(c timeutil.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New returns an empty registry holding at most capacity vehicles.
func New(capacity int, opts ...Option) (*Registry, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("registry capacity must be positive, got %d", capacity)
	}
	r := &Registry{
		entries: make([]entry, capacity),
		clock:   timeutil.RealClock{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Capacity returns the fixed number of slots.
func (r *Registry) Capacity() int { return len(r.entries) }

// Count returns the number of live entries. It never decreases.
func (r *Registry) Count() int { return int(r.count.Load()) }

// Ready returns a channel that is closed once two vehicles are tracked,
// the minimum needed to form an ownship/intruder pair.
func (r *Registry) Ready() <-chan struct{} { return r.ready }

// Lookup returns the slot currently holding id.
func (r *Registry) Lookup(id string) (int, bool) {
	v, ok := r.index.Load(id)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// Upsert records the latest snapshot for id. An existing entry is updated in
// place; otherwise a free slot is allocated, or, when the registry is full,
// the entry with the smallest sequence number is overwritten. The entry is
// always left marked fresh. The registry does not apply any ordering policy
// of its own: whatever it is told is authoritative.
//
// Updates to a tracked id lock only that entry. Allocating a slot for a new
// id, including the eviction scan, holds the shared allocation lock, so new
// ids are admitted one at a time while updates and reads proceed.
func (r *Registry) Upsert(id string, seq int64, snap telemetry.VehicleSnapshot) Result {
	snap.ID = id
	now := r.clock.Now()

	if i, ok := r.Lookup(id); ok && r.tryUpdate(i, id, seq, snap, now) {
		return Result{Op: Updated, Index: i}
	}

	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	// Another caller may have allocated id while we waited.
	if i, ok := r.Lookup(id); ok && r.tryUpdate(i, id, seq, snap, now) {
		return Result{Op: Updated, Index: i}
	}

	n := r.Count()
	if n < len(r.entries) {
		e := &r.entries[n]
		e.mu.Lock()
		e.set(seq, snap, now)
		e.mu.Unlock()

		r.index.Store(id, n)
		r.count.Store(int64(n + 1))
		if n+1 >= 2 {
			r.readyOnce.Do(func() { close(r.ready) })
		}
		return Result{Op: Inserted, Index: n}
	}

	victim := r.oldest(n)
	e := &r.entries[victim]
	e.mu.Lock()
	oldID, oldSeq := e.snapshot.ID, e.sequence
	e.set(seq, snap, now)
	e.mu.Unlock()

	r.index.CompareAndDelete(oldID, victim)
	r.index.Store(id, victim)
	return Result{Op: Evicted, Index: victim, EvictedID: oldID, EvictedSequence: oldSeq}
}

// tryUpdate overwrites slot i if it still belongs to id.
func (r *Registry) tryUpdate(i int, id string, seq int64, snap telemetry.VehicleSnapshot, now time.Time) bool {
	e := &r.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot.ID != id {
		return false
	}
	e.set(seq, snap, now)
	return true
}

// oldest returns the first live slot with the smallest sequence number.
// Caller holds allocMu.
func (r *Registry) oldest(n int) int {
	victim := 0
	var lowest int64
	for i := 0; i < n; i++ {
		e := &r.entries[i]
		e.mu.Lock()
		seq := e.sequence
		e.mu.Unlock()
		if i == 0 || seq < lowest {
			victim, lowest = i, seq
		}
	}
	return victim
}

func (r *Registry) live(i int) (*entry, error) {
	if i < 0 || i >= r.Count() {
		return nil, fmt.Errorf("%w: %d (count %d)", ErrNoEntry, i, r.Count())
	}
	return &r.entries[i], nil
}

// ConsumeFreshness atomically reads entry i and clears its freshness flag,
// reporting whether new data had arrived since the previous call.
func (r *Registry) ConsumeFreshness(i int) (bool, telemetry.VehicleSnapshot, error) {
	e, err := r.live(i)
	if err != nil {
		return false, telemetry.VehicleSnapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fresh := e.fresh
	e.fresh = false
	return fresh, e.snapshot, nil
}

// ReadSnapshot returns a copy of entry i without touching its freshness.
func (r *Registry) ReadSnapshot(i int) (telemetry.VehicleSnapshot, error) {
	e, err := r.live(i)
	if err != nil {
		return telemetry.VehicleSnapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot, nil
}

// Entries returns a copy of every live entry in index order. Each entry is
// read under its own lock; the result is not a consistent cut across
// entries.
func (r *Registry) Entries() []EntryView {
	n := r.Count()
	out := make([]EntryView, 0, n)
	for i := 0; i < n; i++ {
		e := &r.entries[i]
		e.mu.Lock()
		out = append(out, EntryView{
			Index:     i,
			Sequence:  e.sequence,
			Fresh:     e.fresh,
			Snapshot:  e.snapshot,
			UpdatedAt: e.updated,
		})
		e.mu.Unlock()
	}
	return out
}
