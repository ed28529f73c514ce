package telemetry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// RecordSize is the exact length of one telemetry datagram. The layout is
// the producer's native struct on a 64-bit little-endian host:
//
//	off  0  int64     sequence number
//	off  8  [8]byte   identifier, NUL terminated
//	off 16  float64   latitude
//	off 24  float64   longitude
//	off 32  float64   altitude
//	off 40  float64   ground speed
//	off 48  float64   ground track
//	off 56  float64   vertical speed
//	off 64  uint32    timestamp (ms)
//	off 68  4 bytes   padding
const RecordSize = 72

const (
	offSequence = 0
	offID       = 8
	offFloats   = 16
	offTimeMs   = 64
)

var (
	// ErrRecordSize is returned when a buffer is not exactly RecordSize bytes.
	ErrRecordSize = errors.New("telemetry: record size mismatch")
	// ErrIdentifier is returned for identifiers that are empty, too long or
	// not NUL terminated.
	ErrIdentifier = errors.New("telemetry: invalid identifier")
)

var order = binary.LittleEndian

// Decode parses one wire record. Partial or oversized buffers are rejected
// without being interpreted.
func Decode(b []byte) (Message, error) {
	if len(b) != RecordSize {
		return Message{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(b), RecordSize)
	}

	idField := b[offID : offID+IdentifierSize]
	n := bytes.IndexByte(idField, 0)
	if n < 0 {
		return Message{}, fmt.Errorf("%w: identifier field is not NUL terminated", ErrIdentifier)
	}
	if n == 0 {
		return Message{}, fmt.Errorf("%w: empty identifier", ErrIdentifier)
	}

	var f [6]float64
	for i := range f {
		off := offFloats + i*8
		f[i] = math.Float64frombits(order.Uint64(b[off : off+8]))
	}

	return Message{
		Sequence: int64(order.Uint64(b[offSequence:])),
		Vehicle: VehicleSnapshot{
			ID:            string(idField[:n]),
			Latitude:      f[0],
			Longitude:     f[1],
			Altitude:      f[2],
			GroundSpeed:   f[3],
			GroundTrack:   f[4],
			VerticalSpeed: f[5],
			TimeMs:        order.Uint32(b[offTimeMs:]),
		},
	}, nil
}

// Encode renders m into a new RecordSize buffer.
func Encode(m Message) ([]byte, error) {
	b := make([]byte, RecordSize)
	if err := EncodeTo(b, m); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeTo writes m into b, which must be exactly RecordSize bytes long.
// Padding and unused identifier bytes are zeroed.
func EncodeTo(b []byte, m Message) error {
	if len(b) != RecordSize {
		return fmt.Errorf("%w: buffer is %d bytes", ErrRecordSize, len(b))
	}
	id := m.Vehicle.ID
	if id == "" || len(id) > MaxIdentifierLen || bytes.IndexByte([]byte(id), 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrIdentifier, id)
	}

	clear(b)
	order.PutUint64(b[offSequence:], uint64(m.Sequence))
	copy(b[offID:offID+MaxIdentifierLen], id)

	v := m.Vehicle
	for i, x := range [6]float64{v.Latitude, v.Longitude, v.Altitude, v.GroundSpeed, v.GroundTrack, v.VerticalSpeed} {
		order.PutUint64(b[offFloats+i*8:], math.Float64bits(x))
	}
	order.PutUint32(b[offTimeMs:], v.TimeMs)
	return nil
}
