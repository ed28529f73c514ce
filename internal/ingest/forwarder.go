package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/wellclear/internal/monitoring"
)

// DropCounter records datagrams the forwarder had to discard.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder re-sends accepted telemetry records verbatim to a
// downstream UDP address (a display or a second monitor). Forwarding never
// blocks ingestion: when the queue is full the record is dropped.
type PacketForwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
}

// NewPacketForwarder dials address ("host:port").
func NewPacketForwarder(address string, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start begins draining the queue until ctx is cancelled. Write errors are
// summarised once per log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet := <-f.channel:
				if _, err := f.conn.Write(packet); err != nil {
					failed++
					lastError = err
				}
			case <-ticker.C:
				if failed > 0 && lastError != nil {
					monitoring.Logf("failed to forward %d telemetry records (latest: %v)", failed, lastError)
					failed = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding accepted telemetry to %s", f.address)
}

// ForwardAsync queues a copy of packet without blocking.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Close closes the UDP connection.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}
