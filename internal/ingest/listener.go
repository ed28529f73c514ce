package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/wellclear/internal/monitoring"
)

// DefaultAddress is the well-known telemetry port.
const DefaultAddress = ":10873"

// UDPListener receives telemetry datagrams on one bound socket and hands
// each to the Worker. It is the ingestion unit of concurrency: Start blocks
// for the lifetime of the process.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	worker        *Worker
	forwarder     *PacketForwarder
	socketFactory UDPSocketFactory
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Worker        *Worker
	Forwarder     *PacketForwarder // started alongside the listener when set
	SocketFactory UDPSocketFactory // Optional: factory for creating UDP sockets (for testing)
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	address := config.Address
	if address == "" {
		address = DefaultAddress
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	socketFactory := config.SocketFactory
	if socketFactory == nil {
		socketFactory = RealUDPSocketFactory{}
	}
	return &UDPListener{
		address:       address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		worker:        config.Worker,
		forwarder:     config.Forwarder,
		socketFactory: socketFactory,
	}
}

// Start binds the socket and processes datagrams until ctx is cancelled.
// Resolve and bind failures are returned immediately; the caller treats
// them as fatal.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.worker == nil {
		return errors.New("UDP listener has no worker")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.startStatsLogging(ctx)
	}()

	// Larger than a record so oversized datagrams are seen as such rather
	// than silently truncated to a valid length.
	buffer := make([]byte, 2048)
	var deadlineErrLogged bool

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		// Set read deadline to allow checking context cancellation
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil && !deadlineErrLogged {
			monitoring.Logf("failed to set read deadline: %v", err)
			deadlineErrLogged = true
		}

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		l.worker.HandleDatagram(buffer[:n], from)
	}
}

// startStatsLogging logs ingest statistics shortly after startup and then
// on the configured interval.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.worker.Stats().LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.worker.Stats().LogStats()
		}
	}
}
