package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/wellclear/internal/monitoring"
)

// ReplaySummary reports what a capture replay did.
type ReplaySummary struct {
	Packets    int // UDP datagrams addressed to the telemetry port
	Accepted   int
	Malformed  int
	OutOfOrder int
	Elapsed    time.Duration
}

// ReplayPCAP feeds every UDP payload in a pcap capture whose destination
// port is udpPort through w, exactly as if it had arrived on the socket.
// Capture timing is not reproduced; records are applied as fast as they
// can be read.
func ReplayPCAP(ctx context.Context, path string, udpPort int, w *Worker) (ReplaySummary, error) {
	var sum ReplaySummary

	f, err := os.Open(path)
	if err != nil {
		return sum, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return sum, fmt.Errorf("failed to read PCAP header from %s: %w", path, err)
	}

	source := gopacket.NewPacketSource(r, r.LinkType())
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", sum.Packets)
			return sum, err
		}

		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			monitoring.Logf("skipping unreadable PCAP record: %v", err)
			continue
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort {
			continue
		}
		sum.Packets++

		var from net.Addr
		if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			from = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
		}

		switch w.HandleDatagram(udp.Payload, from) {
		case Accepted:
			sum.Accepted++
		case Malformed:
			sum.Malformed++
		case OutOfOrder:
			sum.OutOfOrder++
		}
	}

	sum.Elapsed = time.Since(start)
	monitoring.Logf("PCAP replay complete: %d telemetry packets (%d accepted, %d malformed, %d out-of-order) in %v",
		sum.Packets, sum.Accepted, sum.Malformed, sum.OutOfOrder, sum.Elapsed)
	return sum, nil
}
