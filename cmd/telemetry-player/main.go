// Command telemetry-player replays a CSV track file as telemetry datagrams.
//
// Each line is
//
//	name, latitude, longitude, altitude (ft), track (deg), ground speed (kt), vertical speed (ft/min), time (s)
//
// for example
//
//	TRAF1, 37.02641019, -76.59844441, 656.36590000, 128.55563983, 26.38695916, 0.00000000, 22.0
//
// Lines that do not parse are reported and skipped. With no file argument
// lines are read from standard input.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/telemetry"
	"github.com/banshee-data/wellclear/internal/timeutil"
)

const (
	defaultHost  = "127.0.0.1"
	defaultPort  = 10873
	defaultDelay = 100 // ms
)

var (
	host  = flag.String("H", defaultHost, "Host to send packets to")
	port  = flag.Int("p", defaultPort, "Port to send packets to")
	delay = flag.Int("t", defaultDelay, "Delay in milliseconds between packets")
)

// player sends one datagram per parsed line, numbering records from 0.
type player struct {
	out   io.Writer // one Write per datagram
	log   io.Writer
	delay time.Duration
	clock timeutil.Clock
}

func (p *player) play(ctx context.Context, in io.Reader) (int, error) {
	scanner := bufio.NewScanner(in)
	sent := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		v, err := telemetry.ParseReplayLine(line)
		if err != nil {
			fmt.Fprintf(p.log, "Error reading line; discarding: %s (%v)\n", line, err)
			continue
		}
		b, err := telemetry.Encode(telemetry.Message{Sequence: int64(sent), Vehicle: v})
		if err != nil {
			fmt.Fprintf(p.log, "Error encoding %s; discarding: %v\n", v.ID, err)
			continue
		}

		fmt.Fprintf(p.log, "Sending #%d: %s\n", sent, v.ID)
		if _, err := p.out.Write(b); err != nil {
			return sent, fmt.Errorf("send #%d: %w", sent, err)
		}
		sent++

		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-p.clock.After(p.delay):
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sent, err
	}
	fmt.Fprintln(p.log, "End of input reached.")
	return sent, nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-H host] [-p port] [-t delay] [file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	var in io.Reader
	switch flag.NArg() {
	case 0:
		fmt.Println("Reading from stdin...")
		in = os.Stdin
	case 1:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			monitoring.Fatalf("failed to open replay file: %v", err)
		}
		defer f.Close()
		in = f
	default:
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("udp", net.JoinHostPort(*host, strconv.Itoa(*port)))
	if err != nil {
		monitoring.Fatalf("failed to create UDP socket: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := &player{
		out:   conn,
		log:   os.Stdout,
		delay: time.Duration(*delay) * time.Millisecond,
		clock: timeutil.RealClock{},
	}
	if _, err := p.play(ctx, in); err != nil && ctx.Err() == nil {
		monitoring.Fatalf("replay failed: %v", err)
	}
}
