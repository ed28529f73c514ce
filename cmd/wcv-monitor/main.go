// Command wcv-monitor ingests vehicle telemetry over UDP and raises an alert
// whenever a tracked pair loses well clear.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wellclear/internal/alertdb"
	"github.com/banshee-data/wellclear/internal/api"
	"github.com/banshee-data/wellclear/internal/config"
	"github.com/banshee-data/wellclear/internal/ingest"
	"github.com/banshee-data/wellclear/internal/monitor"
	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/version"
	"github.com/banshee-data/wellclear/internal/wellclear"
)

const memoryAlertRing = 256

// options are the parsed command line. Flags that were set explicitly
// override the config file.
type options struct {
	configPath    string
	pcapPath      string
	migrateAction string
	showVersion   bool
	cfg           *config.Config
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("wcv-monitor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := monitor.DefaultThresholds()
	var (
		o         options
		listen    = fs.String("listen", ingest.DefaultAddress, "UDP address for telemetry")
		rcvBuf    = fs.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
		capacity  = fs.Int("capacity", registry.DefaultCapacity, "Maximum number of tracked vehicles")
		delay     = fs.Duration("delay", monitor.DefaultCycleDelay, "Pause between monitor scans")
		statsIvl  = fs.Duration("stats-interval", time.Minute, "Interval between ingest statistics logs")
		dthr      = fs.Float64("dthr", defaults.DistanceFt, "Horizontal distance threshold (ft)")
		tthr      = fs.Float64("tthr", defaults.TauSeconds, "Horizontal time threshold (s)")
		zthr      = fs.Float64("zthr", defaults.AltitudeFt, "Vertical distance threshold (ft)")
		tcoathr   = fs.Float64("tcoathr", defaults.TCOASeconds, "Time to co-altitude threshold (s)")
		httpAddr  = fs.String("http", "", "HTTP status address, e.g. :8080 (disabled when empty)")
		dbPath    = fs.String("db", "", "SQLite alert log path (disabled when empty)")
		forwardTo = fs.String("forward", "", "Re-send accepted datagrams to host:port")
		verbose   = fs.Bool("verbose", false, "Log every datagram and pairing check")
	)
	fs.StringVar(&o.configPath, "config", "", "Path to JSON configuration file")
	fs.StringVar(&o.pcapPath, "pcap", "", "Replay telemetry from a pcap capture instead of listening")
	fs.StringVar(&o.migrateAction, "migrate", "", "Run an alert database migration (up, down or version) and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.migrateAction != "" && !migrateActions[o.migrateAction] {
		return nil, fmt.Errorf("unknown migrate action %q (want up, down or version)", o.migrateAction)
	}

	o.cfg = &config.Config{}
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		o.cfg = cfg
	}

	c := o.cfg
	th := func() *config.ThresholdsConfig {
		if c.Thresholds == nil {
			c.Thresholds = &config.ThresholdsConfig{}
		}
		return c.Thresholds
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			c.ListenAddress = listen
		case "rcvbuf":
			c.UDPRcvBuf = rcvBuf
		case "capacity":
			c.Capacity = capacity
		case "delay":
			s := delay.String()
			c.CycleDelay = &s
		case "stats-interval":
			s := statsIvl.String()
			c.StatsLogInterval = &s
		case "dthr":
			th().DTHR = dthr
		case "tthr":
			th().TTHR = tthr
		case "zthr":
			th().ZTHR = zthr
		case "tcoathr":
			th().TCOATHR = tcoathr
		case "http":
			c.HTTPListen = httpAddr
		case "db":
			c.DBPath = dbPath
		case "forward":
			c.ForwardAddress = forwardTo
		case "verbose":
			c.Verbose = verbose
		}
	})
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return &o, nil
}

// telemetryPort extracts the UDP port from a listen address for capture
// filtering.
func telemetryPort(address string) (int, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		monitoring.Fatalf("%v", err)
		return
	}
	if o.showVersion {
		fmt.Println(version.String())
		return
	}
	if o.migrateAction != "" {
		if err := runMigrate(o.migrateAction, o.cfg.GetDBPath(), os.Stdout); err != nil {
			monitoring.Fatalf("%v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		monitoring.Fatalf("%v", err)
	}
}

// run wires the registry, ingest path, monitor loop and optional outer
// surfaces, and blocks until ctx is cancelled or a fatal error occurs.
func run(ctx context.Context, o *options) error {
	cfg := o.cfg
	monitoring.Logf("%s starting", version.String())

	reg, err := registry.New(cfg.GetCapacity())
	if err != nil {
		return err
	}

	var alertDB *alertdb.DB
	if path := cfg.GetDBPath(); path != "" {
		alertDB, err = alertdb.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open alert database: %w", err)
		}
		defer alertDB.Close()
		monitoring.Logf("Recording alerts to %s", alertDB.Path())
	}

	stats := ingest.NewStats()
	var forwarder *ingest.PacketForwarder
	if addr := cfg.GetForwardAddress(); addr != "" {
		forwarder, err = ingest.NewPacketForwarder(addr, stats, cfg.GetStatsLogInterval())
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	worker, err := ingest.NewWorker(ingest.WorkerConfig{
		Registry:  reg,
		Stats:     stats,
		Forwarder: forwarder,
		Verbose:   cfg.GetVerbose(),
	})
	if err != nil {
		return err
	}

	memory := monitor.NewMemorySink(memoryAlertRing)
	sinks := monitor.MultiSink{monitor.LogSink{}, memory}
	var alerts api.Alerts = api.MemoryAlerts{Sink: memory}
	if alertDB != nil {
		sinks = append(sinks, alertDB)
		alerts = alertDB
	}

	loop, err := monitor.NewLoop(monitor.Config{
		Registry:   reg,
		Detector:   wellclear.Detector{},
		Thresholds: cfg.GetThresholds(),
		Sink:       sinks,
		CycleDelay: cfg.GetCycleDelay(),
		Verbose:    cfg.GetVerbose(),
	})
	if err != nil {
		return err
	}

	var mux *http.ServeMux
	if cfg.GetHTTPListen() != "" {
		mux = http.NewServeMux()
		api.NewServer(api.Config{Vehicles: reg, Stats: stats, Loop: loop, Alerts: alerts}).Register(mux)
		if alertDB != nil {
			if err := alertDB.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if o.pcapPath != "" {
			if err := replay(ctx, o.pcapPath, cfg.GetListenAddress(), worker, forwarder); err != nil {
				errCh <- err
			}
			return
		}
		listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
			Address:     cfg.GetListenAddress(),
			RcvBuf:      cfg.GetUDPRcvBuf(),
			LogInterval: cfg.GetStatsLogInterval(),
			Worker:      worker,
			Forwarder:   forwarder,
		})
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telemetry listener: %w", err)
			return
		}
		monitoring.Logf("listener routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("monitor loop: %w", err)
			return
		}
		monitoring.Logf("monitor routine terminated")
	}()

	if mux != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveHTTP(ctx, cfg.GetHTTPListen(), api.LoggingMiddleware(mux)); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}
	wg.Wait()
	if runErr == nil {
		monitoring.Logf("Graceful shutdown complete")
	}
	return runErr
}

// replay feeds a capture through the worker. The monitor keeps running
// on the replayed state until shutdown.
func replay(ctx context.Context, path, listen string, w *ingest.Worker, fwd *ingest.PacketForwarder) error {
	port, err := telemetryPort(listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	if fwd != nil {
		fwd.Start(ctx)
	}
	summary, err := ingest.ReplayPCAP(ctx, path, port, w)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pcap replay: %w", err)
	}
	monitoring.Logf("pcap replay finished: %d packets, %d accepted, %d malformed, %d out of order in %v",
		summary.Packets, summary.Accepted, summary.Malformed, summary.OutOfOrder, summary.Elapsed)
	return nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	server := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			done <- err
		}
		close(done)
	}()
	monitoring.Logf("HTTP server listening on %s", ln.Addr())

	select {
	case err := <-done:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}
