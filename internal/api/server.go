// Package api serves the read-only HTTP status surface: tracked vehicles,
// recent alerts, ingest and monitor counters, and an alert chart.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/wellclear/internal/httputil"
	"github.com/banshee-data/wellclear/internal/ingest"
	"github.com/banshee-data/wellclear/internal/monitor"
	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/registry"
	"github.com/banshee-data/wellclear/internal/units"
	"github.com/banshee-data/wellclear/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 1000
)

// Vehicles is the registry view the server reads.
type Vehicles interface {
	Entries() []registry.EntryView
	Count() int
	Capacity() int
}

// IngestStats supplies cumulative ingest counters.
type IngestStats interface {
	Snapshot() ingest.StatsSnapshot
}

// LoopStats supplies monitor loop counters.
type LoopStats interface {
	Stats() monitor.LoopStats
}

// Alerts supplies recent alerts, newest first.
type Alerts interface {
	RecentAlerts(limit int) ([]monitor.Alert, error)
}

// MemoryAlerts adapts a MemorySink to Alerts.
type MemoryAlerts struct{ Sink *monitor.MemorySink }

func (m MemoryAlerts) RecentAlerts(limit int) ([]monitor.Alert, error) {
	return m.Sink.Recent(limit), nil
}

// Config wires the server's data sources. Stats and Loop may be nil.
type Config struct {
	Vehicles Vehicles
	Stats    IngestStats
	Loop     LoopStats
	Alerts   Alerts
}

type Server struct {
	vehicles Vehicles
	stats    IngestStats
	loop     LoopStats
	alerts   Alerts
	started  time.Time
}

func NewServer(cfg Config) *Server {
	return &Server{
		vehicles: cfg.Vehicles,
		stats:    cfg.Stats,
		loop:     cfg.Loop,
		alerts:   cfg.Alerts,
		started:  time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/vehicles", s.listVehicles)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/debug/charts/alerts", s.alertChart)
}

// ServeMux returns a new mux carrying only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// vehicleResponse is one registry entry with its ground speed in the
// requested units.
type vehicleResponse struct {
	registry.EntryView
	Speed float64 `json:"speed"`
	Units string  `json:"units"`
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	u := r.URL.Query().Get("units")
	if u == "" {
		u = units.KT
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, "units must be one of: "+units.GetValidUnitsString())
		return
	}

	entries := s.vehicles.Entries()
	out := make([]vehicleResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, vehicleResponse{
			EntryView: e,
			Speed:     units.ConvertSpeed(e.Snapshot.GroundSpeed, u),
			Units:     u,
		})
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":    len(out),
		"capacity": s.vehicles.Capacity(),
		"vehicles": out,
	})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultAlertLimit, maxAlertLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	alerts, err := s.recentAlerts(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to load alerts: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) recentAlerts(limit int) ([]monitor.Alert, error) {
	if s.alerts == nil {
		return []monitor.Alert{}, nil
	}
	alerts, err := s.alerts.RecentAlerts(limit)
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	return alerts, err
}

type statsResponse struct {
	Version  string                `json:"version"`
	Uptime   string                `json:"uptime"`
	Vehicles int                   `json:"vehicles"`
	Capacity int                   `json:"capacity"`
	Ingest   *ingest.StatsSnapshot `json:"ingest,omitempty"`
	Monitor  *monitor.LoopStats    `json:"monitor,omitempty"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	resp := statsResponse{
		Version:  version.String(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Vehicles: s.vehicles.Count(),
		Capacity: s.vehicles.Capacity(),
	}
	if s.stats != nil {
		snap := s.stats.Snapshot()
		resp.Ingest = &snap
	}
	if s.loop != nil {
		ls := s.loop.Stats()
		resp.Monitor = &ls
	}
	httputil.WriteJSONOK(w, resp)
}
