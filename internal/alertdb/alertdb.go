// Package alertdb persists well-clear alerts to SQLite and exposes the
// database on the debug admin routes.
package alertdb

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/wellclear/internal/monitor"
	"github.com/banshee-data/wellclear/internal/monitoring"
	"github.com/banshee-data/wellclear/internal/telemetry"
)

// DefaultRecentLimit bounds RecentAlerts when no limit is given.
const DefaultRecentLimit = 100

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the alert database at path and applies
// pending migrations.
func Open(path string) (*DB, error) {
	db, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenRaw opens the database without touching the schema. The migrate
// command uses it so a dirty or rolled-back database can still be inspected.
func OpenRaw(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// RecordAlert inserts one alert.
func (db *DB) RecordAlert(a monitor.Alert) error {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	o, i := a.Ownship, a.Intruder
	_, err := db.Exec(
		`INSERT INTO alerts (
			alert_id, ownship, intruder,
			own_lat, own_lon, own_alt, own_gs, own_trk, own_vs, own_time_ms,
			intr_lat, intr_lon, intr_alt, intr_gs, intr_trk, intr_vs, intr_time_ms,
			detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), o.ID, i.ID,
		o.Latitude, o.Longitude, o.Altitude, o.GroundSpeed, o.GroundTrack, o.VerticalSpeed, int64(o.TimeMs),
		i.Latitude, i.Longitude, i.Altitude, i.GroundSpeed, i.GroundTrack, i.VerticalSpeed, int64(i.TimeMs),
		a.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert %s: %w", id, err)
	}
	return nil
}

// Alert implements monitor.AlertSink. Storage failures are logged and
// never reach the monitor loop.
func (db *DB) Alert(a monitor.Alert) {
	if err := db.RecordAlert(a); err != nil {
		monitoring.Logf("alertdb: %v", err)
	}
}

// RecentAlerts returns up to limit alerts, newest first.
func (db *DB) RecentAlerts(limit int) ([]monitor.Alert, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.Query(
		`SELECT alert_id, ownship, intruder,
			own_lat, own_lon, own_alt, own_gs, own_trk, own_vs, own_time_ms,
			intr_lat, intr_lon, intr_alt, intr_gs, intr_trk, intr_vs, intr_time_ms,
			detected_at
		FROM alerts ORDER BY detected_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []monitor.Alert
	for rows.Next() {
		var (
			a          monitor.Alert
			id         string
			o, i       telemetry.VehicleSnapshot
			oTs, iTs   int64
			detectedNs int64
		)
		if err := rows.Scan(&id, &o.ID, &i.ID,
			&o.Latitude, &o.Longitude, &o.Altitude, &o.GroundSpeed, &o.GroundTrack, &o.VerticalSpeed, &oTs,
			&i.Latitude, &i.Longitude, &i.Altitude, &i.GroundSpeed, &i.GroundTrack, &i.VerticalSpeed, &iTs,
			&detectedNs,
		); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("alert %q has a malformed id: %w", id, err)
		}
		o.TimeMs, i.TimeMs = uint32(oTs), uint32(iTs)
		a.Ownship, a.Intruder = o, i
		a.DetectedAt = time.Unix(0, detectedNs).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// PairCount is the number of alerts raised for one ownship/intruder pair.
type PairCount struct {
	Ownship  string `json:"ownship"`
	Intruder string `json:"intruder"`
	Count    int64  `json:"count"`
}

func (p PairCount) String() string {
	return fmt.Sprintf("%s/%s", p.Ownship, p.Intruder)
}

// PairCounts returns alert totals per pair, most frequent first.
func (db *DB) PairCounts() ([]PairCount, error) {
	rows, err := db.Query(`
		SELECT ownship, intruder, COUNT(*) AS n
		FROM alerts
		GROUP BY ownship, intruder
		ORDER BY n DESC, ownship, intruder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []PairCount
	for rows.Next() {
		var p PairCount
		if err := rows.Scan(&p.Ownship, &p.Intruder, &p.Count); err != nil {
			return nil, err
		}
		counts = append(counts, p)
	}
	return counts, rows.Err()
}

// AttachAdminRoutes mounts tailsql and a backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Alert DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the alert database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("alerts-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("Failed to stream backup: %v", err)
	}
}
