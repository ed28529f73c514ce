package main

import (
	"fmt"
	"io"

	"github.com/banshee-data/wellclear/internal/alertdb"
	"github.com/banshee-data/wellclear/internal/monitoring"
)

var migrateActions = map[string]bool{"up": true, "down": true, "version": true}

// runMigrate applies one schema action to the alert database and reports
// the resulting version on out.
func runMigrate(action, dbPath string, out io.Writer) error {
	if !migrateActions[action] {
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}
	if dbPath == "" {
		return fmt.Errorf("-migrate needs an alert database path (-db or db_path)")
	}

	database, err := alertdb.OpenRaw(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action {
	case "up":
		monitoring.Logf("Running migrations on %s...", database.Path())
		if err := database.MigrateUp(); err != nil {
			return err
		}
		monitoring.Logf("✓ All migrations applied successfully")
	case "down":
		monitoring.Logf("Rolling back one migration on %s...", database.Path())
		if err := database.MigrateDown(); err != nil {
			return err
		}
		monitoring.Logf("✓ Migration rolled back successfully")
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	fmt.Fprintf(out, "%s: version %d (dirty: %v)\n", database.Path(), version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution; inspect the database before running up again.")
	}
	return nil
}
