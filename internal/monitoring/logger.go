// Package monitoring holds the process-wide diagnostic hooks used by the
// ingest and monitor loops.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Fatalf terminates the process after logging. Conditions that leave shared
// vehicle state unusable (no ingestion socket, corrupt registry) go through
// here. Tests may swap it for a recorder.
var Fatalf func(format string, v ...interface{}) = log.Fatalf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetFatal replaces the fatal hook. Passing nil restores log.Fatalf.
func SetFatal(f func(format string, v ...interface{})) {
	if f == nil {
		Fatalf = log.Fatalf
		return
	}
	Fatalf = f
}
