// Package logging owns the control plane's structured log surface. All
// daemon and lifecycle logs flow through one process-wide slog.Logger;
// code that acts on behalf of a specific indexer goes through WithIndexer
// so every line for a child process carries its id.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Configure replaces the process-wide logger. Called once at daemon
// startup from config; level is one of debug|info|warn|error (anything
// else falls back to info) and format is "json" or "text".
func Configure(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	root.Store(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Op returns the process-wide logger for daemon and infrastructure logs.
func Op() *slog.Logger {
	return root.Load()
}

// WithIndexer returns a logger tagged with the indexer id. Supervisor and
// coordinator code uses it so stdout/stderr lines and lifecycle events
// are attributable to a single child.
func WithIndexer(id string) *slog.Logger {
	return Op().With("indexer_id", id)
}
