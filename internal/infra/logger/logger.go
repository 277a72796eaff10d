// Package logger builds the process-wide slog.Logger, grounded on the
// teacher's cmd/server/main.go usage ("log := logger.New()" wired into
// every adapter and usecase constructor).
package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON-handler slog.Logger writing to stderr at the given
// level ("debug", "info", "warn", "error"; defaults to "info").
func New(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
