// Package logging holds the process-wide operational logger. The logger is
// stored behind an atomic pointer so handlers can be swapped at runtime
// (daemon startup reconfigures format and level from config) while callers
// keep using logging.Op().
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	opLogger.Store(slog.New(handler))
}

// Op returns the operational logger for runtime and infrastructure logs.
// Per-invocation records go through the telemetry collectors instead.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevel changes the level of the operational logger.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the level from a config string.
// Valid values: "debug", "info", "warn", "error". Unknown values are ignored.
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	}
}

// InitStructured reconfigures the operational logger.
// format: "text" (default) or "json"; level: "debug", "info", "warn", "error".
func InitStructured(format, level string) {
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	opLogger.Store(slog.New(handler))
}

// OpWithTrace returns the operational logger with trace correlation fields
// attached when a trace is active.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}
