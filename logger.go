package treepool

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with treepool-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContextID adds the context ID field to the logger.
func (l *Logger) WithContextID(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("context_id", id.String()),
	}
}

// WithIdentifier adds a node identifier field to the logger.
func (l *Logger) WithIdentifier(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// LogContextOpen logs the creation of a context.
func (l *Logger) LogContextOpen(capacity, maxIdentifiers int, offHeap bool) {
	l.Info("context opened",
		"capacity", capacity,
		"max_identifiers", maxIdentifiers,
		"off_heap", offHeap,
	)
}

// LogContextClose logs the final statistics of a context.
func (l *Logger) LogContextClose(stats Stats, err error) {
	if err != nil {
		l.Error("context close failed",
			"error", err,
		)
		return
	}
	l.Info("context closed",
		"live_nodes", stats.LiveNodes,
		"peak_bytes", stats.PeakBytesUsed,
		"allocations", stats.Allocations,
		"failed_allocations", stats.FailedAllocations,
		"substitutions", stats.Substitutions,
	)
}

// LogAllocationFailure logs an allocation or deep copy the arena could not satisfy.
// suppressed is the number of failures dropped by the rate limiter since the last entry.
func (l *Logger) LogAllocationFailure(typeName string, err error, suppressed int) {
	if suppressed > 0 {
		l.Warn("allocation failed",
			"type", typeName,
			"error", err,
			"suppressed", suppressed,
		)
		return
	}
	l.Warn("allocation failed",
		"type", typeName,
		"error", err,
	)
}

// LogSubstitution logs the replacement of a subtree by a failure sentinel.
// Use WithIdentifier to attach the node identifier.
func (l *Logger) LogSubstitution(typeName, failureName string, reclaimed int) {
	l.Warn("subtree replaced by allocation failure",
		"type", typeName,
		"failure_type", failureName,
		"reclaimed", reclaimed,
	)
}
