// xlog.go defines the core interfaces: Logger, Leveler, LoggerWithLevel.
//
// Design principles:
//   - context is mandatory on every call so request-scoped fields propagate
//   - dynamic level control for runtime adjustment without restart
//   - method signatures accept only slog.Attr, no implicit key-value pairs
package xlog

import (
	"context"
	"log/slog"
)

// Logger is the logging interface used throughout the gateway.
//
// Every method takes a context.Context so request-scoped information is
// available to handlers. Attributes are typed slog.Attr values only.
type Logger interface {
	// Debug logs at Debug level.
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)

	// Info logs at Info level.
	Info(ctx context.Context, msg string, attrs ...slog.Attr)

	// Warn logs at Warn level.
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)

	// Error logs at Error level.
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With returns a derived Logger carrying extra attributes.
	//
	// The derived logger shares the parent's LevelVar, so dynamic level
	// changes apply to both.
	With(attrs ...slog.Attr) Logger
}

// Leveler controls the logging level at runtime.
//
// Kept separate from Logger so the core interface stays minimal; obtain it
// from a built logger via type assertion or use LoggerWithLevel.
type Leveler interface {
	// SetLevel changes the active level. Takes effect immediately.
	SetLevel(level Level)

	// GetLevel returns the active level.
	GetLevel() Level

	// Enabled reports whether the given level would produce output.
	// Useful to avoid building expensive attributes for suppressed logs.
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel combines Logger and Leveler.
//
// Build() returns this interface so callers don't need type assertions for
// the common case of wanting dynamic level control.
type LoggerWithLevel interface {
	Logger
	Leveler
}
