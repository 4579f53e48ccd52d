package xlog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// defaultLogger holds the process-wide default. Stored atomically so
// SetDefault is safe during concurrent logging.
var defaultLogger atomic.Pointer[xlogger]

func init() {
	logger, _, _ := New().Build()
	defaultLogger.Store(logger.(*xlogger))
}

// Default returns the process-wide default logger.
func Default() LoggerWithLevel {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide default logger.
// Loggers not built by this package are ignored.
func SetDefault(logger LoggerWithLevel) {
	if l, ok := logger.(*xlogger); ok && l != nil {
		defaultLogger.Store(l)
	}
}

// Nop returns a logger that discards everything. Intended as the fallback
// when a component is constructed without an explicit logger in tests.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}
func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
func (nopLogger) With(...slog.Attr) Logger                    { return nopLogger{} }
