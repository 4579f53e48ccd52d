// Package xlog provides structured, leveled logging on top of log/slog.
//
// The package enforces two conventions across the codebase: every log call
// carries a context.Context, and attributes are typed slog.Attr values.
// Loggers are assembled through a Builder that supports text/json output,
// runtime level changes and size-based file rotation.
//
// Typical usage:
//
//	logger, cleanup, err := xlog.New().
//		SetFormat("json").
//		SetLevelString("debug").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
//	logger.Info(ctx, "gateway ready", slog.String("dependency", "payments"))
package xlog
