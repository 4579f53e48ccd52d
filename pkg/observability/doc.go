// Package observability provides observability-related subpackages.
//
// Subpackages:
//   - xlog: structured logging built on log/slog
//   - xmetrics: unified operation observation (spans, counters) on OpenTelemetry
//
// Design principles:
//   - follow OpenTelemetry semantic conventions
//   - observation is optional: nil observers and loggers are safe defaults
package observability
