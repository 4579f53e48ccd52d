// Package xconf loads the gateway's configuration from YAML or JSON
// files (or raw bytes, for ConfigMap-style delivery), built on koanf.
//
// The generic Config surface covers loading, typed unmarshaling, and
// concurrency-safe reload; Watch adds fsnotify-driven hot reload with
// debouncing. GatewayConfig is the typed view of the "gateway" subtree:
// per-service breaker/retry/timeout tuning plus budget limits and
// pricing tables.
package xconf
