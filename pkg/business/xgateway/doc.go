// Package xgateway is the caller-facing surface of the dependency
// gateway. A Facade wraps one external dependency (payment provider, AI
// provider, messaging API) and runs every operation through the same
// pipeline: fallback pre-check, circuit-gated retries under a hard
// timeout, usage recording on success, and structured degradation on
// failure.
//
// Callers see either a normal result or a Fallback payload with a
// human-readable message and concrete next steps; raw transport errors
// surface only when auto-fallback is explicitly disabled.
package xgateway
