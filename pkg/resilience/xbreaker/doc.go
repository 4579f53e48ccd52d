// Package xbreaker implements the per-dependency circuit breaker used by
// the external-dependency gateways.
//
// The breaker follows the classic three-state machine (closed, open,
// half-open) with a bounded concurrent probe budget while half-open, an
// administrative ForceState override, and a Reset hook for tests. Allow
// hands back a done callback so the admission check and the outcome
// recording share one serialization point:
//
//	done, err := breaker.Allow()
//	if err != nil {
//		return err // *OpenError, carries RetryAt
//	}
//	result, callErr := callDependency(ctx)
//	done(callErr)
//
// The state machine is hand-built rather than layered on a library breaker
// because the gateways need a decoupled success threshold and probe budget,
// a forced-state override, and the open deadline surfaced in rejections.
package xbreaker
