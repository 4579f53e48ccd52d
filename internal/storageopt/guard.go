package storageopt

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrStoreUnavailable is returned by WriteGuard.Do when the durable store
// is fenced off: either the breaker is open or the write itself failed.
// Callers fall back to their in-memory degradation path on this error.
var ErrStoreUnavailable = errors.New("storageopt: durable store unavailable")

// WriteGuard wraps durable writes in a circuit breaker so a down store
// fast-fails to the in-memory degradation path instead of paying a full
// driver timeout on every call.
//
// The guard is deliberately coarse: any write error counts as a failure,
// five consecutive failures trip the breaker, and probes resume after the
// cooldown. That matches the degradation contract: while the store is
// known bad, callers should not wait on it.
type WriteGuard struct {
	cb *gobreaker.CircuitBreaker[any]
}

// GuardConfig tunes a WriteGuard. Zero values select the defaults.
type GuardConfig struct {
	// Name labels the breaker for state-change logs.
	Name string
	// ConsecutiveFailures trips the breaker (default 5).
	ConsecutiveFailures uint32
	// Cooldown is the open duration before probing again (default 15s).
	Cooldown time.Duration
	// OnStateChange is invoked on breaker transitions, if set.
	OnStateChange func(name string, from, to gobreaker.State)
}

// NewWriteGuard builds a guard around durable writes.
func NewWriteGuard(cfg GuardConfig) *WriteGuard {
	name := cfg.Name
	if name == "" {
		name = "durable-writes"
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return &WriteGuard{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Do runs fn under the guard. When the breaker rejects or fn fails, the
// returned error wraps ErrStoreUnavailable together with the cause.
func (g *WriteGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil || g.cb == nil {
		// Unguarded fallback keeps the zero value usable in tests.
		return fn(ctx)
	}
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// State reports the underlying breaker state.
func (g *WriteGuard) State() gobreaker.State {
	if g == nil || g.cb == nil {
		return gobreaker.StateClosed
	}
	return g.cb.State()
}
