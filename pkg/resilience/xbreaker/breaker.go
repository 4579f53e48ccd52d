package xbreaker

import (
	"sync"
	"time"
)

// Breaker is a per-dependency circuit breaker.
//
// Transitions:
//   - Closed → Open once failures since the last reset reach FailureThreshold.
//   - Open → HalfOpen only when the open duration has elapsed; no other
//     call causes this transition.
//   - HalfOpen → Closed after SuccessThreshold consecutive successes.
//   - HalfOpen → Open immediately on any failure, with a fresh timer.
//
// While half-open, at most HalfOpenRequests probes may be in flight
// concurrently; excess callers are rejected as if the circuit were open.
//
// All state mutation happens behind one mutex, so concurrent
// RecordSuccess/RecordFailure calls from parallel requests are applied
// atomically. The breaker never blocks and never calls out while locked
// (state-change callbacks run on their own goroutine).
type Breaker struct {
	name             string
	failureThreshold uint32
	openDuration     time.Duration
	successThreshold uint32
	halfOpenRequests uint32
	onStateChange    func(name string, from, to State)
	now              func() time.Time

	mu             sync.Mutex
	state          State
	generation     uint64
	failureCount   uint32
	successCount   uint32
	totalSuccesses uint64
	totalFailures  uint64
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	openedAt       time.Time
	probesInflight uint32
	forced         *State
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive-failure count that opens the
// circuit. Default 5.
func WithFailureThreshold(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithOpenDuration sets how long the circuit stays open before half-open
// probing begins. Default 30s.
func WithOpenDuration(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.openDuration = d
		}
	}
}

// WithSuccessThreshold sets the consecutive successes required to close a
// half-open circuit. Default 2.
func WithSuccessThreshold(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithHalfOpenRequests caps concurrent half-open probes. Default 1.
func WithHalfOpenRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.halfOpenRequests = n
		}
	}
}

// WithOnStateChange registers a transition callback, useful for logs and
// alerting. The callback runs on its own goroutine.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// WithClock injects a time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Breaker named after the dependency it guards.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		successThreshold: 2,
		halfOpenRequests: 1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Allow asks whether a request may proceed.
//
// On admission it returns a done callback that must be invoked exactly once
// with the request outcome (nil for success). On rejection it returns an
// *OpenError and the request must not be attempted.
//
// A done callback from before a state transition is ignored: by then the
// breaker has moved on and the stale outcome would corrupt the new window.
func (b *Breaker) Allow() (done func(err error), rejected error) {
	b.mu.Lock()

	if b.forced != nil {
		forced := *b.forced
		b.mu.Unlock()
		if forced == StateClosed {
			// Forced closed: admit and discard the outcome so failures
			// cannot trip the frozen breaker.
			return func(error) {}, nil
		}
		return nil, &OpenError{Name: b.name, State: forced}
	}

	now := b.now()
	state := b.currentStateLocked(now)

	switch state {
	case StateOpen:
		retryAt := b.openedAt.Add(b.openDuration)
		b.mu.Unlock()
		return nil, &OpenError{Name: b.name, State: StateOpen, RetryAt: retryAt}

	case StateHalfOpen:
		if b.probesInflight >= b.halfOpenRequests {
			b.mu.Unlock()
			return nil, &OpenError{Name: b.name, State: StateHalfOpen}
		}
		b.probesInflight++
	}

	generation := b.generation
	b.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(generation, true, err) })
	}, nil
}

// RecordSuccess records a successful call against the current window.
// Prefer the done callback from Allow where a slot was taken.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()
	b.record(gen, false, nil)
}

// RecordFailure records a failed call against the current window.
func (b *Breaker) RecordFailure(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()
	b.record(gen, false, err)
}

func (b *Breaker) record(generation uint64, probe bool, err error) {
	b.mu.Lock()

	if b.forced != nil || generation != b.generation {
		b.mu.Unlock()
		return
	}
	if probe && b.state == StateHalfOpen && b.probesInflight > 0 {
		b.probesInflight--
	}

	now := b.now()
	var transition func()
	if err == nil {
		transition = b.recordSuccessLocked(now)
	} else {
		transition = b.recordFailureLocked(now)
	}
	b.mu.Unlock()

	if transition != nil {
		transition()
	}
}

func (b *Breaker) recordSuccessLocked(now time.Time) func() {
	b.totalSuccesses++
	b.lastSuccessAt = now

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			return b.setStateLocked(StateClosed, now)
		}
	}
	return nil
}

func (b *Breaker) recordFailureLocked(now time.Time) func() {
	b.totalFailures++
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			return b.setStateLocked(StateOpen, now)
		}
	case StateHalfOpen:
		// Any half-open failure reopens immediately with a fresh timer.
		return b.setStateLocked(StateOpen, now)
	}
	return nil
}

// currentStateLocked resolves the effective state, performing the lazy
// Open → HalfOpen transition once the open duration has elapsed.
func (b *Breaker) currentStateLocked(now time.Time) State {
	if b.state == StateOpen && !now.Before(b.openedAt.Add(b.openDuration)) {
		if fire := b.setStateLocked(StateHalfOpen, now); fire != nil {
			// The dispatch only spawns a goroutine, safe under the lock.
			fire()
		}
	}
	return b.state
}

// setStateLocked transitions state and returns the callback dispatch to run
// after unlocking (nil when no callback is registered).
func (b *Breaker) setStateLocked(to State, now time.Time) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	b.generation++
	b.successCount = 0
	b.probesInflight = 0

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.failureCount = 0
		b.openedAt = time.Time{}
	}

	if b.onStateChange == nil {
		return nil
	}
	cb := b.onStateChange
	name := b.name
	return func() { go cb(name, from, to) }
}

// Status returns a snapshot, resolving the lazy half-open transition first.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentStateLocked(b.now())
	if b.forced != nil {
		state = *b.forced
	}

	st := Status{
		Name:           b.name,
		State:          state,
		FailureCount:   b.failureCount,
		SuccessCount:   b.successCount,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
		LastFailureAt:  b.lastFailureAt,
		LastSuccessAt:  b.lastSuccessAt,
		OpenedAt:       b.openedAt,
		Forced:         b.forced != nil,
	}
	if state == StateOpen && !b.openedAt.IsZero() {
		st.NextRetryAt = b.openedAt.Add(b.openDuration)
	}
	return st
}

// State returns the effective state.
func (b *Breaker) State() State {
	return b.Status().State
}

// ForceState pins the breaker to a state, overriding normal transitions.
// Administrative operation only; must not be reachable from request paths.
// While forced, outcomes are not recorded. Reset clears the override.
func (b *Breaker) ForceState(s State) error {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
	default:
		return ErrInvalidState
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	forced := s
	b.forced = &forced
	return nil
}

// Reset returns the breaker to a pristine closed state and clears any
// forced override. Administrative and test-only operation.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = nil
	b.state = StateClosed
	b.generation++
	b.failureCount = 0
	b.successCount = 0
	b.totalSuccesses = 0
	b.totalFailures = 0
	b.lastFailureAt = time.Time{}
	b.lastSuccessAt = time.Time{}
	b.openedAt = time.Time{}
	b.probesInflight = 0
}
