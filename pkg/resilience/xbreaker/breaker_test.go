package xbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock, opts ...Option) *Breaker {
	return New("payments", append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestClosedToOpenAtFailureThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(5), WithOpenDuration(30*time.Second))

	// Five consecutive failures open the circuit.
	for i := range 5 {
		done, err := b.Allow()
		require.NoError(t, err, "call %d should be admitted", i)
		done(errTest)
	}
	assert.Equal(t, StateOpen, b.State())

	// The sixth call is rejected without an attempt.
	done, err := b.Allow()
	require.Nil(t, done)
	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, StateOpen, oe.State)
	assert.Equal(t, clock.Now().Add(30*time.Second), oe.RetryAt)
	assert.False(t, oe.Retryable())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(3))

	for range 2 {
		done, err := b.Allow()
		require.NoError(t, err)
		done(errTest)
	}
	done, err := b.Allow()
	require.NoError(t, err)
	done(nil)

	// Streak broken: two more failures must not open the circuit.
	for range 2 {
		done, err := b.Allow()
		require.NoError(t, err)
		done(errTest)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestOpenToHalfOpenAfterDuration(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock,
		WithFailureThreshold(1),
		WithOpenDuration(30*time.Second),
		WithSuccessThreshold(3),
		WithHalfOpenRequests(3),
	)

	done, err := b.Allow()
	require.NoError(t, err)
	done(errTest)
	require.Equal(t, StateOpen, b.State())

	// Just before the deadline: still open, no-op reads don't help.
	clock.Advance(29 * time.Second)
	_, err = b.Allow()
	require.Error(t, err)

	// At t=31s the first observer sees half-open.
	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Two successes are not enough to close with SuccessThreshold=3.
	for range 2 {
		done, err := b.Allow()
		require.NoError(t, err)
		done(nil)
	}
	assert.Equal(t, StateHalfOpen, b.State())

	// The third success closes.
	done, err = b.Allow()
	require.NoError(t, err)
	done(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopensWithFreshTimer(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(1), WithOpenDuration(30*time.Second))

	done, err := b.Allow()
	require.NoError(t, err)
	done(errTest)

	clock.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	done, err = b.Allow()
	require.NoError(t, err)
	done(errTest)

	st := b.Status()
	assert.Equal(t, StateOpen, st.State)
	// Fresh timer: the deadline is measured from the half-open failure.
	assert.Equal(t, clock.Now().Add(30*time.Second), st.NextRetryAt)
}

func TestHalfOpenProbeBudget(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock,
		WithFailureThreshold(1),
		WithOpenDuration(time.Second),
		WithHalfOpenRequests(2),
		WithSuccessThreshold(5),
	)

	done, err := b.Allow()
	require.NoError(t, err)
	done(errTest)
	clock.Advance(2 * time.Second)

	// Two concurrent probes admitted, the third rejected as if open.
	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, StateHalfOpen, oe.State)

	// Finishing a probe frees its slot.
	done1(nil)
	done3, err := b.Allow()
	require.NoError(t, err)
	done2(nil)
	done3(nil)
}

func TestDoneIsIdempotentAndGenerationSafe(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(2))

	done, err := b.Allow()
	require.NoError(t, err)
	done(errTest)
	done(errTest) // second invocation ignored
	assert.Equal(t, uint32(1), b.Status().FailureCount)

	// A stale done from before Reset must not leak into the new window.
	stale, err := b.Allow()
	require.NoError(t, err)
	b.Reset()
	stale(errTest)
	assert.Equal(t, uint32(0), b.Status().FailureCount)
	assert.Equal(t, uint64(0), b.Status().TotalFailures)
}

func TestForceState(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	require.NoError(t, b.ForceState(StateOpen))
	assert.True(t, b.Status().Forced)

	_, err := b.Allow()
	require.True(t, IsOpen(err))

	// Forced closed admits but discards outcomes.
	require.NoError(t, b.ForceState(StateClosed))
	for range 10 {
		done, err := b.Allow()
		require.NoError(t, err)
		done(errTest)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint64(0), b.Status().TotalFailures)

	require.ErrorIs(t, b.ForceState(State(42)), ErrInvalidState)

	b.Reset()
	assert.False(t, b.Status().Forced)
}

func TestDirectRecordCalls(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(2))

	b.RecordFailure(errTest)
	b.RecordFailure(errTest)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	b.RecordFailure(nil) // nil error is not a failure
	b.RecordSuccess()
	st := b.Status()
	assert.Equal(t, uint64(1), st.TotalSuccesses)
	assert.Equal(t, uint64(0), st.TotalFailures)
}

func TestOnStateChangeCallback(t *testing.T) {
	clock := newFakeClock()
	transitions := make(chan [2]State, 4)
	b := newTestBreaker(clock,
		WithFailureThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "payments", name)
			transitions <- [2]State{from, to}
		}),
	)

	done, err := b.Allow()
	require.NoError(t, err)
	done(errTest)

	select {
	case tr := <-transitions:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, tr)
	case <-time.After(time.Second):
		t.Fatal("state change callback not invoked")
	}
}

func TestConcurrentRecording(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, WithFailureThreshold(1_000_000))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if done, err := b.Allow(); err == nil {
					done(errTest)
				}
			}
		}()
	}
	wg.Wait()

	st := b.Status()
	assert.Equal(t, uint64(5000), st.TotalFailures)
	assert.Equal(t, uint32(5000), st.FailureCount)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
}
