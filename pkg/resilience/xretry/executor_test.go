package xretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBreaker implements AdmissionControl for tests.
type fakeBreaker struct {
	rejectWith error
	allowed    int
	successes  int
	failures   int
}

func (f *fakeBreaker) Allow() (func(error), error) {
	if f.rejectWith != nil {
		return nil, f.rejectWith
	}
	f.allowed++
	return func(err error) {
		if err == nil {
			f.successes++
		} else {
			f.failures++
		}
	}, nil
}

func fastExecutor(opts ...ExecutorOption) *Executor {
	base := []ExecutorOption{
		WithBaseDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return NewExecutor(append(base, opts...)...)
}

type rejectedError struct{}

func (rejectedError) Error() string   { return "circuit open" }
func (rejectedError) Retryable() bool { return false }

func TestDoSuccessFirstAttempt(t *testing.T) {
	breaker := &fakeBreaker{}
	calls := 0

	err := fastExecutor().Do(context.Background(), breaker, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, breaker.successes)
	assert.Equal(t, 0, breaker.failures)
}

func TestDoRetriesRetryableUntilSuccess(t *testing.T) {
	breaker := &fakeBreaker{}
	calls := 0

	result, err := DoWithResult(context.Background(), fastExecutor(WithMaxAttempts(5)), breaker,
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", FromStatus(503, "unavailable", nil)
			}
			return "link-123", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "link-123", result)
	assert.Equal(t, 3, calls)
	// Every failed attempt recorded exactly one breaker failure.
	assert.Equal(t, 2, breaker.failures)
	assert.Equal(t, 1, breaker.successes)
}

func TestDoFailsFastOnNonRetryable(t *testing.T) {
	breaker := &fakeBreaker{}
	calls := 0

	err := fastExecutor(WithMaxAttempts(5)).Do(context.Background(), breaker, func(context.Context) error {
		calls++
		return FromStatus(401, "bad credentials", nil)
	})

	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, TypeAuthFailure, api.Type)
	assert.Equal(t, 1, calls)
	// The non-retryable failure still counted against the breaker.
	assert.Equal(t, 1, breaker.failures)
}

func TestDoExhaustionSurfacesLastError(t *testing.T) {
	breaker := &fakeBreaker{}
	calls := 0

	err := fastExecutor(WithMaxAttempts(3)).Do(context.Background(), breaker, func(context.Context) error {
		calls++
		return FromStatus(500+calls, "flaky", nil)
	})

	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, 503, api.Status) // last attempt's error, not the first
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, breaker.failures)
}

func TestDoCircuitRejectionSkipsOperation(t *testing.T) {
	breaker := &fakeBreaker{rejectWith: rejectedError{}}
	calls := 0

	err := fastExecutor().Do(context.Background(), breaker, func(context.Context) error {
		calls++
		return nil
	})

	require.ErrorAs(t, err, &rejectedError{})
	assert.Equal(t, 0, calls, "operation must never run while rejected")
	assert.Equal(t, 0, breaker.allowed)
}

func TestDoNormalizesRawErrors(t *testing.T) {
	breaker := &fakeBreaker{}

	err := fastExecutor(WithMaxAttempts(2)).Do(context.Background(), breaker, func(context.Context) error {
		return errors.New("opaque provider failure")
	})

	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, TypeUnknown, api.Type)
	assert.Equal(t, 1, breaker.failures, "unknown errors are not retried")
}

func TestDoWithoutBreaker(t *testing.T) {
	calls := 0
	err := fastExecutor(WithMaxAttempts(2)).Do(context.Background(), nil, func(context.Context) error {
		calls++
		return FromStatus(502, "bad gateway", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestOnRetryCallback(t *testing.T) {
	var attempts []int
	exec := fastExecutor(
		WithMaxAttempts(3),
		WithOnRetry(func(attempt int, err error) {
			attempts = append(attempts, attempt)
			assert.Error(t, err)
		}),
	)

	_ = exec.Do(context.Background(), &fakeBreaker{}, func(context.Context) error {
		return NewTimeout(nil)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestNextDelayExponential(t *testing.T) {
	e := NewExecutor(WithBaseDelay(100*time.Millisecond), WithMaxDelay(time.Second), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, e.nextDelay(1, nil))
	assert.Equal(t, 200*time.Millisecond, e.nextDelay(2, nil))
	assert.Equal(t, 400*time.Millisecond, e.nextDelay(3, nil))
	assert.Equal(t, time.Second, e.nextDelay(10, nil), "capped at max delay")
	assert.Equal(t, time.Second, e.nextDelay(100000, nil), "overflow-safe")
}

func TestNextDelayPrefersRetryAfterHint(t *testing.T) {
	e := NewExecutor(WithBaseDelay(time.Millisecond), WithMaxDelay(time.Minute), WithJitter(0))

	hinted := NewRateLimited(7*time.Second, nil)
	assert.Equal(t, 7*time.Second, e.nextDelay(1, hinted))

	// Hints beyond the cap are clamped.
	excessive := NewRateLimited(10*time.Minute, nil)
	assert.Equal(t, time.Minute, e.nextDelay(1, excessive))

	// No hint: computed backoff applies even for rate limits.
	unhinted := NewRateLimited(0, nil)
	assert.Equal(t, time.Millisecond, e.nextDelay(1, unhinted))
}

func TestNextDelayJitterBounds(t *testing.T) {
	e := NewExecutor(WithBaseDelay(100*time.Millisecond), WithMaxDelay(time.Hour), WithJitter(0.5))
	for range 100 {
		d := e.nextDelay(1, nil)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDoValidation(t *testing.T) {
	var nilExec *Executor
	err := nilExec.Do(context.Background(), nil, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNilExecutor)

	err = fastExecutor().Do(nil, nil, func(context.Context) error { return nil }) //nolint:staticcheck
	require.ErrorIs(t, err, ErrNilContext)

	err = fastExecutor().Do(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNilOperation)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := fastExecutor(WithMaxAttempts(100)).Do(ctx, &fakeBreaker{}, func(context.Context) error {
		calls++
		cancel()
		return NewTimeout(nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retries after cancellation")
}
