package xretry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Parameter validation errors.
var (
	// ErrNilExecutor signals a nil *Executor receiver.
	ErrNilExecutor = errors.New("xretry: executor cannot be nil")

	// ErrNilContext signals a nil context.
	ErrNilContext = errors.New("xretry: context cannot be nil")

	// ErrNilOperation signals a nil operation function.
	ErrNilOperation = errors.New("xretry: operation cannot be nil")
)

// AdmissionControl is the breaker surface the executor needs: permission
// to attempt, and a callback to report the outcome. *xbreaker.Breaker
// satisfies it.
type AdmissionControl interface {
	Allow() (done func(err error), rejected error)
}

// Executor runs a single logical operation with bounded retries,
// exponential backoff with jitter, and circuit-breaker integration.
//
// Built on avast/retry-go/v5. Every attempt goes through the breaker:
// admission is checked before the operation is invoked, and every failed
// attempt, retryable or not, records exactly one breaker failure, so
// rapid failure bursts open the circuit quickly.
type Executor struct {
	maxAttempts uint
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	onRetry     func(attempt int, err error)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts sets the total attempt budget, first try included.
// Default 3.
func WithMaxAttempts(n uint) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first retry delay. Default 200ms.
func WithBaseDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

// WithMaxDelay caps the computed backoff. Default 10s.
func WithMaxDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.maxDelay = d
		}
	}
}

// WithJitter sets the jitter factor in [0,1]. Default 0.2.
func WithJitter(j float64) ExecutorOption {
	return func(e *Executor) {
		if j < 0 {
			j = 0
		} else if j > 1 {
			j = 1
		}
		e.jitter = j
	}
}

// WithOnRetry registers a callback invoked before each retry with the
// 1-based failed attempt number and the classified error.
func WithOnRetry(fn func(attempt int, err error)) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.onRetry = fn
		}
	}
}

// NewExecutor creates a retry executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
		maxDelay:    10 * time.Second,
		jitter:      0.2,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxDelay < e.baseDelay {
		e.maxDelay = e.baseDelay
	}
	return e
}

// Do runs op with retries under breaker admission.
//
// If the breaker rejects, the attempt fails immediately with the breaker's
// *OpenError and op is never invoked. Failures are normalized to *APIError
// before any retry decision; exhaustion surfaces the last classified error.
func (e *Executor) Do(ctx context.Context, breaker AdmissionControl, op func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, e, breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithResult is the generic form of Do for operations with a result.
// Package-level because Go methods cannot take type parameters.
func DoWithResult[T any](ctx context.Context, e *Executor, breaker AdmissionControl, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		return zero, ErrNilExecutor
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if op == nil {
		return zero, ErrNilOperation
	}

	attempt := func() (T, error) {
		if breaker != nil {
			done, rejected := breaker.Allow()
			if rejected != nil {
				// The whole point: no load on a known-bad dependency.
				return zero, rejected
			}
			result, err := op(ctx)
			if err != nil {
				api := Normalize(err)
				done(api)
				return zero, api
			}
			done(nil)
			return result, nil
		}

		result, err := op(ctx)
		if err != nil {
			return zero, Normalize(err)
		}
		return result, nil
	}

	return retry.NewWithData[T](e.buildOptions(ctx)...).Do(attempt)
}

// buildOptions assembles the retry-go option set for one execution.
func (e *Executor) buildOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(e.maxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return IsRetryable(err)
		}),
		retry.DelayType(func(n uint, err error, _ retry.DelayContext) time.Duration {
			return e.nextDelay(safeUintToInt(n), err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if e.onRetry != nil {
				// retry-go counts from 0; report 1-based attempts.
				e.onRetry(safeUintToInt(n)+1, err)
			}
		}),
	}
}

// nextDelay computes the backoff before retry attempt n (1-based).
// A rate-limited response with a provider retry-after hint wins over the
// computed exponential delay.
func (e *Executor) nextDelay(attempt int, err error) time.Duration {
	var api *APIError
	if errors.As(err, &api) && api.Type == TypeRateLimited && api.RetryAfter > 0 {
		if api.RetryAfter > e.maxDelay {
			return e.maxDelay
		}
		return api.RetryAfter
	}

	if attempt < 1 {
		attempt = 1
	}
	delay := float64(e.baseDelay) * math.Pow(2, float64(attempt-1))
	if e.jitter > 0 {
		delay *= 1 + (randomFloat64()*2-1)*e.jitter
	}
	// NaN/negative guard: huge attempts overflow math.Pow to +Inf and a
	// zero jitter factor turns that into NaN, which compares false against
	// everything and would bypass the cap.
	if math.IsNaN(delay) || delay < 0 || delay >= float64(e.maxDelay) {
		return e.maxDelay
	}
	return time.Duration(delay)
}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 returns a uniform value in [0,1), zero on entropy failure
// (no jitter is the safe default).
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}

// safeUintToInt converts uint to int, clamping at MaxInt.
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
