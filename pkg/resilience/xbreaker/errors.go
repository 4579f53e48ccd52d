package xbreaker

import (
	"errors"
	"fmt"
	"time"
)

// OpenError is returned by Allow when the breaker rejects a request: the
// circuit is open, a forced-open override is active, or the half-open
// probe budget is exhausted (which callers must treat exactly like open).
//
// RetryAt is the earliest instant a retry can make progress; it is zero
// when no deadline applies (forced open, probe budget exhausted).
type OpenError struct {
	Name    string
	State   State
	RetryAt time.Time
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("breaker %s: circuit %s, request rejected", e.Name, e.State)
	}
	return fmt.Sprintf("breaker %s: circuit %s, retry at %s", e.Name, e.State, e.RetryAt.Format(time.RFC3339))
}

// Retryable marks the rejection as non-retryable for the retry layer:
// retrying against a known-bad dependency is the exact thing the breaker
// exists to prevent.
func (e *OpenError) Retryable() bool {
	return false
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

// ErrInvalidState is returned by ForceState for unknown states.
var ErrInvalidState = errors.New("xbreaker: invalid state")
