package xretry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrorType classifies a dependency failure.
type ErrorType string

// Classification taxonomy. Only TypeTimeout, TypeRateLimited and
// TypeServerError are retried internally; everything else fails fast.
const (
	TypeTimeout     ErrorType = "timeout"
	TypeRateLimited ErrorType = "rate_limited"
	TypeAuthFailure ErrorType = "auth_failure"
	TypeValidation  ErrorType = "validation"
	TypeServerError ErrorType = "server_error"
	TypeUnknown     ErrorType = "unknown"
)

// RetryableError is implemented by errors that decide their own
// retryability (APIError here, OpenError in xbreaker).
type RetryableError interface {
	error
	Retryable() bool
}

// APIError is the one canonical error shape at the dependency boundary.
// Heterogeneous upstream failures (string errors, structured provider
// errors, transport errors) are normalized into it before any decision
// logic inspects them.
type APIError struct {
	// Type is the classification bucket.
	Type ErrorType
	// Status is the HTTP-ish status code when one exists, else 0.
	Status int
	// Message is safe to log; never shown to end users directly.
	Message string
	// RetryAfter is the provider-supplied backoff hint, if any.
	// Honored only for rate-limited responses.
	RetryAfter time.Duration
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable implements RetryableError.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case TypeTimeout, TypeRateLimited, TypeServerError:
		return true
	default:
		return false
	}
}

// NewTimeout builds a timeout APIError.
func NewTimeout(cause error) *APIError {
	return &APIError{Type: TypeTimeout, Message: "operation timed out", Err: cause}
}

// NewRateLimited builds a rate-limited APIError carrying the provider's
// retry-after hint (zero when the provider gave none).
func NewRateLimited(retryAfter time.Duration, cause error) *APIError {
	return &APIError{
		Type:       TypeRateLimited,
		Status:     429,
		Message:    "rate limited by provider",
		RetryAfter: retryAfter,
		Err:        cause,
	}
}

// FromStatus maps an HTTP status code to the taxonomy.
func FromStatus(status int, message string, cause error) *APIError {
	e := &APIError{Status: status, Message: message, Err: cause}
	switch {
	case status == 401 || status == 403:
		e.Type = TypeAuthFailure
	case status == 408:
		e.Type = TypeTimeout
	case status == 429:
		e.Type = TypeRateLimited
	case status >= 400 && status < 500:
		e.Type = TypeValidation
	case status >= 500:
		e.Type = TypeServerError
	default:
		e.Type = TypeUnknown
	}
	return e
}

// Normalize converts any upstream error into a canonical *APIError.
//
// Already-normalized errors pass through unchanged. Context deadlines and
// transport timeouts become TypeTimeout; other network errors become
// TypeServerError (retryable, the dependency is unreachable rather than
// rejecting us); anything unrecognized is TypeUnknown and fails fast.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}

	var api *APIError
	if errors.As(err, &api) {
		return api
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewTimeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{Type: TypeUnknown, Message: "operation canceled", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeout(err)
		}
		return &APIError{Type: TypeServerError, Message: "network error: " + err.Error(), Err: err}
	}

	return &APIError{Type: TypeUnknown, Message: err.Error(), Err: err}
}

// IsRetryable reports whether err should be retried. Errors implementing
// RetryableError decide for themselves; nil and unrecognized errors are
// not retried (unrecognized errors never reach the retry loop, Normalize
// runs first).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}
