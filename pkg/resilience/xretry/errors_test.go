package xretry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{401, TypeAuthFailure, false},
		{403, TypeAuthFailure, false},
		{408, TypeTimeout, true},
		{422, TypeValidation, false},
		{400, TypeValidation, false},
		{429, TypeRateLimited, true},
		{500, TypeServerError, true},
		{503, TypeServerError, true},
		{0, TypeUnknown, false},
	}
	for _, tc := range cases {
		e := FromStatus(tc.status, "boom", nil)
		assert.Equal(t, tc.wantType, e.Type, "status %d", tc.status)
		assert.Equal(t, tc.retryable, e.Retryable(), "status %d", tc.status)
	}
}

func TestNormalizePassthrough(t *testing.T) {
	orig := FromStatus(503, "down", nil)
	wrapped := fmt.Errorf("call failed: %w", orig)
	assert.Same(t, orig, Normalize(wrapped))
	assert.Same(t, orig, Normalize(orig))
}

func TestNormalizeTimeouts(t *testing.T) {
	assert.Equal(t, TypeTimeout, Normalize(context.DeadlineExceeded).Type)

	var netTimeout net.Error = &net.DNSError{IsTimeout: true}
	assert.Equal(t, TypeTimeout, Normalize(netTimeout).Type)
}

func TestNormalizeNetworkError(t *testing.T) {
	var netErr net.Error = &net.DNSError{Err: "no such host"}
	e := Normalize(netErr)
	assert.Equal(t, TypeServerError, e.Type)
	assert.True(t, e.Retryable())
}

func TestNormalizeUnknown(t *testing.T) {
	e := Normalize(errors.New("something odd"))
	assert.Equal(t, TypeUnknown, e.Type)
	assert.False(t, e.Retryable())

	canceled := Normalize(context.Canceled)
	assert.Equal(t, TypeUnknown, canceled.Type)
	assert.False(t, canceled.Retryable())
}

func TestNormalizeNil(t *testing.T) {
	assert.Nil(t, Normalize(nil))
}

func TestAPIErrorMessage(t *testing.T) {
	withStatus := FromStatus(500, "internal", nil)
	assert.Contains(t, withStatus.Error(), "status 500")

	noStatus := NewTimeout(nil)
	assert.Contains(t, noStatus.Error(), "timeout")
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	e := NewTimeout(cause)
	require.ErrorIs(t, e, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("raw")))
	assert.True(t, IsRetryable(NewRateLimited(time.Second, nil)))
	assert.False(t, IsRetryable(FromStatus(401, "denied", nil)))
}
