package xbreaker

import (
	"strconv"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets all requests through.
	StateClosed State = iota
	// StateOpen rejects all requests until the open duration elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of concurrent probes.
	StateHalfOpen
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Status is a point-in-time snapshot of a breaker.
//
// SuccessCount is meaningful only while State is StateHalfOpen; it resets
// to zero on any transition away from half-open. NextRetryAt is the open
// deadline (zero unless State is StateOpen).
type Status struct {
	Name           string
	State          State
	FailureCount   uint32
	SuccessCount   uint32
	TotalSuccesses uint64
	TotalFailures  uint64
	LastFailureAt  time.Time
	LastSuccessAt  time.Time
	OpenedAt       time.Time
	NextRetryAt    time.Time
	// Forced reports an administrative override is active.
	Forced bool
}
