package storageopt

import "sync/atomic"

// WriteCounter tracks durable-write outcomes for store stats.
// All methods are safe for concurrent use.
type WriteCounter struct {
	attempts atomic.Int64
	failures atomic.Int64
	degraded atomic.Int64
}

// IncAttempt records a durable write attempt.
func (c *WriteCounter) IncAttempt() { c.attempts.Add(1) }

// IncFailure records a failed durable write.
func (c *WriteCounter) IncFailure() { c.failures.Add(1) }

// IncDegraded records a write served by the in-memory degradation path.
func (c *WriteCounter) IncDegraded() { c.degraded.Add(1) }

// Attempts returns the total durable write attempts.
func (c *WriteCounter) Attempts() int64 { return c.attempts.Load() }

// Failures returns the total failed durable writes.
func (c *WriteCounter) Failures() int64 { return c.failures.Load() }

// Degraded returns the total memory-only writes.
func (c *WriteCounter) Degraded() int64 { return c.degraded.Load() }
