// Package xfallback keeps the durable trail of degraded-path events:
// manual payment records and escalation tickets that need an operator.
//
// Records move pending -> assigned -> resolved through explicit operator
// action, or pending -> expired through the periodic sweep; resolved and
// expired are terminal. Create never fails for storage reasons: when the
// durable backend is down the record lands in an in-memory overflow
// buffer and the result says so via Durable=false.
package xfallback
