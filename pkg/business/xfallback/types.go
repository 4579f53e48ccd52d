package xfallback

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a fallback record.
type Status string

const (
	// StatusPending marks a record awaiting operator attention.
	StatusPending Status = "pending"
	// StatusAssigned marks a record claimed by an operator.
	StatusAssigned Status = "assigned"
	// StatusResolved is terminal: the degraded event was handled.
	StatusResolved Status = "resolved"
	// StatusExpired is terminal: the record aged out unhandled.
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusExpired
}

// Sentinel errors.
var (
	// ErrNilContext signals a nil context.
	ErrNilContext = errors.New("xfallback: context cannot be nil")

	// ErrEmptyOrg signals a missing organization ID.
	ErrEmptyOrg = errors.New("xfallback: organization id cannot be empty")

	// ErrEmptyService signals a missing service name.
	ErrEmptyService = errors.New("xfallback: service cannot be empty")

	// ErrNotFound signals an unknown record ID.
	ErrNotFound = errors.New("xfallback: record not found")

	// ErrExpired rejects transitions on an expired record.
	ErrExpired = errors.New("xfallback: record already expired")
)

// Record is one durable degraded-path event: a manual payment to
// reconcile, an escalation ticket to work, and so on. Lifecycle:
// pending -> assigned -> resolved by operator action, or
// pending -> expired by the periodic sweep. Resolved and expired are
// terminal.
type Record struct {
	ID      int64  `bson:"_id" json:"id"`
	OrgID   string `bson:"org_id" json:"orgId"`
	Service string `bson:"service" json:"service"`
	// Operation is the logical operation that degraded, such as
	// "create_payment_link".
	Operation string `bson:"operation" json:"operation"`
	// Ref correlates the record with the business object it concerns
	// (invoice ID, customer ID, conversation ID). Generated when the
	// caller has none.
	Ref    string `bson:"ref" json:"ref"`
	Reason string `bson:"reason" json:"reason"`
	// Details carries operator-facing context, such as amounts or
	// customer identifiers.
	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`

	Status     Status     `bson:"status" json:"status"`
	AssignedTo string     `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	ResolvedBy string     `bson:"resolved_by,omitempty" json:"resolvedBy,omitempty"`
	Resolution string     `bson:"resolution,omitempty" json:"resolution,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	ResolvedAt *time.Time `bson:"resolved_at,omitempty" json:"resolvedAt,omitempty"`
}

// CreateParams describes a new degraded event.
type CreateParams struct {
	OrgID     string
	Service   string
	Operation string
	// Ref is optional; a UUID is generated when empty.
	Ref     string
	Reason  string
	Details map[string]string
}

// CreateResult is returned by Store.Create. The record is always
// populated, even when the durable write failed; Durable distinguishes
// "safely persisted" from "held in memory, at risk of loss on restart".
type CreateResult struct {
	Record  Record
	Durable bool
}
