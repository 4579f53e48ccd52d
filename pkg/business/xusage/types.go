package xusage

import (
	"time"
)

// Record is one priced usage event. Records are append-only and immutable:
// Cost is priced at write time and never recomputed, so historical spend
// stays stable even when pricing changes later.
type Record struct {
	ID              int64     `bson:"_id" json:"id"`
	OrgID           string    `bson:"org_id" json:"orgId"`
	Kind            string    `bson:"kind" json:"kind"`
	Model           string    `bson:"model,omitempty" json:"model,omitempty"`
	InputUnits      int64     `bson:"input_units" json:"inputUnits"`
	OutputUnits     int64     `bson:"output_units" json:"outputUnits"`
	DurationMinutes float64   `bson:"duration_minutes,omitempty" json:"durationMinutes,omitempty"`
	Cost            float64   `bson:"cost" json:"cost"`
	RecordedAt      time.Time `bson:"recorded_at" json:"recordedAt"`
}

// Result is returned by Tracker.Record. Durable distinguishes "safely
// persisted" from "held in memory only, at risk of loss on restart".
// The degraded path is explicit rather than hidden behind a log line.
type Result struct {
	Record  Record
	Durable bool
}

// Limits are the configured budget caps for one organization.
// Zero means no cap on that window.
type Limits struct {
	Daily   float64 `json:"daily" koanf:"daily"`
	Monthly float64 `json:"monthly" koanf:"monthly"`
}

// BudgetStatus is the derived, never-stored answer to "is this
// organization within budget right now?".
type BudgetStatus struct {
	OrgID               string
	DailySpend          float64
	MonthlySpend        float64
	DailyLimit          float64
	MonthlyLimit        float64
	DailyUsagePercent   float64
	MonthlyUsagePercent float64
	CanProceed          bool
	BlockedReason       string
}

// LimitsProvider resolves the budget limits for an organization.
type LimitsProvider interface {
	Limits(orgID string) Limits
}

// StaticLimits is a LimitsProvider backed by a fixed map with a default.
type StaticLimits struct {
	// PerOrg maps organization IDs to their limits.
	PerOrg map[string]Limits
	// Default applies to organizations absent from PerOrg.
	Default Limits
}

// Limits implements LimitsProvider.
func (s StaticLimits) Limits(orgID string) Limits {
	if l, ok := s.PerOrg[orgID]; ok {
		return l
	}
	return s.Default
}
