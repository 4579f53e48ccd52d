package xusage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterKeyPrefix namespaces the shared spend counters.
const counterKeyPrefix = "campotech:usage"

// SharedCounters mirrors per-organization window spend into Redis so that
// multiple gateway instances converge on the same budget view. Counters are
// advisory: the durable store stays the source of truth for reconciliation.
type SharedCounters struct {
	client redis.UniversalClient
}

// NewSharedCounters wraps the given Redis client.
func NewSharedCounters(client redis.UniversalClient) *SharedCounters {
	return &SharedCounters{client: client}
}

func dayCounterKey(orgID string, t time.Time) string {
	return fmt.Sprintf("%s:%s:day:%s", counterKeyPrefix, orgID, dayKey(t))
}

func monthCounterKey(orgID string, t time.Time) string {
	return fmt.Sprintf("%s:%s:month:%s", counterKeyPrefix, orgID, monthKey(t))
}

// Add increments the organization's day and month counters by cost.
// Keys expire after the window passes so stale periods clean themselves up.
func (c *SharedCounters) Add(ctx context.Context, orgID string, cost float64, now time.Time) error {
	if ctx == nil {
		return ErrNilContext
	}
	if orgID == "" {
		return ErrEmptyOrg
	}

	dayK := dayCounterKey(orgID, now)
	monthK := monthCounterKey(orgID, now)

	pipe := c.client.TxPipeline()
	pipe.IncrByFloat(ctx, dayK, cost)
	pipe.Expire(ctx, dayK, 48*time.Hour)
	pipe.IncrByFloat(ctx, monthK, cost)
	pipe.Expire(ctx, monthK, 35*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xusage: shared counter add: %w", err)
	}
	return nil
}

// Snapshot reads the organization's current day and month counters.
// Missing keys read as zero.
func (c *SharedCounters) Snapshot(ctx context.Context, orgID string, now time.Time) (day, month float64, err error) {
	if ctx == nil {
		return 0, 0, ErrNilContext
	}
	if orgID == "" {
		return 0, 0, ErrEmptyOrg
	}

	vals, err := c.client.MGet(ctx, dayCounterKey(orgID, now), monthCounterKey(orgID, now)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("xusage: shared counter snapshot: %w", err)
	}
	parse := func(v any) float64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		var f float64
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return 0
		}
		return f
	}
	if len(vals) == 2 {
		day, month = parse(vals[0]), parse(vals[1])
	}
	return day, month, nil
}
