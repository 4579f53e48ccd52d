package xusage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounters(t *testing.T) (*SharedCounters, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSharedCounters(client), mr
}

func TestSharedCountersAddAndSnapshot(t *testing.T) {
	counters, _ := newTestCounters(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, counters.Add(ctx, "org-1", 1.25, now))
	require.NoError(t, counters.Add(ctx, "org-1", 0.75, now))

	day, month, err := counters.Snapshot(ctx, "org-1", now)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, day, 1e-9)
	assert.InDelta(t, 2.0, month, 1e-9)
}

func TestSharedCountersMissingKeysReadZero(t *testing.T) {
	counters, _ := newTestCounters(t)

	day, month, err := counters.Snapshot(context.Background(), "org-absent", time.Now())
	require.NoError(t, err)
	assert.Zero(t, day)
	assert.Zero(t, month)
}

// Counters accumulate under different keys per window, so a new day reads
// zero while the month keeps its running total.
func TestSharedCountersWindowKeys(t *testing.T) {
	counters, _ := newTestCounters(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)

	require.NoError(t, counters.Add(ctx, "org-1", 5, day1))

	day, month, err := counters.Snapshot(ctx, "org-1", day2)
	require.NoError(t, err)
	assert.Zero(t, day)
	assert.InDelta(t, 5.0, month, 1e-9)
}

func TestSharedCountersKeysExpire(t *testing.T) {
	counters, mr := newTestCounters(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, counters.Add(ctx, "org-1", 1, now))

	mr.FastForward(49 * time.Hour)

	day, _, err := counters.Snapshot(ctx, "org-1", now)
	require.NoError(t, err)
	assert.Zero(t, day)
}

func TestSharedCountersValidation(t *testing.T) {
	counters, _ := newTestCounters(t)

	err := counters.Add(context.Background(), "", 1, time.Now())
	assert.ErrorIs(t, err, ErrEmptyOrg)

	_, _, err = counters.Snapshot(context.Background(), "", time.Now())
	assert.ErrorIs(t, err, ErrEmptyOrg)
}
