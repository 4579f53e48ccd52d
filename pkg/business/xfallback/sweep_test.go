package xfallback

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSweep(t *testing.T) {
	clock, advance := testClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, WithClock(clock))

	_, err := store.Create(context.Background(), params())
	require.NoError(t, err)
	advance(25 * time.Hour)

	c := cron.New()
	id, err := RegisterSweep(c, store, SweepConfig{TTL: 24 * time.Hour})
	require.NoError(t, err)

	// Run the registered job directly rather than waiting on the schedule.
	c.Entry(id).Job.Run()

	records, err := store.ListPending(context.Background(), "org-1", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegisterSweepValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := RegisterSweep(nil, store, SweepConfig{})
	assert.ErrorIs(t, err, ErrNilCron)

	_, err = RegisterSweep(cron.New(), nil, SweepConfig{})
	assert.Error(t, err)

	_, err = RegisterSweep(cron.New(), store, SweepConfig{Schedule: "not a schedule"})
	assert.Error(t, err)
}
