package xusage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(t time.Time) (func() time.Time, func(d time.Duration)) {
	var mu sync.Mutex
	now := t
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return clock, advance
}

func newTestTracker(t *testing.T, store Store, opts ...TrackerOption) *Tracker {
	t.Helper()
	tracker, err := NewTracker(store, opts...)
	require.NoError(t, err)
	return tracker
}

func TestTrackerRecordPricesTokens(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{
		"gpt-4o": {InputPer1K: 0.005, OutputPer1K: 0.015},
	})
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices))

	res, err := tracker.Record(context.Background(), Event{
		OrgID:       "org-1",
		Kind:        "ai_completion",
		Model:       "gpt-4o",
		InputUnits:  2000,
		OutputUnits: 1000,
	})
	require.NoError(t, err)

	assert.True(t, res.Durable)
	assert.InDelta(t, 2*0.005+1*0.015, res.Record.Cost, 1e-9)
	assert.NotZero(t, res.Record.ID)
	assert.Equal(t, "org-1", res.Record.OrgID)
}

func TestTrackerRecordPricesDuration(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{
		"voice_call": {PerMinute: 0.05},
	})
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices))

	res, err := tracker.Record(context.Background(), Event{
		OrgID:           "org-1",
		Kind:            "voice_call",
		DurationMinutes: 12.5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 12.5*0.05, res.Record.Cost, 1e-9)
}

func TestTrackerUnknownModelUsesDefaultTier(t *testing.T) {
	tracker := newTestTracker(t, NewMemoryStore())

	res, err := tracker.Record(context.Background(), Event{
		OrgID:       "org-1",
		Kind:        "ai_completion",
		Model:       "experimental-model",
		InputUnits:  1000,
		OutputUnits: 1000,
	})
	require.NoError(t, err)

	// Never priced at zero.
	assert.InDelta(t, DefaultRate.InputPer1K+DefaultRate.OutputPer1K, res.Record.Cost, 1e-9)
	assert.Greater(t, res.Record.Cost, 0.0)
}

func TestTrackerRecordValidation(t *testing.T) {
	tracker := newTestTracker(t, NewMemoryStore())

	_, err := tracker.Record(context.Background(), Event{Kind: "sms_send"})
	assert.ErrorIs(t, err, ErrEmptyOrg)

	_, err = tracker.Record(context.Background(), Event{OrgID: "org-1"})
	assert.ErrorIs(t, err, ErrEmptyKind)

	_, err = tracker.Record(nil, Event{OrgID: "org-1", Kind: "sms_send"}) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
}

// Spending past the daily limit flips CanProceed, and the reason names
// the amounts.
func TestTrackerBudgetExceededAtDailyLimit(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{
		"sms_send": {PerMinute: 0, InputPer1K: 10, OutputPer1K: 0},
	})
	limits := StaticLimits{Default: Limits{Daily: 50.00, Monthly: 1000}}
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices), WithLimits(limits))

	ctx := context.Background()

	// 49.99 spent: still allowed.
	_, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "sms_send", InputUnits: 4999})
	require.NoError(t, err)

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, st.CanProceed)
	assert.InDelta(t, 49.99, st.DailySpend, 1e-9)
	assert.InDelta(t, 99.98, st.DailyUsagePercent, 1e-6)

	// The request that crosses the line is recorded in full, not clipped.
	_, err = tracker.Record(ctx, Event{OrgID: "org-1", Kind: "sms_send", InputUnits: 2})
	require.NoError(t, err)

	st, err = tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, st.CanProceed)
	assert.InDelta(t, 50.01, st.DailySpend, 1e-9)
	assert.Contains(t, st.BlockedReason, "daily budget exceeded")
	assert.Contains(t, st.BlockedReason, "50.01")
	assert.Contains(t, st.BlockedReason, "50.00")
}

func TestTrackerMonthlyLimit(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1000}})
	limits := StaticLimits{Default: Limits{Monthly: 100}}
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices), WithLimits(limits))

	ctx := context.Background()
	_, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "job", InputUnits: 120})
	require.NoError(t, err)

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, st.CanProceed)
	assert.Contains(t, st.BlockedReason, "monthly budget exceeded")
}

func TestTrackerZeroLimitMeansUnlimited(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1000}})
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices),
		WithLimits(StaticLimits{}))

	ctx := context.Background()
	_, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "job", InputUnits: 9000})
	require.NoError(t, err)

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, st.CanProceed)
	assert.Zero(t, st.DailyUsagePercent)
}

// Crossing midnight UTC resets the daily window while the monthly window
// keeps accumulating.
func TestTrackerDayRollover(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	clock, advance := testClock(start)

	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1000}})
	limits := StaticLimits{Default: Limits{Daily: 50, Monthly: 1000}}
	tracker := newTestTracker(t, NewMemoryStore(),
		WithPrices(prices), WithLimits(limits), WithClock(clock))

	ctx := context.Background()
	_, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "job", InputUnits: 60})
	require.NoError(t, err)

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, st.CanProceed)

	advance(20 * time.Minute) // past midnight

	st, err = tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, st.CanProceed)
	assert.Zero(t, st.DailySpend)
	assert.InDelta(t, 60.0, st.MonthlySpend, 1e-9)
}

func TestTrackerMonthRollover(t *testing.T) {
	start := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	clock, advance := testClock(start)

	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1000}})
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices), WithClock(clock))

	ctx := context.Background()
	_, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "job", InputUnits: 42})
	require.NoError(t, err)

	advance(2 * time.Hour) // into April

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.Zero(t, st.DailySpend)
	assert.Zero(t, st.MonthlySpend)
}

// A failed durable append still counts toward the budget windows and is
// reported as non-durable, never as an error.
func TestTrackerDegradedAppendStillCounts(t *testing.T) {
	store := NewMemoryStore()
	store.FailAppends = true

	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1000}})
	limits := StaticLimits{Default: Limits{Daily: 50}}
	tracker := newTestTracker(t, store, WithPrices(prices), WithLimits(limits))

	ctx := context.Background()
	res, err := tracker.Record(ctx, Event{OrgID: "org-1", Kind: "job", InputUnits: 60})
	require.NoError(t, err)
	assert.False(t, res.Durable)
	assert.Equal(t, 0, store.Len())

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, st.CanProceed)
	assert.InDelta(t, 60.0, st.DailySpend, 1e-9)

	attempts, failures, _ := tracker.WriteStats()
	assert.EqualValues(t, 1, attempts)
	assert.EqualValues(t, 1, failures)
}

// A restart (fresh tracker) warms its windows from the durable store on
// the first budget query.
func TestTrackerWarmsFromDurableAggregates(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock, _ := testClock(now)

	store := NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), Record{
		ID: 1, OrgID: "org-1", Kind: "job", Cost: 30,
		RecordedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.Append(context.Background(), Record{
		ID: 2, OrgID: "org-1", Kind: "job", Cost: 10,
		RecordedAt: now.Add(-72 * time.Hour), // earlier in the month, not today
	}))

	limits := StaticLimits{Default: Limits{Daily: 50, Monthly: 100}}
	tracker := newTestTracker(t, store, WithLimits(limits), WithClock(clock))

	st, err := tracker.BudgetStatus(context.Background(), "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, st.DailySpend, 1e-9)
	assert.InDelta(t, 40.0, st.MonthlySpend, 1e-9)
	assert.True(t, st.CanProceed)
}

func TestTrackerBudgetStatusValidation(t *testing.T) {
	tracker := newTestTracker(t, NewMemoryStore())

	_, err := tracker.BudgetStatus(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyOrg)
}

func TestNewTrackerNilStore(t *testing.T) {
	_, err := NewTracker(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestTrackerConcurrentRecords(t *testing.T) {
	prices := NewPriceTable(map[string]Rate{"job": {InputPer1K: 1}})
	tracker := newTestTracker(t, NewMemoryStore(), WithPrices(prices))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Record(context.Background(), Event{
				OrgID: "org-1", Kind: "job", InputUnits: 1000,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := tracker.BudgetStatus(context.Background(), "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, st.DailySpend, 1e-9)
}

// A budget check must enforce spend recorded by peer processes: the
// shared counters are read on every status, not just written.
func TestTrackerBudgetStatusSeesPeerSpend(t *testing.T) {
	counters, _ := newTestCounters(t)

	store := NewMemoryStore()
	prices := NewPriceTable(map[string]Rate{"voice_call": {PerMinute: 1.00}})
	limits := StaticLimits{Default: Limits{Daily: 50}}

	recorder := newTestTracker(t, store,
		WithPrices(prices), WithLimits(limits), WithSharedCounters(counters))
	enforcer := newTestTracker(t, store,
		WithPrices(prices), WithLimits(limits), WithSharedCounters(counters))

	ctx := context.Background()

	// The enforcing process warms its cache before any spend exists.
	st, err := enforcer.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, st.CanProceed)
	assert.Zero(t, st.DailySpend)

	// A peer process then spends past the daily limit.
	_, err = recorder.Record(ctx, Event{
		OrgID: "org-1", Kind: "voice_call", DurationMinutes: 60,
	})
	require.NoError(t, err)

	st, err = enforcer.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, st.DailySpend, 1e-9)
	assert.False(t, st.CanProceed)
}

// A lagging or wiped counter never lowers the local view of spend.
func TestTrackerSharedCounterLagKeepsLocalSpend(t *testing.T) {
	counters, mr := newTestCounters(t)

	prices := NewPriceTable(map[string]Rate{"voice_call": {PerMinute: 1.00}})
	tracker := newTestTracker(t, NewMemoryStore(),
		WithPrices(prices), WithSharedCounters(counters))

	ctx := context.Background()
	_, err := tracker.Record(ctx, Event{
		OrgID: "org-1", Kind: "voice_call", DurationMinutes: 30,
	})
	require.NoError(t, err)

	mr.FlushAll()

	st, err := tracker.BudgetStatus(ctx, "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, st.DailySpend, 1e-9)
}
