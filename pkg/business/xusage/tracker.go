package xusage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leftonspace/CampoTech-sub005/internal/storageopt"
	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xlog"
	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xmetrics"
	"github.com/leftonspace/CampoTech-sub005/pkg/util/xid"
)

// Tracker sentinel errors.
var (
	// ErrNilStore signals a missing durable store.
	ErrNilStore = errors.New("xusage: store cannot be nil")

	// ErrEmptyKind signals a usage event with no kind.
	ErrEmptyKind = errors.New("xusage: event kind cannot be empty")
)

// Event is one unpriced usage occurrence reported by a caller. The tracker
// prices it, assigns an ID and timestamp, and persists the resulting Record.
type Event struct {
	OrgID string
	// Kind is the operation family, such as "ai_completion" or "sms_send".
	Kind string
	// Model refines pricing for kinds with per-model rates. Optional:
	// when empty, Kind is the pricing key.
	Model string
	// InputUnits and OutputUnits meter token-style events.
	InputUnits  int64
	OutputUnits int64
	// DurationMinutes meters time-priced events such as voice calls.
	// When non-zero it takes precedence over the token units.
	DurationMinutes float64
}

func (e Event) priceKey() string {
	if e.Model != "" {
		return e.Model
	}
	return e.Kind
}

// Tracker records priced usage and answers budget questions per
// organization. Writes go to the durable store behind a write guard;
// when the store degrades, records are still merged into the in-process
// window cache and surfaced with Durable=false so spend enforcement
// keeps working on best-effort data.
type Tracker struct {
	store    Store
	guard    *storageopt.WriteGuard
	counters *SharedCounters
	ids      *xid.Generator
	limits   LimitsProvider
	prices   *PriceTable
	windows  *windowCache
	logger   xlog.Logger
	observer xmetrics.Observer
	clock    func() time.Time
	stats    storageopt.WriteCounter

	group singleflight.Group
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithLimits sets the budget limits provider.
func WithLimits(p LimitsProvider) TrackerOption {
	return func(t *Tracker) {
		if p != nil {
			t.limits = p
		}
	}
}

// WithPrices sets the pricing table.
func WithPrices(pt *PriceTable) TrackerOption {
	return func(t *Tracker) {
		if pt != nil {
			t.prices = pt
		}
	}
}

// WithSharedCounters mirrors window spend into Redis for cross-instance
// budget convergence. Counter failures degrade to the local cache only.
func WithSharedCounters(c *SharedCounters) TrackerOption {
	return func(t *Tracker) { t.counters = c }
}

// WithWriteGuard sets the guard protecting durable appends.
func WithWriteGuard(g *storageopt.WriteGuard) TrackerOption {
	return func(t *Tracker) { t.guard = g }
}

// WithIDGenerator sets the record ID generator.
func WithIDGenerator(g *xid.Generator) TrackerOption {
	return func(t *Tracker) {
		if g != nil {
			t.ids = g
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l xlog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o xmetrics.Observer) TrackerOption {
	return func(t *Tracker) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithClock overrides time.Now, for window-rollover tests.
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithWindowCacheSize bounds the per-organization window cache.
func WithWindowCacheSize(size int) TrackerOption {
	return func(t *Tracker) {
		if size > 0 {
			t.windows = newWindowCache(size)
		}
	}
}

// NewTracker builds a Tracker over the given durable store.
func NewTracker(store Store, opts ...TrackerOption) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	t := &Tracker{
		store:    store,
		limits:   StaticLimits{},
		prices:   NewPriceTable(nil),
		windows:  newWindowCache(defaultWindowCacheSize),
		logger:   xlog.Nop(),
		observer: xmetrics.NoopObserver{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ids == nil {
		gen, err := xid.NewGenerator()
		if err != nil {
			return nil, err
		}
		t.ids = gen
	}
	return t, nil
}

// Record prices and persists one usage event.
//
// The in-process window cache is updated unconditionally, even when the
// durable append fails or is rejected by the write guard; in that case the
// returned Result carries Durable=false and the record exists only in
// memory. An error is returned only for invalid input, never for storage
// degradation.
func (t *Tracker) Record(ctx context.Context, ev Event) (Result, error) {
	if ctx == nil {
		return Result{}, ErrNilContext
	}
	if ev.OrgID == "" {
		return Result{}, ErrEmptyOrg
	}
	if ev.Kind == "" {
		return Result{}, ErrEmptyKind
	}

	ctx, span := xmetrics.Start(ctx, t.observer, xmetrics.SpanOptions{
		Component: "usage_tracker",
		Operation: "record",
		Attrs:     []xmetrics.Attr{xmetrics.String("org_id", ev.OrgID), xmetrics.String("kind", ev.Kind)},
	})

	now := t.clock()
	cost, known := t.price(ev)
	if !known {
		t.logger.Warn(ctx, "pricing key unknown, using default tier",
			slog.String("org_id", ev.OrgID),
			slog.String("key", ev.priceKey()),
			slog.Float64("cost", cost),
		)
	}

	id, err := t.ids.New()
	if err != nil {
		span.End(xmetrics.Result{Status: xmetrics.StatusError, Err: err})
		return Result{}, fmt.Errorf("xusage: generate record id: %w", err)
	}

	rec := Record{
		ID:              id,
		OrgID:           ev.OrgID,
		Kind:            ev.Kind,
		Model:           ev.Model,
		InputUnits:      ev.InputUnits,
		OutputUnits:     ev.OutputUnits,
		DurationMinutes: ev.DurationMinutes,
		Cost:            cost,
		RecordedAt:      now,
	}

	durable := t.append(ctx, rec)

	// Merge into the live windows regardless of durability so budget
	// enforcement never loses sight of spend that actually happened.
	t.windows.add(ev.OrgID, cost, now)

	if t.counters != nil {
		if err := t.counters.Add(ctx, ev.OrgID, cost, now); err != nil {
			t.logger.Warn(ctx, "shared counter update failed",
				slog.String("org_id", ev.OrgID), slog.Any("error", err))
		}
	}

	status := xmetrics.StatusOK
	if !durable {
		status = xmetrics.StatusDegraded
	}
	span.End(xmetrics.Result{Status: status})

	return Result{Record: rec, Durable: durable}, nil
}

func (t *Tracker) price(ev Event) (float64, bool) {
	if ev.DurationMinutes > 0 {
		return t.prices.TimeCost(ev.priceKey(), ev.DurationMinutes)
	}
	return t.prices.TokenCost(ev.priceKey(), ev.InputUnits, ev.OutputUnits)
}

// append writes the record through the guard and reports durability.
func (t *Tracker) append(ctx context.Context, rec Record) bool {
	t.stats.IncAttempt()

	do := func(ctx context.Context) error { return t.store.Append(ctx, rec) }
	var err error
	if t.guard != nil {
		err = t.guard.Do(ctx, do)
	} else {
		err = do(ctx)
	}
	if err == nil {
		return true
	}

	t.stats.IncFailure()
	if errors.Is(err, storageopt.ErrStoreUnavailable) {
		t.stats.IncDegraded()
	}
	t.logger.Warn(ctx, "usage record held in memory only",
		slog.String("org_id", rec.OrgID),
		slog.Int64("record_id", rec.ID),
		slog.Any("error", err),
	)
	return false
}

// BudgetStatus derives the organization's current budget posture.
//
// The hot path answers from the in-process window cache. A miss (first
// sight of the organization since start or since rollover) falls through
// to a durable aggregate, deduplicated across concurrent callers, whose
// result seeds the cache. When shared counters are configured, the cached
// windows are then lifted to the counter values so spend recorded by
// peer processes is enforced here too. Aggregate and counter failures
// degrade to whatever the cache holds rather than erroring: a budget
// check must never take the caller down with the database.
func (t *Tracker) BudgetStatus(ctx context.Context, orgID string) (BudgetStatus, error) {
	if ctx == nil {
		return BudgetStatus{}, ErrNilContext
	}
	if orgID == "" {
		return BudgetStatus{}, ErrEmptyOrg
	}

	now := t.clock()
	if !t.windows.known(orgID, now) {
		t.warmWindows(ctx, orgID, now)
	}
	t.mergeShared(ctx, orgID, now)

	daySpend, monthSpend := t.windows.snapshot(orgID, now)
	return t.evaluate(orgID, daySpend, monthSpend), nil
}

// mergeShared lifts the cached windows to the shared Redis counters so
// every process enforcing the budget converges on the same view.
func (t *Tracker) mergeShared(ctx context.Context, orgID string, now time.Time) {
	if t.counters == nil {
		return
	}
	day, month, err := t.counters.Snapshot(ctx, orgID, now)
	if err != nil {
		t.logger.Warn(ctx, "shared counter read failed, using local spend",
			slog.String("org_id", orgID), slog.Any("error", err))
		return
	}
	t.windows.raise(orgID, day, month, now)
}

// warmWindows seeds the window cache from durable aggregates, collapsing
// concurrent misses for the same organization into one query.
func (t *Tracker) warmWindows(ctx context.Context, orgID string, now time.Time) {
	_, err, _ := t.group.Do(orgID, func() (any, error) {
		dayStart, monthStart := windowStarts(now)

		monthSpend, err := t.store.SumCosts(ctx, orgID, monthStart, now)
		if err != nil {
			return nil, err
		}
		daySpend, err := t.store.SumCosts(ctx, orgID, dayStart, now)
		if err != nil {
			return nil, err
		}
		t.windows.seed(orgID, daySpend, monthSpend, now)
		return nil, nil
	})
	if err != nil {
		t.logger.Warn(ctx, "budget aggregate unavailable, using cached spend",
			slog.String("org_id", orgID), slog.Any("error", err))
	}
}

// windowStarts returns the UTC beginnings of the current day and month.
func windowStarts(now time.Time) (dayStart, monthStart time.Time) {
	u := now.UTC()
	dayStart = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	monthStart = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return dayStart, monthStart
}

func (t *Tracker) evaluate(orgID string, daySpend, monthSpend float64) BudgetStatus {
	limits := t.limits.Limits(orgID)

	st := BudgetStatus{
		OrgID:        orgID,
		DailySpend:   daySpend,
		MonthlySpend: monthSpend,
		DailyLimit:   limits.Daily,
		MonthlyLimit: limits.Monthly,
		CanProceed:   true,
	}
	if limits.Daily > 0 {
		st.DailyUsagePercent = daySpend / limits.Daily * 100
	}
	if limits.Monthly > 0 {
		st.MonthlyUsagePercent = monthSpend / limits.Monthly * 100
	}

	switch {
	case limits.Daily > 0 && daySpend >= limits.Daily:
		st.CanProceed = false
		st.BlockedReason = fmt.Sprintf("daily budget exceeded: spent %.2f of %.2f", daySpend, limits.Daily)
	case limits.Monthly > 0 && monthSpend >= limits.Monthly:
		st.CanProceed = false
		st.BlockedReason = fmt.Sprintf("monthly budget exceeded: spent %.2f of %.2f", monthSpend, limits.Monthly)
	}
	return st
}

// WriteStats exposes durable-append counters for status surfaces.
func (t *Tracker) WriteStats() (attempts, failures, degraded int64) {
	return t.stats.Attempts(), t.stats.Failures(), t.stats.Degraded()
}
