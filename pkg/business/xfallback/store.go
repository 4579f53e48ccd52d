package xfallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leftonspace/CampoTech-sub005/internal/storageopt"
	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xlog"
	"github.com/leftonspace/CampoTech-sub005/pkg/util/xid"
)

// DefaultExpiry is the pending-record TTL applied by ExpireStale when the
// caller passes a non-positive TTL.
const DefaultExpiry = 24 * time.Hour

// Store manages the fallback-record lifecycle over a durable backend,
// degrading to an in-memory overflow buffer when durable writes fail.
// Creation never fails for storage reasons: acknowledging the degraded
// event matters more than persisting it.
type Store struct {
	durable Backend
	memory  *memoryBackend
	guard   *storageopt.WriteGuard
	ids     *xid.Generator
	logger  xlog.Logger
	clock   func() time.Time
	stats   storageopt.WriteCounter

	// dedupWindow > 0 enables correlation-window dedup: a Create matching
	// a pending record for the same org/service/operation within the
	// window returns the existing record instead of a new one. Off by
	// default: during an outage every degraded call is independently
	// actionable unless an operator opts into merging.
	dedupWindow time.Duration
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithDurableBackend sets the durable backend. Without one the store is
// memory-only, suitable for tests and local development.
func WithDurableBackend(b Backend) StoreOption {
	return func(s *Store) { s.durable = b }
}

// WithWriteGuard sets the guard protecting durable writes.
func WithWriteGuard(g *storageopt.WriteGuard) StoreOption {
	return func(s *Store) { s.guard = g }
}

// WithIDGenerator sets the record ID generator.
func WithIDGenerator(g *xid.Generator) StoreOption {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l xlog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for expiry tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDedupWindow enables correlation-window deduplication of pending
// records. Zero or negative disables it.
func WithDedupWindow(d time.Duration) StoreOption {
	return func(s *Store) { s.dedupWindow = d }
}

// NewStore builds a Store.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		memory: newMemoryBackend(),
		logger: xlog.Nop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		gen, err := xid.NewGenerator()
		if err != nil {
			return nil, err
		}
		s.ids = gen
	}
	return s, nil
}

// Create registers a new degraded event and returns it.
//
// The result always carries a populated record: when the durable write
// fails or is rejected by the write guard, the record lands in the
// in-memory overflow buffer and Durable is false. Only invalid input
// produces an error.
func (s *Store) Create(ctx context.Context, params CreateParams) (CreateResult, error) {
	if ctx == nil {
		return CreateResult{}, ErrNilContext
	}
	if params.OrgID == "" {
		return CreateResult{}, ErrEmptyOrg
	}
	if params.Service == "" {
		return CreateResult{}, ErrEmptyService
	}

	now := s.clock()

	if s.dedupWindow > 0 {
		if existing, durable, ok := s.findRecent(ctx, params, now.Add(-s.dedupWindow)); ok {
			return CreateResult{Record: existing, Durable: durable}, nil
		}
	}

	id, err := s.ids.New()
	if err != nil {
		return CreateResult{}, fmt.Errorf("xfallback: generate record id: %w", err)
	}
	ref := params.Ref
	if ref == "" {
		ref = uuid.NewString()
	}

	rec := Record{
		ID:        id,
		OrgID:     params.OrgID,
		Service:   params.Service,
		Operation: params.Operation,
		Ref:       ref,
		Reason:    params.Reason,
		Details:   params.Details,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	durable := s.insertDurable(ctx, rec)
	if !durable {
		// Overflow buffer never fails.
		_ = s.memory.Insert(ctx, rec)
	}
	return CreateResult{Record: rec, Durable: durable}, nil
}

// findRecent reports the matched record and whether it lives in the
// durable backend or only in the overflow buffer.
func (s *Store) findRecent(ctx context.Context, params CreateParams, since time.Time) (rec Record, durable, ok bool) {
	if s.durable != nil {
		rec, ok, err := s.durable.FindRecentPending(ctx, params.OrgID, params.Service, params.Operation, since)
		if err != nil {
			s.logger.Warn(ctx, "dedup lookup failed, creating new record",
				slog.String("org_id", params.OrgID), slog.Any("error", err))
		} else if ok {
			return rec, true, true
		}
	}
	rec, ok, _ = s.memory.FindRecentPending(ctx, params.OrgID, params.Service, params.Operation, since)
	return rec, false, ok
}

func (s *Store) insertDurable(ctx context.Context, rec Record) bool {
	if s.durable == nil {
		return false
	}
	s.stats.IncAttempt()

	do := func(ctx context.Context) error { return s.durable.Insert(ctx, rec) }
	var err error
	if s.guard != nil {
		err = s.guard.Do(ctx, do)
	} else {
		err = do(ctx)
	}
	if err == nil {
		return true
	}

	s.stats.IncFailure()
	if errors.Is(err, storageopt.ErrStoreUnavailable) {
		s.stats.IncDegraded()
	}
	s.logger.Warn(ctx, "fallback record held in memory only",
		slog.String("org_id", rec.OrgID),
		slog.Int64("record_id", rec.ID),
		slog.Any("error", err),
	)
	return false
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	if ctx == nil {
		return Record{}, ErrNilContext
	}
	if s.durable != nil {
		rec, err := s.durable.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Record{}, err
		}
	}
	return s.memory.Get(ctx, id)
}

// Assign claims a pending record for an operator.
// Reassigning an assigned record replaces the assignee.
func (s *Store) Assign(ctx context.Context, id int64, assignee string) (Record, error) {
	return s.transition(ctx, id, func(rec *Record) error {
		if rec.Status.Terminal() {
			if rec.Status == StatusExpired {
				return ErrExpired
			}
			return fmt.Errorf("xfallback: cannot assign resolved record %d", rec.ID)
		}
		rec.Status = StatusAssigned
		rec.AssignedTo = assignee
		return nil
	})
}

// Resolve terminally closes a record with a resolution note.
//
// Resolving an already-resolved record is a no-op returning the record
// as previously resolved; the second resolution is not applied. Expired
// records cannot be resolved.
func (s *Store) Resolve(ctx context.Context, id int64, resolvedBy, resolution string) (Record, error) {
	return s.transition(ctx, id, func(rec *Record) error {
		switch rec.Status {
		case StatusResolved:
			return errNoop
		case StatusExpired:
			return ErrExpired
		}
		now := s.clock()
		rec.Status = StatusResolved
		rec.ResolvedBy = resolvedBy
		rec.Resolution = resolution
		rec.ResolvedAt = &now
		return nil
	})
}

// errNoop signals a transition that should return the current record
// unchanged. Never escapes this package.
var errNoop = errors.New("xfallback: no-op transition")

func (s *Store) transition(ctx context.Context, id int64, apply func(*Record) error) (Record, error) {
	if ctx == nil {
		return Record{}, ErrNilContext
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := apply(&rec); err != nil {
		if errors.Is(err, errNoop) {
			return rec, nil
		}
		return Record{}, err
	}
	rec.UpdatedAt = s.clock()

	if err := s.updateBackend(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// updateBackend writes the transitioned record back to whichever backend
// currently holds it.
func (s *Store) updateBackend(ctx context.Context, rec Record) error {
	if s.durable != nil {
		err := s.durable.Update(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return s.memory.Update(ctx, rec)
}

// ExpireStale sweeps pending records older than ttl to expired and
// returns how many it moved. Safe to call repeatedly: already-expired
// records are never touched again. A non-positive ttl applies
// DefaultExpiry.
func (s *Store) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	now := s.clock()
	cutoff := now.Add(-ttl)

	var total int64
	if s.durable != nil {
		n, err := s.durable.ExpirePending(ctx, cutoff, now)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, _ := s.memory.ExpirePending(ctx, cutoff, now)
	total += n

	if total > 0 {
		s.logger.Info(ctx, "expired stale fallback records",
			slog.Int64("count", total), slog.Duration("ttl", ttl))
	}
	return total, nil
}

// ListPending returns the organization's pending records, newest first.
// limit <= 0 means no limit.
func (s *Store) ListPending(ctx context.Context, orgID string, limit int) ([]Record, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if orgID == "" {
		return nil, ErrEmptyOrg
	}

	var out []Record
	if s.durable != nil {
		records, err := s.durable.ListPending(ctx, orgID, limit)
		if err != nil {
			return nil, err
		}
		out = records
	}
	overflow, _ := s.memory.ListPending(ctx, orgID, limit)
	out = append(out, overflow...)
	// Both backends return newest first; re-sort the merged view so the
	// limit cut never drops a newer overflow record in favor of an older
	// durable one.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountPending returns the organization's pending-record count,
// including records held only in the overflow buffer.
func (s *Store) CountPending(ctx context.Context, orgID string) (int64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if orgID == "" {
		return 0, ErrEmptyOrg
	}

	var total int64
	if s.durable != nil {
		n, err := s.durable.CountPending(ctx, orgID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, _ := s.memory.CountPending(ctx, orgID)
	return total + n, nil
}

// WriteStats exposes durable-write counters for status surfaces.
func (s *Store) WriteStats() (attempts, failures, degraded int64) {
	return s.stats.Attempts(), s.stats.Failures(), s.stats.Degraded()
}
