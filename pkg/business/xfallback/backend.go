package xfallback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Backend is the persistence surface the store drives. MongoBackend is
// the durable implementation; memoryBackend doubles as the test backend
// and the overflow buffer for degraded durable writes.
type Backend interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id int64) (Record, error)
	Update(ctx context.Context, rec Record) error
	ListPending(ctx context.Context, orgID string, limit int) ([]Record, error)
	CountPending(ctx context.Context, orgID string) (int64, error)
	// ExpirePending moves pending records created before cutoff to
	// expired and returns how many it moved.
	ExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error)
	// FindRecentPending locates a pending record for the same
	// org/service/operation created at or after since, for dedup.
	FindRecentPending(ctx context.Context, orgID, service, operation string, since time.Time) (Record, bool, error)
}

// memoryBackend keeps records in a mutex-guarded map.
type memoryBackend struct {
	mu      sync.RWMutex
	records map[int64]Record
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{records: make(map[int64]Record)}
}

func (b *memoryBackend) Insert(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.ID] = rec
	return nil
}

func (b *memoryBackend) Get(_ context.Context, id int64) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (b *memoryBackend) Update(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[rec.ID]; !ok {
		return ErrNotFound
	}
	b.records[rec.ID] = rec
	return nil
}

func (b *memoryBackend) ListPending(_ context.Context, orgID string, limit int) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Record
	for _, rec := range b.records {
		if rec.OrgID == orgID && rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *memoryBackend) CountPending(_ context.Context, orgID string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for _, rec := range b.records {
		if rec.OrgID == orgID && rec.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (b *memoryBackend) ExpirePending(_ context.Context, cutoff, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for id, rec := range b.records {
		if rec.Status == StatusPending && rec.CreatedAt.Before(cutoff) {
			rec.Status = StatusExpired
			rec.UpdatedAt = now
			b.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (b *memoryBackend) FindRecentPending(_ context.Context, orgID, service, operation string, since time.Time) (Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var best Record
	var found bool
	for _, rec := range b.records {
		if rec.OrgID != orgID || rec.Service != service || rec.Operation != operation {
			continue
		}
		if rec.Status != StatusPending || rec.CreatedAt.Before(since) {
			continue
		}
		if !found || rec.CreatedAt.After(best.CreatedAt) {
			best, found = rec, true
		}
	}
	return best, found, nil
}

func (b *memoryBackend) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}
