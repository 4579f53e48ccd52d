package xusage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Parameter validation errors.
var (
	// ErrNilContext signals a nil context.
	ErrNilContext = errors.New("xusage: context cannot be nil")

	// ErrEmptyOrg signals a missing organization ID.
	ErrEmptyOrg = errors.New("xusage: organization id cannot be empty")
)

// Store is the durable persistence collaborator for usage records:
// append-only writes plus aggregate-sum queries over time windows.
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec Record) error

	// SumCosts returns the total Cost of the organization's records with
	// RecordedAt in [from, to).
	SumCosts(ctx context.Context, orgID string, from, to time.Time) (float64, error)

	// List returns the organization's records with RecordedAt in
	// [from, to), newest first. Reporting/CLI surface.
	List(ctx context.Context, orgID string, from, to time.Time) ([]Record, error)
}

// =============================================================================
// MongoDB store
// =============================================================================

// usageCollection is the collection surface the store needs.
// *mongo.Collection satisfies it; tests inject a mock.
type usageCollection interface {
	InsertOne(ctx context.Context, document any, opts ...any) error
	Aggregate(ctx context.Context, pipeline any) (decodeAll, error)
	Find(ctx context.Context, filter any, sortBy any) (decodeAll, error)
}

// decodeAll abstracts cursor decoding for mockability.
type decodeAll interface {
	All(ctx context.Context, results any) error
}

// MongoStore persists usage records in a MongoDB collection.
type MongoStore struct {
	coll usageCollection
}

// NewMongoStore wraps the given collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: &mongoUsageCollection{coll: coll}}
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, rec Record) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("xusage: append record: %w", err)
	}
	return nil
}

// SumCosts implements Store with an aggregation pipeline.
func (s *MongoStore) SumCosts(ctx context.Context, orgID string, from, to time.Time) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if orgID == "" {
		return 0, ErrEmptyOrg
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "org_id", Value: orgID},
			{Key: "recorded_at", Value: bson.D{
				{Key: "$gte", Value: from},
				{Key: "$lt", Value: to},
			}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$cost"}}},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("xusage: sum costs: %w", err)
	}

	var out []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("xusage: decode sum: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, orgID string, from, to time.Time) ([]Record, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if orgID == "" {
		return nil, ErrEmptyOrg
	}

	filter := bson.D{
		{Key: "org_id", Value: orgID},
		{Key: "recorded_at", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: to},
		}},
	}
	cursor, err := s.coll.Find(ctx, filter, bson.D{{Key: "recorded_at", Value: -1}})
	if err != nil {
		return nil, fmt.Errorf("xusage: list records: %w", err)
	}
	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("xusage: decode records: %w", err)
	}
	return records, nil
}

// mongoUsageCollection adapts *mongo.Collection to usageCollection.
type mongoUsageCollection struct {
	coll *mongo.Collection
}

func (c *mongoUsageCollection) InsertOne(ctx context.Context, document any, _ ...any) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c *mongoUsageCollection) Aggregate(ctx context.Context, pipeline any) (decodeAll, error) {
	return c.coll.Aggregate(ctx, pipeline)
}

func (c *mongoUsageCollection) Find(ctx context.Context, filter any, sortBy any) (decodeAll, error) {
	return c.coll.Find(ctx, filter, options.Find().SetSort(sortBy))
}

// =============================================================================
// In-memory store
// =============================================================================

// MemoryStore is a Store for tests and single-process development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record

	// FailAppends forces Append to fail, exercising degradation paths.
	FailAppends bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppends {
		return errors.New("xusage: memory store: appends disabled")
	}
	s.records = append(s.records, rec)
	return nil
}

// SumCosts implements Store.
func (s *MemoryStore) SumCosts(ctx context.Context, orgID string, from, to time.Time) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if orgID == "" {
		return 0, ErrEmptyOrg
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, r := range s.records {
		if r.OrgID == orgID && !r.RecordedAt.Before(from) && r.RecordedAt.Before(to) {
			total += r.Cost
		}
	}
	return total, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, orgID string, from, to time.Time) ([]Record, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if orgID == "" {
		return nil, ErrEmptyOrg
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.OrgID == orgID && !r.RecordedAt.Before(from) && r.RecordedAt.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
