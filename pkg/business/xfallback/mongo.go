package xfallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// recordCollection is the collection surface mongoBackend needs.
// *mongo.Collection satisfies it through the adapter; tests inject a mock.
type recordCollection interface {
	InsertOne(ctx context.Context, document any) error
	FindOne(ctx context.Context, filter any, result any) error
	ReplaceOne(ctx context.Context, filter any, replacement any) (matched int64, err error)
	Find(ctx context.Context, filter any, sortBy any, limit int64) (recordCursor, error)
	CountDocuments(ctx context.Context, filter any) (int64, error)
	UpdateMany(ctx context.Context, filter any, update any) (modified int64, err error)
}

type recordCursor interface {
	All(ctx context.Context, results any) error
}

// MongoBackend persists fallback records in a MongoDB collection.
type MongoBackend struct {
	coll recordCollection
}

// NewMongoBackend adapts a collection for use as a Store's durable
// backend.
func NewMongoBackend(coll *mongo.Collection) *MongoBackend {
	return &MongoBackend{coll: &mongoRecordCollection{coll: coll}}
}

func (b *MongoBackend) Insert(ctx context.Context, rec Record) error {
	if err := b.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("xfallback: insert record: %w", err)
	}
	return nil
}

func (b *MongoBackend) Get(ctx context.Context, id int64) (Record, error) {
	var rec Record
	err := b.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}, &rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("xfallback: get record: %w", err)
	}
	return rec, nil
}

func (b *MongoBackend) Update(ctx context.Context, rec Record) error {
	matched, err := b.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: rec.ID}}, rec)
	if err != nil {
		return fmt.Errorf("xfallback: update record: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *MongoBackend) ListPending(ctx context.Context, orgID string, limit int) ([]Record, error) {
	filter := bson.D{
		{Key: "org_id", Value: orgID},
		{Key: "status", Value: StatusPending},
	}
	cursor, err := b.coll.Find(ctx, filter, bson.D{{Key: "created_at", Value: -1}}, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("xfallback: list pending: %w", err)
	}
	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("xfallback: decode pending: %w", err)
	}
	return records, nil
}

func (b *MongoBackend) CountPending(ctx context.Context, orgID string) (int64, error) {
	n, err := b.coll.CountDocuments(ctx, bson.D{
		{Key: "org_id", Value: orgID},
		{Key: "status", Value: StatusPending},
	})
	if err != nil {
		return 0, fmt.Errorf("xfallback: count pending: %w", err)
	}
	return n, nil
}

func (b *MongoBackend) ExpirePending(ctx context.Context, cutoff, now time.Time) (int64, error) {
	filter := bson.D{
		{Key: "status", Value: StatusPending},
		{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: StatusExpired},
		{Key: "updated_at", Value: now},
	}}}
	modified, err := b.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("xfallback: expire pending: %w", err)
	}
	return modified, nil
}

func (b *MongoBackend) FindRecentPending(ctx context.Context, orgID, service, operation string, since time.Time) (Record, bool, error) {
	filter := bson.D{
		{Key: "org_id", Value: orgID},
		{Key: "service", Value: service},
		{Key: "operation", Value: operation},
		{Key: "status", Value: StatusPending},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}},
	}
	var rec Record
	err := b.coll.FindOne(ctx, filter, &rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("xfallback: find recent pending: %w", err)
	}
	return rec, true, nil
}

// mongoRecordCollection adapts *mongo.Collection to recordCollection.
type mongoRecordCollection struct {
	coll *mongo.Collection
}

func (c *mongoRecordCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c *mongoRecordCollection) FindOne(ctx context.Context, filter any, result any) error {
	return c.coll.FindOne(ctx, filter).Decode(result)
}

func (c *mongoRecordCollection) ReplaceOne(ctx context.Context, filter any, replacement any) (int64, error) {
	res, err := c.coll.ReplaceOne(ctx, filter, replacement)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (c *mongoRecordCollection) Find(ctx context.Context, filter any, sortBy any, limit int64) (recordCursor, error) {
	opts := options.Find().SetSort(sortBy)
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	return c.coll.Find(ctx, filter, opts)
}

func (c *mongoRecordCollection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoRecordCollection) UpdateMany(ctx context.Context, filter any, update any) (int64, error) {
	res, err := c.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
