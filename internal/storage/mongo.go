package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"logfilters/internal/constants"
	"logfilters/internal/filters"
	pkgerrors "logfilters/pkg/errors"
	"logfilters/pkg/migrations"
	"logfilters/pkg/tracing"
)

type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	if database == "" {
		database = constants.DefaultMongoDBName
	}
	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(constants.FilterRecordCollection),
	}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	return migrations.EnsureFilterIndexes(ctx, r.collection.Database(), r.collection.Name())
}

// Insert writes the records in one transaction on replica sets, and as a
// single ordered InsertMany on standalone servers.
func (r *MongoRepository) Insert(ctx context.Context, records []filters.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	if err := validateAll(records); err != nil {
		return err
	}

	ctx, span := tracing.StartStoreSpan(ctx, "storage.insert", string(records[0].Partition()))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(constants.DatabaseMongoDB, "insert", start, err) }()

	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		rec.CreatedAt = rec.CreatedAt.UTC()
		docs = append(docs, rec)
	}

	session, sessErr := r.client.StartSession()
	if sessErr != nil {
		_, err = r.collection.InsertMany(ctx, docs)
		return r.insertError(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return r.collection.InsertMany(sc, docs)
	})
	if transactionsUnsupported(err) {
		_, err = r.collection.InsertMany(ctx, docs)
	}
	return r.insertError(err)
}

// Standalone servers reject transactions with IllegalOperation.
func transactionsUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 20
}

func (r *MongoRepository) insertError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return pkgerrors.ErrConflict.WithCause(err)
	}
	return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to insert records: %w", err))
}

func (r *MongoRepository) List(ctx context.Context, partition filters.Partition) (records []filters.Record, err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "storage.list", string(partition))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(constants.DatabaseMongoDB, "list", start, err) }()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"exclusion": partition.IsExclusion()}, opts)
	if err != nil {
		return nil, pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to list records: %w", err))
	}
	defer cursor.Close(ctx)

	records = make([]filters.Record, 0)
	if err = cursor.All(ctx, &records); err != nil {
		return nil, pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to decode records: %w", err))
	}
	for i := range records {
		records[i].CreatedAt = records[i].CreatedAt.UTC()
	}

	return records, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.StartStoreSpan(ctx, "storage.delete", "")
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observe(constants.DatabaseMongoDB, "delete", start, err) }()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("failed to delete record: %w", err))
	}
	if res.DeletedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("record_id", id)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
