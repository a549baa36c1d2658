package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

// MongoDBRepository implements docstore.Store on top of MongoDB. Every collection
// keys its documents by a string _id.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// EnsureIndexes creates the secondary indexes the workflow queries rely on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"stock_movements": {
			{Keys: bson.D{{Key: "materialId", Value: 1}, {Key: "locationId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		"stock": {
			{Keys: bson.D{{Key: "locationId", Value: 1}}},
		},
		"internal_requests": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		"purchase_requests": {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		"notifications": {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Get loads one document by id.
func (r *MongoDBRepository) Get(ctx context.Context, collection, id string, dest any) error {
	err := r.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("get %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return nil
}

// Set replaces (or inserts) a document.
func (r *MongoDBRepository) Set(ctx context.Context, collection, id string, value any) error {
	doc, err := withID(value, id)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	_, err = r.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update shallow-merges fields into an existing document.
func (r *MongoDBRepository) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return r.UpdateIf(ctx, collection, id, nil, fields)
}

// UpdateIf merges fields only when the stored document matches expect.
func (r *MongoDBRepository) UpdateIf(ctx context.Context, collection, id string, expect, fields docstore.Fields) error {
	filter := bson.M{"_id": id}
	for k, v := range expect {
		filter[k] = v
	}

	coll := r.db.Collection(collection)
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, r.missingOrConflict(ctx, coll, id))
}

// Append inserts value under a generated id.
func (r *MongoDBRepository) Append(ctx context.Context, collection string, value any) (string, error) {
	id := uuid.NewString()
	doc, err := withID(value, id)
	if err != nil {
		return "", fmt.Errorf("append %s: %w", collection, err)
	}

	if _, err := r.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("append %s: %w", collection, err)
	}
	return id, nil
}

// Increment uses a server-side $inc so concurrent writers never lose updates.
// With a floor the filter only matches documents that can absorb the delta.
func (r *MongoDBRepository) Increment(ctx context.Context, collection, id, field string, delta int64, opts docstore.IncrementOptions) (int64, error) {
	filter := bson.M{"_id": id}
	upsert := opts.Upsert
	if opts.Floor != nil {
		filter[field] = bson.M{"$gte": *opts.Floor - delta}
		upsert = false
	}

	update := bson.M{"$inc": bson.M{field: delta}}
	if len(opts.Set) > 0 {
		update["$set"] = bson.M(opts.Set)
	}
	if len(opts.SetOnInsert) > 0 {
		update["$setOnInsert"] = bson.M(opts.SetOnInsert)
	}

	findOpts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(upsert).
		SetProjection(bson.M{field: 1})

	coll := r.db.Collection(collection)
	var out bson.M
	err := coll.FindOneAndUpdate(ctx, filter, update, findOpts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cause := r.missingOrConflict(ctx, coll, id)
		if errors.Is(cause, docstore.ErrConflict) {
			cause = docstore.ErrBelowFloor
		}
		return 0, fmt.Errorf("increment %s/%s: %w", collection, id, cause)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", collection, id, err)
	}

	switch v := out[field].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("increment %s/%s: unexpected %s type %T", collection, id, field, v)
	}
}

// Find decodes every document matching filter into dest, oldest first.
func (r *MongoDBRepository) Find(ctx context.Context, collection string, filter docstore.Fields, dest any) error {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}

	cursor, err := r.db.Collection(collection).Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	if err := cursor.All(ctx, dest); err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) missingOrConflict(ctx context.Context, coll *mongo.Collection, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return docstore.ErrConflict
}

func withID(value any, id string) (bson.M, error) {
	raw, err := bson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc["_id"] = id
	return doc, nil
}
