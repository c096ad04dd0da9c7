package idempotency

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/storage"
)

type keyDocument struct {
	Key       string    `bson:"key"`
	Response  *Response `bson:"response,omitempty"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoDBStore keeps idempotency keys in the idempotency_keys collection so replays
// survive restarts and are shared between instances. A TTL index on expires_at reaps
// old keys; reads also ignore expired documents the reaper has not removed yet.
type MongoDBStore struct {
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time
}

// NewMongoDBStore creates a MongoDB-backed store.
func NewMongoDBStore(db *mongo.Database, queryTimeout time.Duration) *MongoDBStore {
	return &MongoDBStore{
		collection: db.Collection(storage.CollectionIdempotencyKeys),
		timeout:    queryTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoDBStore) Get(ctx context.Context, key string) (*Response, bool) {
	ctx, cancel := storage.WithQueryTimeout(ctx, s.timeout)
	defer cancel()

	var doc keyDocument
	err := s.collection.FindOne(ctx, bson.M{
		"key":        key,
		"expires_at": bson.M{"$gt": s.now()},
		"response":   bson.M{"$ne": nil},
	}).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("idempotency.get_failed")
		}
		return nil, false
	}
	return doc.Response, doc.Response != nil
}

// Reserve upserts over an expired document only. A live document makes the upsert
// collide with the unique key index, which means the key is taken.
func (s *MongoDBStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"key": key, "expires_at": bson.M{"$lte": now}},
		bson.M{
			"$set":   bson.M{"expires_at": now.Add(ttl)},
			"$unset": bson.M{"response": ""},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoDBStore) Set(ctx context.Context, key string, response *Response, ttl time.Duration) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"response": response, "expires_at": s.now().Add(ttl)}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoDBStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.DeleteOne(ctx, bson.M{"key": key})
	return err
}
