package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/storage"
)

// MongoDBRepository implements Repository over the cart collection.
type MongoDBRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed cart repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		collection: db.Collection(storage.CollectionCart),
		timeout:    queryTimeout,
	}
}

// AddQuantity upserts the (session, product) line with $inc.
func (r *MongoDBRepository) AddQuantity(ctx context.Context, item Item) (Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"session_id": item.SessionID, "product_id": item.ProductID}
	update := bson.M{
		"$inc": bson.M{"quantity": item.Quantity},
		"$setOnInsert": bson.M{
			"id":         uuid.NewString(),
			"created_at": time.Now().UTC(),
		},
	}
	if item.UserID != "" {
		update["$set"] = bson.M{"user_id": item.UserID}
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var stored Item
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// Two first-adds raced on the unique (session, product) index; the loser retries
		// as a plain increment.
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	}
	if err != nil {
		return Item{}, fmt.Errorf("add cart item: %w", err)
	}
	return stored, nil
}

func (r *MongoDBRepository) findOne(ctx context.Context, filter bson.M) (Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var item Item
	err := r.collection.FindOne(ctx, filter).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("find cart item: %w", err)
	}
	return item, nil
}

// GetItem retrieves a line by ID.
func (r *MongoDBRepository) GetItem(ctx context.Context, id string) (Item, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// FindItem retrieves the line of a product in a session.
func (r *MongoDBRepository) FindItem(ctx context.Context, sessionID, productID string) (Item, error) {
	return r.findOne(ctx, bson.M{"session_id": sessionID, "product_id": productID})
}

// ListBySession returns the session's lines oldest first.
func (r *MongoDBRepository) ListBySession(ctx context.Context, sessionID string) ([]Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find cart items: %w", err)
	}
	return storage.DecodeAll[Item](ctx, cursor)
}

// SetQuantity overwrites a line's quantity.
func (r *MongoDBRepository) SetQuantity(ctx context.Context, id string, quantity int) (Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var item Item
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"quantity": quantity}}, opts).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

// DeleteItem removes a line.
func (r *MongoDBRepository) DeleteItem(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ClearSession removes every line of a session.
func (r *MongoDBRepository) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return result.DeletedCount, nil
}
