package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/storage"
)

// MongoDBRepository implements Repository over the reviews collection.
type MongoDBRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed review repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		collection: db.Collection(storage.CollectionReviews),
		timeout:    queryTimeout,
	}
}

var sortFields = map[string]bson.D{
	SortRecent:     {{Key: "created_at", Value: -1}},
	SortHelpful:    {{Key: "helpful_count", Value: -1}, {Key: "created_at", Value: -1}},
	SortRatingHigh: {{Key: "rating", Value: -1}, {Key: "created_at", Value: -1}},
	SortRatingLow:  {{Key: "rating", Value: 1}, {Key: "created_at", Value: -1}},
}

func (r *MongoDBRepository) Create(ctx context.Context, review Review) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, review)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyReviewed
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) findOne(ctx context.Context, filter bson.M) (Review, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var review Review
	err := r.collection.FindOne(ctx, filter).Decode(&review)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Review{}, ErrReviewNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("find review: %w", err)
	}
	return review, nil
}

func (r *MongoDBRepository) Get(ctx context.Context, id string) (Review, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoDBRepository) FindByUserProduct(ctx context.Context, userID, productID string) (Review, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "product_id": productID})
}

func (r *MongoDBRepository) ListForProduct(ctx context.Context, productID string, order string, limit, skip int) ([]Review, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	sortBy, ok := sortFields[order]
	if !ok {
		sortBy = sortFields[SortRecent]
	}
	cursor, err := r.collection.Find(ctx,
		bson.M{"product_id": productID, "status": StatusApproved},
		storage.FindPage(int64(limit), int64(skip), sortBy))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return storage.DecodeAll[Review](ctx, cursor)
}

func (r *MongoDBRepository) CountForProduct(ctx context.Context, productID string) (int64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{"product_id": productID, "status": StatusApproved})
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

func (r *MongoDBRepository) List(ctx context.Context, status Status, limit int) ([]Review, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := r.collection.Find(ctx, filter, storage.FindPage(int64(limit), 0, sortFields[SortRecent]))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return storage.DecodeAll[Review](ctx, cursor)
}

func (r *MongoDBRepository) IncrementHelpful(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$inc": bson.M{"helpful_count": 1}})
	if err != nil {
		return fmt.Errorf("increment helpful: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *MongoDBRepository) UpdateStatus(ctx context.Context, id string, status Status) (Review, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var review Review
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id},
		bson.M{"$set": bson.M{"status": status}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&review)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Review{}, ErrReviewNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("update review status: %w", err)
	}
	return review, nil
}

func (r *MongoDBRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *MongoDBRepository) ApprovedStats(ctx context.Context, productID string) (Stats, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"product_id": productID, "status": StatusApproved}}},
		{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"avg_rating":    bson.M{"$avg": "$rating"},
			"total_reviews": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	rows, err := storage.DecodeAll[Stats](ctx, cursor)
	if err != nil {
		return Stats{}, err
	}
	if len(rows) == 0 {
		return Stats{}, nil
	}
	return rows[0], nil
}
