package coupons

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

// MongoDBRepository implements Repository using the coupons and coupon_usage collections.
type MongoDBRepository struct {
	coupons *mongo.Collection
	usage   *mongo.Collection
	perUser *mongo.Collection
	timeout time.Duration
}

// mongoCoupon represents the MongoDB document structure.
type mongoCoupon struct {
	ID             string    `bson:"id"`
	Code           string    `bson:"code"`
	Type           string    `bson:"type"`
	Value          float64   `bson:"value"`
	MinOrderValue  float64   `bson:"min_order_value"`
	MaxDiscount    *float64  `bson:"max_discount"`
	UsageLimit     *int      `bson:"usage_limit"`
	UsageCount     int       `bson:"usage_count"`
	UserUsageLimit int       `bson:"user_usage_limit"`
	ValidFrom      time.Time `bson:"valid_from"`
	ValidUntil     time.Time `bson:"valid_until"`
	IsActive       bool      `bson:"is_active"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at,omitempty"`
}

// NewMongoDBRepository creates a MongoDB-backed coupon repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		coupons: db.Collection(storage.CollectionCoupons),
		usage:   db.Collection(storage.CollectionCouponUsage),
		perUser: db.Collection(storage.CollectionCouponUserUsage),
		timeout: queryTimeout,
	}
}

func (r *MongoDBRepository) findOne(ctx context.Context, filter bson.M) (Coupon, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var mc mongoCoupon
	err := r.coupons.FindOne(ctx, filter).Decode(&mc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("find coupon: %w", err)
	}
	return mongoToCoupon(mc), nil
}

// GetCoupon retrieves an active coupon by code.
func (r *MongoDBRepository) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	return r.findOne(ctx, bson.M{"code": NormalizeCode(code), "is_active": true})
}

// GetCouponByID retrieves a coupon by ID.
func (r *MongoDBRepository) GetCouponByID(ctx context.Context, id string) (Coupon, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoDBRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Coupon, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coupons.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find coupons: %w", err)
	}
	docs, err := storage.DecodeAll[mongoCoupon](ctx, cursor)
	if err != nil {
		return nil, err
	}
	out := make([]Coupon, 0, len(docs))
	for _, mc := range docs {
		out = append(out, mongoToCoupon(mc))
	}
	return out, nil
}

// ListCoupons returns coupons newest first.
func (r *MongoDBRepository) ListCoupons(ctx context.Context, limit int) ([]Coupon, error) {
	return r.find(ctx, bson.M{}, storage.FindPage(int64(limit), 0, bson.D{{Key: "created_at", Value: -1}}))
}

// ListActive returns coupons active at now.
func (r *MongoDBRepository) ListActive(ctx context.Context, now time.Time) ([]Coupon, error) {
	filter := bson.M{
		"is_active":   true,
		"valid_from":  bson.M{"$lte": now},
		"valid_until": bson.M{"$gt": now},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "valid_until", Value: 1}}))
}

// CreateCoupon inserts a coupon; the unique code index rejects duplicates.
func (r *MongoDBRepository) CreateCoupon(ctx context.Context, c Coupon) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.coupons.InsertOne(ctx, couponToMongo(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// UpdateCoupon applies a partial update.
func (r *MongoDBRepository) UpdateCoupon(ctx context.Context, id string, update Update) (Coupon, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Type != nil {
		set["type"] = string(*update.Type)
	}
	if update.Value != nil {
		set["value"] = *update.Value
	}
	if update.MinOrderValue != nil {
		set["min_order_value"] = *update.MinOrderValue
	}
	if update.MaxDiscount != nil {
		set["max_discount"] = *update.MaxDiscount
	}
	if update.UsageLimit != nil {
		set["usage_limit"] = *update.UsageLimit
	}
	if update.UserUsageLimit != nil {
		set["user_usage_limit"] = *update.UserUsageLimit
	}
	if update.ValidFrom != nil {
		set["valid_from"] = update.ValidFrom.UTC()
	}
	if update.ValidUntil != nil {
		set["valid_until"] = update.ValidUntil.UTC()
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var mc mongoCoupon
	err := r.coupons.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$set": set}, opts).Decode(&mc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("update coupon: %w", err)
	}
	return mongoToCoupon(mc), nil
}

// IncrementUsage increments usage_count only while it is below usage_limit.
func (r *MongoDBRepository) IncrementUsage(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{
		"id": id,
		"$or": bson.A{
			bson.M{"usage_limit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usage_count", "$usage_limit"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"usage_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := r.coupons.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if result.MatchedCount == 1 {
		return nil
	}

	// Nothing matched: the coupon is missing or the limit is exhausted.
	n, err := r.coupons.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("check coupon: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	return ErrCouponUsageLimitReached
}

// ReleaseUsage decrements usage_count while it is positive.
func (r *MongoDBRepository) ReleaseUsage(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.coupons.UpdateOne(ctx,
		bson.M{"id": id, "usage_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"usage_count": -1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// ReserveUserUsage increments the (coupon, user) counter while it is below limit. The
// upsert of an exhausted counter hits the unique index, which means the limit is reached.
func (r *MongoDBRepository) ReserveUserUsage(ctx context.Context, couponID, userID string, limit int) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"coupon_id": couponID, "user_id": userID, "count": bson.M{"$lt": limit}}
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	_, err := r.perUser.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Either the counter is exhausted or a concurrent first reserve inserted it.
		result, err := r.perUser.UpdateOne(ctx, filter, update)
		if err != nil {
			return fmt.Errorf("reserve user usage: %w", err)
		}
		if result.MatchedCount == 0 {
			return ErrCouponAlreadyUsed
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reserve user usage: %w", err)
	}
	return nil
}

// ReleaseUserUsage decrements the (coupon, user) counter while it is positive.
func (r *MongoDBRepository) ReleaseUserUsage(ctx context.Context, couponID, userID string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.perUser.UpdateOne(ctx,
		bson.M{"coupon_id": couponID, "user_id": userID, "count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"count": -1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("release user usage: %w", err)
	}
	return nil
}

// HasOrderUsage reports whether the order already has a coupon_usage document.
func (r *MongoDBRepository) HasOrderUsage(ctx context.Context, couponID, orderID string) (bool, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.usage.CountDocuments(ctx, bson.M{"coupon_id": couponID, "order_id": orderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("find order usage: %w", err)
	}
	return n > 0, nil
}

// CountUserUsage counts coupon_usage documents for a coupon and user.
func (r *MongoDBRepository) CountUserUsage(ctx context.Context, couponID, userID string) (int, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.usage.CountDocuments(ctx, bson.M{"coupon_id": couponID, "user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return int(n), nil
}

// RecordUsage inserts a coupon_usage document; the unique (coupon_id, order_id) index
// rejects a second record for an order.
func (r *MongoDBRepository) RecordUsage(ctx context.Context, usage Usage) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.usage.InsertOne(ctx, usage); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUsageRecorded
		}
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// DeleteCoupon soft-deletes a coupon.
func (r *MongoDBRepository) DeleteCoupon(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.coupons.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *MongoDBRepository) Close() error {
	return nil
}

func mongoToCoupon(mc mongoCoupon) Coupon {
	return Coupon{
		ID:             mc.ID,
		Code:           mc.Code,
		Type:           DiscountType(mc.Type),
		Value:          mc.Value,
		MinOrderValue:  mc.MinOrderValue,
		MaxDiscount:    mc.MaxDiscount,
		UsageLimit:     mc.UsageLimit,
		UsageCount:     mc.UsageCount,
		UserUsageLimit: mc.UserUsageLimit,
		ValidFrom:      mc.ValidFrom,
		ValidUntil:     mc.ValidUntil,
		IsActive:       mc.IsActive,
		CreatedAt:      mc.CreatedAt,
		UpdatedAt:      mc.UpdatedAt,
	}
}

func couponToMongo(c Coupon) mongoCoupon {
	return mongoCoupon{
		ID:             c.ID,
		Code:           NormalizeCode(c.Code),
		Type:           string(c.Type),
		Value:          c.Value,
		MinOrderValue:  c.MinOrderValue,
		MaxDiscount:    c.MaxDiscount,
		UsageLimit:     c.UsageLimit,
		UsageCount:     c.UsageCount,
		UserUsageLimit: c.UserUsageLimit,
		ValidFrom:      c.ValidFrom.UTC(),
		ValidUntil:     c.ValidUntil.UTC(),
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
