// Package storage owns the MongoDB connection shared by every repository, the index
// layout of the collections, and the helpers repositories use for timeouts and paging.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lilgiftcorner/server/internal/config"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// Storage backends.
const (
	BackendMongoDB = "mongodb"
	BackendMemory  = "memory"
)

// Collection names.
const (
	CollectionProducts            = "products"
	CollectionCart                = "cart"
	CollectionOrders              = "orders"
	CollectionOrderStatusHistory  = "order_status_history"
	CollectionUsers               = "users"
	CollectionAddresses           = "addresses"
	CollectionCoupons             = "coupons"
	CollectionCouponUsage         = "coupon_usage"
	CollectionCouponUserUsage     = "coupon_user_usage"
	CollectionPaymentTransactions = "payment_transactions"
	CollectionReviews             = "reviews"
	CollectionWishlist            = "wishlist"
	CollectionContacts            = "contacts"
	CollectionCustomGifts         = "custom_gifts"
	CollectionIdempotencyKeys     = "idempotency_keys"
)

// Mongo is the shared client and database handle.
type Mongo struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
}

// ConnectMongo connects, pings and ensures indexes.
func ConnectMongo(ctx context.Context, cfg config.StorageConfig) (*Mongo, error) {
	connectTimeout := cfg.ConnectTimeout.Duration
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		// The ping failure is the error worth reporting.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	m := &Mongo{
		client:       client,
		db:           client.Database(cfg.Database),
		queryTimeout: cfg.QueryTimeout.Duration,
	}

	if err := EnsureIndexes(ctx, m.db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return m, nil
}

// Database returns the application database.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// QueryTimeout is the per-call deadline repositories apply.
func (m *Mongo) QueryTimeout() time.Duration {
	return m.queryTimeout
}

// Ping checks that the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := WithQueryTimeout(ctx, m.queryTimeout)
	defer cancel()
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// MapError converts driver errors into the package sentinels.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// FindPage returns find options for a limit/skip page sorted by sort.
// A non-positive limit means no limit.
func FindPage(limit, skip int64, sort interface{}) *options.FindOptions {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if sort != nil {
		opts.SetSort(sort)
	}
	return opts
}

// DecodeAll drains a cursor into a slice, closing it.
func DecodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)

	out := make([]T, 0)
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
