package orders

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

// MongoDBRepository implements Repository over the orders and order_status_history
// collections. The unique partial index on orders.checkout_session_id makes card orders
// idempotent per checkout session.
type MongoDBRepository struct {
	orders  *mongo.Collection
	history *mongo.Collection
	timeout time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed order repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		orders:  db.Collection(storage.CollectionOrders),
		history: db.Collection(storage.CollectionOrderStatusHistory),
		timeout: queryTimeout,
	}
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}}

// CreateOrder inserts an order.
func (r *MongoDBRepository) CreateOrder(ctx context.Context, order Order) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.orders.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) && order.CheckoutSessionID != "" {
			return ErrDuplicateCheckoutSession
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) findOne(ctx context.Context, filter bson.M) (Order, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var o Order
	err := r.orders.FindOne(ctx, filter).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

// GetOrder retrieves an order by ID.
func (r *MongoDBRepository) GetOrder(ctx context.Context, id string) (Order, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// FindByCheckoutSession retrieves the order of a checkout session.
func (r *MongoDBRepository) FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (Order, error) {
	return r.findOne(ctx, bson.M{"checkout_session_id": checkoutSessionID})
}

func (r *MongoDBRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Order, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	return storage.DecodeAll[Order](ctx, cursor)
}

// ListByUser returns a user's orders, newest first.
func (r *MongoDBRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	return r.find(ctx, bson.M{"user_id": userID}, storage.FindPage(int64(limit), 0, newestFirst))
}

func statusFilter(status Status) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

// ListOrders returns a page of orders and the total count.
func (r *MongoDBRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int64, error) {
	query := statusFilter(filter.Status)
	page, err := r.find(ctx, query, storage.FindPage(int64(filter.Limit), int64(filter.Skip), newestFirst))
	if err != nil {
		return nil, 0, err
	}
	total, err := r.CountOrders(ctx, filter.Status)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// CountOrders counts orders.
func (r *MongoDBRepository) CountOrders(ctx context.Context, status Status) (int64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.orders.CountDocuments(ctx, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// TotalSales sums total_amount over non-cancelled orders.
func (r *MongoDBRepository) TotalSales(ctx context.Context) (float64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": bson.M{"$ne": StatusCancelled}}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$total_amount"}}}},
	}
	cursor, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate sales: %w", err)
	}
	rows, err := storage.DecodeAll[struct {
		Total float64 `bson:"total"`
	}](ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// UpdateStatus moves an order from one status to another.
func (r *MongoDBRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var o Order
	err := r.orders.FindOneAndUpdate(ctx,
		bson.M{"id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
		opts,
	).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := r.GetOrder(ctx, id); getErr != nil {
			return Order{}, getErr
		}
		return Order{}, ErrStatusChanged
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// AppendHistory inserts a status history entry.
func (r *MongoDBRepository) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.history.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert order history: %w", err)
	}
	return nil
}

// History returns an order's status changes, oldest first.
func (r *MongoDBRepository) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	opts := storage.FindPage(100, 0, bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.history.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find order history: %w", err)
	}
	return storage.DecodeAll[HistoryEntry](ctx, cursor)
}

// SalesByDay groups orders by UTC creation day.
func (r *MongoDBRepository) SalesByDay(ctx context.Context, since time.Time) ([]DailySales, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":         bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$created_at"}},
			"total_sales": bson.M{"$sum": "$total_amount"},
			"order_count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales by day: %w", err)
	}
	return storage.DecodeAll[DailySales](ctx, cursor)
}

// HasPurchased reports whether the user ordered the product in one of statuses.
func (r *MongoDBRepository) HasPurchased(ctx context.Context, userID, productID string, statuses []Status) (bool, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.orders.CountDocuments(ctx, bson.M{
		"user_id":          userID,
		"status":           bson.M{"$in": statuses},
		"items.product_id": productID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return n > 0, nil
}
