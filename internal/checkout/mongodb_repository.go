package checkout

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

// MongoDBRepository implements Repository over the payment_transactions collection.
type MongoDBRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed transaction repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		collection: db.Collection(storage.CollectionPaymentTransactions),
		timeout:    queryTimeout,
	}
}

// noOrder matches a missing, null or empty order_id.
var noOrder = bson.M{"$in": bson.A{nil, ""}}

// Create inserts a transaction.
func (r *MongoDBRepository) Create(ctx context.Context, tx Transaction) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

// Get retrieves a transaction by checkout session id.
func (r *MongoDBRepository) Get(ctx context.Context, checkoutSessionID string) (Transaction, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var tx Transaction
	err := r.collection.FindOne(ctx, bson.M{"checkout_session_id": checkoutSessionID}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("find payment transaction: %w", err)
	}
	return tx, nil
}

// UpdateStatus stores a non-paid provider state with a compare-and-swap on the old pair.
func (r *MongoDBRepository) UpdateStatus(ctx context.Context, from Transaction, status Status, payment PaymentStatus, now time.Time) (Transaction, error) {
	opCtx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{
		"checkout_session_id": from.CheckoutSessionID,
		"status":              from.Status,
		"payment_status": bson.M{
			"$eq": from.PaymentStatus,
			"$ne": PaymentPaid,
		},
	}
	update := bson.M{"$set": bson.M{
		"status":         status,
		"payment_status": payment,
		"updated_at":     now,
	}}

	var tx Transaction
	err := r.collection.FindOneAndUpdate(opCtx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Someone else moved it first.
		return r.Get(ctx, from.CheckoutSessionID)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("update payment transaction: %w", err)
	}
	return tx, nil
}

// MarkPaid performs the single non-paid to paid transition.
func (r *MongoDBRepository) MarkPaid(ctx context.Context, checkoutSessionID string, status Status, now, leaseUntil time.Time) (Transaction, bool, error) {
	opCtx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{
		"checkout_session_id": checkoutSessionID,
		"payment_status":      bson.M{"$ne": PaymentPaid},
	}
	update := bson.M{"$set": bson.M{
		"status":               status,
		"payment_status":       PaymentPaid,
		"paid_at":              now,
		"finalize_lease_until": leaseUntil,
		"updated_at":           now,
	}}

	var tx Transaction
	err := r.collection.FindOneAndUpdate(opCtx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := r.Get(ctx, checkoutSessionID)
		if getErr != nil {
			return Transaction{}, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return Transaction{}, false, fmt.Errorf("mark payment transaction paid: %w", err)
	}
	return tx, true, nil
}

// LinkOrder records the order id if none is recorded yet.
func (r *MongoDBRepository) LinkOrder(ctx context.Context, checkoutSessionID, orderID string, now time.Time) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"checkout_session_id": checkoutSessionID, "order_id": noOrder},
		bson.M{"$set": bson.M{"order_id": orderID, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("link order to payment transaction: %w", err)
	}
	return nil
}

// ClaimRepair takes an expired finalisation lease.
func (r *MongoDBRepository) ClaimRepair(ctx context.Context, checkoutSessionID string, now, leaseUntil time.Time) (bool, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"checkout_session_id": checkoutSessionID,
			"payment_status":      PaymentPaid,
			"order_id":            noOrder,
			"$or": bson.A{
				bson.M{"finalize_lease_until": bson.M{"$exists": false}},
				bson.M{"finalize_lease_until": bson.M{"$lte": now}},
			},
		},
		bson.M{"$set": bson.M{"finalize_lease_until": leaseUntil, "updated_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("claim payment transaction repair: %w", err)
	}
	return result.ModifiedCount == 1, nil
}
