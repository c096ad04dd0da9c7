package checkout

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned when no transaction exists for a checkout session.
var ErrTransactionNotFound = errors.New("transaction not found")

// Transaction is one checkout attempt, keyed by the provider's checkout session id.
type Transaction struct {
	ID                string            `json:"id" bson:"id"`
	CheckoutSessionID string            `json:"checkout_session_id" bson:"checkout_session_id"`
	Amount            float64           `json:"amount" bson:"amount"` // charged, after discount
	Subtotal          float64           `json:"subtotal" bson:"subtotal"`
	DiscountAmount    float64           `json:"discount_amount" bson:"discount_amount"`
	Currency          string            `json:"currency" bson:"currency"`
	Metadata          map[string]string `json:"metadata" bson:"metadata"`
	UserID            string            `json:"user_id,omitempty" bson:"user_id,omitempty"`
	CustomerEmail     string            `json:"customer_email,omitempty" bson:"customer_email,omitempty"`
	CouponID          string            `json:"coupon_id,omitempty" bson:"coupon_id,omitempty"`
	CouponCode        string            `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	Status            Status            `json:"status" bson:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status" bson:"payment_status"`
	OrderID           string            `json:"order_id,omitempty" bson:"order_id,omitempty"`
	// FinalizeLeaseUntil is set at the paid transition; after it passes a poll may re-run a
	// finalisation that never linked its order.
	FinalizeLeaseUntil time.Time  `json:"-" bson:"finalize_lease_until,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updated_at"`
}

// SessionID is the cart session the transaction was created for.
func (t Transaction) SessionID() string {
	return t.Metadata["session_id"]
}

// Repository defines the interface for payment transaction storage. Every state change is
// a compare-and-swap executed by the store.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error

	Get(ctx context.Context, checkoutSessionID string) (Transaction, error)

	// UpdateStatus stores a non-paid provider state if the stored pair is still
	// (from.Status, from.PaymentStatus). Otherwise it returns the stored transaction
	// unchanged.
	UpdateStatus(ctx context.Context, from Transaction, status Status, payment PaymentStatus, now time.Time) (Transaction, error)

	// MarkPaid sets payment_status to paid only if it is not paid yet. Exactly one caller
	// gets won=true; every caller gets the stored transaction.
	MarkPaid(ctx context.Context, checkoutSessionID string, status Status, now, leaseUntil time.Time) (tx Transaction, won bool, err error)

	// LinkOrder records the order id if none is recorded yet.
	LinkOrder(ctx context.Context, checkoutSessionID, orderID string, now time.Time) error

	// ClaimRepair takes the finalisation lease of a paid transaction without an order once
	// its previous lease expired.
	ClaimRepair(ctx context.Context, checkoutSessionID string, now, leaseUntil time.Time) (bool, error)
}
