package orders

import (
	"context"
	"errors"
	"time"
)

// ErrOrderNotFound is returned when an order doesn't exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrDuplicateCheckoutSession is returned when an order already exists for a checkout session.
var ErrDuplicateCheckoutSession = errors.New("order already exists for checkout session")

// ErrStatusChanged is returned when the order's status moved between read and write.
var ErrStatusChanged = errors.New("order status changed concurrently")

// LineItem is the snapshot of a purchased product taken when the order is placed.
type LineItem struct {
	ProductID string  `json:"product_id" bson:"product_id"`
	Name      string  `json:"name" bson:"name"`
	Price     float64 `json:"price" bson:"price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Image     string  `json:"image,omitempty" bson:"image,omitempty"`
}

// Address is the shipping address copied onto the order.
type Address struct {
	FullName     string `json:"full_name" bson:"full_name"`
	Phone        string `json:"phone" bson:"phone"`
	AddressLine1 string `json:"address_line1" bson:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty" bson:"address_line2,omitempty"`
	City         string `json:"city" bson:"city"`
	State        string `json:"state" bson:"state"`
	PostalCode   string `json:"postal_code" bson:"postal_code"`
}

// Order is a placed order. Items never change after creation.
type Order struct {
	ID                string        `json:"id" bson:"id"`
	SessionID         string        `json:"session_id" bson:"session_id"`
	CheckoutSessionID string        `json:"checkout_session_id,omitempty" bson:"checkout_session_id,omitempty"`
	Items             []LineItem    `json:"items" bson:"items"`
	Subtotal          float64       `json:"subtotal" bson:"subtotal"`
	DiscountAmount    float64       `json:"discount_amount" bson:"discount_amount"`
	TotalAmount       float64       `json:"total_amount" bson:"total_amount"`
	CouponCode        string        `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	CustomerEmail     string        `json:"customer_email,omitempty" bson:"customer_email,omitempty"`
	CustomerName      string        `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	UserID            string        `json:"user_id,omitempty" bson:"user_id,omitempty"`
	PaymentMethod     PaymentMethod `json:"payment_method" bson:"payment_method"`
	Address           *Address      `json:"address,omitempty" bson:"address,omitempty"`
	Status            Status        `json:"status" bson:"status"`
	CreatedAt         time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" bson:"updated_at"`
}

// HistoryEntry is one append-only status change of an order.
type HistoryEntry struct {
	ID        string    `json:"id" bson:"id"`
	OrderID   string    `json:"order_id" bson:"order_id"`
	Status    Status    `json:"status" bson:"status"`
	Note      string    `json:"note,omitempty" bson:"note,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// DailySales aggregates orders of one UTC day.
type DailySales struct {
	Date       string  `json:"date" bson:"_id"`
	TotalSales float64 `json:"total_sales" bson:"total_sales"`
	OrderCount int     `json:"order_count" bson:"order_count"`
}

// ListFilter selects orders for the admin listing. An empty status matches all.
type ListFilter struct {
	Status Status
	Limit  int
	Skip   int
}

// Repository defines the interface for order storage.
type Repository interface {
	// CreateOrder inserts an order. A second order for the same checkout session yields
	// ErrDuplicateCheckoutSession.
	CreateOrder(ctx context.Context, order Order) error

	GetOrder(ctx context.Context, id string) (Order, error)

	// FindByCheckoutSession returns the order created for a provider checkout session.
	FindByCheckoutSession(ctx context.Context, checkoutSessionID string) (Order, error)

	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)

	// ListOrders returns a page of orders newest first and the total matching count.
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, int64, error)

	// CountOrders counts orders; an empty status counts all.
	CountOrders(ctx context.Context, status Status) (int64, error)

	// TotalSales sums total_amount over orders that were not cancelled.
	TotalSales(ctx context.Context) (float64, error)

	// UpdateStatus moves an order from one status to another. If the stored status is no
	// longer from, ErrStatusChanged is returned.
	UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error)

	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// History returns an order's status changes, oldest first.
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)

	// SalesByDay groups orders created at or after since by UTC day.
	SalesByDay(ctx context.Context, since time.Time) ([]DailySales, error)

	// HasPurchased reports whether the user has an order in one of statuses containing
	// the product.
	HasPurchased(ctx context.Context, userID, productID string, statuses []Status) (bool, error)
}
