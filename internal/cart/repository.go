// Package cart stores the session-scoped selections shoppers make before checkout.
package cart

import (
	"context"
	"errors"
	"time"
)

// ErrItemNotFound is returned when a cart line doesn't exist.
var ErrItemNotFound = errors.New("cart item not found")

// Item is one cart line. Lines are unique per (session, product).
type Item struct {
	ID        string    `json:"id" bson:"id"`
	ProductID string    `json:"product_id" bson:"product_id"`
	SessionID string    `json:"session_id" bson:"session_id"`
	UserID    string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Repository persists cart lines.
type Repository interface {
	// AddQuantity merges item into the (session, product) line, creating it when absent.
	// The merge is a single atomic operation. The stored line is returned.
	AddQuantity(ctx context.Context, item Item) (Item, error)

	// GetItem retrieves a line by ID.
	GetItem(ctx context.Context, id string) (Item, error)

	// FindItem retrieves the line of productID in sessionID.
	FindItem(ctx context.Context, sessionID, productID string) (Item, error)

	// ListBySession returns the lines of a session in insertion order.
	ListBySession(ctx context.Context, sessionID string) ([]Item, error)

	// SetQuantity overwrites the quantity of a line.
	SetQuantity(ctx context.Context, id string, quantity int) (Item, error)

	// DeleteItem removes a line.
	DeleteItem(ctx context.Context, id string) error

	// ClearSession removes every line of a session and returns how many were removed.
	ClearSession(ctx context.Context, sessionID string) (int64, error)
}
