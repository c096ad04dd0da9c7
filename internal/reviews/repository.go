package reviews

import (
	"context"
	"errors"
	"time"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("you have already reviewed this product")
)

// Status is the moderation state of a review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Sort orders for product review listings.
const (
	SortRecent     = "recent"
	SortHelpful    = "helpful"
	SortRatingHigh = "rating_high"
	SortRatingLow  = "rating_low"
)

// Review is one user's rating of a product.
type Review struct {
	ID               string    `json:"id" bson:"id"`
	ProductID        string    `json:"product_id" bson:"product_id"`
	UserID           string    `json:"user_id" bson:"user_id"`
	UserName         string    `json:"user_name" bson:"user_name"`
	Rating           int       `json:"rating" bson:"rating"`
	Title            string    `json:"title,omitempty" bson:"title,omitempty"`
	Comment          string    `json:"comment" bson:"comment"`
	VerifiedPurchase bool      `json:"verified_purchase" bson:"verified_purchase"`
	HelpfulCount     int       `json:"helpful_count" bson:"helpful_count"`
	Status           Status    `json:"status" bson:"status"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

// Stats summarises the approved reviews of a product.
type Stats struct {
	Average float64 `bson:"avg_rating"`
	Count   int     `bson:"total_reviews"`
}

// Repository persists reviews.
type Repository interface {
	Create(ctx context.Context, review Review) error
	Get(ctx context.Context, id string) (Review, error)
	FindByUserProduct(ctx context.Context, userID, productID string) (Review, error)
	ListForProduct(ctx context.Context, productID string, sort string, limit, skip int) ([]Review, error)
	CountForProduct(ctx context.Context, productID string) (int64, error)
	// List returns reviews newest first, optionally filtered by status.
	List(ctx context.Context, status Status, limit int) ([]Review, error)
	IncrementHelpful(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status Status) (Review, error)
	Delete(ctx context.Context, id string) error
	// ApprovedStats aggregates the approved reviews of a product.
	ApprovedStats(ctx context.Context, productID string) (Stats, error)
}
