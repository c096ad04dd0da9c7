package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/money"
	"github.com/lilgiftcorner/server/internal/products"
)

var (
	// ErrInvalidReview is returned when review input fails validation.
	ErrInvalidReview = errors.New("invalid review")
	// ErrForbidden is returned when a user deletes someone else's review.
	ErrForbidden = errors.New("not authorized to delete this review")
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Catalog is the product surface reviews read and update.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (products.Product, error)
	UpdateRating(ctx context.Context, id string, averageRating float64, totalReviews int) error
}

// PurchaseChecker reports whether a user has bought a product.
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

// Author is the signed-in user writing a review.
type Author struct {
	ID      string
	Name    string
	IsAdmin bool
}

// NewReview is the payload of Create.
type NewReview struct {
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
	Title     string `json:"title,omitempty"`
	Comment   string `json:"comment"`
}

// ProductReviews is one page of a product's reviews.
type ProductReviews struct {
	Reviews []Review `json:"reviews"`
	Total   int64    `json:"total"`
}

// Service implements product reviews and their moderation.
type Service struct {
	repo      Repository
	catalog   Catalog
	purchases PurchaseChecker
	now       func() time.Time
}

// NewService creates a review service.
func NewService(repo Repository, catalog Catalog, purchases PurchaseChecker) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		purchases: purchases,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a review. Each user reviews a product at most once; the review is marked as
// a verified purchase when the user has a completed or delivered order containing it.
func (s *Service) Create(ctx context.Context, author Author, in NewReview) (Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	if strings.TrimSpace(in.Comment) == "" {
		return Review{}, fmt.Errorf("%w: comment is required", ErrInvalidReview)
	}
	if _, err := s.catalog.GetProduct(ctx, in.ProductID); err != nil {
		return Review{}, err
	}

	if _, err := s.repo.FindByUserProduct(ctx, author.ID, in.ProductID); err == nil {
		return Review{}, ErrAlreadyReviewed
	} else if !errors.Is(err, ErrReviewNotFound) {
		return Review{}, err
	}

	verified := false
	if s.purchases != nil {
		bought, err := s.purchases.HasPurchased(ctx, author.ID, in.ProductID)
		if err != nil {
			return Review{}, fmt.Errorf("check purchase: %w", err)
		}
		verified = bought
	}

	review := Review{
		ID:               uuid.NewString(),
		ProductID:        in.ProductID,
		UserID:           author.ID,
		UserName:         author.Name,
		Rating:           in.Rating,
		Title:            strings.TrimSpace(in.Title),
		Comment:          strings.TrimSpace(in.Comment),
		VerifiedPurchase: verified,
		Status:           StatusApproved,
		CreatedAt:        s.now(),
	}
	if err := s.repo.Create(ctx, review); err != nil {
		return Review{}, err
	}
	s.refreshRating(ctx, review.ProductID)

	log := logger.FromContext(ctx)
	log.Info().
		Str("review_id", review.ID).
		Str("product_id", review.ProductID).
		Int("rating", review.Rating).
		Bool("verified_purchase", verified).
		Msg("reviews.created")
	return review, nil
}

// refreshRating recomputes the product aggregate from approved reviews.
func (s *Service) refreshRating(ctx context.Context, productID string) {
	log := logger.FromContext(ctx)
	stats, err := s.repo.ApprovedStats(ctx, productID)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("reviews.stats_failed")
		return
	}
	if err := s.catalog.UpdateRating(ctx, productID, money.RoundTo(stats.Average, 1), stats.Count); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("reviews.rating_update_failed")
	}
}

// ListForProduct returns approved reviews of a product.
func (s *Service) ListForProduct(ctx context.Context, productID, sort string, limit, skip int) (ProductReviews, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if skip < 0 {
		skip = 0
	}
	list, err := s.repo.ListForProduct(ctx, productID, sort, limit, skip)
	if err != nil {
		return ProductReviews{}, err
	}
	total, err := s.repo.CountForProduct(ctx, productID)
	if err != nil {
		return ProductReviews{}, err
	}
	return ProductReviews{Reviews: list, Total: total}, nil
}

// MarkHelpful increments a review's helpful count.
func (s *Service) MarkHelpful(ctx context.Context, id string) error {
	return s.repo.IncrementHelpful(ctx, id)
}

// Delete removes a review written by author, or any review for an admin.
func (s *Service) Delete(ctx context.Context, author Author, id string) error {
	review, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if review.UserID != author.ID && !author.IsAdmin {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshRating(ctx, review.ProductID)
	return nil
}

// List returns reviews for moderation.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Review, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidReview, status)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.repo.List(ctx, status, limit)
}

// UpdateStatus moderates a review and recomputes its product's rating.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Review, error) {
	if !status.Valid() {
		return Review{}, fmt.Errorf("%w: unknown status %q", ErrInvalidReview, status)
	}
	review, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return Review{}, err
	}
	s.refreshRating(ctx, review.ProductID)
	return review, nil
}
