package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/logger"
)

var (
	// ErrQueryTooShort is returned when a search term has fewer than two characters.
	ErrQueryTooShort = errors.New("search query must be at least 2 characters")
	// ErrInvalidProduct is returned when a product fails validation.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrNothingToUpdate is returned for an empty update.
	ErrNothingToUpdate = errors.New("no fields to update")
)

const minQueryLength = 2

// Service holds the catalog rules on top of a Repository.
type Service struct {
	repo Repository
	cfg  config.CatalogConfig
	now  func() time.Time
}

// NewService creates a catalog service.
func NewService(repo Repository, cfg config.CatalogConfig) *Service {
	return &Service{repo: repo, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Repository exposes the underlying store to collaborating services.
func (s *Service) Repository() Repository {
	return s.repo
}

// NewProduct is the input of Create.
type NewProduct struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Price             float64  `json:"price"`
	Category          string   `json:"category"`
	Images            []string `json:"images"`
	Tags              []string `json:"tags"`
	StockQuantity     *int     `json:"stock_quantity,omitempty"`
	LowStockThreshold *int     `json:"low_stock_threshold,omitempty"`
}

func (s *Service) pageSize(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return limit
}

// List returns a page of the catalog. The limit is capped at the configured maximum.
func (s *Service) List(ctx context.Context, filter Filter) ([]Product, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.MaxPageSize
	}
	filter.Limit = s.pageSize(filter.Limit)
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	return s.repo.ListProducts(ctx, filter)
}

// Search matches q against name, description and tags, newest first.
func (s *Service) Search(ctx context.Context, q string, limit, skip int) ([]Product, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < minQueryLength {
		return nil, ErrQueryTooShort
	}
	return s.repo.ListProducts(ctx, Filter{
		Search: q,
		SortBy: SortCreatedAt,
		Desc:   true,
		Limit:  s.pageSize(limit),
		Skip:   skip,
	})
}

// Suggestions returns up to limit distinct product names matching q.
func (s *Service) Suggestions(ctx context.Context, q string, limit int) ([]string, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < minQueryLength {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 {
		limit = 5
	}
	matches, err := s.repo.ListProducts(ctx, Filter{Search: q, SortBy: SortName, Limit: limit * 2})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, limit)
	for _, p := range matches {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
		if len(names) == limit {
			break
		}
	}
	return names, nil
}

// Categories returns the distinct categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

// Get returns a product or ErrProductNotFound.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Create validates and stores a new product with catalog defaults.
func (s *Service) Create(ctx context.Context, in NewProduct) (Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if in.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}

	stock := s.cfg.DefaultStockQuantity
	if in.StockQuantity != nil {
		stock = *in.StockQuantity
	}
	threshold := s.cfg.DefaultLowStockThreshold
	if in.LowStockThreshold != nil {
		threshold = *in.LowStockThreshold
	}

	p := Product{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Description:       in.Description,
		Price:             in.Price,
		Category:          in.Category,
		Images:            nonNil(in.Images),
		Tags:              nonNil(in.Tags),
		InStock:           stock > 0,
		StockQuantity:     stock,
		LowStockThreshold: threshold,
		CreatedAt:         s.now(),
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("product_id", p.ID).
		Str("category", p.Category).
		Msg("products.created")
	return p, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, update Update) (Product, error) {
	if update.Empty() {
		return Product{}, ErrNothingToUpdate
	}
	if update.Price != nil && *update.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}
	return s.repo.UpdateProduct(ctx, id, update)
}

// SetStock sets the stock level; in_stock follows quantity > 0.
func (s *Service) SetStock(ctx context.Context, id string, quantity int) (Product, error) {
	if quantity < 0 {
		return Product{}, fmt.Errorf("%w: stock quantity must be non-negative", ErrInvalidProduct)
	}
	inStock := quantity > 0
	p, err := s.repo.UpdateProduct(ctx, id, Update{StockQuantity: &quantity, InStock: &inStock})
	if err != nil {
		return Product{}, err
	}
	if quantity <= p.LowStockThreshold {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("product_id", id).
			Int("stock_quantity", quantity).
			Int("low_stock_threshold", p.LowStockThreshold).
			Msg("products.stock_low")
	}
	return p, nil
}

// LowStock returns products at or below their threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.LowStock(ctx)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

// Count returns the number of products.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountProducts(ctx)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
