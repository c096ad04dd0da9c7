package products

import (
	"context"
	"errors"
	"time"
)

// ErrProductNotFound is returned when a product doesn't exist.
var ErrProductNotFound = errors.New("product not found")

// Product is a catalog entry. Prices are rupees.
type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Price             float64   `json:"price"`
	Category          string    `json:"category"`
	Images            []string  `json:"images"`
	Tags              []string  `json:"tags"`
	InStock           bool      `json:"in_stock"`
	StockQuantity     int       `json:"stock_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	AverageRating     float64   `json:"average_rating"`
	TotalReviews      int       `json:"total_reviews"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// Update carries the fields of a partial product update; nil means unchanged.
type Update struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	Price             *float64  `json:"price,omitempty"`
	Category          *string   `json:"category,omitempty"`
	Images            *[]string `json:"images,omitempty"`
	Tags              *[]string `json:"tags,omitempty"`
	InStock           *bool     `json:"in_stock,omitempty"`
	StockQuantity     *int      `json:"stock_quantity,omitempty"`
	LowStockThreshold *int      `json:"low_stock_threshold,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Price == nil && u.Category == nil &&
		u.Images == nil && u.Tags == nil && u.InStock == nil && u.StockQuantity == nil &&
		u.LowStockThreshold == nil
}

// Sort fields accepted by Filter.SortBy.
const (
	SortCreatedAt     = "created_at"
	SortPrice         = "price"
	SortName          = "name"
	SortAverageRating = "average_rating"
)

// Filter selects a page of the catalog.
type Filter struct {
	Category string
	// Search is matched case-insensitively against name, description and tags.
	Search   string
	MinPrice *float64
	MaxPrice *float64
	Tags     []string
	SortBy   string
	// Desc orders descending.
	Desc  bool
	Limit int
	Skip  int
}

// SortField returns the validated sort field, defaulting to created_at.
func (f Filter) SortField() string {
	switch f.SortBy {
	case SortPrice, SortName, SortAverageRating, SortCreatedAt:
		return f.SortBy
	default:
		return SortCreatedAt
	}
}

// Repository defines the interface for product storage.
type Repository interface {
	// GetProduct retrieves a product by ID.
	GetProduct(ctx context.Context, id string) (Product, error)

	// GetProducts resolves many ids at once. Unknown ids are absent from the map.
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)

	// ListProducts returns the page of products matching filter.
	ListProducts(ctx context.Context, filter Filter) ([]Product, error)

	// Categories returns the distinct product categories.
	Categories(ctx context.Context) ([]string, error)

	// LowStock returns products whose stock is at or below their threshold.
	LowStock(ctx context.Context) ([]Product, error)

	// CountProducts returns the catalog size.
	CountProducts(ctx context.Context) (int64, error)

	// CreateProduct stores a new product.
	CreateProduct(ctx context.Context, product Product) error

	// UpdateProduct applies a partial update and returns the result.
	UpdateProduct(ctx context.Context, id string, update Update) (Product, error)

	// UpdateRating stores the review aggregate of a product.
	UpdateRating(ctx context.Context, id string, averageRating float64, totalReviews int) error

	// DeleteProduct removes a product.
	DeleteProduct(ctx context.Context, id string) error
}
