package products

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps products in process. It backs the memory storage backend and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewMemoryRepository creates a repository seeded with products.
func NewMemoryRepository(seed ...Product) *MemoryRepository {
	r := &MemoryRepository{products: make(map[string]Product, len(seed))}
	for _, p := range seed {
		r.products[p.ID] = p
	}
	return r
}

func (r *MemoryRepository) GetProduct(_ context.Context, id string) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetProducts(_ context.Context, ids []string) (map[string]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListProducts(_ context.Context, filter Filter) ([]Product, error) {
	r.mu.RLock()
	matched := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if matches(p, filter) {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	field := filter.SortField()
	sort.SliceStable(matched, func(i, j int) bool {
		less := lessBy(field, matched[i], matched[j])
		if filter.Desc {
			return lessBy(field, matched[j], matched[i])
		}
		return less
	})

	return page(matched, filter.Skip, filter.Limit), nil
}

func lessBy(field string, a, b Product) bool {
	switch field {
	case SortPrice:
		return a.Price < b.Price
	case SortName:
		return a.Name < b.Name
	case SortAverageRating:
		return a.AverageRating < b.AverageRating
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func page(products []Product, skip, limit int) []Product {
	if skip >= len(products) {
		return []Product{}
	}
	if skip > 0 {
		products = products[skip:]
	}
	if limit > 0 && limit < len(products) {
		products = products[:limit]
	}
	return products
}

func matches(p Product, f Filter) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(p.Tags, f.Tags) {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) &&
			!anyTagContains(p.Tags, term) {
			return false
		}
	}
	return true
}

func hasAnyTag(tags, wanted []string) bool {
	for _, t := range tags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

func anyTagContains(tags []string, term string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Categories(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range r.products {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

func (r *MemoryRepository) LowStock(_ context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0)
	for _, p := range r.products {
		if p.StockQuantity <= p.LowStockThreshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQuantity < out[j].StockQuantity })
	return out, nil
}

func (r *MemoryRepository) CountProducts(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.products)), nil
}

func (r *MemoryRepository) CreateProduct(_ context.Context, p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[p.ID]; exists {
		return fmt.Errorf("product already exists: %s", p.ID)
	}
	r.products[p.ID] = p
	return nil
}

func (r *MemoryRepository) UpdateProduct(_ context.Context, id string, update Update) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	p = applyUpdate(p, update)
	p.UpdatedAt = time.Now().UTC()
	r.products[id] = p
	return p, nil
}

func applyUpdate(p Product, u Update) Product {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Images != nil {
		p.Images = *u.Images
	}
	if u.Tags != nil {
		p.Tags = *u.Tags
	}
	if u.InStock != nil {
		p.InStock = *u.InStock
	}
	if u.StockQuantity != nil {
		p.StockQuantity = *u.StockQuantity
	}
	if u.LowStockThreshold != nil {
		p.LowStockThreshold = *u.LowStockThreshold
	}
	return p
}

func (r *MemoryRepository) UpdateRating(_ context.Context, id string, averageRating float64, totalReviews int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.AverageRating = averageRating
	p.TotalReviews = totalReviews
	r.products[id] = p
	return nil
}

func (r *MemoryRepository) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}
