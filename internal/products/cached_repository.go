package products

import (
	"context"
	"sync"
	"time"

	"github.com/lilgiftcorner/server/internal/cacheutil"
)

// CachedRepository wraps a Repository with TTL caching for product lookups and categories.
// Listings are not cached; filters make the key space too wide.
type CachedRepository struct {
	underlying Repository
	cacheTTL   time.Duration

	mu               sync.RWMutex
	productCache     map[string]cacheutil.CachedValue[Product]
	cachedCategories cacheutil.CachedValue[[]string]
}

// NewCachedRepository wraps a repository with a caching layer.
// A zero cacheTTL disables caching (pass-through mode).
func NewCachedRepository(underlying Repository, cacheTTL time.Duration) *CachedRepository {
	return &CachedRepository{
		underlying:   underlying,
		cacheTTL:     cacheTTL,
		productCache: make(map[string]cacheutil.CachedValue[Product]),
	}
}

// GetProduct retrieves a product by ID with caching.
func (r *CachedRepository) GetProduct(ctx context.Context, id string) (Product, error) {
	if r.cacheTTL == 0 {
		return r.underlying.GetProduct(ctx, id)
	}

	r.mu.RLock()
	cached, found := r.productCache[id]
	r.mu.RUnlock()
	if found && cached.Fresh(time.Now(), r.cacheTTL) {
		return cached.Value, nil
	}

	product, err := r.underlying.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}

	r.mu.Lock()
	r.productCache[id] = cacheutil.CachedValue[Product]{Value: product, FetchedAt: time.Now()}
	r.mu.Unlock()

	return product, nil
}

// GetProducts serves cached entries and fetches the rest in one call.
func (r *CachedRepository) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	if r.cacheTTL == 0 {
		return r.underlying.GetProducts(ctx, ids)
	}

	now := time.Now()
	out := make(map[string]Product, len(ids))
	missing := make([]string, 0, len(ids))

	r.mu.RLock()
	for _, id := range ids {
		if cached, ok := r.productCache[id]; ok && cached.Fresh(now, r.cacheTTL) {
			out[id] = cached.Value
			continue
		}
		missing = append(missing, id)
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.underlying.GetProducts(ctx, missing)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	for id, p := range fetched {
		out[id] = p
		r.productCache[id] = cacheutil.CachedValue[Product]{Value: p, FetchedAt: now}
	}
	r.mu.Unlock()

	return out, nil
}

// ListProducts passes through.
func (r *CachedRepository) ListProducts(ctx context.Context, filter Filter) ([]Product, error) {
	return r.underlying.ListProducts(ctx, filter)
}

// Categories returns the distinct categories with TTL-based caching.
func (r *CachedRepository) Categories(ctx context.Context) ([]string, error) {
	if r.cacheTTL == 0 {
		return r.underlying.Categories(ctx)
	}

	return cacheutil.ReadThrough(
		&r.mu,
		func(now time.Time) ([]string, bool) {
			if r.cachedCategories.Value != nil && r.cachedCategories.Fresh(now, r.cacheTTL) {
				return r.cachedCategories.Value, true
			}
			return nil, false
		},
		func(now time.Time) ([]string, error) {
			categories, err := r.underlying.Categories(ctx)
			if err != nil {
				return nil, err
			}
			r.cachedCategories = cacheutil.CachedValue[[]string]{Value: categories, FetchedAt: now}
			return categories, nil
		},
	)
}

// LowStock passes through; stock changes often.
func (r *CachedRepository) LowStock(ctx context.Context) ([]Product, error) {
	return r.underlying.LowStock(ctx)
}

// CountProducts passes through.
func (r *CachedRepository) CountProducts(ctx context.Context) (int64, error) {
	return r.underlying.CountProducts(ctx)
}

// InvalidateCache clears all cached entries.
func (r *CachedRepository) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.productCache = make(map[string]cacheutil.CachedValue[Product])
	r.cachedCategories = cacheutil.CachedValue[[]string]{}
}

// CreateProduct creates a new product and invalidates the cache.
func (r *CachedRepository) CreateProduct(ctx context.Context, product Product) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.CreateProduct(ctx, product)
	})
}

// UpdateProduct updates a product and invalidates the cache.
func (r *CachedRepository) UpdateProduct(ctx context.Context, id string, update Update) (Product, error) {
	var updated Product
	err := cacheutil.WriteThrough(r.InvalidateCache, func() error {
		var err error
		updated, err = r.underlying.UpdateProduct(ctx, id, update)
		return err
	})
	return updated, err
}

// UpdateRating stores the rating and invalidates the cache.
func (r *CachedRepository) UpdateRating(ctx context.Context, id string, averageRating float64, totalReviews int) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.UpdateRating(ctx, id, averageRating, totalReviews)
	})
}

// DeleteProduct deletes a product and invalidates the cache.
func (r *CachedRepository) DeleteProduct(ctx context.Context, id string) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.DeleteProduct(ctx, id)
	})
}
