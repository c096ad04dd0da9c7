package reviews

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps reviews in process.
type MemoryRepository struct {
	mu      sync.RWMutex
	reviews map[string]Review
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reviews: make(map[string]Review)}
}

func (r *MemoryRepository) Create(_ context.Context, review Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reviews {
		if existing.UserID == review.UserID && existing.ProductID == review.ProductID {
			return ErrAlreadyReviewed
		}
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.reviews[id]
	if !ok {
		return Review{}, ErrReviewNotFound
	}
	return review, nil
}

func (r *MemoryRepository) FindByUserProduct(_ context.Context, userID, productID string) (Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, review := range r.reviews {
		if review.UserID == userID && review.ProductID == productID {
			return review, nil
		}
	}
	return Review{}, ErrReviewNotFound
}

func (r *MemoryRepository) filter(keep func(Review) bool) []Review {
	out := make([]Review, 0)
	for _, review := range r.reviews {
		if keep(review) {
			out = append(out, review)
		}
	}
	return out
}

func lessBy(order string, a, b Review) bool {
	switch order {
	case SortHelpful:
		return a.HelpfulCount > b.HelpfulCount
	case SortRatingHigh:
		return a.Rating > b.Rating
	case SortRatingLow:
		return a.Rating < b.Rating
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

func (r *MemoryRepository) ListForProduct(_ context.Context, productID string, order string, limit, skip int) ([]Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filter(func(rv Review) bool { return rv.ProductID == productID && rv.Status == StatusApproved })
	sort.SliceStable(out, func(i, j int) bool { return lessBy(order, out[i], out[j]) })
	if skip >= len(out) {
		return []Review{}, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountForProduct(_ context.Context, productID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.filter(func(rv Review) bool { return rv.ProductID == productID && rv.Status == StatusApproved }))), nil
}

func (r *MemoryRepository) List(_ context.Context, status Status, limit int) ([]Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filter(func(rv Review) bool { return status == "" || rv.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) IncrementHelpful(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[id]
	if !ok {
		return ErrReviewNotFound
	}
	review.HelpfulCount++
	r.reviews[id] = review
	return nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, status Status) (Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[id]
	if !ok {
		return Review{}, ErrReviewNotFound
	}
	review.Status = status
	r.reviews[id] = review
	return review, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[id]; !ok {
		return ErrReviewNotFound
	}
	delete(r.reviews, id)
	return nil
}

func (r *MemoryRepository) ApprovedStats(_ context.Context, productID string) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stats Stats
	var sum int
	for _, review := range r.reviews {
		if review.ProductID == productID && review.Status == StatusApproved {
			sum += review.Rating
			stats.Count++
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}
