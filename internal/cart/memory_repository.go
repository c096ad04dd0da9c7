package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps cart lines in process.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Item
	seq   int64
	order map[string]int64
}

// NewMemoryRepository creates an empty in-memory cart store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]Item),
		order: make(map[string]int64),
	}
}

func (r *MemoryRepository) AddQuantity(_ context.Context, item Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.items {
		if existing.SessionID == item.SessionID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			if item.UserID != "" {
				existing.UserID = item.UserID
			}
			r.items[id] = existing
			return existing, nil
		}
	}

	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()
	r.seq++
	r.items[item.ID] = item
	r.order[item.ID] = r.seq
	return item, nil
}

func (r *MemoryRepository) GetItem(_ context.Context, id string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *MemoryRepository) FindItem(_ context.Context, sessionID, productID string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.SessionID == sessionID && item.ProductID == productID {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, 0)
	for _, item := range r.items {
		if item.SessionID == sessionID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] < r.order[out[j].ID] })
	return out, nil
}

func (r *MemoryRepository) SetQuantity(_ context.Context, id string, quantity int) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	item.Quantity = quantity
	r.items[id] = item
	return item, nil
}

func (r *MemoryRepository) DeleteItem(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(r.items, id)
	delete(r.order, id)
	return nil
}

func (r *MemoryRepository) ClearSession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, item := range r.items {
		if item.SessionID == sessionID {
			delete(r.items, id)
			delete(r.order, id)
			removed++
		}
	}
	return removed, nil
}
