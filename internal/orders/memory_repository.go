package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps orders in process.
type MemoryRepository struct {
	mu      sync.RWMutex
	orders  map[string]Order
	history []HistoryEntry
}

// NewMemoryRepository creates an empty in-memory order store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]Order)}
}

func (r *MemoryRepository) CreateOrder(_ context.Context, order Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.CheckoutSessionID != "" {
		for _, existing := range r.orders {
			if existing.CheckoutSessionID == order.CheckoutSessionID {
				return ErrDuplicateCheckoutSession
			}
		}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *MemoryRepository) GetOrder(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) FindByCheckoutSession(_ context.Context, checkoutSessionID string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.CheckoutSessionID == checkoutSessionID {
			return o, nil
		}
	}
	return Order{}, ErrOrderNotFound
}

func (r *MemoryRepository) newestFirst(keep func(Order) bool) []Order {
	out := make([]Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.newestFirst(func(o Order) bool { return o.UserID == userID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListOrders(_ context.Context, filter ListFilter) ([]Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.newestFirst(func(o Order) bool { return filter.Status == "" || o.Status == filter.Status })
	total := int64(len(all))

	if filter.Skip >= len(all) {
		return []Order{}, total, nil
	}
	all = all[filter.Skip:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *MemoryRepository) CountOrders(_ context.Context, status Status) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, o := range r.orders {
		if status == "" || o.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) TotalSales(_ context.Context) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	for _, o := range r.orders {
		if o.Status != StatusCancelled {
			sum += o.TotalAmount
		}
	}
	return sum, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, from, to Status) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.Status != from {
		return Order{}, ErrStatusChanged
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return o, nil
}

func (r *MemoryRepository) AppendHistory(_ context.Context, entry HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
	return nil
}

func (r *MemoryRepository) History(_ context.Context, orderID string) ([]HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HistoryEntry, 0)
	for _, h := range r.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *MemoryRepository) SalesByDay(_ context.Context, since time.Time) ([]DailySales, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byDay := make(map[string]*DailySales)
	for _, o := range r.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		day := o.CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailySales{Date: day}
			byDay[day] = d
		}
		d.TotalSales += o.TotalAmount
		d.OrderCount++
	}
	out := make([]DailySales, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *MemoryRepository) HasPurchased(_ context.Context, userID, productID string, statuses []Status) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.UserID != userID || !containsStatus(statuses, o.Status) {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
