package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps users in process.
type MemoryRepository struct {
	mu        sync.RWMutex
	users     map[string]User
	addresses map[string]Address
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]User),
		addresses: make(map[string]Address),
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailRegistered
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepository) GetUser(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id string, profile Profile, now time.Time) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if profile.Name != nil {
		u.Name = *profile.Name
	}
	if profile.Phone != nil {
		u.Phone = *profile.Phone
	}
	u.UpdatedAt = now
	r.users[id] = u
	return u, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, limit int) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountUsers(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *MemoryRepository) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryRepository) ListAddresses(_ context.Context, userID string) ([]Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Address, 0)
	for _, a := range r.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateAddress(_ context.Context, addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses[addr.ID] = addr
	return nil
}

func (r *MemoryRepository) UpdateAddress(_ context.Context, addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.addresses[addr.ID]
	if !ok || existing.UserID != addr.UserID {
		return ErrAddressNotFound
	}
	addr.CreatedAt = existing.CreatedAt
	r.addresses[addr.ID] = addr
	return nil
}

func (r *MemoryRepository) DeleteAddress(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.addresses[id]
	if !ok || existing.UserID != userID {
		return ErrAddressNotFound
	}
	delete(r.addresses, id)
	return nil
}

func (r *MemoryRepository) ClearDefault(_ context.Context, userID, keepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.addresses {
		if a.UserID == userID && id != keepID && a.IsDefault {
			a.IsDefault = false
			r.addresses[id] = a
		}
	}
	return nil
}
