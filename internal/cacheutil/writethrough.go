package cacheutil

import (
	"sync"
	"time"
)

// CachedValue is a cached value stamped with the time it was fetched.
type CachedValue[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Fresh reports whether the value is younger than ttl at now.
func (c CachedValue[T]) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.FetchedAt) < ttl
}

// WriteThrough runs a write and invalidates the cache only when it succeeds.
func WriteThrough(invalidate func(), operation func() error) error {
	if err := operation(); err != nil {
		return err
	}
	invalidate()
	return nil
}

// ReadThrough returns a cached value or fetches and caches a new one.
//
// checkCache runs under the read lock and again under the write lock, so two goroutines
// missing at the same time trigger a single fetch. fetchAndCache runs under the write lock.
func ReadThrough[T any](
	mu *sync.RWMutex,
	checkCache func(now time.Time) (T, bool),
	fetchAndCache func(now time.Time) (T, error),
) (T, error) {
	mu.RLock()
	if value, ok := checkCache(time.Now()); ok {
		mu.RUnlock()
		return value, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	if value, ok := checkCache(now); ok {
		return value, nil
	}
	return fetchAndCache(now)
}
