package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Response is a completed response kept for replay.
type Response struct {
	StatusCode int               `bson:"status_code"`
	Headers    map[string]string `bson:"headers"`
	Body       []byte            `bson:"body"`
	CachedAt   time.Time         `bson:"cached_at"`
}

// Store tracks idempotency keys. A key is first reserved while its request runs and then
// either completed with the response or released so the client may retry.
type Store interface {
	// Get returns the completed response for key. Pending keys are not returned.
	Get(ctx context.Context, key string) (*Response, bool)

	// Reserve claims key for an in-flight request. It reports false when the key is
	// already pending or completed and not yet expired.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Set completes key with the response.
	Set(ctx context.Context, key string, response *Response, ttl time.Duration) error

	// Delete forgets key.
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store with LRU eviction.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]*entry
	lru         *list.List
	maxSize     int
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

type entry struct {
	key      string
	response *Response // nil while the request is in flight
	expires  time.Time
	element  *list.Element
}

// NewMemoryStore creates a store holding at most 10,000 keys.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithSize(10000)
}

// NewMemoryStoreWithSize creates a store holding at most maxSize keys.
func NewMemoryStoreWithSize(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		maxSize:     maxSize,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// live returns the unexpired entry for key, dropping an expired one. Caller holds mu.
func (s *MemoryStore) live(key string, now time.Time) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		s.remove(e)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) remove(e *entry) {
	s.lru.Remove(e.element)
	delete(s.entries, e.key)
}

// put inserts or refreshes key. Caller holds mu.
func (s *MemoryStore) put(key string, response *Response, expires time.Time) {
	if e, ok := s.entries[key]; ok {
		e.response = response
		e.expires = expires
		s.lru.MoveToFront(e.element)
		return
	}
	if len(s.entries) >= s.maxSize {
		if back := s.lru.Back(); back != nil {
			s.remove(back.Value.(*entry))
		}
	}
	e := &entry{key: key, response: response, expires: expires}
	e.element = s.lru.PushFront(e)
	s.entries[key] = e
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key, now)
	if !ok || e.response == nil {
		return nil, false
	}
	s.lru.MoveToFront(e.element)
	return e.response, true
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key, now); ok {
		return false, nil
	}
	s.put(key, nil, now.Add(ttl))
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, response *Response, ttl time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, response, now.Add(ttl))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.remove(e)
	}
	return nil
}

// Len reports the number of tracked keys, pending ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for _, e := range s.entries {
				if now.After(e.expires) {
					s.remove(e)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Stop shuts down the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
}
