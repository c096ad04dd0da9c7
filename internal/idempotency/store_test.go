package idempotency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_ReserveThenSet(t *testing.T) {
	store := NewMemoryStoreWithSize(10)
	defer store.Stop()
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Reserve() = %v, %v, want true", ok, err)
	}
	if _, found := store.Get(ctx, "k"); found {
		t.Error("Get() found a pending key")
	}
	if ok, _ := store.Reserve(ctx, "k", time.Minute); ok {
		t.Error("Reserve() twice = true, want false")
	}

	if err := store.Set(ctx, "k", &Response{StatusCode: 201, Body: []byte("done")}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, found := store.Get(ctx, "k")
	if !found || got.StatusCode != 201 || string(got.Body) != "done" {
		t.Errorf("Get() = %+v, %v", got, found)
	}
	if ok, _ := store.Reserve(ctx, "k", time.Minute); ok {
		t.Error("Reserve() over a completed key = true, want false")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := store.Reserve(ctx, "k", time.Minute); !ok {
		t.Error("Reserve() after Delete() = false, want true")
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	store := NewMemoryStoreWithSize(10)
	defer store.Stop()
	ctx := context.Background()

	store.Set(ctx, "k", &Response{StatusCode: 200}, 10*time.Millisecond)
	if _, found := store.Get(ctx, "k"); !found {
		t.Fatal("expected key immediately after Set")
	}
	time.Sleep(50 * time.Millisecond)
	if _, found := store.Get(ctx, "k"); found {
		t.Error("expected key to be expired")
	}
	if ok, _ := store.Reserve(ctx, "k", time.Minute); !ok {
		t.Error("Reserve() over an expired key = false, want true")
	}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	store := NewMemoryStoreWithSize(3)
	defer store.Stop()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		store.Set(ctx, k, &Response{StatusCode: 200}, time.Minute)
	}
	// touch a so b becomes least recently used
	store.Get(ctx, "a")
	store.Set(ctx, "d", &Response{StatusCode: 200}, time.Minute)

	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
	if _, found := store.Get(ctx, "b"); found {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, found := store.Get(ctx, k); !found {
			t.Errorf("expected %s to remain", k)
		}
	}
}

func TestMemoryStore_ConcurrentReserve(t *testing.T) {
	store := NewMemoryStore()
	defer store.Stop()
	ctx := context.Background()

	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Reserve(ctx, "same", time.Minute); ok {
				atomic.AddInt32(&won, 1)
			}
			store.Get(ctx, fmt.Sprintf("other-%d", i))
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("Reserve() winners = %d, want 1", won)
	}
}

func TestMemoryStore_StopTwice(t *testing.T) {
	store := NewMemoryStore()
	store.Stop()
	store.Stop()
}
