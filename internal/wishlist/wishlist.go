package wishlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/storage"
)

var (
	ErrAlreadyListed = errors.New("product already in wishlist")
	ErrItemNotFound  = errors.New("item not found in wishlist")
)

// Item is a product saved by a user.
type Item struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	ProductID string    `json:"product_id" bson:"product_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Repository persists wishlist items.
type Repository interface {
	Add(ctx context.Context, item Item) error
	Find(ctx context.Context, userID, productID string) (Item, error)
	List(ctx context.Context, userID string) ([]Item, error)
	Remove(ctx context.Context, userID, productID string) error
}

// Catalog resolves products.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (products.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]products.Product, error)
}

// Entry is a wishlist item with its product.
type Entry struct {
	products.Product
	WishlistID string    `json:"wishlist_id"`
	AddedAt    time.Time `json:"added_at"`
}

// Service implements the wishlist.
type Service struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

// NewService creates a wishlist service.
func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{repo: repo, catalog: catalog, now: func() time.Time { return time.Now().UTC() }}
}

// Add saves a product for the user.
func (s *Service) Add(ctx context.Context, userID, productID string) (Item, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return Item{}, err
	}
	if _, err := s.repo.Find(ctx, userID, productID); err == nil {
		return Item{}, ErrAlreadyListed
	} else if !errors.Is(err, ErrItemNotFound) {
		return Item{}, err
	}
	item := Item{ID: uuid.NewString(), UserID: userID, ProductID: productID, CreatedAt: s.now()}
	if err := s.repo.Add(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns the user's saved products, newest first. Products that no longer exist
// are skipped.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve wishlist products: %w", err)
	}
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		if p, ok := catalog[item.ProductID]; ok {
			out = append(out, Entry{Product: p, WishlistID: item.ID, AddedAt: item.CreatedAt})
		}
	}
	return out, nil
}

// Remove deletes a saved product.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.repo.Remove(ctx, userID, productID)
}

// Contains reports whether the product is saved.
func (s *Service) Contains(ctx context.Context, userID, productID string) (bool, error) {
	_, err := s.repo.Find(ctx, userID, productID)
	if errors.Is(err, ErrItemNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MemoryRepository keeps wishlist items in process.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Item // by user/product
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Item)}
}

func key(userID, productID string) string { return userID + "/" + productID }

func (r *MemoryRepository) Add(_ context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(item.UserID, item.ProductID)
	if _, ok := r.items[k]; ok {
		return ErrAlreadyListed
	}
	r.items[k] = item
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, userID, productID string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key(userID, productID)]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *MemoryRepository) List(_ context.Context, userID string) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, 0)
	for _, item := range r.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Remove(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(userID, productID)
	if _, ok := r.items[k]; !ok {
		return ErrItemNotFound
	}
	delete(r.items, k)
	return nil
}

// MongoDBRepository implements Repository over the wishlist collection.
type MongoDBRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed wishlist repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{collection: db.Collection(storage.CollectionWishlist), timeout: queryTimeout}
}

func (r *MongoDBRepository) Add(ctx context.Context, item Item) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, item)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyListed
	}
	if err != nil {
		return fmt.Errorf("insert wishlist item: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) Find(ctx context.Context, userID, productID string) (Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var item Item
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "product_id": productID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("find wishlist item: %w", err)
	}
	return item, nil
}

func (r *MongoDBRepository) List(ctx context.Context, userID string) ([]Item, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID},
		storage.FindPage(0, 0, bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	return storage.DecodeAll[Item](ctx, cursor)
}

func (r *MongoDBRepository) Remove(ctx context.Context, userID, productID string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID, "product_id": productID})
	if err != nil {
		return fmt.Errorf("delete wishlist item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}
