package products

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/storage"
)

// MongoDBRepository implements Repository using MongoDB.
type MongoDBRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// mongoProduct represents the MongoDB document structure.
type mongoProduct struct {
	ID                string    `bson:"id"`
	Name              string    `bson:"name"`
	Description       string    `bson:"description"`
	Price             float64   `bson:"price"`
	Category          string    `bson:"category"`
	Images            []string  `bson:"images"`
	Tags              []string  `bson:"tags"`
	InStock           bool      `bson:"in_stock"`
	StockQuantity     int       `bson:"stock_quantity"`
	LowStockThreshold int       `bson:"low_stock_threshold"`
	AverageRating     float64   `bson:"average_rating"`
	TotalReviews      int       `bson:"total_reviews"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at,omitempty"`
}

// NewMongoDBRepository creates a MongoDB-backed repository over the products collection.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		collection: db.Collection(storage.CollectionProducts),
		timeout:    queryTimeout,
	}
}

// GetProduct retrieves a product by ID.
func (r *MongoDBRepository) GetProduct(ctx context.Context, id string) (Product, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var mp mongoProduct
	err := r.collection.FindOne(ctx, bson.M{"id": id}).Decode(&mp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("find product: %w", err)
	}
	return mongoToProduct(mp), nil
}

// GetProducts resolves many ids with one query.
func (r *MongoDBRepository) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	docs, err := storage.DecodeAll[mongoProduct](ctx, cursor)
	if err != nil {
		return nil, err
	}
	for _, mp := range docs {
		out[mp.ID] = mongoToProduct(mp)
	}
	return out, nil
}

// ListProducts returns a filtered, sorted page.
func (r *MongoDBRepository) ListProducts(ctx context.Context, filter Filter) ([]Product, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	order := 1
	if filter.Desc {
		order = -1
	}
	opts := storage.FindPage(int64(filter.Limit), int64(filter.Skip), bson.D{{Key: filter.SortField(), Value: order}})

	cursor, err := r.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	docs, err := storage.DecodeAll[mongoProduct](ctx, cursor)
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(docs))
	for _, mp := range docs {
		products = append(products, mongoToProduct(mp))
	}
	return products, nil
}

func buildFilter(f Filter) bson.M {
	query := bson.M{}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.Search != "" {
		pattern := primitiveRegex(f.Search)
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		query["price"] = price
	}
	if len(f.Tags) > 0 {
		query["tags"] = bson.M{"$in": f.Tags}
	}
	return query
}

// primitiveRegex matches term literally and case-insensitively.
func primitiveRegex(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

// Categories returns the distinct categories, sorted.
func (r *MongoDBRepository) Categories(ctx context.Context) ([]string, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	values, err := r.collection.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			categories = append(categories, s)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// LowStock returns products with stock_quantity <= low_stock_threshold.
func (r *MongoDBRepository) LowStock(ctx context.Context) ([]Product, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"$expr": bson.M{"$lte": bson.A{"$stock_quantity", "$low_stock_threshold"}}}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "stock_quantity", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find low stock products: %w", err)
	}
	docs, err := storage.DecodeAll[mongoProduct](ctx, cursor)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(docs))
	for _, mp := range docs {
		products = append(products, mongoToProduct(mp))
	}
	return products, nil
}

// CountProducts counts all products.
func (r *MongoDBRepository) CountProducts(ctx context.Context) (int64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// CreateProduct inserts a new product.
func (r *MongoDBRepository) CreateProduct(ctx context.Context, p Product) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, productToMongo(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("product already exists: %s", p.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct applies update and returns the stored product.
func (r *MongoDBRepository) UpdateProduct(ctx context.Context, id string, update Update) (Product, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Price != nil {
		set["price"] = *update.Price
	}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.Images != nil {
		set["images"] = *update.Images
	}
	if update.Tags != nil {
		set["tags"] = *update.Tags
	}
	if update.InStock != nil {
		set["in_stock"] = *update.InStock
	}
	if update.StockQuantity != nil {
		set["stock_quantity"] = *update.StockQuantity
	}
	if update.LowStockThreshold != nil {
		set["low_stock_threshold"] = *update.LowStockThreshold
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var mp mongoProduct
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$set": set}, opts).Decode(&mp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return mongoToProduct(mp), nil
}

// UpdateRating stores the review aggregate.
func (r *MongoDBRepository) UpdateRating(ctx context.Context, id string, averageRating float64, totalReviews int) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{
		"average_rating": averageRating,
		"total_reviews":  totalReviews,
	}})
	if err != nil {
		return fmt.Errorf("update product rating: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct removes a product.
func (r *MongoDBRepository) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func mongoToProduct(mp mongoProduct) Product {
	p := Product{
		ID:                mp.ID,
		Name:              mp.Name,
		Description:       mp.Description,
		Price:             mp.Price,
		Category:          mp.Category,
		Images:            mp.Images,
		Tags:              mp.Tags,
		InStock:           mp.InStock,
		StockQuantity:     mp.StockQuantity,
		LowStockThreshold: mp.LowStockThreshold,
		AverageRating:     mp.AverageRating,
		TotalReviews:      mp.TotalReviews,
		CreatedAt:         mp.CreatedAt,
		UpdatedAt:         mp.UpdatedAt,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

func productToMongo(p Product) mongoProduct {
	return mongoProduct{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		Category:          p.Category,
		Images:            p.Images,
		Tags:              p.Tags,
		InStock:           p.InStock,
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
		AverageRating:     p.AverageRating,
		TotalReviews:      p.TotalReviews,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
