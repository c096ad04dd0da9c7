package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/storage"
)

// MongoDBRepository implements Repository over the users and addresses collections.
type MongoDBRepository struct {
	users     *mongo.Collection
	addresses *mongo.Collection
	timeout   time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed user repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		users:     db.Collection(storage.CollectionUsers),
		addresses: db.Collection(storage.CollectionAddresses),
		timeout:   queryTimeout,
	}
}

func (r *MongoDBRepository) CreateUser(ctx context.Context, user User) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailRegistered
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) findUser(ctx context.Context, filter bson.M) (User, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var u User
	err := r.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *MongoDBRepository) GetUser(ctx context.Context, id string) (User, error) {
	return r.findUser(ctx, bson.M{"id": id})
}

// FindByEmail matches case-insensitively; emails are stored lower-cased.
func (r *MongoDBRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findUser(ctx, bson.M{"email": bson.M{
		"$regex": "^" + regexp.QuoteMeta(email) + "$", "$options": "i",
	}})
}

func (r *MongoDBRepository) UpdateProfile(ctx context.Context, id string, profile Profile, now time.Time) (User, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	set := bson.M{"updated_at": now}
	if profile.Name != nil {
		set["name"] = *profile.Name
	}
	if profile.Phone != nil {
		set["phone"] = *profile.Phone
	}

	var u User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (r *MongoDBRepository) ListUsers(ctx context.Context, limit int) ([]User, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.users.Find(ctx, bson.M{}, storage.FindPage(int64(limit), 0, bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return storage.DecodeAll[User](ctx, cursor)
}

func (r *MongoDBRepository) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *MongoDBRepository) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.users.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoDBRepository) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.addresses.Find(ctx, bson.M{"user_id": userID}, storage.FindPage(100, 0, bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return storage.DecodeAll[Address](ctx, cursor)
}

func (r *MongoDBRepository) CreateAddress(ctx context.Context, addr Address) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.addresses.InsertOne(ctx, addr); err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) UpdateAddress(ctx context.Context, addr Address) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.addresses.UpdateOne(ctx,
		bson.M{"id": addr.ID, "user_id": addr.UserID},
		bson.M{"$set": bson.M{
			"full_name":     addr.FullName,
			"phone":         addr.Phone,
			"address_line1": addr.AddressLine1,
			"address_line2": addr.AddressLine2,
			"city":          addr.City,
			"state":         addr.State,
			"postal_code":   addr.PostalCode,
			"is_default":    addr.IsDefault,
		}},
	)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (r *MongoDBRepository) DeleteAddress(ctx context.Context, userID, id string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.addresses.DeleteOne(ctx, bson.M{"id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (r *MongoDBRepository) ClearDefault(ctx context.Context, userID, keepID string) error {
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"user_id": userID, "is_default": true}
	if keepID != "" {
		filter["id"] = bson.M{"$ne": keepID}
	}
	if _, err := r.addresses.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_default": false}}); err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}
