package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func asc(key string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}}
}

func desc(key string) mongo.IndexModel {
	return mongo.IndexModel{Keys: bson.D{{Key: key, Value: -1}}}
}

func unique(keys ...string) mongo.IndexModel {
	d := bson.D{}
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
}

// indexPlan lists the indexes of every collection. Each document carries its own string
// "id", which is unique per collection.
func indexPlan() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionProducts: {
			unique("id"), asc("category"), asc("tags"), asc("price"), desc("created_at"), desc("average_rating"),
		},
		CollectionCart: {
			unique("id"), asc("session_id"), asc("product_id"),
			// additive merge relies on one line per (session, product)
			unique("session_id", "product_id"),
		},
		CollectionOrders: {
			unique("id"), asc("session_id"), asc("customer_email"), asc("user_id"), asc("status"), desc("created_at"),
			// at most one order per paid checkout session
			{
				Keys: bson.D{{Key: "checkout_session_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"checkout_session_id": bson.M{"$type": "string"},
				}),
			},
		},
		CollectionOrderStatusHistory: {unique("id"), asc("order_id"), asc("timestamp")},
		CollectionUsers:              {unique("id"), unique("email"), asc("role")},
		CollectionAddresses:          {unique("id"), asc("user_id"), asc("is_default")},
		CollectionCoupons:            {unique("id"), unique("code"), asc("is_active"), {Keys: bson.D{{Key: "valid_from", Value: 1}, {Key: "valid_until", Value: 1}}}},
		CollectionCouponUsage:        {unique("id"), {Keys: bson.D{{Key: "coupon_id", Value: 1}, {Key: "user_id", Value: 1}}}, unique("coupon_id", "order_id")},
		// one counter per (coupon, user); a lost conditional upsert collides here
		CollectionCouponUserUsage: {unique("coupon_id", "user_id")},
		CollectionPaymentTransactions: {
			unique("id"), unique("checkout_session_id"), asc("order_id"),
		},
		CollectionReviews:     {unique("id"), unique("user_id", "product_id"), asc("product_id"), asc("status"), desc("created_at")},
		CollectionWishlist:    {unique("id"), unique("user_id", "product_id"), desc("created_at")},
		CollectionContacts:    {unique("id"), asc("status"), desc("created_at")},
		CollectionCustomGifts: {unique("id"), asc("status"), desc("created_at")},
		CollectionIdempotencyKeys: {
			unique("key"),
			// mongod reaps replays once they expire
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
}

// EnsureIndexes creates the indexes of every collection. CreateMany is idempotent for
// identical definitions.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, models := range indexPlan() {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}
