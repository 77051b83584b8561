// Package mongo implements the repository ports on MongoDB.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	ToursCollection   = "tours"
	ReviewsCollection = "reviews"
	UsersCollection   = "users"
)

// Store groups the repositories of one database.
type Store struct {
	db      *mongo.Database
	Tours   *TourRepository
	Reviews *ReviewRepository
	Users   *UserRepository
}

// NewStore creates the repositories on db.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:      db,
		Tours:   NewTourRepository(db.Collection(ToursCollection)),
		Reviews: NewReviewRepository(db.Collection(ReviewsCollection)),
		Users:   NewUserRepository(db.Collection(UsersCollection)),
	}
}

// indexes lists the indexes each collection needs. Uniqueness of tour names,
// (tour, user) review pairs and user emails is enforced here.
func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		ToursCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "price", Value: 1}, {Key: "ratingsAverage", Value: -1}}},
			{Keys: bson.D{{Key: "slug", Value: 1}}},
			{Keys: bson.D{{Key: "startLocation", Value: "2dsphere"}}},
		},
		ReviewsCollection: {
			{Keys: bson.D{{Key: "tour", Value: 1}, {Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}

// EnsureIndexes creates any missing indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range indexes() {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// DeleteAll removes every document of the store's collections. Indexes are
// kept.
func (s *Store) DeleteAll(ctx context.Context) error {
	for _, coll := range []string{ReviewsCollection, ToursCollection, UsersCollection} {
		if _, err := s.db.Collection(coll).DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("delete %s: %w", coll, err)
		}
	}
	return nil
}
