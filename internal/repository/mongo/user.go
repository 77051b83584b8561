package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
)

// UserRepository implements repository.UserRepository on MongoDB.
type UserRepository struct {
	*Collection[domain.User]
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a user repository on coll.
func NewUserRepository(coll *mongo.Collection) *UserRepository {
	return &UserRepository{newCollection[domain.User](coll, "user",
		[]string{"createdAt"},
		map[string][]string{"email_1": {"email"}},
	)}
}

var active = bson.E{Key: "active", Value: bson.D{{Key: "$ne", Value: false}}}

// FindByEmail returns the active user with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}, active}).Decode(&u)
	if err != nil {
		return nil, r.translate(err, email)
	}
	return &u, nil
}

// Summaries returns the public projection of the given active users.
func (r *UserRepository) Summaries(ctx context.Context, ids []string) ([]domain.UserSummary, error) {
	out := []domain.UserSummary{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}, active},
		options.Find().SetProjection(bson.D{
			{Key: "name", Value: 1}, {Key: "email", Value: 1}, {Key: "photo", Value: 1}, {Key: "role", Value: 1},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("user summaries: %w", err)
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode user summaries: %w", err)
	}
	return out, nil
}
