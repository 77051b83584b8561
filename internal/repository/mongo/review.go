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

// ReviewRepository implements repository.ReviewRepository on MongoDB.
type ReviewRepository struct {
	*Collection[domain.Review]
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository creates a review repository on coll.
func NewReviewRepository(coll *mongo.Collection) *ReviewRepository {
	return &ReviewRepository{newCollection[domain.Review](coll, "review",
		[]string{"createdAt"},
		map[string][]string{"tour_1_user_1": {"tour", "user"}},
	)}
}

type ratingGroup struct {
	Count   int     `bson:"nRating"`
	Average float64 `bson:"avgRating"`
}

// RatingStats counts and averages the ratings of one tour's reviews.
func (r *ReviewRepository) RatingStats(ctx context.Context, tourID string) (domain.AggregateResult, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "tour", Value: tourID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tour"},
			{Key: "nRating", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.AggregateResult{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	var groups []ratingGroup
	if err := cur.All(ctx, &groups); err != nil {
		return domain.AggregateResult{}, fmt.Errorf("decode ratings: %w", err)
	}
	if len(groups) == 0 || groups[0].Count == 0 {
		return domain.AggregateResult{}, nil
	}
	avg := groups[0].Average
	return domain.AggregateResult{Count: groups[0].Count, Average: &avg}, nil
}

// ListByTour returns the reviews of the given tours, newest first.
func (r *ReviewRepository) ListByTour(ctx context.Context, tourIDs []string) ([]domain.Review, error) {
	reviews := []domain.Review{}
	if len(tourIDs) == 0 {
		return reviews, nil
	}
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "tour", Value: bson.D{{Key: "$in", Value: tourIDs}}}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews by tour: %w", err)
	}
	if err := cur.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}
