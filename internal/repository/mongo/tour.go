package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	apperrors "github.com/natours/natours/pkg/errors"
)

// TourRepository implements repository.TourRepository on MongoDB.
type TourRepository struct {
	*Collection[domain.Tour]
}

var _ repository.TourRepository = (*TourRepository)(nil)

// NewTourRepository creates a tour repository on coll.
func NewTourRepository(coll *mongo.Collection) *TourRepository {
	return &TourRepository{newCollection[domain.Tour](coll, "tour",
		[]string{"ratingsAverage", "ratingsQuantity", "createdAt"},
		map[string][]string{"name_1": {"name"}},
	)}
}

var notSecret = bson.E{Key: "secretTour", Value: bson.D{{Key: "$ne", Value: true}}}

// SetRatings writes the derived rating fields, bypassing read scopes so
// secret tours stay consistent too.
func (r *TourRepository) SetRatings(ctx context.Context, tourID string, quantity int, average float64) error {
	res, err := r.coll.UpdateByID(ctx, tourID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "ratingsQuantity", Value: quantity},
		{Key: "ratingsAverage", Value: average},
	}}})
	if err != nil {
		return fmt.Errorf("set tour ratings: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("tour", tourID)
	}
	return nil
}

// Stats groups tours rated 4.5 or more by upper-cased difficulty, cheapest
// average price first.
func (r *TourRepository) Stats(ctx context.Context) ([]domain.DifficultyStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ratingsAverage", Value: bson.D{{Key: "$gte", Value: 4.5}}},
			notSecret,
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$toUpper", Value: "$difficulty"}}},
			{Key: "numTours", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "numRatings", Value: bson.D{{Key: "$sum", Value: "$ratingsQuantity"}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$ratingsAverage"}}},
			{Key: "avgPrice", Value: bson.D{{Key: "$avg", Value: "$price"}}},
			{Key: "minPrice", Value: bson.D{{Key: "$min", Value: "$price"}}},
			{Key: "maxPrice", Value: bson.D{{Key: "$max", Value: "$price"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "avgPrice", Value: 1}}}},
	}
	stats := []domain.DifficultyStats{}
	if err := r.aggregate(ctx, pipeline, &stats); err != nil {
		return nil, fmt.Errorf("tour stats: %w", err)
	}
	return stats, nil
}

// MonthlyPlan counts start dates per month of year, busiest month first.
func (r *TourRepository) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthPlan, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{notSecret}}},
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.D{{Key: "startDates", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: from.AddDate(1, 0, 0)},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$month", Value: "$startDates"}}},
			{Key: "numTourStarts", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "tours", Value: bson.D{{Key: "$push", Value: "$name"}}},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "month", Value: "$_id"}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}}}},
		{{Key: "$sort", Value: bson.D{{Key: "numTourStarts", Value: -1}, {Key: "month", Value: 1}}}},
		{{Key: "$limit", Value: 12}},
	}
	plan := []domain.MonthPlan{}
	if err := r.aggregate(ctx, pipeline, &plan); err != nil {
		return nil, fmt.Errorf("monthly plan: %w", err)
	}
	return plan, nil
}

// Within finds tours starting inside a spherical cap of radius radians.
func (r *TourRepository) Within(ctx context.Context, lat, lng, radius float64) ([]domain.Tour, error) {
	f := bson.D{
		{Key: "startLocation", Value: bson.D{{Key: "$geoWithin", Value: bson.D{
			{Key: "$centerSphere", Value: bson.A{bson.A{lng, lat}, radius}},
		}}}},
		notSecret,
	}
	cur, err := r.coll.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("tours within: %w", err)
	}
	tours := []domain.Tour{}
	if err := cur.All(ctx, &tours); err != nil {
		return nil, fmt.Errorf("decode tours within: %w", err)
	}
	return tours, nil
}

// Distances reports each tour's distance from (lat, lng), nearest first.
func (r *TourRepository) Distances(ctx context.Context, lat, lng, multiplier float64) ([]domain.TourDistance, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: "Point"},
				{Key: "coordinates", Value: bson.A{lng, lat}},
			}},
			{Key: "distanceField", Value: "distance"},
			{Key: "distanceMultiplier", Value: multiplier},
			{Key: "spherical", Value: true},
			{Key: "query", Value: bson.D{notSecret}},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "distance", Value: 1}, {Key: "name", Value: 1}}}},
	}
	out := []domain.TourDistance{}
	if err := r.aggregate(ctx, pipeline, &out); err != nil {
		return nil, fmt.Errorf("tour distances: %w", err)
	}
	return out, nil
}

func (r *TourRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
