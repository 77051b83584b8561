package memory

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

// earthRadiusMetres matches the radius MongoDB uses for spherical distances.
const earthRadiusMetres = 6378100.0

// Store groups the in-memory repositories.
type Store struct {
	Tours   *TourRepository
	Reviews *ReviewRepository
	Users   *UserRepository
}

// NewStore creates empty repositories.
func NewStore() *Store {
	return &Store{
		Tours:   NewTourRepository(),
		Reviews: NewReviewRepository(),
		Users:   NewUserRepository(),
	}
}

// TourRepository implements repository.TourRepository in memory.
type TourRepository struct {
	*Collection[domain.Tour]
}

var _ repository.TourRepository = (*TourRepository)(nil)

// NewTourRepository creates an empty tour repository.
func NewTourRepository() *TourRepository {
	return &TourRepository{newCollection[domain.Tour]("tour",
		[]string{"ratingsAverage", "ratingsQuantity", "createdAt"}, []string{"name"})}
}

// SetRatings writes the derived rating fields.
func (r *TourRepository) SetRatings(_ context.Context, tourID string, quantity int, average float64) error {
	if !r.update(tourID, bson.M{"ratingsQuantity": int64(quantity), "ratingsAverage": average}) {
		return apperrors.NotFound("tour", tourID)
	}
	return nil
}

func (r *TourRepository) visible() ([]domain.Tour, error) {
	return decodeAll[domain.Tour](r.snapshot(repository.TourScope))
}

// Stats groups tours rated 4.5 or more by upper-cased difficulty.
func (r *TourRepository) Stats(_ context.Context) ([]domain.DifficultyStats, error) {
	tours, err := r.visible()
	if err != nil {
		return nil, err
	}
	groups := map[string]*domain.DifficultyStats{}
	sums := map[string][2]float64{}
	for _, t := range tours {
		if t.RatingsAverage < 4.5 {
			continue
		}
		key := strings.ToUpper(t.Difficulty)
		g, ok := groups[key]
		if !ok {
			g = &domain.DifficultyStats{Difficulty: key, MinPrice: t.Price, MaxPrice: t.Price}
			groups[key] = g
		}
		g.NumTours++
		g.NumRatings += t.RatingsQuantity
		g.MinPrice = math.Min(g.MinPrice, t.Price)
		g.MaxPrice = math.Max(g.MaxPrice, t.Price)
		s := sums[key]
		sums[key] = [2]float64{s[0] + t.RatingsAverage, s[1] + t.Price}
	}

	out := make([]domain.DifficultyStats, 0, len(groups))
	for key, g := range groups {
		g.AvgRating = sums[key][0] / float64(g.NumTours)
		g.AvgPrice = sums[key][1] / float64(g.NumTours)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgPrice < out[j].AvgPrice })
	return out, nil
}

// MonthlyPlan counts start dates per month of year, busiest month first.
func (r *TourRepository) MonthlyPlan(_ context.Context, year int) ([]domain.MonthPlan, error) {
	tours, err := r.visible()
	if err != nil {
		return nil, err
	}
	months := map[int]*domain.MonthPlan{}
	for _, t := range tours {
		for _, d := range t.StartDates {
			d = d.UTC()
			if d.Year() != year {
				continue
			}
			m := int(d.Month())
			p, ok := months[m]
			if !ok {
				p = &domain.MonthPlan{Month: m}
				months[m] = p
			}
			p.NumTourStarts++
			p.Tours = append(p.Tours, t.Name)
		}
	}

	out := make([]domain.MonthPlan, 0, len(months))
	for _, p := range months {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NumTourStarts != out[j].NumTourStarts {
			return out[i].NumTourStarts > out[j].NumTourStarts
		}
		return out[i].Month < out[j].Month
	})
	if len(out) > 12 {
		out = out[:12]
	}
	return out, nil
}

// Within finds tours whose start location lies within radius radians.
func (r *TourRepository) Within(_ context.Context, lat, lng, radius float64) ([]domain.Tour, error) {
	tours, err := r.visible()
	if err != nil {
		return nil, err
	}
	out := []domain.Tour{}
	for _, t := range tours {
		if a, ok := angleTo(t, lat, lng); ok && a <= radius {
			out = append(out, t)
		}
	}
	return out, nil
}

// Distances reports each located tour's distance, nearest first.
func (r *TourRepository) Distances(_ context.Context, lat, lng, multiplier float64) ([]domain.TourDistance, error) {
	tours, err := r.visible()
	if err != nil {
		return nil, err
	}
	out := []domain.TourDistance{}
	for _, t := range tours {
		if a, ok := angleTo(t, lat, lng); ok {
			out = append(out, domain.TourDistance{ID: t.ID, Name: t.Name, Distance: a * earthRadiusMetres * multiplier})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// angleTo is the central angle in radians between a tour's start location
// and (lat, lng), by the haversine formula.
func angleTo(t domain.Tour, lat, lng float64) (float64, bool) {
	if t.StartLocation == nil || len(t.StartLocation.Coordinates) != 2 {
		return 0, false
	}
	rad := math.Pi / 180
	lng2, lat2 := t.StartLocation.Coordinates[0]*rad, t.StartLocation.Coordinates[1]*rad
	lat1, lng1 := lat*rad, lng*rad
	h := math.Pow(math.Sin((lat2-lat1)/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin((lng2-lng1)/2), 2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(h))), true
}

// ReviewRepository implements repository.ReviewRepository in memory.
type ReviewRepository struct {
	*Collection[domain.Review]
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository creates an empty review repository.
func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{newCollection[domain.Review]("review", []string{"createdAt"}, []string{"tour", "user"})}
}

// RatingStats counts and averages the ratings of one tour's reviews.
func (r *ReviewRepository) RatingStats(_ context.Context, tourID string) (domain.AggregateResult, error) {
	reviews, err := decodeAll[domain.Review](r.snapshot([]query.Condition{{Field: "tour", Op: query.OpEq, Value: tourID}}))
	if err != nil {
		return domain.AggregateResult{}, err
	}
	if len(reviews) == 0 {
		return domain.AggregateResult{}, nil
	}
	sum := 0
	for _, rv := range reviews {
		sum += rv.Rating
	}
	avg := float64(sum) / float64(len(reviews))
	return domain.AggregateResult{Count: len(reviews), Average: &avg}, nil
}

// ListByTour returns the reviews of the given tours, newest first.
func (r *ReviewRepository) ListByTour(_ context.Context, tourIDs []string) ([]domain.Review, error) {
	want := make(map[string]bool, len(tourIDs))
	for _, id := range tourIDs {
		want[id] = true
	}
	all, err := decodeAll[domain.Review](r.snapshot(nil))
	if err != nil {
		return nil, err
	}
	out := []domain.Review{}
	for _, rv := range all {
		if want[rv.TourID] {
			out = append(out, rv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UserRepository implements repository.UserRepository in memory.
type UserRepository struct {
	*Collection[domain.User]
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates an empty user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{newCollection[domain.User]("user", []string{"createdAt"}, []string{"email"})}
}

// FindByEmail returns the active user with the given email.
func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	conds := append([]query.Condition{{Field: "email", Op: query.OpEq, Value: email}}, repository.UserScope...)
	users, err := decodeAll[domain.User](r.snapshot(conds))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperrors.NotFound("user", email)
	}
	return &users[0], nil
}

// Summaries returns the public projection of the given active users.
func (r *UserRepository) Summaries(_ context.Context, ids []string) ([]domain.UserSummary, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	users, err := decodeAll[domain.User](r.snapshot(repository.UserScope))
	if err != nil {
		return nil, err
	}
	out := []domain.UserSummary{}
	for _, u := range users {
		if want[u.ID] {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}
