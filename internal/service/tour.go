package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/pkg/breaker"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
	"github.com/natours/natours/pkg/slug"
)

// TourCache caches fully populated tours by id. Get returns nil on a miss
// together with a version; Set stores the tour only if no invalidation
// happened since that version was read.
type TourCache interface {
	Get(ctx context.Context, id string) (*domain.Tour, int64, error)
	Set(ctx context.Context, tour *domain.Tour, version int64) error
	InvalidateTour(ctx context.Context, id string) error
}

// TourInput is the writable part of a tour. Nil fields are left unchanged
// on update. The rating fields are not writable.
type TourInput struct {
	Name          *string            `json:"name"`
	Duration      *int               `json:"duration"`
	MaxGroupSize  *int               `json:"maxGroupSize"`
	Difficulty    *string            `json:"difficulty"`
	Price         *float64           `json:"price"`
	PriceDiscount *float64           `json:"priceDiscount"`
	Summary       *string            `json:"summary"`
	Description   *string            `json:"description"`
	ImageCover    *string            `json:"imageCover"`
	Images        *[]string          `json:"images"`
	StartDates    *[]time.Time       `json:"startDates"`
	SecretTour    *bool              `json:"secretTour"`
	StartLocation *domain.GeoPoint   `json:"startLocation"`
	Locations     *[]domain.Location `json:"locations"`
	Guides        *[]string          `json:"guides"`
}

func (in TourInput) apply(t *domain.Tour) {
	set(&t.Name, in.Name)
	set(&t.Duration, in.Duration)
	set(&t.MaxGroupSize, in.MaxGroupSize)
	set(&t.Difficulty, in.Difficulty)
	set(&t.Price, in.Price)
	if in.PriceDiscount != nil {
		d := *in.PriceDiscount
		t.PriceDiscount = &d
	}
	set(&t.Summary, in.Summary)
	set(&t.Description, in.Description)
	set(&t.ImageCover, in.ImageCover)
	set(&t.Images, in.Images)
	set(&t.StartDates, in.StartDates)
	set(&t.SecretTour, in.SecretTour)
	if in.StartLocation != nil {
		p := *in.StartLocation
		t.StartLocation = &p
	}
	set(&t.Locations, in.Locations)
	set(&t.GuideIDs, in.Guides)
}

func set[V any](dst *V, src *V) {
	if src != nil {
		*dst = *src
	}
}

// TopCheap is the top-5-cheap alias: the five best rated tours, cheapest
// first on ties, with a short field list.
func TopCheap(q query.Params) query.Params {
	q.Limit = 5
	q.Page = query.DefaultPage
	q.Sort = []query.SortField{{Field: "ratingsAverage", Desc: true}, {Field: "price"}}
	q.Fields = []string{"name", "price", "ratingsAverage", "summary", "difficulty"}
	return q
}

// TourService implements tour reads, writes and reports.
type TourService struct {
	tours   repository.TourRepository
	res     *resource.Service[domain.Tour]
	reviews resource.Populator[domain.Tour]
	cache   TourCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewTourService creates a TourService. cache may be nil. hooks run after
// the cache invalidation on every tour write.
func NewTourService(
	tours repository.TourRepository,
	reviews repository.ReviewRepository,
	users repository.UserRepository,
	cache TourCache,
	logger *slog.Logger,
	hooks ...resource.Hook[domain.Tour],
) *TourService {
	s := &TourService{
		tours:   tours,
		reviews: reviewsPopulator(reviews, users),
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}

	cfg := resource.Config[domain.Tour]{
		Name:     "tour",
		Identity: func(t *domain.Tour) *string { return &t.ID },
		Prepare:  s.prepare,
		Validate: domain.ValidateTour,
		Scope:    repository.TourScope,
		Populate: []resource.Populator[domain.Tour]{guidesPopulator(users)},
	}
	if cache != nil {
		cfg.Hooks = append(cfg.Hooks, s.invalidateHook)
	}
	cfg.Hooks = append(cfg.Hooks, hooks...)
	s.res = resource.New[domain.Tour](tours, cfg, logger)
	return s
}

func (s *TourService) prepare(op resource.Op, t *domain.Tour) {
	t.Slug = slug.Generate(t.Name)
	if op == resource.OpCreate {
		t.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
		t.RatingsAverage = domain.DefaultRatingsAverage
		t.RatingsQuantity = 0
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}
	if t.Locations == nil {
		t.Locations = []domain.Location{}
	}
	if t.GuideIDs == nil {
		t.GuideIDs = []string{}
	}
}

func (s *TourService) invalidateHook(ctx context.Context, m resource.Mutation[domain.Tour]) error {
	if m.Op == resource.OpCreate {
		return nil
	}
	return s.cache.InvalidateTour(ctx, m.ID)
}

// ListTours returns the tours matching q.
func (s *TourService) ListTours(ctx context.Context, q query.Params) ([]domain.Tour, error) {
	return s.res.ListAll(ctx, q)
}

// GetTour returns a tour with guides and reviews, read through the cache.
func (s *TourService) GetTour(ctx context.Context, id string) (*domain.Tour, error) {
	var (
		version int64
		cached  bool
	)
	if s.cache != nil {
		t, v, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.cacheFailed(ctx, "tour cache read failed", id, err)
		case t != nil:
			return t, nil
		default:
			version, cached = v, true
		}
	}

	t, err := s.res.GetOne(ctx, id, s.reviews)
	if err != nil {
		return nil, err
	}

	if cached {
		if err := s.cache.Set(ctx, t, version); err != nil {
			s.cacheFailed(ctx, "tour cache write failed", id, err)
		}
	}
	return t, nil
}

func (s *TourService) cacheFailed(ctx context.Context, msg, id string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, breaker.ErrOpen) {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, msg,
		slog.String("tour_id", id),
		slog.String("error", err.Error()),
	)
}

// CreateTour creates a tour with no ratings.
func (s *TourService) CreateTour(ctx context.Context, in TourInput) (*domain.Tour, error) {
	var t domain.Tour
	in.apply(&t)
	created, err := s.res.CreateOne(ctx, &t)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tour created",
		slog.String("tour_id", created.ID),
		slog.String("slug", created.Slug),
	)
	return created, nil
}

// UpdateTour applies in to an existing tour.
func (s *TourService) UpdateTour(ctx context.Context, id string, in TourInput) (*domain.Tour, error) {
	return s.res.UpdateOne(ctx, id, func(t *domain.Tour) error {
		in.apply(t)
		return nil
	})
}

// DeleteTour deletes a tour.
func (s *TourService) DeleteTour(ctx context.Context, id string) error {
	if err := s.res.DeleteOne(ctx, id, nil); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "tour deleted", slog.String("tour_id", id))
	return nil
}

// Stats returns the per-difficulty statistics of well rated tours.
func (s *TourService) Stats(ctx context.Context) ([]domain.DifficultyStats, error) {
	stats, err := s.tours.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("tour stats: %w", err)
	}
	return stats, nil
}

// MonthlyPlan returns the tour starts per month of year.
func (s *TourService) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthPlan, error) {
	if year < 1 || year > 9999 {
		return nil, apperrors.InvalidInput("Please provide a valid year.")
	}
	plan, err := s.tours.MonthlyPlan(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("monthly plan %d: %w", year, err)
	}
	return plan, nil
}

// ToursWithin returns the tours starting within distance of latlng.
func (s *TourService) ToursWithin(ctx context.Context, distance float64, latlng, unit string) ([]domain.Tour, error) {
	lat, lng, err := domain.ParseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	u, err := domain.ParseUnit(unit)
	if err != nil {
		return nil, err
	}
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil, apperrors.InvalidInput("Please provide a positive distance.")
	}

	tours, err := s.tours.Within(ctx, lat, lng, domain.RadiusRadians(distance, u))
	if err != nil {
		return nil, fmt.Errorf("tours within: %w", err)
	}
	return tours, nil
}

// Distances returns the distance of every tour from latlng in unit.
func (s *TourService) Distances(ctx context.Context, latlng, unit string) ([]domain.TourDistance, error) {
	lat, lng, err := domain.ParseLatLng(latlng)
	if err != nil {
		return nil, err
	}
	u, err := domain.ParseUnit(unit)
	if err != nil {
		return nil, err
	}

	distances, err := s.tours.Distances(ctx, lat, lng, domain.DistanceMultiplier(u))
	if err != nil {
		return nil, fmt.Errorf("tour distances: %w", err)
	}
	return distances, nil
}
