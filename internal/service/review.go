package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

// ReviewInput is the writable part of a review. Nil fields are left
// unchanged on update.
type ReviewInput struct {
	Review *string `json:"review"`
	Rating *int    `json:"rating"`
	Tour   *string `json:"tour"`
	User   *string `json:"user"`
}

// ReviewService implements review reads and writes. Every completed write is
// passed to the configured hooks, which keep tour ratings in sync.
type ReviewService struct {
	tours  repository.TourRepository
	res    *resource.Service[domain.Review]
	logger *slog.Logger
	now    func() time.Time
}

// NewReviewService creates a ReviewService. hooks run in order after each
// create, update and delete.
func NewReviewService(
	reviews repository.ReviewRepository,
	tours repository.TourRepository,
	users repository.UserRepository,
	hooks []resource.Hook[domain.Review],
	logger *slog.Logger,
) *ReviewService {
	s := &ReviewService{tours: tours, logger: logger, now: time.Now}
	s.res = resource.New[domain.Review](reviews, resource.Config[domain.Review]{
		Name:     "review",
		Identity: func(r *domain.Review) *string { return &r.ID },
		Prepare: func(op resource.Op, r *domain.Review) {
			if op == resource.OpCreate {
				r.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
			}
			r.User = nil
		},
		Validate: domain.ValidateReview,
		Populate: []resource.Populator[domain.Review]{authorsPopulator(users)},
		Hooks:    hooks,
	}, logger)
	return s
}

// ListReviews returns the reviews matching q, restricted to tourID when set.
func (s *ReviewService) ListReviews(ctx context.Context, tourID string, q query.Params) ([]domain.Review, error) {
	if tourID != "" {
		q = q.Where("tour", query.OpEq, tourID)
	}
	return s.res.ListAll(ctx, q)
}

// GetReview returns a review with its author.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	return s.res.GetOne(ctx, id)
}

// CreateReview creates a review. The tour defaults to tourID (from the
// route) and the author to the actor; only admins may name another author.
func (s *ReviewService) CreateReview(ctx context.Context, actor Actor, tourID string, in ReviewInput) (*domain.Review, error) {
	r := domain.Review{TourID: tourID, UserID: actor.UserID}
	set(&r.Body, in.Review)
	set(&r.Rating, in.Rating)
	set(&r.TourID, in.Tour)
	set(&r.UserID, in.User)

	if r.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperrors.Forbidden("You can only post reviews as yourself.")
	}
	if err := s.tourExists(ctx, r.TourID); err != nil {
		return nil, err
	}

	created, err := s.res.CreateOne(ctx, &r)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", created.ID),
		slog.String("tour_id", created.TourID),
	)
	return created, nil
}

// UpdateReview changes the text, rating or tour of a review. Only the author
// or an admin may update it.
func (s *ReviewService) UpdateReview(ctx context.Context, actor Actor, id string, in ReviewInput) (*domain.Review, error) {
	if in.Tour != nil {
		if err := s.tourExists(ctx, *in.Tour); err != nil {
			return nil, err
		}
	}
	return s.res.UpdateOne(ctx, id, func(r *domain.Review) error {
		if err := authorOrAdmin(actor, r); err != nil {
			return err
		}
		set(&r.Body, in.Review)
		set(&r.Rating, in.Rating)
		set(&r.TourID, in.Tour)
		return nil
	})
}

// DeleteReview deletes a review. Only the author or an admin may delete it.
func (s *ReviewService) DeleteReview(ctx context.Context, actor Actor, id string) error {
	return s.res.DeleteOne(ctx, id, func(r *domain.Review) error {
		return authorOrAdmin(actor, r)
	})
}

func (s *ReviewService) tourExists(ctx context.Context, tourID string) error {
	if tourID == "" {
		return nil
	}
	if _, err := s.tours.FindOne(ctx, tourID, nil); err != nil {
		return err
	}
	return nil
}

func authorOrAdmin(actor Actor, r *domain.Review) error {
	if actor.IsAdmin() || actor.UserID == r.UserID {
		return nil
	}
	return apperrors.Forbidden("You can only change your own reviews.")
}
