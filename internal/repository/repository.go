// Package repository declares the persistence ports of the natours service.
// The mongo subpackage is the production implementation; memory is an
// in-process implementation used for local runs and tests.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

// Scopes applied to every read of a resource type.
var (
	TourScope = []query.Condition{{Field: "secretTour", Op: query.OpNe, Value: true}}
	UserScope = []query.Condition{{Field: "active", Op: query.OpNe, Value: false}}
)

// TourRepository stores tours. SetRatings is the only write path for the
// derived rating fields and deliberately ignores read scopes.
type TourRepository interface {
	resource.Store[domain.Tour]

	// SetRatings writes ratingsQuantity and ratingsAverage of one tour.
	SetRatings(ctx context.Context, tourID string, quantity int, average float64) error

	// Stats groups non-secret tours rated 4.5 or more by difficulty.
	Stats(ctx context.Context) ([]domain.DifficultyStats, error)

	// MonthlyPlan counts tour start dates per month of year.
	MonthlyPlan(ctx context.Context, year int) ([]domain.MonthPlan, error)

	// Within returns non-secret tours whose start location lies within
	// radius radians of (lat, lng).
	Within(ctx context.Context, lat, lng, radius float64) ([]domain.Tour, error)

	// Distances returns every non-secret tour's distance from (lat, lng) in
	// metres scaled by multiplier, nearest first.
	Distances(ctx context.Context, lat, lng, multiplier float64) ([]domain.TourDistance, error)
}

// ReviewRepository stores reviews. The (tour, user) pair is unique.
type ReviewRepository interface {
	resource.Store[domain.Review]

	// RatingStats aggregates the live review set of one tour.
	RatingStats(ctx context.Context, tourID string) (domain.AggregateResult, error)

	// ListByTour returns the reviews of the given tours.
	ListByTour(ctx context.Context, tourIDs []string) ([]domain.Review, error)
}

// UserRepository stores users. Email is unique.
type UserRepository interface {
	resource.Store[domain.User]

	// FindByEmail returns an active user, including the password hash.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// Summaries returns the public projection of the given active users.
	Summaries(ctx context.Context, ids []string) ([]domain.UserSummary, error)
}

// DuplicateKey is the error returned when a write violates a unique index.
func DuplicateKey(resourceName string, fields ...string) error {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f] = "must be unique"
	}
	return apperrors.Validation(
		fmt.Sprintf("Duplicate %s value for %s. Please use another value!", resourceName, strings.Join(fields, ", ")),
		m,
	)
}
