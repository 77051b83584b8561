// Package ratings keeps each tour's ratingsAverage and ratingsQuantity equal
// to the aggregate of its live reviews.
//
// Every review mutation is followed by a recompute from the full review set
// of each affected tour. Nothing is adjusted incrementally, so concurrent
// mutations converge once they stop: the last recompute wins and it reflects
// a real snapshot of the reviews.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/natours/natours/internal/domain"
	apperrors "github.com/natours/natours/pkg/errors"
)

const tracerName = "github.com/natours/natours/internal/ratings"

// Reviews reads the review set of a tour.
type Reviews interface {
	RatingStats(ctx context.Context, tourID string) (domain.AggregateResult, error)
}

// Tours writes the derived rating fields of a tour.
type Tours interface {
	SetRatings(ctx context.Context, tourID string, quantity int, average float64) error
}

// Invalidator drops cached copies of a tour.
type Invalidator interface {
	InvalidateTour(ctx context.Context, tourID string) error
}

// Notifier announces rating changes and asks for out-of-band recomputes.
type Notifier interface {
	PublishRatingsUpdated(ctx context.Context, tourID string, quantity int, average float64) error
	PublishRecomputeRequested(ctx context.Context, tourID, reason string, attempts int) error
}

// Config controls the inline retry of a recompute after a review mutation.
type Config struct {
	// Attempts is the number of inline tries before recovery is requested.
	Attempts int
	// Timeout bounds all attempts for one tour.
	Timeout time.Duration
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{Attempts: 3, Timeout: 5 * time.Second, Backoff: 100 * time.Millisecond}
}

// Engine recomputes and stores tour rating aggregates.
type Engine struct {
	reviews  Reviews
	tours    Tours
	cache    Invalidator
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEngine creates an Engine. cache and notifier may be nil.
func NewEngine(reviews Reviews, tours Tours, cache Invalidator, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Engine{
		reviews:  reviews,
		tours:    tours,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Recompute aggregates the current reviews of tourID. It has no side
// effects; the average is not rounded.
func (e *Engine) Recompute(ctx context.Context, tourID string) (domain.AggregateResult, error) {
	res, err := e.reviews.RatingStats(ctx, tourID)
	if err != nil {
		return domain.AggregateResult{}, fmt.Errorf("recompute ratings of tour %s: %w", tourID, err)
	}
	return res, nil
}

// Apply stores res on the tour: the rounded average, or the default average
// with a zero quantity when there are no reviews. Cache and notification
// failures are logged only.
func (e *Engine) Apply(ctx context.Context, tourID string, res domain.AggregateResult) error {
	quantity, average := res.Stored()
	if err := e.tours.SetRatings(ctx, tourID, quantity, average); err != nil {
		return fmt.Errorf("apply ratings to tour %s: %w", tourID, err)
	}

	if e.cache != nil {
		if err := e.cache.InvalidateTour(ctx, tourID); err != nil {
			e.logger.WarnContext(ctx, "failed to invalidate cached tour",
				slog.String("tour_id", tourID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.PublishRatingsUpdated(ctx, tourID, quantity, average); err != nil {
			e.logger.WarnContext(ctx, "failed to publish ratings update",
				slog.String("tour_id", tourID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Sync recomputes and applies the aggregate of one tour.
func (e *Engine) Sync(ctx context.Context, tourID string) error {
	ctx, span := e.tracer.Start(ctx, "ratings.Sync", trace.WithAttributes(attribute.String("tour.id", tourID)))
	defer span.End()

	start := time.Now()
	err := e.sync(ctx, tourID)
	recomputeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		recomputeTotal.WithLabelValues(outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	recomputeTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) sync(ctx context.Context, tourID string) error {
	res, err := e.Recompute(ctx, tourID)
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("ratings.count", res.Count))
	return e.Apply(ctx, tourID, res)
}

func outcome(err error) string {
	if errors.Is(err, apperrors.ErrNotFound) {
		return "tour_missing"
	}
	return "error"
}
