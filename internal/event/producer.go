// Package event publishes natours domain events and handles the events the
// service consumes itself.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/resource"
	pkgkafka "github.com/natours/natours/pkg/kafka"
)

// Kafka topics of natours domain events.
var (
	TopicTourRatingsUpdated        = pkgkafka.Topic("tour", "ratings_updated")
	TopicReviewCreated             = pkgkafka.Topic("review", "created")
	TopicReviewUpdated             = pkgkafka.Topic("review", "updated")
	TopicReviewDeleted             = pkgkafka.Topic("review", "deleted")
	TopicRatingsRecomputeRequested = pkgkafka.Topic("ratings", "recompute_requested")
)

// Aggregate types.
const (
	AggregateTypeTour   = "tour"
	AggregateTypeReview = "review"
)

// RatingsUpdatedData is the payload of tour.ratings_updated.
type RatingsUpdatedData struct {
	TourID          string  `json:"tour_id"`
	RatingsQuantity int     `json:"ratings_quantity"`
	RatingsAverage  float64 `json:"ratings_average"`
}

// ReviewData is the payload of the review.* events. Rating is omitted on
// delete.
type ReviewData struct {
	ID     string `json:"id"`
	TourID string `json:"tour_id"`
	UserID string `json:"user_id"`
	Rating int    `json:"rating,omitempty"`

	// PreviousTourID is set when an update moved the review to another tour.
	PreviousTourID string `json:"previous_tour_id,omitempty"`
}

// RecomputeRequestedData is the payload of ratings.recompute_requested.
type RecomputeRequestedData struct {
	TourID   string `json:"tour_id"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// Producer publishes natours domain events.
type Producer struct {
	pub    pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a producer over pub, a Kafka producer or a
// LocalPublisher.
func NewProducer(pub pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType, aggregateID string, data any) error {
	evt, err := pkgkafka.NewEvent(ctx, topic, aggregateType, aggregateID, data)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishRatingsUpdated publishes tour.ratings_updated.
func (p *Producer) PublishRatingsUpdated(ctx context.Context, tourID string, quantity int, average float64) error {
	return p.publish(ctx, TopicTourRatingsUpdated, AggregateTypeTour, tourID, RatingsUpdatedData{
		TourID:          tourID,
		RatingsQuantity: quantity,
		RatingsAverage:  average,
	})
}

// PublishRecomputeRequested publishes ratings.recompute_requested.
func (p *Producer) PublishRecomputeRequested(ctx context.Context, tourID, reason string, attempts int) error {
	return p.publish(ctx, TopicRatingsRecomputeRequested, AggregateTypeTour, tourID, RecomputeRequestedData{
		TourID:   tourID,
		Reason:   reason,
		Attempts: attempts,
	})
}

// PublishReviewMutation publishes the review.* event matching m.Op.
func (p *Producer) PublishReviewMutation(ctx context.Context, m resource.Mutation[domain.Review]) error {
	var (
		topic string
		data  ReviewData
	)
	switch m.Op {
	case resource.OpCreate:
		topic = TopicReviewCreated
		data = reviewData(m.After)
	case resource.OpUpdate:
		topic = TopicReviewUpdated
		data = reviewData(m.After)
		if m.Before != nil && m.Before.TourID != data.TourID {
			data.PreviousTourID = m.Before.TourID
		}
	case resource.OpDelete:
		topic = TopicReviewDeleted
		data = reviewData(m.Before)
		data.Rating = 0
	default:
		return fmt.Errorf("unknown mutation %q", m.Op)
	}
	if data.ID == "" {
		data.ID = m.ID
	}
	return p.publish(ctx, topic, AggregateTypeReview, data.ID, data)
}

// ReviewHook returns a review mutation hook publishing review.* events.
// Publish failures are logged and never fail the mutation.
func (p *Producer) ReviewHook() resource.Hook[domain.Review] {
	return func(ctx context.Context, m resource.Mutation[domain.Review]) error {
		if err := p.PublishReviewMutation(context.WithoutCancel(ctx), m); err != nil {
			p.logger.WarnContext(ctx, "failed to publish review event",
				slog.String("review_id", m.ID),
				slog.String("operation", string(m.Op)),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}

func reviewData(r *domain.Review) ReviewData {
	if r == nil {
		return ReviewData{}
	}
	return ReviewData{ID: r.ID, TourID: r.TourID, UserID: r.UserID, Rating: r.Rating}
}
