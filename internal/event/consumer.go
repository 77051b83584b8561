package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/natours/natours/pkg/errors"
	pkgkafka "github.com/natours/natours/pkg/kafka"
)

// SyncFunc recomputes and stores the ratings of one tour.
type SyncFunc func(ctx context.Context, tourID string) error

// RecomputeHandler handles ratings.recompute_requested by syncing the tour.
// A tour deleted in the meantime is not an error. Replays are harmless since
// the aggregate is always derived from the live review set.
func RecomputeHandler(sync SyncFunc, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		var data RecomputeRequestedData
		if err := evt.UnmarshalData(&data); err != nil {
			return fmt.Errorf("unmarshal %s data: %w", evt.EventType, err)
		}
		if data.TourID == "" {
			data.TourID = evt.AggregateID
		}

		logger.InfoContext(ctx, "processing ratings recompute request",
			slog.String("tour_id", data.TourID),
			slog.String("reason", data.Reason),
			slog.Int("attempts", data.Attempts),
		)

		if err := sync(ctx, data.TourID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				logger.WarnContext(ctx, "tour no longer exists, dropping recompute request",
					slog.String("tour_id", data.TourID),
				)
				return nil
			}
			return fmt.Errorf("recompute ratings of tour %s: %w", data.TourID, err)
		}
		return nil
	}
}

// RatingsUpdatedHandler handles tour.ratings_updated by refreshing the
// tour's search document with its stored state.
func RatingsUpdatedHandler(refresh SyncFunc, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		var data RatingsUpdatedData
		if err := evt.UnmarshalData(&data); err != nil {
			return fmt.Errorf("unmarshal %s data: %w", evt.EventType, err)
		}
		if data.TourID == "" {
			data.TourID = evt.AggregateID
		}

		logger.DebugContext(ctx, "refreshing search document",
			slog.String("tour_id", data.TourID),
			slog.Float64("ratings_average", data.RatingsAverage),
		)

		if err := refresh(ctx, data.TourID); err != nil {
			return fmt.Errorf("refresh search document of tour %s: %w", data.TourID, err)
		}
		return nil
	}
}
