package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
)

// AffectedTours returns the tours whose review set a mutation changed: the
// pre-image's tour and the post-image's tour, deduplicated.
func AffectedTours(m resource.Mutation[domain.Review]) []string {
	var ids []string
	for _, r := range []*domain.Review{m.Before, m.After} {
		if r == nil || r.TourID == "" {
			continue
		}
		if len(ids) == 1 && ids[0] == r.TourID {
			continue
		}
		ids = append(ids, r.TourID)
	}
	return ids
}

// Hook returns the review mutation hook. It syncs every affected tour once,
// detached from the request's cancellation. When the inline attempts are
// exhausted the failure is logged, counted and handed to the notifier for an
// out-of-band recompute. The returned error is non-nil only when that
// handoff also fails.
func (e *Engine) Hook() resource.Hook[domain.Review] {
	return func(ctx context.Context, m resource.Mutation[domain.Review]) error {
		var errs []error
		for _, tourID := range AffectedTours(m) {
			if err := e.syncAfterMutation(ctx, m, tourID); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func (e *Engine) syncAfterMutation(ctx context.Context, m resource.Mutation[domain.Review], tourID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer cancel()

	log := e.logger.With(
		slog.String("tour_id", tourID),
		slog.String("review_id", m.ID),
		slog.String("operation", string(m.Op)),
	)

	var lastErr error
	attempts := 0
	for attempts < e.cfg.Attempts {
		attempts++
		lastErr = e.Sync(ctx, tourID)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, apperrors.ErrNotFound) {
			log.WarnContext(ctx, "tour no longer exists, skipping ratings recompute")
			return nil
		}
		log.WarnContext(ctx, "ratings recompute failed",
			slog.Int("attempt", attempts),
			slog.String("error", lastErr.Error()),
		)
		if attempts == e.cfg.Attempts {
			break
		}
		if !sleep(ctx, e.cfg.Backoff*time.Duration(attempts)) {
			lastErr = fmt.Errorf("%w (gave up: %w)", lastErr, ctx.Err())
			break
		}
		recomputeRetries.Inc()
	}

	recomputeFailures.Inc()
	log.ErrorContext(ctx, "ratings recompute exhausted, requesting recovery",
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)

	if e.notifier == nil {
		return fmt.Errorf("ratings of tour %s are stale: %w", tourID, lastErr)
	}
	// The recompute deadline may be spent; the handoff gets its own.
	pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
	defer pubCancel()
	if err := e.notifier.PublishRecomputeRequested(pubCtx, tourID, lastErr.Error(), attempts); err != nil {
		return fmt.Errorf("ratings of tour %s are stale and recovery could not be requested: %w", tourID, errors.Join(lastErr, err))
	}
	return nil
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
