package ratings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository/memory"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type recordingNotifier struct {
	mu        sync.Mutex
	updated   []string
	requested []string
	failWith  error
}

func (n *recordingNotifier) PublishRatingsUpdated(_ context.Context, tourID string, _ int, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, tourID)
	return nil
}

func (n *recordingNotifier) PublishRecomputeRequested(_ context.Context, tourID, _ string, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.requested = append(n.requested, tourID)
	return nil
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateTour(_ context.Context, tourID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tourID)
	return nil
}

// flakyTours fails the first failures calls to SetRatings.
type flakyTours struct {
	Tours
	failures int
	calls    int
}

func (f *flakyTours) SetRatings(ctx context.Context, tourID string, q int, avg float64) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset by peer")
	}
	return f.Tours.SetRatings(ctx, tourID, q, avg)
}

// countingReviews counts recomputes.
type countingReviews struct {
	Reviews
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingReviews) RatingStats(ctx context.Context, tourID string) (domain.AggregateResult, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[tourID]++
	c.mu.Unlock()
	return c.Reviews.RatingStats(ctx, tourID)
}

// --- harness ---

type harness struct {
	store    *memory.Store
	engine   *Engine
	reviews  *resource.Service[domain.Review]
	counter  *countingReviews
	notifier *recordingNotifier
	cache    *recordingCache
}

func newHarness(t *testing.T, tours Tours, cfg Config) *harness {
	t.Helper()
	store := memory.NewStore()
	if tours == nil {
		tours = store.Tours
	}
	h := &harness{
		store:    store,
		counter:  &countingReviews{Reviews: store.Reviews},
		notifier: &recordingNotifier{},
		cache:    &recordingCache{},
	}
	h.engine = NewEngine(h.counter, tours, h.cache, h.notifier, cfg, newTestLogger())
	h.reviews = resource.New[domain.Review](store.Reviews, resource.Config[domain.Review]{
		Name:     "review",
		Identity: func(r *domain.Review) *string { return &r.ID },
		Validate: domain.ValidateReview,
		Hooks:    []resource.Hook[domain.Review]{h.engine.Hook()},
	}, newTestLogger())
	return h
}

func (h *harness) addTour(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.store.Tours.Insert(context.Background(), &domain.Tour{
		ID: id, Name: "Tour " + id, RatingsAverage: domain.DefaultRatingsAverage,
	}))
}

func (h *harness) review(t *testing.T, id, tourID, userID string, rating int) {
	t.Helper()
	_, err := h.reviews.CreateOne(context.Background(), &domain.Review{
		ID: id, TourID: tourID, UserID: userID, Rating: rating, Body: "review " + id,
	})
	require.NoError(t, err)
}

func (h *harness) ratings(t *testing.T, tourID string) (int, float64) {
	t.Helper()
	tour, err := h.store.Tours.FindOne(context.Background(), tourID, nil)
	require.NoError(t, err)
	return tour.RatingsQuantity, tour.RatingsAverage
}

func fastConfig() Config {
	return Config{Attempts: 3, Timeout: time.Second, Backoff: time.Millisecond}
}

// --- tests ---

func TestEngine_ReviewLifecycleScenario(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	ctx := context.Background()
	h.addTour(t, "t1")

	h.review(t, "r1", "t1", "u1", 4)
	h.review(t, "r2", "t1", "u2", 5)
	res, err := h.engine.Recompute(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 4.5, *res.Average)
	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 2, q)
	assert.Equal(t, 4.5, avg)

	h.review(t, "r3", "t1", "u3", 3)
	q, avg = h.ratings(t, "t1")
	assert.Equal(t, 3, q)
	assert.Equal(t, 4.0, avg)

	require.NoError(t, h.reviews.DeleteOne(ctx, "r3", nil))
	q, avg = h.ratings(t, "t1")
	assert.Equal(t, 2, q)
	assert.Equal(t, 4.5, avg)

	require.NoError(t, h.reviews.DeleteOne(ctx, "r1", nil))
	require.NoError(t, h.reviews.DeleteOne(ctx, "r2", nil))
	res, err = h.engine.Recompute(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Nil(t, res.Average)
	q, avg = h.ratings(t, "t1")
	assert.Equal(t, 0, q)
	assert.Equal(t, domain.DefaultRatingsAverage, avg)
}

func TestEngine_StoresRoundedAverage(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 5)
	h.review(t, "r2", "t1", "u2", 4)
	h.review(t, "r3", "t1", "u3", 5)

	res, err := h.engine.Recompute(context.Background(), "t1")
	require.NoError(t, err)
	assert.InDelta(t, 4.666666, *res.Average, 1e-5)

	_, avg := h.ratings(t, "t1")
	assert.Equal(t, 4.7, avg)
}

func TestEngine_RecomputeIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 2)
	h.review(t, "r2", "t1", "u2", 5)

	first, err := h.engine.Recompute(context.Background(), "t1")
	require.NoError(t, err)
	second, err := h.engine.Recompute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_DuplicateReviewRejectedWithoutRecompute(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 5)
	before := h.counter.calls["t1"]

	_, err := h.reviews.CreateOne(context.Background(), &domain.Review{
		ID: "r2", TourID: "t1", UserID: "u1", Rating: 1, Body: "second try",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, before, h.counter.calls["t1"], "a failed write must not trigger a recompute")

	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 1, q)
	assert.Equal(t, 5.0, avg)
}

func TestEngine_DeleteUsesCapturedPreImage(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 1)
	h.review(t, "r2", "t1", "u2", 5)

	var seen resource.Mutation[domain.Review]
	h.reviews = resource.New[domain.Review](h.store.Reviews, resource.Config[domain.Review]{
		Name:     "review",
		Identity: func(r *domain.Review) *string { return &r.ID },
		Hooks: []resource.Hook[domain.Review]{
			func(_ context.Context, m resource.Mutation[domain.Review]) error { seen = m; return nil },
			h.engine.Hook(),
		},
	}, newTestLogger())

	require.NoError(t, h.reviews.DeleteOne(context.Background(), "r1", nil))

	require.NotNil(t, seen.Before)
	assert.Nil(t, seen.After)
	assert.Equal(t, "t1", seen.Before.TourID)
	_, err := h.store.Reviews.FindOne(context.Background(), "r1", nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "review is gone after the delete")

	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 1, q)
	assert.Equal(t, 5.0, avg)
}

func TestEngine_UpdateMovingReviewRecomputesBothTours(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.addTour(t, "t2")
	h.review(t, "r1", "t1", "u1", 2)
	h.review(t, "r2", "t1", "u2", 4)

	_, err := h.reviews.UpdateOne(context.Background(), "r1", func(r *domain.Review) error {
		r.TourID = "t2"
		return nil
	})
	require.NoError(t, err)

	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 1, q)
	assert.Equal(t, 4.0, avg)
	q, avg = h.ratings(t, "t2")
	assert.Equal(t, 1, q)
	assert.Equal(t, 2.0, avg)
}

func TestEngine_UpdateRecomputesOncePerTour(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 2)
	before := h.counter.calls["t1"]

	_, err := h.reviews.UpdateOne(context.Background(), "r1", func(r *domain.Review) error {
		r.Rating = 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, h.counter.calls["t1"])
	_, avg := h.ratings(t, "t1")
	assert.Equal(t, 5.0, avg)
}

func TestEngine_ApplyInvalidatesCacheAndNotifies(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 3)

	assert.Equal(t, []string{"t1"}, h.cache.invalidated)
	assert.Equal(t, []string{"t1"}, h.notifier.updated)
}

func TestEngine_RecomputeSurvivesRequestCancellation(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")
	h.review(t, "r1", "t1", "u1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	err := h.engine.Hook()(ctx, resource.Mutation[domain.Review]{Op: resource.OpCreate, ID: "r1", After: &domain.Review{TourID: "t1"}})
	cancel()
	require.NoError(t, err)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	err = h.engine.Hook()(cancelled, resource.Mutation[domain.Review]{Op: resource.OpCreate, ID: "r1", After: &domain.Review{TourID: "t1"}})
	require.NoError(t, err)
	q, _ := h.ratings(t, "t1")
	assert.Equal(t, 1, q)
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	store := memory.NewStore()
	flaky := &flakyTours{Tours: store.Tours, failures: 2}
	h := newHarness(t, flaky, fastConfig())
	h.store = store
	h.counter.Reviews = store.Reviews
	h.reviews = resource.New[domain.Review](store.Reviews, resource.Config[domain.Review]{
		Name:     "review",
		Identity: func(r *domain.Review) *string { return &r.ID },
		Hooks:    []resource.Hook[domain.Review]{h.engine.Hook()},
	}, newTestLogger())
	h.addTour(t, "t1")

	retries := testutil.ToFloat64(recomputeRetries)
	h.review(t, "r1", "t1", "u1", 4)

	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, retries+2, testutil.ToFloat64(recomputeRetries))
	assert.Empty(t, h.notifier.requested)
	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 1, q)
	assert.Equal(t, 4.0, avg)
}

func TestEngine_ExhaustedRetriesRequestRecovery(t *testing.T) {
	store := memory.NewStore()
	flaky := &flakyTours{Tours: store.Tours, failures: 100}
	h := newHarness(t, flaky, fastConfig())
	h.counter.Reviews = store.Reviews

	failures := testutil.ToFloat64(recomputeFailures)
	err := h.engine.Hook()(context.Background(), resource.Mutation[domain.Review]{
		Op: resource.OpCreate, ID: "r1", After: &domain.Review{TourID: "t1"},
	})

	require.NoError(t, err, "recovery was handed off")
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, []string{"t1"}, h.notifier.requested)
	assert.Equal(t, failures+1, testutil.ToFloat64(recomputeFailures))
}

func TestMetrics_ExportedNames(t *testing.T) {
	assert.Equal(t, 1, testutil.CollectAndCount(recomputeFailures, "natours_ratings_recompute_failures_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(recomputeRetries, "natours_ratings_recompute_retries_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(recomputeDuration, "natours_ratings_recompute_duration_seconds"))
}

func TestEngine_FailedRecoveryHandoffIsSurfaced(t *testing.T) {
	flaky := &flakyTours{Tours: memory.NewTourRepository(), failures: 100}
	h := newHarness(t, flaky, Config{Attempts: 1, Timeout: time.Second})
	h.notifier.failWith = errors.New("broker unavailable")

	err := h.engine.Hook()(context.Background(), resource.Mutation[domain.Review]{
		Op: resource.OpDelete, ID: "r1", Before: &domain.Review{TourID: "t1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovery could not be requested")
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestEngine_MissingTourIsNotRetried(t *testing.T) {
	h := newHarness(t, nil, fastConfig())

	err := h.engine.Hook()(context.Background(), resource.Mutation[domain.Review]{
		Op: resource.OpDelete, ID: "r1", Before: &domain.Review{TourID: "deleted-tour"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.counter.calls["deleted-tour"])
	assert.Empty(t, h.notifier.requested)
}

func TestEngine_ConcurrentMutationsConverge(t *testing.T) {
	h := newHarness(t, nil, fastConfig())
	h.addTour(t, "t1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.reviews.CreateOne(context.Background(), &domain.Review{
				TourID: "t1", UserID: string(rune('a' + i)), Rating: 1 + i%5, Body: "concurrent",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// A final recompute after the mutations stop reflects the full set.
	require.NoError(t, h.engine.Sync(context.Background(), "t1"))
	q, avg := h.ratings(t, "t1")
	assert.Equal(t, 20, q)
	assert.Equal(t, 3.0, avg)
}

func TestAffectedTours(t *testing.T) {
	r := func(tour string) *domain.Review { return &domain.Review{TourID: tour} }

	assert.Equal(t, []string{"t1"}, AffectedTours(resource.Mutation[domain.Review]{After: r("t1")}))
	assert.Equal(t, []string{"t1"}, AffectedTours(resource.Mutation[domain.Review]{Before: r("t1")}))
	assert.Equal(t, []string{"t1"}, AffectedTours(resource.Mutation[domain.Review]{Before: r("t1"), After: r("t1")}))
	assert.Equal(t, []string{"t1", "t2"}, AffectedTours(resource.Mutation[domain.Review]{Before: r("t1"), After: r("t2")}))
	assert.Empty(t, AffectedTours(resource.Mutation[domain.Review]{}))
}
