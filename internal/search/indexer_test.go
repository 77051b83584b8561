package search_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/domain"
	repomemory "github.com/natours/natours/internal/repository/memory"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/search"
	"github.com/natours/natours/internal/search/memory"
)

func newTour(id, name string, secret bool) *domain.Tour {
	return &domain.Tour{
		ID:             id,
		Name:           name,
		Summary:        "A tour",
		Difficulty:     domain.DifficultyEasy,
		Price:          497,
		RatingsAverage: domain.DefaultRatingsAverage,
		SecretTour:     secret,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func setup(t *testing.T) (*search.Indexer, *memory.Engine, *repomemory.TourRepository) {
	t.Helper()
	eng := memory.New()
	tours := repomemory.NewTourRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return search.NewIndexer(eng, tours, logger), eng, tours
}

func indexed(t *testing.T, eng *memory.Engine) map[string]search.Document {
	t.Helper()
	res, err := eng.Search(context.Background(), &search.Query{Limit: search.MaxLimit})
	require.NoError(t, err)
	out := make(map[string]search.Document, len(res.Tours))
	for _, d := range res.Tours {
		out[d.ID] = d
	}
	return out
}

func TestIndexer_TourHook(t *testing.T) {
	ix, eng, _ := setup(t)
	hook := ix.TourHook()
	ctx := context.Background()

	created := newTour("t1", "The Forest Hiker", false)
	require.NoError(t, hook(ctx, resource.Mutation[domain.Tour]{Op: resource.OpCreate, ID: "t1", After: created}))
	require.Contains(t, indexed(t, eng), "t1")

	renamed := newTour("t1", "The Sea Explorer", false)
	require.NoError(t, hook(ctx, resource.Mutation[domain.Tour]{Op: resource.OpUpdate, ID: "t1", Before: created, After: renamed}))
	assert.Equal(t, "The Sea Explorer", indexed(t, eng)["t1"].Name)

	hidden := newTour("t1", "The Sea Explorer", true)
	require.NoError(t, hook(ctx, resource.Mutation[domain.Tour]{Op: resource.OpUpdate, ID: "t1", Before: renamed, After: hidden}))
	assert.NotContains(t, indexed(t, eng), "t1")

	require.NoError(t, hook(ctx, resource.Mutation[domain.Tour]{Op: resource.OpCreate, ID: "t2", After: newTour("t2", "The Park Camper", false)}))
	require.NoError(t, hook(ctx, resource.Mutation[domain.Tour]{Op: resource.OpDelete, ID: "t2", Before: newTour("t2", "The Park Camper", false)}))
	assert.Empty(t, indexed(t, eng))
}

func TestIndexer_Refresh(t *testing.T) {
	ix, eng, tours := setup(t)
	ctx := context.Background()
	require.NoError(t, tours.Insert(ctx, newTour("t1", "The Forest Hiker", false)))
	require.NoError(t, tours.Insert(ctx, newTour("s1", "The Secret Tour", true)))

	require.NoError(t, tours.SetRatings(ctx, "t1", 2, 4.5))
	require.NoError(t, ix.Refresh(ctx, "t1"))
	doc := indexed(t, eng)["t1"]
	assert.Equal(t, 4.5, doc.RatingsAverage)
	assert.Equal(t, 2, doc.RatingsQuantity)

	require.NoError(t, eng.Index(ctx, &search.Document{ID: "s1"}))
	require.NoError(t, ix.Refresh(ctx, "s1"), "secret tours are dropped")
	require.NoError(t, eng.Index(ctx, &search.Document{ID: "gone"}))
	require.NoError(t, ix.Refresh(ctx, "gone"), "missing tours are dropped")
	assert.Equal(t, []string{"t1"}, keys(indexed(t, eng)))
}

func TestIndexer_ReindexPagesThroughPublicTours(t *testing.T) {
	ix, eng, tours := setup(t)
	ctx := context.Background()
	const n = 1203
	for i := 0; i < n; i++ {
		require.NoError(t, tours.Insert(ctx, newTour(fmt.Sprintf("t%04d", i), fmt.Sprintf("Tour %04d", i), false)))
	}
	require.NoError(t, tours.Insert(ctx, newTour("s1", "The Secret Tour", true)))

	count, err := ix.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	res, err := eng.Search(ctx, &search.Query{})
	require.NoError(t, err)
	assert.Equal(t, n, res.Total)
	assert.NotContains(t, indexed(t, eng), "s1")
}

func keys(m map[string]search.Document) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
