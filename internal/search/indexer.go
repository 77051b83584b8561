package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/resource"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

const reindexBatch = 500

// TourReader is the part of the tour store the indexer reads.
type TourReader interface {
	Find(ctx context.Context, q query.Params) ([]domain.Tour, error)
	FindOne(ctx context.Context, id string, scope []query.Condition) (*domain.Tour, error)
}

// Indexer keeps an Engine in step with the tour store. Secret tours are never
// indexed.
type Indexer struct {
	engine Engine
	tours  TourReader
	logger *slog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(engine Engine, tours TourReader, logger *slog.Logger) *Indexer {
	return &Indexer{engine: engine, tours: tours, logger: logger}
}

// TourHook indexes created and updated tours and drops deleted or hidden ones.
func (ix *Indexer) TourHook() resource.Hook[domain.Tour] {
	return func(ctx context.Context, m resource.Mutation[domain.Tour]) error {
		if m.Op == resource.OpDelete || m.After == nil || m.After.SecretTour {
			if err := ix.engine.Delete(ctx, m.ID); err != nil {
				return fmt.Errorf("unindex tour %s: %w", m.ID, err)
			}
			return nil
		}
		doc := NewDocument(m.After)
		if err := ix.engine.Index(ctx, &doc); err != nil {
			return fmt.Errorf("index tour %s: %w", m.ID, err)
		}
		return nil
	}
}

// Refresh re-reads one tour and indexes its current state. A tour that is
// gone or secret is removed from the index.
func (ix *Indexer) Refresh(ctx context.Context, tourID string) error {
	t, err := ix.tours.FindOne(ctx, tourID, repository.TourScope)
	if errors.Is(err, apperrors.ErrNotFound) {
		if err := ix.engine.Delete(ctx, tourID); err != nil {
			return fmt.Errorf("unindex tour %s: %w", tourID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tour %s: %w", tourID, err)
	}

	doc := NewDocument(t)
	if err := ix.engine.Index(ctx, &doc); err != nil {
		return fmt.Errorf("index tour %s: %w", tourID, err)
	}
	return nil
}

// Reindex loads every public tour into the engine and returns the count. It
// only adds and replaces documents.
func (ix *Indexer) Reindex(ctx context.Context) (int, error) {
	q := query.Params{
		Sort:  []query.SortField{{Field: "createdAt"}},
		Page:  1,
		Limit: reindexBatch,
	}
	for _, c := range repository.TourScope {
		q = q.Where(c.Field, c.Op, c.Value)
	}

	total := 0
	for {
		tours, err := ix.tours.Find(ctx, q)
		if err != nil {
			return total, fmt.Errorf("reindex: list tours: %w", err)
		}
		docs := make([]Document, len(tours))
		for i := range tours {
			docs[i] = NewDocument(&tours[i])
		}
		if err := ix.engine.BulkIndex(ctx, docs); err != nil {
			return total, fmt.Errorf("reindex: %w", err)
		}
		total += len(docs)
		if len(tours) < q.Limit {
			break
		}
		q.Page++
	}

	ix.logger.InfoContext(ctx, "search index rebuilt", slog.Int("tours", total))
	return total, nil
}
