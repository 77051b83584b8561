package service

import (
	"context"
	"fmt"
	"math"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/search"
	apperrors "github.com/natours/natours/pkg/errors"
)

// SearchService runs full-text tour searches against the search index.
type SearchService struct {
	engine search.Engine
}

// NewSearchService creates a SearchService.
func NewSearchService(engine search.Engine) *SearchService {
	return &SearchService{engine: engine}
}

// Search validates q and returns one page of matching tours.
func (s *SearchService) Search(ctx context.Context, q *search.Query) (*search.Result, error) {
	if !search.IsValidSort(q.Sort) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid sort %q", q.Sort))
	}
	if q.Difficulty != "" && !domain.IsValidDifficulty(q.Difficulty) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid difficulty %q", q.Difficulty))
	}
	if p := q.MaxPrice; p != nil && (*p < 0 || math.IsNaN(*p) || math.IsInf(*p, 0)) {
		return nil, apperrors.InvalidInput("maxPrice must be a non-negative number")
	}

	res, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search tours: %w", err)
	}
	return res, nil
}
