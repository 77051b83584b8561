// Package search keeps a full-text index of the public tours. The index is a
// read model: tour writes and ratings_updated events refresh it, and it can
// be rebuilt from the store at any time.
package search

import (
	"context"
	"time"

	"github.com/natours/natours/internal/domain"
)

// Document is the indexed view of a tour.
type Document struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Summary         string    `json:"summary"`
	Description     string    `json:"description"`
	Difficulty      string    `json:"difficulty"`
	Duration        int       `json:"duration"`
	Price           float64   `json:"price"`
	RatingsAverage  float64   `json:"ratingsAverage"`
	RatingsQuantity int       `json:"ratingsQuantity"`
	ImageCover      string    `json:"imageCover"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewDocument builds the indexed view of t.
func NewDocument(t *domain.Tour) Document {
	return Document{
		ID:              t.ID,
		Name:            t.Name,
		Slug:            t.Slug,
		Summary:         t.Summary,
		Description:     t.Description,
		Difficulty:      t.Difficulty,
		Duration:        t.Duration,
		Price:           t.Price,
		RatingsAverage:  t.RatingsAverage,
		RatingsQuantity: t.RatingsQuantity,
		ImageCover:      t.ImageCover,
		CreatedAt:       t.CreatedAt,
	}
}

// Sort orders. The empty sort ranks by relevance.
const (
	SortRelevance = ""
	SortPriceAsc  = "price"
	SortPriceDesc = "-price"
	SortRating    = "-ratingsAverage"
)

// IsValidSort reports whether s is a supported sort order.
func IsValidSort(s string) bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortRating:
		return true
	}
	return false
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query is a search request. Zero filters match everything.
type Query struct {
	Text       string
	Difficulty string
	MaxPrice   *float64
	Sort       string
	Page       int
	Limit      int
}

// Window returns the clamped page and limit.
func (q *Query) Window() (page, limit int) {
	page, limit = q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Result is one page of matches.
type Result struct {
	Tours []Document `json:"tours"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// Engine stores and queries tour documents.
type Engine interface {
	// Index adds or replaces one document.
	Index(ctx context.Context, doc *Document) error
	// Delete removes a document. A missing document is not an error.
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q *Query) (*Result, error)
	BulkIndex(ctx context.Context, docs []Document) error
}
