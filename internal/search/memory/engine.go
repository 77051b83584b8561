// Package memory is an in-process search engine with substring matching,
// used when no Elasticsearch cluster is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/natours/natours/internal/search"
)

// Engine matches every query term against name, summary and description.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{docs: make(map[string]search.Document)}
}

// Index adds or replaces one document.
func (e *Engine) Index(_ context.Context, doc *search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.ID] = *doc
	return nil
}

// Delete removes a document.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, id)
	return nil
}

// BulkIndex adds or replaces docs.
func (e *Engine) BulkIndex(_ context.Context, docs []search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range docs {
		e.docs[docs[i].ID] = docs[i]
	}
	return nil
}

type hit struct {
	doc   search.Document
	score int
}

// Search returns one page of matching documents.
func (e *Engine) Search(_ context.Context, q *search.Query) (*search.Result, error) {
	terms := strings.Fields(strings.ToLower(q.Text))

	e.mu.RLock()
	hits := make([]hit, 0, len(e.docs))
	for _, d := range e.docs {
		if score, ok := match(d, q, terms); ok {
			hits = append(hits, hit{doc: d, score: score})
		}
	}
	e.mu.RUnlock()

	sortHits(hits, q.Sort)

	page, limit := q.Window()
	total := len(hits)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	tours := make([]search.Document, 0, end-start)
	for _, h := range hits[start:end] {
		tours = append(tours, h.doc)
	}
	return &search.Result{Tours: tours, Total: total, Page: page, Limit: limit}, nil
}

// match reports whether d passes the filters and contains every term. Terms
// found in the name score higher.
func match(d search.Document, q *search.Query, terms []string) (int, bool) {
	if q.Difficulty != "" && d.Difficulty != q.Difficulty {
		return 0, false
	}
	if q.MaxPrice != nil && d.Price > *q.MaxPrice {
		return 0, false
	}

	name := strings.ToLower(d.Name)
	text := strings.ToLower(d.Summary + " " + d.Description)
	score := 0
	for _, term := range terms {
		switch {
		case strings.Contains(name, term):
			score += 3
		case strings.Contains(text, term):
			score++
		default:
			return 0, false
		}
	}
	return score, true
}

func sortHits(hits []hit, order string) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		switch order {
		case search.SortPriceAsc:
			if a.doc.Price != b.doc.Price {
				return a.doc.Price < b.doc.Price
			}
		case search.SortPriceDesc:
			if a.doc.Price != b.doc.Price {
				return a.doc.Price > b.doc.Price
			}
		case search.SortRating:
			if a.doc.RatingsAverage != b.doc.RatingsAverage {
				return a.doc.RatingsAverage > b.doc.RatingsAverage
			}
		default:
			if a.score != b.score {
				return a.score > b.score
			}
		}
		return a.doc.ID < b.doc.ID
	})
}
