// Package resource is the generic CRUD layer shared by every resource type.
//
// Each type is configured with an ordered list of read scopes (always-on
// filters), populate steps and mutation hooks. Every read goes through the
// scopes, and every completed write is dispatched once to the hooks with its
// pre-image.
package resource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/natours/natours/pkg/query"
)

// Store persists one resource type. Scope conditions are ANDed with the id
// match on every call that takes them. A missing or scoped-out document is
// reported as an apperrors NotFound.
type Store[T any] interface {
	Find(ctx context.Context, q query.Params) ([]T, error)
	FindOne(ctx context.Context, id string, scope []query.Condition) (*T, error)
	Insert(ctx context.Context, doc *T) error
	// FindOneAndUpdate writes doc and returns the document as it was
	// immediately before the write.
	FindOneAndUpdate(ctx context.Context, id string, scope []query.Condition, doc *T) (*T, error)
	// FindOneAndDelete removes the document and returns it.
	FindOneAndDelete(ctx context.Context, id string, scope []query.Condition) (*T, error)
}

// Op names a write operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation describes one completed write. Before is nil for creates and
// After is nil for deletes.
type Mutation[T any] struct {
	Op     Op
	ID     string
	Before *T
	After  *T
}

// Hook runs after a write has been persisted. Its error is logged; the write
// has already succeeded.
type Hook[T any] func(ctx context.Context, m Mutation[T]) error

// Populator fills reference fields of documents that were just read.
type Populator[T any] func(ctx context.Context, docs []*T) error

// Config describes a resource type.
type Config[T any] struct {
	// Name is used in errors and logs, e.g. "tour".
	Name string
	// Identity returns a pointer to the document's id field.
	Identity func(doc *T) *string
	// Prepare normalizes a document before validation, e.g. timestamps.
	Prepare func(op Op, doc *T)
	// Validate runs on create and on the patched document of an update.
	Validate func(doc *T) error
	Scope    []query.Condition
	Populate []Populator[T]
	Hooks    []Hook[T]
}

// Service implements list/get/create/update/delete for one resource type.
type Service[T any] struct {
	store  Store[T]
	cfg    Config[T]
	logger *slog.Logger
}

// New creates a Service. Identity is required.
func New[T any](store Store[T], cfg Config[T], logger *slog.Logger) *Service[T] {
	if cfg.Identity == nil {
		panic("resource: Config.Identity is required")
	}
	return &Service[T]{store: store, cfg: cfg, logger: logger}
}

// Name returns the configured resource name.
func (s *Service[T]) Name() string { return s.cfg.Name }

// ListAll returns the documents matching q after scoping and population.
func (s *Service[T]) ListAll(ctx context.Context, q query.Params) ([]T, error) {
	for _, c := range s.cfg.Scope {
		q = q.Where(c.Field, c.Op, c.Value)
	}
	docs, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.cfg.Name, err)
	}

	ptrs := make([]*T, len(docs))
	for i := range docs {
		ptrs[i] = &docs[i]
	}
	if err := s.populate(ctx, ptrs, nil); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetOne returns a scoped document by id, running the configured populate
// steps followed by extra.
func (s *Service[T]) GetOne(ctx context.Context, id string, extra ...Populator[T]) (*T, error) {
	doc, err := s.store.FindOne(ctx, id, s.cfg.Scope)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, []*T{doc}, extra); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateOne validates and persists doc, assigning an id when empty.
func (s *Service[T]) CreateOne(ctx context.Context, doc *T) (*T, error) {
	id := s.cfg.Identity(doc)
	if *id == "" {
		*id = uuid.New().String()
	}
	if s.cfg.Prepare != nil {
		s.cfg.Prepare(OpCreate, doc)
	}
	if s.cfg.Validate != nil {
		if err := s.cfg.Validate(doc); err != nil {
			return nil, err
		}
	}

	if err := s.store.Insert(ctx, doc); err != nil {
		return nil, err
	}

	s.dispatch(ctx, Mutation[T]{Op: OpCreate, ID: *id, After: doc})
	return doc, nil
}

// UpdateOne applies patch to the scoped document, re-validates it and writes
// it. The returned document is populated like GetOne's. The pre-image passed to hooks is the one returned by the store's
// find-and-modify, not the earlier read. A patch error aborts the update.
func (s *Service[T]) UpdateOne(ctx context.Context, id string, patch func(doc *T) error) (*T, error) {
	current, err := s.store.FindOne(ctx, id, s.cfg.Scope)
	if err != nil {
		return nil, err
	}
	if err := patch(current); err != nil {
		return nil, err
	}
	*s.cfg.Identity(current) = id
	if s.cfg.Prepare != nil {
		s.cfg.Prepare(OpUpdate, current)
	}
	if s.cfg.Validate != nil {
		if err := s.cfg.Validate(current); err != nil {
			return nil, err
		}
	}

	before, err := s.store.FindOneAndUpdate(ctx, id, s.cfg.Scope, current)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, Mutation[T]{Op: OpUpdate, ID: id, Before: before, After: current})

	// The write has succeeded, so a populate failure only costs the
	// references in the response.
	out := *current
	if err := s.populate(ctx, []*T{&out}, nil); err != nil {
		s.logger.WarnContext(ctx, "populate updated document failed",
			slog.String("resource", s.cfg.Name),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return current, nil
	}
	return &out, nil
}

// DeleteOne removes the scoped document. When guard is set it sees the
// current document first and may veto the delete.
func (s *Service[T]) DeleteOne(ctx context.Context, id string, guard func(doc *T) error) error {
	if guard != nil {
		current, err := s.store.FindOne(ctx, id, s.cfg.Scope)
		if err != nil {
			return err
		}
		if err := guard(current); err != nil {
			return err
		}
	}

	before, err := s.store.FindOneAndDelete(ctx, id, s.cfg.Scope)
	if err != nil {
		return err
	}

	s.dispatch(ctx, Mutation[T]{Op: OpDelete, ID: id, Before: before})
	return nil
}

func (s *Service[T]) populate(ctx context.Context, docs []*T, extra []Populator[T]) error {
	if len(docs) == 0 {
		return nil
	}
	for _, steps := range [][]Populator[T]{s.cfg.Populate, extra} {
		for _, p := range steps {
			if err := p(ctx, docs); err != nil {
				return fmt.Errorf("populate %s: %w", s.cfg.Name, err)
			}
		}
	}
	return nil
}

// dispatch runs each hook once, in order.
func (s *Service[T]) dispatch(ctx context.Context, m Mutation[T]) {
	for i, h := range s.cfg.Hooks {
		if err := h(ctx, m); err != nil {
			s.logger.ErrorContext(ctx, "mutation hook failed",
				slog.String("resource", s.cfg.Name),
				slog.String("operation", string(m.Op)),
				slog.String("id", m.ID),
				slog.Int("hook", i),
				slog.String("error", err.Error()),
			)
		}
	}
}
