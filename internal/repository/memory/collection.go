// Package memory implements the repository ports in process memory. Documents
// are held in their BSON form so filters, sorting and partial updates behave
// like the MongoDB implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/natours/internal/repository"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

// Collection is a typed in-memory collection implementing resource.Store.
type Collection[T any] struct {
	mu        sync.RWMutex
	name      string
	docs      map[string]bson.M
	protected []string
	unique    [][]string
}

func newCollection[T any](name string, protected []string, unique ...[]string) *Collection[T] {
	return &Collection[T]{name: name, docs: make(map[string]bson.M), protected: protected, unique: unique}
}

// Find returns the documents matching q, sorted and paged. Projection is
// left to the caller.
func (c *Collection[T]) Find(_ context.Context, q query.Params) ([]T, error) {
	c.mu.RLock()
	matched := c.match(q.Conditions)
	c.mu.RUnlock()

	sortDocs(matched, q.Sort)

	start := min(q.Skip(), len(matched))
	end := len(matched)
	if q.Limit > 0 {
		end = min(start+q.Limit, end)
	}
	return decodeAll[T](matched[start:end])
}

// FindOne returns the scoped document with the given id.
func (c *Collection[T]) FindOne(_ context.Context, id string, scope []query.Condition) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, err := c.scoped(id, scope)
	if err != nil {
		return nil, err
	}
	return decode[T](m)
}

// Insert stores a new document.
func (c *Collection[T]) Insert(_ context.Context, doc *T) error {
	m, err := encode(doc)
	if err != nil {
		return err
	}
	id, _ := m["_id"].(string)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return repository.DuplicateKey(c.name, "_id")
	}
	if err := c.checkUnique(id, m); err != nil {
		return err
	}
	c.docs[id] = m
	return nil
}

// FindOneAndUpdate sets every non-protected field of doc and returns the
// pre-image.
func (c *Collection[T]) FindOneAndUpdate(_ context.Context, id string, scope []query.Condition, doc *T) (*T, error) {
	set, err := encode(doc)
	if err != nil {
		return nil, err
	}
	delete(set, "_id")
	for _, f := range c.protected {
		delete(set, f)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.scoped(id, scope)
	if err != nil {
		return nil, err
	}
	next := make(bson.M, len(current))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	if err := c.checkUnique(id, next); err != nil {
		return nil, err
	}
	c.docs[id] = next
	return decode[T](current)
}

// FindOneAndDelete removes the scoped document and returns it.
func (c *Collection[T]) FindOneAndDelete(_ context.Context, id string, scope []query.Condition) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.scoped(id, scope)
	if err != nil {
		return nil, err
	}
	delete(c.docs, id)
	return decode[T](current)
}

// update applies fields to the document without scoping. Stored maps are
// never mutated in place, so snapshots stay valid outside the lock.
func (c *Collection[T]) update(id string, fields bson.M) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.docs[id]
	if !ok {
		return false
	}
	next := make(bson.M, len(current)+len(fields))
	for k, v := range current {
		next[k] = v
	}
	for k, v := range fields {
		next[k] = v
	}
	c.docs[id] = next
	return true
}

// snapshot returns the documents matching conds.
func (c *Collection[T]) snapshot(conds []query.Condition) []bson.M {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match(conds)
}

func (c *Collection[T]) scoped(id string, scope []query.Condition) (bson.M, error) {
	m, ok := c.docs[id]
	if !ok || !matches(m, scope) {
		return nil, apperrors.NotFound(c.name, id)
	}
	return m, nil
}

func (c *Collection[T]) match(conds []query.Condition) []bson.M {
	out := make([]bson.M, 0, len(c.docs))
	for _, m := range c.docs {
		if matches(m, conds) {
			out = append(out, m)
		}
	}
	return out
}

func (c *Collection[T]) checkUnique(id string, m bson.M) error {
	for _, fields := range c.unique {
		key := uniqueKey(m, fields)
		for otherID, other := range c.docs {
			if otherID != id && uniqueKey(other, fields) == key {
				return repository.DuplicateKey(c.name, fields...)
			}
		}
	}
	return nil
}

func uniqueKey(m bson.M, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprint(lookup(m, f))
	}
	return strings.Join(parts, "\x00")
}

func encode(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return m, nil
}

func decode[T any](m bson.M) (*T, error) {
	raw, err := bson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	var doc T
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func decodeAll[T any](ms []bson.M) ([]T, error) {
	out := make([]T, 0, len(ms))
	for _, m := range ms {
		doc, err := decode[T](m)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

// lookup resolves a dotted path; nil when absent.
func lookup(m bson.M, path string) any {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case bson.M:
			cur = v[part]
		case bson.D:
			cur = v.Map()[part]
		default:
			return nil
		}
	}
	return cur
}

func matches(m bson.M, conds []query.Condition) bool {
	for _, c := range conds {
		if !matchOne(lookup(m, c.Field), c.Op, c.Value) {
			return false
		}
	}
	return true
}

// matchOne follows MongoDB semantics: an array field matches when any
// element does, and $ne matches missing fields.
func matchOne(field any, op query.Op, want any) bool {
	if arr, ok := field.(bson.A); ok {
		hit := false
		for _, el := range arr {
			if compareOp(el, query.OpEq, want) {
				hit = true
				break
			}
		}
		if op == query.OpNe {
			return !hit
		}
		if op == query.OpEq {
			return hit
		}
		for _, el := range arr {
			if compareOp(el, op, want) {
				return true
			}
		}
		return false
	}
	return compareOp(field, op, want)
}

func compareOp(field any, op query.Op, want any) bool {
	cmp, ok := compare(field, want)
	switch op {
	case query.OpEq:
		return ok && cmp == 0
	case query.OpNe:
		return !ok || cmp != 0
	case query.OpGt:
		return ok && cmp > 0
	case query.OpGte:
		return ok && cmp >= 0
	case query.OpLt:
		return ok && cmp < 0
	case query.OpLte:
		return ok && cmp <= 0
	}
	return false
}

// compare orders two scalar values of comparable kinds.
func compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmpOrdered(fa, fb), true
		}
		return 0, false
	}
	if ta, ok := instant(a); ok {
		if tb, ok := instant(b); ok {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, true
			}
			if !av {
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func instant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// sortDocs orders by fields then _id. Missing values sort first.
func sortDocs(docs []bson.M, fields []query.SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, b := lookup(docs[i], f.Field), lookup(docs[j], f.Field)
			cmp := orderOf(a, b)
			if cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		idA, _ := docs[i]["_id"].(string)
		idB, _ := docs[j]["_id"].(string)
		return idA < idB
	})
}

func orderOf(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, _ := compare(a, b)
	return cmp
}
