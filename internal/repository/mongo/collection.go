package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/natours/internal/repository"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/query"
)

// Collection is a typed MongoDB collection implementing resource.Store.
type Collection[T any] struct {
	coll *mongo.Collection
	name string
	// protected fields are never written by FindOneAndUpdate.
	protected []string
	// unique maps index names to their key fields.
	unique map[string][]string
}

func newCollection[T any](coll *mongo.Collection, name string, protected []string, unique map[string][]string) *Collection[T] {
	return &Collection[T]{coll: coll, name: name, protected: protected, unique: unique}
}

// Find returns the documents matching q, sorted, projected and paged.
func (c *Collection[T]) Find(ctx context.Context, q query.Params) ([]T, error) {
	opts := options.Find().
		SetSort(sortDoc(q.Sort)).
		SetSkip(int64(q.Skip())).
		SetLimit(int64(q.Limit))
	if proj := projection(q.Fields); proj != nil {
		opts.SetProjection(proj)
	}

	cur, err := c.coll.Find(ctx, filter(q.Conditions), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	docs := []T{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.name, err)
	}
	return docs, nil
}

// FindOne returns the scoped document with the given id.
func (c *Collection[T]) FindOne(ctx context.Context, id string, scope []query.Condition) (*T, error) {
	var doc T
	err := c.coll.FindOne(ctx, byID(id, scope)).Decode(&doc)
	if err != nil {
		return nil, c.translate(err, id)
	}
	return &doc, nil
}

// Insert stores a new document.
func (c *Collection[T]) Insert(ctx context.Context, doc *T) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return c.translate(err, "")
	}
	return nil
}

// FindOneAndUpdate sets every non-protected field of doc and returns the
// pre-image.
func (c *Collection[T]) FindOneAndUpdate(ctx context.Context, id string, scope []query.Condition, doc *T) (*T, error) {
	set, err := setDoc(doc, c.protected)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}

	var before T
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	err = c.coll.FindOneAndUpdate(ctx, byID(id, scope), bson.D{{Key: "$set", Value: set}}, opts).Decode(&before)
	if err != nil {
		return nil, c.translate(err, id)
	}
	return &before, nil
}

// FindOneAndDelete removes the scoped document and returns it.
func (c *Collection[T]) FindOneAndDelete(ctx context.Context, id string, scope []query.Condition) (*T, error) {
	var before T
	if err := c.coll.FindOneAndDelete(ctx, byID(id, scope)).Decode(&before); err != nil {
		return nil, c.translate(err, id)
	}
	return &before, nil
}

// translate maps driver errors onto application errors.
func (c *Collection[T]) translate(err error, id string) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperrors.NotFound(c.name, id)
	case mongo.IsDuplicateKeyError(err):
		return repository.DuplicateKey(c.name, c.duplicateFields(err)...)
	}
	return fmt.Errorf("%s store: %w", c.name, err)
}

// duplicateFields finds the violated index by name in the server message.
func (c *Collection[T]) duplicateFields(err error) []string {
	msg := err.Error()
	for index, fields := range c.unique {
		if strings.Contains(msg, "index: "+index+" ") {
			return fields
		}
	}
	var all []string
	for _, fields := range c.unique {
		all = append(all, fields...)
	}
	return all
}

func filter(conds []query.Condition) bson.D {
	if len(conds) == 0 {
		return bson.D{}
	}
	clauses := make(bson.A, 0, len(conds))
	for _, c := range conds {
		clauses = append(clauses, bson.D{{Key: c.Field, Value: bson.D{{Key: "$" + string(c.Op), Value: c.Value}}}})
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.D)
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func byID(id string, scope []query.Condition) bson.D {
	return filter(append([]query.Condition{{Field: "_id", Op: query.OpEq, Value: id}}, scope...))
}

// sortDoc adds _id as a final tiebreaker so pages are stable.
func sortDoc(fields []query.SortField) bson.D {
	d := make(bson.D, 0, len(fields)+1)
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Field, Value: dir})
	}
	return append(d, bson.E{Key: "_id", Value: 1})
}

// projection builds an inclusion projection when any field is included,
// otherwise an exclusion projection. MongoDB rejects mixing the two.
func projection(fields []string) bson.D {
	if len(fields) == 0 {
		return nil
	}
	var include, exclude bson.D
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			exclude = append(exclude, bson.E{Key: name, Value: 0})
			continue
		}
		include = append(include, bson.E{Key: f, Value: 1})
	}
	if len(include) > 0 {
		return include
	}
	return exclude
}

func setDoc(doc any, protected []string) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	for _, f := range protected {
		delete(m, f)
	}
	return m, nil
}
