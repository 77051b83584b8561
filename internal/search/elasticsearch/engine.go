// Package elasticsearch implements the tour search engine on Elasticsearch.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/natours/natours/internal/search"
)

// Engine stores tour documents in one Elasticsearch index.
type Engine struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source search.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID    string `json:"_id"`
			Error struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// New connects to the cluster at url and creates the index if it does not
// exist. An empty index name selects DefaultIndexName.
func New(ctx context.Context, url, index string, logger *slog.Logger) (*Engine, error) {
	if index == "" {
		index = DefaultIndexName
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{client: client, index: index, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	return e, nil
}

// Ping checks that the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if err := responseError("create index", res); err != nil {
		return err
	}

	e.logger.Info("elasticsearch index created", slog.String("index", e.index))
	return nil
}

// responseError turns an error response into an error carrying the
// cluster's reason.
func responseError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, body.Error.Type, body.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}

// Index adds or replaces one document. The write is visible to the next
// search.
func (e *Engine) Index(ctx context.Context, doc *search.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal: %w", err)
	}
	res, err := e.client.Index(e.index, bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer res.Body.Close()
	return responseError("elasticsearch index", res)
}

// Delete removes a document. A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError("elasticsearch delete", res)
}

// Search runs q and returns one page of documents.
func (e *Engine) Search(ctx context.Context, q *search.Query) (*search.Result, error) {
	page, limit := q.Window()
	data, err := json.Marshal(buildQuery(q, page, limit))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if err := responseError("elasticsearch search", res); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode: %w", err)
	}
	tours := make([]search.Document, 0, len(body.Hits.Hits))
	for _, h := range body.Hits.Hits {
		tours = append(tours, h.Source)
	}
	return &search.Result{Tours: tours, Total: body.Hits.Total.Value, Page: page, Limit: limit}, nil
}

// buildQuery builds the query DSL for q.
func buildQuery(q *search.Query, page, limit int) map[string]any {
	must := map[string]any{"match_all": map[string]any{}}
	if text := strings.TrimSpace(q.Text); text != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":         text,
				"fields":        []string{"name^3", "name.autocomplete^2", "summary", "description"},
				"type":          "best_fields",
				"operator":      "and",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	}

	var filters []any
	if q.Difficulty != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"difficulty": q.Difficulty}})
	}
	if q.MaxPrice != nil {
		filters = append(filters, map[string]any{"range": map[string]any{"price": map[string]any{"lte": *q.MaxPrice}}})
	}

	boolQuery := map[string]any{"must": []any{must}}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	return map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"sort":             buildSort(q.Sort),
		"from":             (page - 1) * limit,
		"size":             limit,
		"track_total_hits": true,
	}
}

func buildSort(order string) []any {
	switch order {
	case search.SortPriceAsc:
		return []any{map[string]any{"price": "asc"}, map[string]any{"id": "asc"}}
	case search.SortPriceDesc:
		return []any{map[string]any{"price": "desc"}, map[string]any{"id": "asc"}}
	case search.SortRating:
		return []any{map[string]any{"ratingsAverage": "desc"}, map[string]any{"id": "asc"}}
	default:
		return []any{map[string]any{"_score": "desc"}, map[string]any{"id": "asc"}}
	}
}

// BulkIndex adds or replaces docs with one bulk request.
func (e *Engine) BulkIndex(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{"index": map[string]any{"_index": e.index, "_id": docs[i].ID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(&buf,
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer res.Body.Close()
	if err := responseError("elasticsearch bulk", res); err != nil {
		return err
	}

	var body bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("elasticsearch bulk: decode: %w", err)
	}
	if body.Errors {
		var msgs []string
		for _, item := range body.Items {
			if item.Index.Error.Type != "" {
				msgs = append(msgs, fmt.Sprintf("%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk: item errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// DeleteIndex drops the whole index.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete([]string{e.index}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError("elasticsearch delete index", res)
}
