package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/natours/natours/internal/service"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/httputil"
	"github.com/natours/natours/pkg/middleware"
	"github.com/natours/natours/pkg/query"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON request body into dst. An empty body leaves dst
// unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.InvalidInput("invalid JSON request body: " + err.Error())
	}
	return nil
}

func actorFrom(r *http.Request) service.Actor {
	return service.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}

// writeSelected writes a list envelope, shaped to the requested fields.
func writeSelected[T any](w http.ResponseWriter, r *http.Request, key string, items []T, q query.Params) {
	if len(q.Fields) == 0 {
		httputil.WriteList(w, key, items)
		return
	}
	shaped, err := query.Select(items, q.Fields)
	if err != nil {
		httputil.WriteError(w, r, err, nil)
		return
	}
	list, _ := shaped.([]any)
	httputil.WriteList(w, key, list)
}

func parseQuery(r *http.Request) (query.Params, error) {
	q, err := query.FromRequest(r)
	if err != nil {
		return query.Params{}, apperrors.InvalidInput(err.Error())
	}
	return q, nil
}
