package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/natours/natours/internal/search"
	"github.com/natours/natours/internal/service"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/httputil"
)

// SearchHandler handles full-text tour search.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// Search handles GET /api/v1/tours/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.Search(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	n := len(res.Tours)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Status:  "success",
		Results: &n,
		Data:    res,
	})
}

func parseSearchQuery(r *http.Request) (*search.Query, error) {
	v := r.URL.Query()
	q := &search.Query{
		Text:       strings.TrimSpace(v.Get("q")),
		Difficulty: v.Get("difficulty"),
		Sort:       v.Get("sort"),
	}

	if raw := v.Get("maxPrice"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperrors.InvalidInput("maxPrice must be a number")
		}
		q.MaxPrice = &p
	}
	if raw := v.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return nil, apperrors.InvalidInput("page must be a positive integer")
		}
		q.Page = p
	}
	if raw := v.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 || l > search.MaxLimit {
			return nil, apperrors.InvalidInput("limit must be between 1 and " + strconv.Itoa(search.MaxLimit))
		}
		q.Limit = l
	}
	return q, nil
}
