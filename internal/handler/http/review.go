package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/natours/natours/internal/service"
	"github.com/natours/natours/pkg/httputil"
)

// ReviewHandler handles HTTP requests for review endpoints, top-level and
// nested under a tour.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// ListReviews handles GET /api/v1/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

// ListTourReviews handles GET /api/v1/tours/{id}/reviews
func (h *ReviewHandler) ListTourReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, chi.URLParam(r, "id"))
}

func (h *ReviewHandler) list(w http.ResponseWriter, r *http.Request, tourID string) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	reviews, err := h.service.ListReviews(r.Context(), tourID, q)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeSelected(w, r, "reviews", reviews, q)
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.service.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"review": review})
}

// CreateReview handles POST /api/v1/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "")
}

// CreateTourReview handles POST /api/v1/tours/{id}/reviews
func (h *ReviewHandler) CreateTourReview(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, chi.URLParam(r, "id"))
}

func (h *ReviewHandler) create(w http.ResponseWriter, r *http.Request, tourID string) {
	var in service.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	review, err := h.service.CreateReview(r.Context(), actorFrom(r), tourID, in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, map[string]any{"review": review})
}

// UpdateReview handles PATCH /api/v1/reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	review, err := h.service.UpdateReview(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"review": review})
}

// DeleteReview handles DELETE /api/v1/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteReview(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteNoContent(w)
}
