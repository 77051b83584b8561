package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/natours/natours/internal/service"
	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/httputil"
	"github.com/natours/natours/pkg/query"
)

// TourHandler handles HTTP requests for tour endpoints.
type TourHandler struct {
	service *service.TourService
	logger  *slog.Logger
}

// NewTourHandler creates a new tour HTTP handler.
func NewTourHandler(svc *service.TourService, logger *slog.Logger) *TourHandler {
	return &TourHandler{service: svc, logger: logger}
}

// ListTours handles GET /api/v1/tours
func (h *TourHandler) ListTours(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.list(w, r, q)
}

// TopCheap handles GET /api/v1/tours/top-5-cheap
func (h *TourHandler) TopCheap(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.list(w, r, service.TopCheap(q))
}

func (h *TourHandler) list(w http.ResponseWriter, r *http.Request, q query.Params) {
	tours, err := h.service.ListTours(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeSelected(w, r, "tours", tours, q)
}

// GetTour handles GET /api/v1/tours/{id}
func (h *TourHandler) GetTour(w http.ResponseWriter, r *http.Request) {
	tour, err := h.service.GetTour(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"tour": tour})
}

// CreateTour handles POST /api/v1/tours
func (h *TourHandler) CreateTour(w http.ResponseWriter, r *http.Request) {
	var in service.TourInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	tour, err := h.service.CreateTour(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, map[string]any{"tour": tour})
}

// UpdateTour handles PATCH /api/v1/tours/{id}
func (h *TourHandler) UpdateTour(w http.ResponseWriter, r *http.Request) {
	var in service.TourInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	tour, err := h.service.UpdateTour(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"tour": tour})
}

// DeleteTour handles DELETE /api/v1/tours/{id}
func (h *TourHandler) DeleteTour(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTour(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteNoContent(w)
}

// Stats handles GET /api/v1/tours/stats
func (h *TourHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteList(w, "stats", stats)
}

// MonthlyPlan handles GET /api/v1/tours/monthly-plan/{year}
func (h *TourHandler) MonthlyPlan(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("Please provide a valid year."), h.logger)
		return
	}
	plan, err := h.service.MonthlyPlan(r.Context(), year)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteList(w, "plan", plan)
}

// ToursWithin handles GET /api/v1/tours/within/{distance}/center/{latlng}/unit/{unit}
func (h *TourHandler) ToursWithin(w http.ResponseWriter, r *http.Request) {
	distance, err := strconv.ParseFloat(chi.URLParam(r, "distance"), 64)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("Please provide a numeric distance."), h.logger)
		return
	}
	tours, err := h.service.ToursWithin(r.Context(), distance, chi.URLParam(r, "latlng"), chi.URLParam(r, "unit"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteList(w, "tours", tours)
}

// Distances handles GET /api/v1/tours/distances/{latlng}/unit/{unit}
func (h *TourHandler) Distances(w http.ResponseWriter, r *http.Request) {
	distances, err := h.service.Distances(r.Context(), chi.URLParam(r, "latlng"), chi.URLParam(r, "unit"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteList(w, "distances", distances)
}
