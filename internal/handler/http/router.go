// Package http exposes the natours REST API under /api/v1.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/service"
	"github.com/natours/natours/pkg/health"
	"github.com/natours/natours/pkg/middleware"
)

// RouterConfig holds the dependencies and settings of the router.
type RouterConfig struct {
	Tours   *service.TourService
	Reviews *service.ReviewService
	Users   *service.UserService
	Search  *service.SearchService
	Health  *health.Handler
	Logger  *slog.Logger

	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
	// ErrorDetail adds internal error text to 5xx responses.
	ErrorDetail  bool
	TokenTTL     time.Duration
	SecureCookie bool
	// PprofCIDRs admits clients to /debug/pprof; empty disables it.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all natours routes registered. ctx
// bounds the rate limiter's background cleanup.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.ErrorDetail(cfg.ErrorDetail))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)

	protect := middleware.Protect(cfg.Users.Authenticate)
	restrict := middleware.RestrictTo

	tours := NewTourHandler(cfg.Tours, cfg.Logger)
	reviews := NewReviewHandler(cfg.Reviews, cfg.Logger)
	users := NewUserHandler(cfg.Users, cfg.TokenTTL, cfg.SecureCookie, cfg.Logger)
	searches := NewSearchHandler(cfg.Search, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit.Requests > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimit, cfg.Logger))
		}

		r.Route("/tours", func(r chi.Router) {
			r.Get("/top-5-cheap", tours.TopCheap)
			r.Get("/search", searches.Search)
			r.Get("/stats", tours.Stats)
			r.With(protect, restrict(domain.RoleAdmin, domain.RoleLeadGuide, domain.RoleGuide)).
				Get("/monthly-plan/{year}", tours.MonthlyPlan)
			r.Get("/within/{distance}/center/{latlng}/unit/{unit}", tours.ToursWithin)
			r.Get("/distances/{latlng}/unit/{unit}", tours.Distances)

			r.Get("/", tours.ListTours)
			r.With(protect, restrict(domain.RoleAdmin, domain.RoleLeadGuide)).Post("/", tours.CreateTour)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tours.GetTour)
				r.With(protect, restrict(domain.RoleAdmin, domain.RoleLeadGuide)).Patch("/", tours.UpdateTour)
				r.With(protect, restrict(domain.RoleAdmin, domain.RoleLeadGuide)).Delete("/", tours.DeleteTour)

				r.With(protect).Get("/reviews", reviews.ListTourReviews)
				r.With(protect, restrict(domain.RoleUser)).Post("/reviews", reviews.CreateTourReview)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Use(protect)
			r.Get("/", reviews.ListReviews)
			r.With(restrict(domain.RoleUser)).Post("/", reviews.CreateReview)
			r.Get("/{id}", reviews.GetReview)
			r.With(restrict(domain.RoleUser, domain.RoleAdmin)).Patch("/{id}", reviews.UpdateReview)
			r.With(restrict(domain.RoleUser, domain.RoleAdmin)).Delete("/{id}", reviews.DeleteReview)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", users.Signup)
			r.Post("/login", users.Login)
			r.Get("/logout", users.Logout)

			r.Group(func(r chi.Router) {
				r.Use(protect)
				r.Patch("/update-my-password", users.UpdatePassword)
				r.Get("/me", users.GetMe)
				r.Patch("/me", users.UpdateMe)
				r.Delete("/me", users.DeleteMe)

				r.Group(func(r chi.Router) {
					r.Use(restrict(domain.RoleAdmin))
					r.Get("/", users.ListUsers)
					r.Post("/", users.CreateUser)
					r.Get("/{id}", users.GetUser)
					r.Patch("/{id}", users.UpdateUser)
					r.Delete("/{id}", users.DeleteUser)
				})
			})
		})
	})

	return r
}
