package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/service"
	"github.com/natours/natours/pkg/httputil"
	"github.com/natours/natours/pkg/middleware"
	"github.com/natours/natours/pkg/validator"
)

// --- Request DTOs ---

// SignupRequest is the JSON request body for signup.
type SignupRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Photo           string `json:"photo" validate:"max=255"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdatePasswordRequest is the JSON request body for a password change.
type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// UserHandler handles HTTP requests for account and auth endpoints.
type UserHandler struct {
	service      *service.UserService
	tokenTTL     time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewUserHandler creates a new user HTTP handler. tokenTTL sets the lifetime
// of the jwt cookie.
func NewUserHandler(svc *service.UserService, tokenTTL time.Duration, secureCookie bool, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, tokenTTL: tokenTTL, secureCookie: secureCookie, logger: logger}
}

func (h *UserHandler) writeToken(w http.ResponseWriter, status int, token string, u *domain.User) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.tokenTTL),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteToken(w, status, token, map[string]any{"user": u})
}

// Signup handles POST /api/v1/users/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	u, token, err := h.service.Signup(r.Context(), service.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Photo:           req.Photo,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeToken(w, http.StatusCreated, token, u)
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	u, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeToken(w, http.StatusOK, token, u)
}

// Logout handles GET /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
	})
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Status: "success"})
}

// UpdatePassword handles PATCH /api/v1/users/update-my-password
func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	u, token, err := h.service.UpdatePassword(r.Context(), middleware.UserIDFromContext(r.Context()), service.UpdatePasswordInput{
		PasswordCurrent: req.PasswordCurrent,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeToken(w, http.StatusOK, token, u)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	h.getUser(w, r, middleware.UserIDFromContext(r.Context()))
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateMeInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	u, err := h.service.UpdateMe(r.Context(), middleware.UserIDFromContext(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"user": u})
}

// DeleteMe handles DELETE /api/v1/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMe(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteNoContent(w)
}

// ListUsers handles GET /api/v1/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	users, err := h.service.ListUsers(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeSelected(w, r, "users", users, q)
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r, h.service.CreateUser(r.Context()), h.logger)
}

// GetUser handles GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	h.getUser(w, r, chi.URLParam(r, "id"))
}

func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"user": u})
}

// UpdateUser handles PATCH /api/v1/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	u, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]any{"user": u})
}

// DeleteUser handles DELETE /api/v1/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteNoContent(w)
}
