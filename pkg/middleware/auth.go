package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/httputil"
	"github.com/natours/natours/pkg/logger"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// TokenCookie is the cookie the login endpoints set alongside the JSON token.
const TokenCookie = "jwt"

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

// TokenValidator verifies a bearer token and resolves the caller it belongs to.
// Returned AppErrors are written as-is; any other error becomes a 401.
type TokenValidator func(ctx context.Context, token string) (*Principal, error)

// Protect rejects requests without a valid token taken from the Authorization
// header or, failing that, from the jwt cookie.
func Protect(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("You are not logged in! Please log in to get access."), nil)
				return
			}

			p, err := validate(r.Context(), token)
			if err != nil {
				var appErr *apperrors.AppError
				if !errors.As(err, &appErr) {
					appErr = apperrors.Unauthorized("Invalid token. Please log in again!")
				}
				httputil.WriteError(w, r, appErr, nil)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.WithUserID(ctx, p.UserID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", p.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "loggedout" {
		return c.Value
	}
	return ""
}

// RestrictTo lets through only callers whose role is one of roles. It must be
// mounted after Protect.
func RestrictTo(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := roleSet[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("You do not have permission to perform this action"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal stores the caller in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, userIDKey, p.UserID)
	return context.WithValue(ctx, roleKey, p.Role)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext extracts the user role from the request context.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}
