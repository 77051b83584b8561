package middleware

import (
	"net/http"

	"github.com/natours/natours/pkg/httputil"
)

// ErrorDetail makes error responses carry the text of internal errors. Only
// enable it in development.
func ErrorDetail(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(httputil.WithErrorDetail(r.Context())))
		})
	}
}
