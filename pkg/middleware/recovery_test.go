package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panicking() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom in handler")
	})
}

func TestRecovery_Returns500Envelope(t *testing.T) {
	h := Recovery(newTestLogger())(panicking())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Empty(t, env.Error.Detail)
}

func TestErrorDetail_ExposesPanicTextWhenEnabled(t *testing.T) {
	h := ErrorDetail(true)(Recovery(newTestLogger())(panicking()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error.Detail, "boom in handler")
}

func TestErrorDetail_DisabledIsPassthrough(t *testing.T) {
	h := ErrorDetail(false)(Recovery(newTestLogger())(panicking()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, decodeEnvelope(t, rec).Error.Detail)
}
