package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:        "development",
		LogLevel:           "error",
		HTTPPort:           8000,
		StoreDriver:        config.StoreMemory,
		JWTSecret:          config.DevJWTSecret,
		JWTExpiresIn:       time.Hour,
		RecomputeAttempts:  2,
		RecomputeTimeout:   time.Second,
		CORSAllowedOrigins: []string{"*"},
		OTELSampleRate:     1,
	}
}

func TestNewApp_MemoryStoreWithoutBrokers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewApp(memoryConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	assert.Nil(t, a.mongo)
	assert.Nil(t, a.rdb)
	assert.Nil(t, a.producer)
	assert.Empty(t, a.consumers)
	require.NotNil(t, a.local)
	require.NotNil(t, a.indexer)
	assert.Equal(t, ":8000", a.httpServer.Addr)

	h := a.httpServer.Handler

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"name":"Jonas","email":"jonas@natours.io","password":"pass1234","passwordConfirm":"pass1234"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Token)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tours", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tours/search?q=forest", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
