package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(msg string) Checker {
	return func(context.Context) error { return fmt.Errorf("%s", msg) }
}

func ready(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.Register("mongo", down("unreachable"))
	rec := httptest.NewRecorder()

	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadinessHandler_AllUp(t *testing.T) {
	h := NewHandler()
	h.Register("mongo", up)
	h.RegisterOptional("redis", up)
	h.RegisterOptional("kafka", up)

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 3)
}

func TestReadinessHandler_NoCheckers(t *testing.T) {
	code, resp := ready(t, NewHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
}

func TestReadinessHandler_OptionalDown_IsDegraded(t *testing.T) {
	h := NewHandler()
	h.Register("mongo", up)
	h.RegisterOptional("kafka", down("broker unreachable"))

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Checks["mongo"].Critical)
	assert.False(t, resp.Checks["kafka"].Critical)
	assert.Equal(t, "broker unreachable", resp.Checks["kafka"].Error)
}

func TestReadinessHandler_CriticalDown_Returns503(t *testing.T) {
	h := NewHandler()
	h.Register("mongo", down("server selection timeout"))
	h.RegisterOptional("redis", down("redis down"))

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, StatusDown, resp.Checks["mongo"].Status)
}

func TestRegister_Overwrites(t *testing.T) {
	h := NewHandler()
	h.Register("mongo", down("fail"))
	h.Register("mongo", up)

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Checks["mongo"].Status)
}

func TestReadinessHandler_ChecksRunConcurrently(t *testing.T) {
	h := NewHandler()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.Register("mongo", slow)
	h.RegisterOptional("redis", slow)
	h.RegisterOptional("kafka", slow)

	start := time.Now()
	code, _ := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Less(t, time.Since(start), 550*time.Millisecond)
}

func TestReadinessHandler_TimeoutMarksDown(t *testing.T) {
	h := NewHandler()
	h.timeout = 20 * time.Millisecond
	h.Register("mongo", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["mongo"].Error, "deadline exceeded")
}
