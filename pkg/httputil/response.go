package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/natours/natours/pkg/errors"
	"github.com/natours/natours/pkg/logger"
	"github.com/natours/natours/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Status  string         `json:"status"`
	Token   string         `json:"token,omitempty"`
	Results *int           `json:"results,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type contextKey string

const errorDetailKey contextKey = "error_detail"

// WithErrorDetail marks the context so that WriteError includes the wrapped
// error text of internal errors. Only development deployments enable it.
func WithErrorDetail(ctx context.Context) context.Context {
	return context.WithValue(ctx, errorDetailKey, true)
}

func errorDetailEnabled(ctx context.Context) bool {
	v, _ := ctx.Value(errorDetailKey).(bool)
	return v
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a "success" envelope around data.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Status: "success", Data: data})
}

// WriteToken writes a "success" envelope carrying an access token next to
// data.
func WriteToken(w http.ResponseWriter, status int, token string, data any) {
	WriteJSON(w, status, Response{Status: "success", Token: token, Data: data})
}

// WriteList writes a "success" envelope with the number of returned items.
// key names the collection inside data, e.g. "tours".
func WriteList[T any](w http.ResponseWriter, key string, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	WriteJSON(w, http.StatusOK, Response{
		Status:  "success",
		Results: &n,
		Data:    map[string]any{key: items},
	})
}

// WriteNoContent answers 204 without a body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes a standardized error response based on the error type.
// It handles AppError, validator.ValidationError and the sentinel errors, and
// logs internal server errors. It prefers the request-scoped logger from
// context (set by the RequestLogger middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	// Prefer the request-scoped logger (enriched with correlation_id, user_id,
	// trace_id, span_id) if the RequestLogger middleware has been mounted.
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		err = valErr.AppError()
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = fromSentinel(err)
	}

	body := &ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Fields:    appErr.Fields,
		RequestID: requestID,
	}

	if appErr.Status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if errorDetailEnabled(r.Context()) {
			body.Detail = err.Error()
		}
	}

	WriteJSON(w, appErr.Status, Response{
		Status: apperrors.StatusClass(appErr.Status),
		Error:  body,
	})
}

func fromSentinel(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return &apperrors.AppError{Code: "NOT_FOUND", Message: "resource not found", Status: http.StatusNotFound, Err: err}
	case errors.Is(err, apperrors.ErrValidation):
		return &apperrors.AppError{Code: "VALIDATION_ERROR", Message: err.Error(), Status: http.StatusBadRequest, Err: err}
	case errors.Is(err, apperrors.ErrInvalidInput):
		return &apperrors.AppError{Code: "INVALID_INPUT", Message: err.Error(), Status: http.StatusBadRequest, Err: err}
	case errors.Is(err, apperrors.ErrUnauthorized):
		return &apperrors.AppError{Code: "UNAUTHORIZED", Message: "unauthorized", Status: http.StatusUnauthorized, Err: err}
	case errors.Is(err, apperrors.ErrForbidden):
		return &apperrors.AppError{Code: "FORBIDDEN", Message: "forbidden", Status: http.StatusForbidden, Err: err}
	default:
		return apperrors.Internal(err)
	}
}

// ParseUUID validates that the given string is a valid UUID and returns it.
// If invalid, it writes a 400 Bad Request response with code INVALID_PARAMETER
// and returns uuid.Nil plus false, signaling the caller to return early.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Status: "fail",
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "Invalid id: " + param,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}
