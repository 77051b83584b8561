package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// logLine runs fn against a JSON logger and returns the decoded line.
func logLine(t *testing.T, fn func(l *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(NewWithWriter("natours-api", "info", &buf))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out), buf.String())
	return out
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestNewWithWriter_ServiceAttribute(t *testing.T) {
	out := logLine(t, func(l *slog.Logger) { l.Info("tour created") })
	assert.Equal(t, "natours-api", out["service"])
	assert.Equal(t, "tour created", out["msg"])
}

func TestWithContext(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func(t *testing.T) context.Context
		present map[string]string
		absent  []string
	}{
		{
			name:   "bare context",
			ctx:    func(*testing.T) context.Context { return context.Background() },
			absent: []string{"correlation_id", "user_id", "trace_id", "span_id"},
		},
		{
			name: "correlation and user",
			ctx: func(*testing.T) context.Context {
				ctx := WithCorrelationID(context.Background(), "req-123")
				return WithUserID(ctx, "5c8a1dfa2f8fb814b56fa181")
			},
			present: map[string]string{"correlation_id": "req-123", "user_id": "5c8a1dfa2f8fb814b56fa181"},
			absent:  []string{"trace_id", "span_id"},
		},
		{
			name: "span",
			ctx:  spanContext,
			present: map[string]string{
				"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
				"span_id":  "00f067aa0ba902b7",
			},
			absent: []string{"correlation_id", "user_id"},
		},
		{
			name: "everything",
			ctx: func(t *testing.T) context.Context {
				return WithUserID(WithCorrelationID(spanContext(t), "req-9"), "u1")
			},
			present: map[string]string{
				"correlation_id": "req-9",
				"user_id":        "u1",
				"trace_id":       "4bf92f3577b34da6a3ce929d0e0e4736",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := tc.ctx(t)
			out := logLine(t, func(l *slog.Logger) { WithContext(ctx, l).Info("ratings updated") })
			for k, v := range tc.present {
				assert.Equal(t, v, out[k], k)
			}
			for _, k := range tc.absent {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	l := NewWithWriter("natours-api", "info", &bytes.Buffer{})
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}

func TestContextValues_Empty(t *testing.T) {
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
	assert.Empty(t, UserIDFromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("natours-api", "warn", &buf)
	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewForEnvironment(t *testing.T) {
	assert.NotNil(t, NewForEnvironment("natours-api", "info", "development"))
	assert.NotNil(t, NewForEnvironment("natours-api", "info", "production"))
}
