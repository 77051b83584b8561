package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/natours/natours/pkg/database"

type inflight struct {
	span       trace.Span
	collection string
}

// commandMonitor turns driver command events into client spans, a latency
// histogram and slow-command warnings. Commands are correlated by request ID.
type commandMonitor struct {
	threshold time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	spans     sync.Map // int64 -> inflight
}

// NewCommandMonitor returns a driver monitor. A zero threshold or nil logger
// disables slow-command logging.
func NewCommandMonitor(threshold time.Duration, logger *slog.Logger) *event.CommandMonitor {
	m := &commandMonitor{threshold: threshold, logger: logger, tracer: otel.Tracer(tracerName)}
	return &event.CommandMonitor{
		Started:   m.started,
		Succeeded: m.succeeded,
		Failed:    m.failed,
	}
}

func (m *commandMonitor) started(ctx context.Context, e *event.CommandStartedEvent) {
	collection, _ := e.Command.Lookup(e.CommandName).StringValueOK()
	_, span := m.tracer.Start(ctx, "mongo."+e.CommandName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.name", e.DatabaseName),
			attribute.String("db.operation", e.CommandName),
			attribute.String("db.mongodb.collection", collection),
		),
	)
	m.spans.Store(e.RequestID, inflight{span: span, collection: collection})
}

func (m *commandMonitor) succeeded(ctx context.Context, e *event.CommandSucceededEvent) {
	m.finish(ctx, e.CommandFinishedEvent, "")
}

func (m *commandMonitor) failed(ctx context.Context, e *event.CommandFailedEvent) {
	m.finish(ctx, e.CommandFinishedEvent, e.Failure)
}

func (m *commandMonitor) finish(ctx context.Context, e event.CommandFinishedEvent, failure string) {
	v, ok := m.spans.LoadAndDelete(e.RequestID)
	if !ok {
		return
	}
	in := v.(inflight)

	outcome := "ok"
	if failure != "" {
		outcome = "error"
		in.span.SetStatus(codes.Error, failure)
	}
	in.span.End()
	commandDuration.WithLabelValues(e.CommandName, in.collection, outcome).Observe(e.Duration.Seconds())

	if m.threshold <= 0 || m.logger == nil || e.Duration < m.threshold {
		return
	}
	attrs := []any{
		slog.String("command", e.CommandName),
		slog.String("collection", in.collection),
		slog.String("database", e.DatabaseName),
		slog.Duration("duration", e.Duration),
	}
	if failure != "" {
		attrs = append(attrs, slog.String("error", failure))
	}
	m.logger.WarnContext(ctx, "slow mongo command", attrs...)
}
