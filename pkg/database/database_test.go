package database

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRetryBackoff_StaysWithinJitterBounds(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		for i := 0; i < 50; i++ {
			d := retryBackoff(attempt)
			low := time.Duration(float64(base) * (1 - retryJitterFraction))
			high := time.Duration(float64(base) * (1 + retryJitterFraction))
			assert.GreaterOrEqual(t, d, low, "attempt %d", attempt)
			assert.LessOrEqual(t, d, high, "attempt %d", attempt)
		}
	}
}

func TestRetryBackoff_NegativeAttemptTreatedAsFirst(t *testing.T) {
	d := retryBackoff(-3)
	assert.GreaterOrEqual(t, d, 750*time.Millisecond)
	assert.LessOrEqual(t, d, 1250*time.Millisecond)
}

func TestNewMongoClient_RequiresURI(t *testing.T) {
	_, err := NewMongoClient(context.Background(), MongoConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URI is required")
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.Equal(t, "natours", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.NotZero(t, cfg.MaxPoolSize)
}

func setupTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func startedEvent(t *testing.T, id int64, command, collection string) *event.CommandStartedEvent {
	t.Helper()
	raw, err := bson.Marshal(bson.D{{Key: command, Value: collection}})
	require.NoError(t, err)
	return &event.CommandStartedEvent{
		Command:      raw,
		DatabaseName: "natours",
		CommandName:  command,
		RequestID:    id,
	}
}

func finished(id int64, command string, d time.Duration) event.CommandFinishedEvent {
	return event.CommandFinishedEvent{
		CommandName:  command,
		DatabaseName: "natours",
		RequestID:    id,
		Duration:     d,
	}
}

func TestCommandMonitor_SpanPerCommand(t *testing.T) {
	exporter := setupTracer(t)
	mon := NewCommandMonitor(0, nil)
	ctx := context.Background()

	mon.Started(ctx, startedEvent(t, 1, "find", "tours"))
	mon.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(1, "find", time.Millisecond)})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mongo.find", spans[0].Name)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "mongodb", attrs["db.system"])
	assert.Equal(t, "tours", attrs["db.mongodb.collection"])
	assert.Equal(t, "find", attrs["db.operation"])
}

func TestCommandMonitor_FailedCommandMarksSpan(t *testing.T) {
	exporter := setupTracer(t)
	mon := NewCommandMonitor(0, nil)
	ctx := context.Background()

	mon.Started(ctx, startedEvent(t, 2, "insert", "reviews"))
	mon.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: finished(2, "insert", time.Millisecond),
		Failure:              "E11000 duplicate key error",
	})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Status.Description, "E11000")
}

func TestCommandMonitor_UnknownRequestIgnored(t *testing.T) {
	exporter := setupTracer(t)
	mon := NewCommandMonitor(0, nil)
	mon.Succeeded(context.Background(), &event.CommandSucceededEvent{CommandFinishedEvent: finished(99, "find", time.Millisecond)})
	assert.Empty(t, exporter.GetSpans())
}

func TestCommandMonitor_SlowCommandLogged(t *testing.T) {
	setupTracer(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mon := NewCommandMonitor(100*time.Millisecond, logger)
	ctx := context.Background()

	mon.Started(ctx, startedEvent(t, 3, "aggregate", "reviews"))
	mon.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(3, "aggregate", 250*time.Millisecond)})
	assert.Contains(t, buf.String(), "slow mongo command")
	assert.Contains(t, buf.String(), `"collection":"reviews"`)

	buf.Reset()
	mon.Started(ctx, startedEvent(t, 4, "find", "tours"))
	mon.Succeeded(ctx, &event.CommandSucceededEvent{CommandFinishedEvent: finished(4, "find", 5*time.Millisecond)})
	assert.Empty(t, buf.String())
}

func TestPoolMonitor_TracksConnections(t *testing.T) {
	openBefore := testutil.ToFloat64(poolOpenConnections)
	outBefore := testutil.ToFloat64(poolCheckedOut)
	clearedBefore := testutil.ToFloat64(poolCleared)

	mon := NewPoolMonitor()
	mon.Event(&event.PoolEvent{Type: event.ConnectionCreated})
	mon.Event(&event.PoolEvent{Type: event.ConnectionCreated})
	mon.Event(&event.PoolEvent{Type: event.GetSucceeded})
	mon.Event(&event.PoolEvent{Type: event.ConnectionClosed})
	mon.Event(&event.PoolEvent{Type: event.PoolCleared})

	assert.Equal(t, openBefore+1, testutil.ToFloat64(poolOpenConnections))
	assert.Equal(t, outBefore+1, testutil.ToFloat64(poolCheckedOut))
	assert.Equal(t, clearedBefore+1, testutil.ToFloat64(poolCleared))

	mon.Event(&event.PoolEvent{Type: event.ConnectionReturned})
	assert.Equal(t, outBefore, testutil.ToFloat64(poolCheckedOut))
}

func TestPoolMonitor_CheckoutFailureByReason(t *testing.T) {
	c := poolCheckoutFailures.WithLabelValues(event.ReasonTimedOut)
	before := testutil.ToFloat64(c)
	NewPoolMonitor().Event(&event.PoolEvent{Type: event.GetFailed, Reason: event.ReasonTimedOut})
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, PingRedis(client)(context.Background()))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	host := mr.Host()
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisConfig{Host: host, Port: port, DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6379", RedisConfig{Host: "cache", Port: 6379}.Addr())
}
