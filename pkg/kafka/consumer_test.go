package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeDLQ struct {
	msgs []kafka.Message
	err  error
}

func (d *fakeDLQ) Publish(_ context.Context, msg kafka.Message, lastErr error, group string) error {
	if d.err != nil {
		return d.err
	}
	d.msgs = append(d.msgs, dlqMessage(msg, lastErr, group))
	return nil
}

func eventMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	event, err := NewEvent(context.Background(), "ratings.recompute_requested", "tour", "t-1", map[string]string{"tour_id": "t-1"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: Topic("ratings", "recompute_requested"), Offset: offset, Value: raw}
}

var fastRetry = ConsumerConfig{Topic: "natours.ratings.recompute_requested", GroupID: "natours-api", MaxRetries: 3, RetryBackoff: time.Millisecond}

func TestConsumer_Process_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	c := newConsumer(&fakeReader{}, fastRetry, func(context.Context, *Event) error {
		calls++
		return nil
	}, nil, testLogger())

	require.NoError(t, c.process(context.Background(), eventMessage(t, 1)))
	assert.Equal(t, 1, calls)
}

func TestConsumer_Process_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := newConsumer(&fakeReader{}, fastRetry, func(context.Context, *Event) error {
		calls++
		if calls < 3 {
			return errors.New("mongo: server selection timeout")
		}
		return nil
	}, nil, testLogger())

	require.NoError(t, c.process(context.Background(), eventMessage(t, 1)))
	assert.Equal(t, 3, calls)
}

func TestConsumer_Process_ExhaustedGoesToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	c := newConsumer(&fakeReader{}, fastRetry, func(context.Context, *Event) error {
		return errors.New("still down")
	}, dlq, testLogger())

	require.NoError(t, c.process(context.Background(), eventMessage(t, 7)))
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "natours.dlq.natours.ratings.recompute_requested", dlq.msgs[0].Topic)

	hc := headerCarrier{headers: &dlq.msgs[0].Headers}
	assert.Equal(t, "still down", hc.Get("dlq.error"))
	assert.Equal(t, "7", hc.Get("dlq.original_offset"))
	assert.Equal(t, "natours-api", hc.Get("dlq.consumer_group"))
}

func TestConsumer_Process_DLQFailureKeepsMessageUncommitted(t *testing.T) {
	c := newConsumer(&fakeReader{}, fastRetry, func(context.Context, *Event) error {
		return errors.New("still down")
	}, &fakeDLQ{err: errors.New("broker gone")}, testLogger())

	err := c.process(context.Background(), eventMessage(t, 7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestConsumer_Process_UndecodableIsSkipped(t *testing.T) {
	called := false
	c := newConsumer(&fakeReader{}, fastRetry, func(context.Context, *Event) error {
		called = true
		return nil
	}, nil, testLogger())

	require.NoError(t, c.process(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.False(t, called)
}

func TestConsumer_Start_CommitsAndStopsOnCancel(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{eventMessage(t, 1), eventMessage(t, 2)}}
	handled := make(chan struct{}, 2)
	c := newConsumer(reader, fastRetry, func(context.Context, *Event) error {
		handled <- struct{}{}
		return nil
	}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	<-handled
	<-handled
	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.Equal(t, 1, reader.closed)
}

func TestConsumer_Process_RecordsMetrics(t *testing.T) {
	cfg := fastRetry
	cfg.GroupID = "metrics-test"
	failed := ConsumerMessagesFailed.WithLabelValues(cfg.Topic, cfg.GroupID)
	dlqd := ConsumerDLQPublished.WithLabelValues(cfg.Topic, cfg.GroupID)
	processed := ConsumerMessagesProcessed.WithLabelValues(cfg.Topic, cfg.GroupID)
	failedBefore := testutil.ToFloat64(failed)
	dlqBefore := testutil.ToFloat64(dlqd)
	processedBefore := testutil.ToFloat64(processed)

	ok := newConsumer(&fakeReader{}, cfg, func(context.Context, *Event) error { return nil }, nil, testLogger())
	require.NoError(t, ok.process(context.Background(), eventMessage(t, 1)))

	bad := newConsumer(&fakeReader{}, cfg, func(context.Context, *Event) error {
		return errors.New("still down")
	}, &fakeDLQ{}, testLogger())
	require.NoError(t, bad.process(context.Background(), eventMessage(t, 2)))

	assert.Equal(t, processedBefore+1, testutil.ToFloat64(processed))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
	assert.Equal(t, dlqBefore+1, testutil.ToFloat64(dlqd))
}
