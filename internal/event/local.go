package event

import (
	"context"
	"log/slog"
	"sync"

	pkgkafka "github.com/natours/natours/pkg/kafka"
)

// LocalPublisher delivers events to in-process handlers when no Kafka
// brokers are configured. Each delivery runs on its own goroutine, detached
// from the publisher's cancellation. Events of topics without a handler are
// dropped.
type LocalPublisher struct {
	mu       sync.RWMutex
	handlers map[string][]pkgkafka.Handler
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewLocalPublisher creates a LocalPublisher with no subscriptions.
func NewLocalPublisher(logger *slog.Logger) *LocalPublisher {
	return &LocalPublisher{handlers: make(map[string][]pkgkafka.Handler), logger: logger}
}

// Subscribe registers h for topic.
func (p *LocalPublisher) Subscribe(topic string, h pkgkafka.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = append(p.handlers[topic], h)
}

// Publish hands evt to every handler of topic and returns immediately.
func (p *LocalPublisher) Publish(ctx context.Context, topic string, evt *pkgkafka.Event) error {
	p.mu.RLock()
	handlers := p.handlers[topic]
	p.mu.RUnlock()

	if len(handlers) == 0 {
		p.logger.DebugContext(ctx, "no local subscriber, event dropped",
			slog.String("topic", topic),
			slog.String("event_id", evt.EventID),
		)
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		p.wg.Add(1)
		go func(h pkgkafka.Handler) {
			defer p.wg.Done()
			if err := h(ctx, evt); err != nil {
				p.logger.ErrorContext(ctx, "local event handler failed",
					slog.String("topic", topic),
					slog.String("event_id", evt.EventID),
					slog.String("error", err.Error()),
				)
			}
		}(h)
	}
	return nil
}

// Close waits for in-flight deliveries.
func (p *LocalPublisher) Close() error {
	p.wg.Wait()
	return nil
}
