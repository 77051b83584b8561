package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConsumerMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_messages_received_total",
			Help:      "Kafka messages fetched from the broker",
		},
		[]string{"topic", "consumer_group"},
	)

	ConsumerMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_messages_processed_total",
			Help:      "Kafka messages handled successfully",
		},
		[]string{"topic", "consumer_group"},
	)

	ConsumerMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_messages_failed_total",
			Help:      "Kafka messages that failed all retries",
		},
		[]string{"topic", "consumer_group"},
	)

	ConsumerDLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_dlq_published_total",
			Help:      "Kafka messages published to a dead-letter topic",
		},
		[]string{"topic", "consumer_group"},
	)

	ConsumerMessagesDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_messages_duplicate_total",
			Help:      "Kafka events skipped by the idempotency guard",
		},
		[]string{"event_type"},
	)

	ConsumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "natours",
			Name:      "kafka_consumer_processing_duration_seconds",
			Help:      "Time spent handling one Kafka message, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	ProducerMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_producer_messages_published_total",
			Help:      "Kafka messages published",
		},
		[]string{"topic"},
	)

	ProducerPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "natours",
			Name:      "kafka_producer_publish_errors_total",
			Help:      "Kafka publish failures",
		},
		[]string{"topic"},
	)

	ProducerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "natours",
			Name:      "kafka_producer_publish_duration_seconds",
			Help:      "Duration of Kafka publish calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
