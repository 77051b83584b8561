package ratings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "natours",
		Name:      "ratings_recompute_total",
		Help:      "Tour rating recomputes by outcome",
	}, []string{"outcome"})

	recomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "natours",
		Name:      "ratings_recompute_duration_seconds",
		Help:      "Duration of a recompute-and-apply of one tour",
		Buckets:   prometheus.DefBuckets,
	})

	recomputeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "natours",
		Name:      "ratings_recompute_retries_total",
		Help:      "Inline retries of failed recomputes",
	})

	recomputeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "natours",
		Name:      "ratings_recompute_failures_total",
		Help:      "Recomputes that exhausted their inline attempts",
	})
)
