package database

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/event"
)

var (
	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "natours",
			Subsystem: "mongo",
			Name:      "command_duration_seconds",
			Help:      "Duration of MongoDB commands",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"command", "collection", "outcome"},
	)

	poolOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "natours",
		Subsystem: "mongo",
		Name:      "pool_open_connections",
		Help:      "Connections currently open in the driver pool",
	})

	poolCheckedOut = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "natours",
		Subsystem: "mongo",
		Name:      "pool_checked_out_connections",
		Help:      "Connections currently checked out of the pool",
	})

	poolCheckoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "natours",
		Subsystem: "mongo",
		Name:      "pool_checkout_failures_total",
		Help:      "Failed connection checkouts by reason",
	}, []string{"reason"})

	poolCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "natours",
		Subsystem: "mongo",
		Name:      "pool_cleared_total",
		Help:      "Times the pool was cleared after a server error",
	})
)

// NewPoolMonitor returns a driver pool monitor maintaining the pool gauges.
func NewPoolMonitor() *event.PoolMonitor {
	return &event.PoolMonitor{Event: observePoolEvent}
}

func observePoolEvent(e *event.PoolEvent) {
	switch e.Type {
	case event.ConnectionCreated:
		poolOpenConnections.Inc()
	case event.ConnectionClosed:
		poolOpenConnections.Dec()
	case event.GetSucceeded:
		poolCheckedOut.Inc()
	case event.ConnectionReturned:
		poolCheckedOut.Dec()
	case event.GetFailed:
		poolCheckoutFailures.WithLabelValues(e.Reason).Inc()
	case event.PoolCleared:
		poolCleared.Inc()
	}
}
