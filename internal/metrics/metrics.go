// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_lifecycle_transitions_total",
		Help: "Committed booking and payment transitions by event",
	}, []string{"event"})

	LifecycleRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_lifecycle_rejections_total",
		Help: "Lifecycle operations refused by a domain rule",
	}, []string{"operation", "kind"})

	StalePaymentsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_stale_payments_expired_total",
		Help: "Pending payments failed by the sweeper",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route", "status"})

	QueueTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_queue_tasks_total",
		Help: "Queue tasks by type and outcome",
	}, []string{"type", "outcome"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "booking_queue_depth",
		Help: "Tasks waiting in each redis list",
	}, []string{"queue"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
