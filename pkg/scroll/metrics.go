package scroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pagination operations.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_fetches_total",
		Help: "Total number of fetches issued by mode and operation",
	}, []string{"mode", "operation"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_fetch_failures_total",
		Help: "Total number of failed fetches by mode and operation",
	}, []string{"mode", "operation"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scroll_fetch_duration_seconds",
		Help:    "Fetch duration in seconds by mode and operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"mode", "operation"})

	operationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_operations_dropped_total",
		Help: "Total number of operations dropped because they were not permitted",
	}, []string{"operation"})

	staleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_stale_results_total",
		Help: "Total number of fetch results discarded after reset or close",
	})

	invariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_invariant_violations_total",
		Help: "Total number of published states that failed validation",
	})
)
