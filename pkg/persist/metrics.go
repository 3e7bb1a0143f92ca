package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_persist_hits_total",
		Help: "Total number of snapshots loaded from Redis",
	})

	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scroll_persist_misses_total",
		Help: "Total number of snapshot lookups with no stored entry",
	})

	snapshotBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scroll_persist_bytes",
		Help: "Size in bytes of the last stored snapshot",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_persist_errors_total",
		Help: "Total number of snapshot store errors by operation",
	}, []string{"operation"})
)
