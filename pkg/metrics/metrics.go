// Package metrics provides the Prometheus registry and handler for eve-esi-scroll.
// Metrics are defined in their respective packages (scroll, httpsource,
// ratelimit, persist) to keep those packages self-contained.
//
// This package documents all available metrics and exposes them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics of the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Pagination Metrics (pkg/scroll):
//   - scroll_fetches_total{mode, operation} (Counter): Fetches issued
//   - scroll_fetch_failures_total{mode, operation} (Counter): Fetches that failed
//   - scroll_fetch_duration_seconds{mode, operation} (Histogram): Fetch duration
//   - scroll_operations_dropped_total{operation} (Counter): Operations dropped by the guard or preconditions
//   - scroll_stale_results_total (Counter): Results discarded after reset or close
//   - scroll_invariant_violations_total (Counter): Published states failing validation
//
// Upstream Metrics (pkg/httpsource):
//   - scroll_upstream_requests_total{endpoint, status} (Counter): Upstream requests by status
//   - scroll_upstream_request_duration_seconds{endpoint} (Histogram): Upstream request duration
//   - scroll_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - scroll_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Error Budget Metrics (pkg/ratelimit):
//   - scroll_upstream_errors_remaining (Gauge): Errors remaining in the upstream window
//   - scroll_upstream_blocks_total (Counter): Requests blocked at the critical threshold
//   - scroll_upstream_throttles_total (Counter): Requests throttled at the warning threshold
//
// Persistence Metrics (pkg/persist):
//   - scroll_persist_hits_total (Counter): Snapshots loaded
//   - scroll_persist_misses_total (Counter): Snapshot lookups with no entry
//   - scroll_persist_bytes (Gauge): Size of the last stored snapshot
//   - scroll_persist_errors_total{operation} (Counter): Store errors by operation
//
// Example Prometheus Queries:
//
//   # Load-more failure ratio
//   sum(rate(scroll_fetch_failures_total{operation="load_more"}[5m])) /
//   sum(rate(scroll_fetches_total{operation="load_more"}[5m]))
//
//   # Double-triggered scroll events dropped by the guard
//   rate(scroll_operations_dropped_total{operation="load_more"}[5m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(scroll_fetch_duration_seconds_bucket[5m]))
