// Package metrics documents the Prometheus metrics of the price client and
// exports them at the end of a batch run.
// All metrics are defined in their respective packages (client, pricequery,
// batch, pacing, cache) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Gatherer is the registry read by WriteTextfile. All metrics are
// registered on the default registry via promauto in their packages.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all gathered metrics to path in the text exposition
// format, for collection by the node_exporter textfile collector. The file
// is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - sefaz_requests_total{endpoint, status} (Counter): Attempts by endpoint and HTTP status or error class
//   - sefaz_request_duration_seconds{endpoint} (Histogram): Call duration by endpoint, retries and backoff included
//   - sefaz_errors_total{class} (Counter): Errors by class (client, server, rate_limit, timeout, network)
//
// Retry Metrics (pkg/client):
//   - sefaz_retries_total{error_class} (Counter): Retry attempts by error class
//   - sefaz_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - sefaz_retry_exhausted_total{error_class} (Counter): Requests that exhausted all attempts
//
// Query Metrics (pkg/pricequery):
//   - sefaz_query_outcomes_total{kind} (Counter): Queries by outcome (found, transient_failure, permanent_failure, config_error)
//   - sefaz_query_records_total (Counter): Price records returned
//
// Batch Metrics (pkg/batch):
//   - sefaz_batch_pairs_completed_total (Counter): (GTIN, region) pairs queried
//   - sefaz_batch_progress_ratio (Gauge): Completed share of the current run
//
// Pacing Metrics (pkg/pacing):
//   - sefaz_pacing_wait_seconds (Histogram): Pauses between queries
//   - sefaz_pacing_throttles_total (Counter): Cool-downs after rate-limited queries
//
// Cache Metrics (pkg/cache):
//   - sefaz_cache_hits_total (Counter): Cache hits
//   - sefaz_cache_misses_total (Counter): Cache misses
//   - sefaz_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Share of pairs that could not be asked
//   sum(sefaz_query_outcomes_total{kind=~".*_failure"}) / sum(sefaz_query_outcomes_total)
//
//   # Rate limit pressure
//   sefaz_pacing_throttles_total
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(sefaz_request_duration_seconds_bucket[5m]))
