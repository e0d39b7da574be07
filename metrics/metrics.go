// Package metrics collects the Prometheus instrumentation for the
// indexlet manager, config cache, and RPC wrapper stack, mirroring the
// teacher's index_manager.go vectors (ReindexTaskCount, ReindexResults, ...)
// renamed to this domain.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RPCRetries counts every time a wrapper re-enters send() instead of
	// finishing, labeled by wrapper kind and the reason for the retry.
	RPCRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ramcloud",
		Subsystem: "rpc",
		Name:      "retries_total",
	}, []string{"wrapper", "reason"})

	// RPCDuration observes wall-clock time from the first Send to FINISHED.
	// RPCs that end CANCELED or FAILED are not observed.
	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ramcloud",
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"wrapper"})

	// ConfigCacheLookups counts tablet/indexlet directory lookups by
	// outcome, the client-side analogue of the teacher's index cache hit
	// tracking.
	ConfigCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ramcloud",
		Subsystem: "config_cache",
		Name:      "lookups_total",
	}, []string{"kind", "result"})

	// IndexletScanTruncated counts lookupIndexKeys calls that hit the
	// maxNumHashes budget before exhausting [firstKey, lastKey].
	IndexletScanTruncated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ramcloud",
		Subsystem: "indexlet",
		Name:      "scan_truncated_total",
	}, []string{"table", "index"})
)

func init() {
	prometheus.MustRegister(RPCRetries, RPCDuration, ConfigCacheLookups, IndexletScanTruncated)
}
