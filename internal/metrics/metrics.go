// Package metrics holds the Prometheus instruments of the cache service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
	ResultFail  = "fail"
)

var (
	// Tiered cache metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of tiered cache lookups",
		},
		[]string{"cache", "tier", "result"}, // tier: l1, l2; result: hit, miss, error
	)

	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_loads_total",
			Help: "Total number of loader invocations after a cache miss",
		},
		[]string{"cache", "result"}, // result: ok, error
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of L1 invalidation messages",
		},
		[]string{"direction"}, // direction: sent, received
	)

	// Distributed lock metrics
	LockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_operations_total",
			Help: "Total number of distributed lock operations",
		},
		[]string{"op", "result"}, // result: ok, fail, error
	)

	// Hybrid cache gauges, refreshed by Collector
	HybridEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybrid_cache_entries",
			Help: "Number of hybrid cache entries by state",
		},
		[]string{"state"}, // state: total, expired, active, memory
	)

	HybridHitRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hybrid_cache_hit_rate",
			Help: "Local hit rate of the hybrid cache",
		},
	)

	// Maintenance
	CleanupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_cleanup_runs_total",
			Help: "Total number of scheduled expired-entry cleanups",
		},
		[]string{"status"}, // status: success, failed, skipped
	)

	CleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_cleanup_removed_total",
			Help: "Total number of expired entries removed by scheduled cleanup",
		},
	)

	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"source"},
	)
)

// LockResult maps a lock call outcome to its label.
func LockResult(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFail
}
