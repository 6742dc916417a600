// Package metric exposes Prometheus counters for the cache path, so a
// dashboard can tell how often listings are served from Redis versus the
// database fallback.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts listings served entirely from the cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventboard_cache_hits_total",
		Help: "Number of event listings served from the cache",
	})

	// CacheFallbacks counts listings that degraded to the database because
	// the cache was unreachable or held a corrupt entry.
	CacheFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventboard_cache_fallbacks_total",
		Help: "Number of event listings that fell back to the database",
	})

	// CacheWriteFailures counts cache mirror writes that were dropped.
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventboard_cache_write_failures_total",
		Help: "Number of cache mirror writes that failed and were dropped",
	})
)
