// Package metrics exposes Prometheus counters for the acceleration layer.
// Everything here is observational: counters inform offline analysis and
// dashboards, never control flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counter families. Create one per process with New.
type Metrics struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheSets    *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	probeResults *prometheus.CounterVec
	prefetches   *prometheus.CounterVec
	originErrors prometheus.Counter
}

// New registers the counter families with the given registerer. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_cache_hits_total",
			Help: "Cache hits by key category.",
		}, []string{"category"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_cache_misses_total",
			Help: "Cache misses by key category.",
		}, []string{"category"}),
		cacheSets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_cache_sets_total",
			Help: "Cache writes by key category.",
		}, []string{"category"}),
		cacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_cache_errors_total",
			Help: "Store errors by key category, degraded to misses.",
		}, []string{"category"}),
		probeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_probe_results_total",
			Help: "Cache-existence probe outcomes.",
		}, []string{"result"}),
		prefetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchaccel_prefetch_total",
			Help: "Prefetch job outcomes.",
		}, []string{"outcome"}),
		originErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchaccel_origin_errors_total",
			Help: "Failed origin fetches on any path.",
		}),
	}
}

// store.Observer implementation.

func (m *Metrics) CacheHit(category string)   { m.cacheHits.WithLabelValues(category).Inc() }
func (m *Metrics) CacheMiss(category string)  { m.cacheMisses.WithLabelValues(category).Inc() }
func (m *Metrics) CacheSet(category string)   { m.cacheSets.WithLabelValues(category).Inc() }
func (m *Metrics) CacheError(category string) { m.cacheErrors.WithLabelValues(category).Inc() }

// ProbeResult records a probe outcome: "hit", "miss" or "timeout".
func (m *Metrics) ProbeResult(result string) { m.probeResults.WithLabelValues(result).Inc() }

// Prefetch records a prefetch job outcome: "cached", "skipped", "failed" or
// "dropped".
func (m *Metrics) Prefetch(outcome string) { m.prefetches.WithLabelValues(outcome).Inc() }

// OriginError records a failed origin fetch.
func (m *Metrics) OriginError() { m.originErrors.Inc() }
