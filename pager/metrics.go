package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pager's prometheus collectors: cache effectiveness,
// buffer-pool occupancy, and the dirty-page table's size. A Pager opened
// without an explicit *Metrics gets one registered against a private
// registry, so tests never collide with a process-wide default registry.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	Evictions   prometheus.Counter
	CachedPages prometheus.Gauge
	DirtyPages  prometheus.Gauge
}

// NewMetrics registers the pager's collectors against reg. A nil reg
// creates a private registry, so callers that don't care about scraping
// (most tests) can pass nil without polluting prometheus's default
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		CacheHits:   f.NewCounter(prometheus.CounterOpts{Name: "numstore_pager_cache_hits_total"}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{Name: "numstore_pager_cache_misses_total"}),
		Evictions:   f.NewCounter(prometheus.CounterOpts{Name: "numstore_pager_evictions_total"}),
		CachedPages: f.NewGauge(prometheus.GaugeOpts{Name: "numstore_pager_cached_pages"}),
		DirtyPages:  f.NewGauge(prometheus.GaugeOpts{Name: "numstore_pager_dirty_pages"}),
	}
}
