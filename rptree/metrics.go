package rptree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts structural tree churn, for an operator watching whether
// a workload's access pattern is fragmenting a variable's storage.
type Metrics struct {
	LeafSplits  prometheus.Counter
	InnerSplits prometheus.Counter
	LeafDrops   prometheus.Counter
	InnerDrops  prometheus.Counter
}

var defaultMetrics = NewMetrics(nil)

// NewMetrics registers rptree's collectors against reg, or a private
// registry if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		LeafSplits:  f.NewCounter(prometheus.CounterOpts{Name: "numstore_rptree_leaf_splits_total"}),
		InnerSplits: f.NewCounter(prometheus.CounterOpts{Name: "numstore_rptree_inner_splits_total"}),
		LeafDrops:   f.NewCounter(prometheus.CounterOpts{Name: "numstore_rptree_leaf_drops_total"}),
		InnerDrops:  f.NewCounter(prometheus.CounterOpts{Name: "numstore_rptree_inner_drops_total"}),
	}
}
