// Package metrics aggregates the storage engine's per-subsystem
// prometheus collectors (pager, recovery, rptree) behind one registry
// and exposes it for scraping, the way a long-running numstored process
// would. Each subsystem already follows the promauto.With(reg)-or-
// private-registry pattern on its own (pager.Metrics, recovery.Metrics,
// rptree.Metrics); this package just gives an embedder one registry to
// construct them all against instead of three private ones.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intellect4all/numstore/numstore"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/recovery"
	"github.com/intellect4all/numstore/rptree"
)

// Registry bundles one process's prometheus registry with every
// subsystem's collector set, constructed together so they share a
// single scrape endpoint.
type Registry struct {
	reg *prometheus.Registry

	Pager    *pager.Metrics
	Recovery *recovery.Metrics
	RPTree   *rptree.Metrics
}

// New constructs a fresh prometheus registry and registers every
// subsystem's collectors against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	return &Registry{
		reg:      reg,
		Pager:    pager.NewMetrics(reg),
		Recovery: recovery.NewMetrics(reg),
		RPTree:   rptree.NewMetrics(reg),
	}
}

// Handler returns an http.Handler serving this registry's metrics in
// the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Apply copies this registry's collector sets into cfg, so a caller that
// wants one scrape endpoint for the whole process can build a Registry
// once and hand it to numstore.Open instead of wiring each subsystem's
// metrics field by hand.
func (r *Registry) Apply(cfg numstore.Config) numstore.Config {
	cfg.PagerMetrics = r.Pager
	cfg.RecoveryMetrics = r.Recovery
	cfg.TreeMetrics = r.RPTree
	return cfg
}
