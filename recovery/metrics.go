package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what one recovery run did, for an operator to confirm a
// restart actually found and repaired something (or didn't).
type Metrics struct {
	RedoApplied   prometheus.Counter
	UndoApplied   prometheus.Counter
	LosersRolledBack prometheus.Counter
}

var defaultMetrics = NewMetrics(nil)

// NewMetrics registers recovery's collectors against reg, or a private
// registry if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		RedoApplied:      f.NewCounter(prometheus.CounterOpts{Name: "numstore_recovery_redo_applied_total"}),
		UndoApplied:      f.NewCounter(prometheus.CounterOpts{Name: "numstore_recovery_undo_applied_total"}),
		LosersRolledBack: f.NewCounter(prometheus.CounterOpts{Name: "numstore_recovery_losers_rolled_back_total"}),
	}
}
