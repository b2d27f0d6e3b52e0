// Package nslog provides the storage engine's structured logger: one
// process-wide root logger with named children per subsystem, the way
// zap.Logger.Named is intended to be used, replacing the single ns_log
// macro the original C source used for every component.
package nslog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.Mutex
	root *zap.Logger
)

// init installs a sane production default so packages that never call
// SetRoot (e.g. unit tests that don't care about log output) still get a
// working logger instead of a nil pointer panic.
func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	root = l
}

// SetRoot replaces the process-wide root logger, for an embedder or a
// test that wants something other than the production default. Loggers
// already returned by Named keep the root they were derived from.
func SetRoot(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

// Named returns a child logger scoped to component, e.g. "pager", "wal",
// "recovery", "rptree", "vardir".
func Named(component string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return root.Named(component)
}

// Nop returns a logger that discards everything, for tests that want to
// silence output entirely regardless of the process root.
func Nop() *zap.Logger { return zap.NewNop() }
