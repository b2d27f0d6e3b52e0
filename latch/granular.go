package latch

import (
	"container/list"
	"sync"
)

// Mode is a granular (multi-granularity) lock mode: intention-shared,
// intention-exclusive, shared, shared-intention-exclusive, exclusive.
type Mode int

const (
	IS Mode = iota
	IX
	S
	SIX
	X
	modeCount
)

func (m Mode) String() string {
	switch m {
	case IS:
		return "IS"
	case IX:
		return "IX"
	case S:
		return "S"
	case SIX:
		return "SIX"
	case X:
		return "X"
	default:
		return "INVALID"
	}
}

// compatible[requested][held] reports whether a new holder in mode
// `requested` may proceed given an existing holder in mode `held`.
var compatible = [modeCount][modeCount]bool{
	IS:  {IS: true, IX: true, S: true, SIX: true, X: false},
	IX:  {IS: true, IX: true, S: false, SIX: false, X: false},
	S:   {IS: true, IX: false, S: true, SIX: false, X: false},
	SIX: {IS: true, IX: false, S: false, SIX: false, X: false},
	X:   {IS: false, IX: false, S: false, SIX: false, X: false},
}

// Granular is a multi-granularity lock over a single resource (a page,
// a variable, the whole tree) with a FIFO waiter list. Unlike Page it
// blocks on a condition variable instead of spinning, since granular
// locks may be held for the duration of a whole transaction.
type Granular struct {
	mu           sync.Mutex
	cond         sync.Cond
	holderCounts [modeCount]int
	waiters      *list.List // of *waiter, FIFO order
}

type waiter struct {
	mode  Mode
	woken bool
}

// NewGranular returns a lock with no current holders.
func NewGranular() *Granular {
	g := &Granular{waiters: list.New()}
	g.cond.L = &g.mu
	return g
}

func (g *Granular) isCompatibleLocked(mode Mode) bool {
	for held := Mode(0); held < modeCount; held++ {
		if g.holderCounts[held] > 0 && !compatible[mode][held] {
			return false
		}
	}
	return true
}

// Lock blocks until mode can be granted given the current holders,
// queueing FIFO behind any earlier waiter of an incompatible mode.
func (g *Granular) Lock(mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiters.Len() == 0 && g.isCompatibleLocked(mode) {
		g.holderCounts[mode]++
		return
	}

	w := &waiter{mode: mode}
	elem := g.waiters.PushBack(w)
	for !w.woken {
		g.cond.Wait()
	}
	g.waiters.Remove(elem)
}

// TryLock attempts to acquire mode without blocking; it never jumps the
// FIFO queue — if anyone is already waiting, TryLock fails.
func (g *Granular) TryLock(mode Mode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiters.Len() > 0 || !g.isCompatibleLocked(mode) {
		return false
	}
	g.holderCounts[mode]++
	return true
}

// Unlock releases one hold of mode and wakes any now-compatible waiters
// in FIFO order. It returns true if the resource has no remaining
// holders or waiters.
func (g *Granular) Unlock(mode Mode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holderCounts[mode] <= 0 {
		return false
	}
	g.holderCounts[mode]--

	g.wakeCompatibleLocked()

	anyHolders := false
	for m := Mode(0); m < modeCount; m++ {
		if g.holderCounts[m] > 0 {
			anyHolders = true
			break
		}
	}
	return !anyHolders && g.waiters.Len() == 0
}

// wakeCompatibleLocked marks the longest compatible prefix of waiters as
// woken, preserving FIFO: a waiter only wakes once every waiter ahead of
// it is either already granted or also compatible, so a blocked X waiter
// still stops a later IS waiter from cutting the line.
func (g *Granular) wakeCompatibleLocked() {
	woke := false
	for e := g.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		if w.woken {
			continue
		}
		if !g.isCompatibleLocked(w.mode) {
			break
		}
		w.woken = true
		// Tentatively count this waiter as a holder so later waiters in
		// the same wake pass see an accurate compatibility picture.
		g.holderCounts[w.mode]++
		woke = true
	}
	if woke {
		g.cond.Broadcast()
	}
}
