// Package latch implements the two synchronization primitives pages and
// resources are guarded with: a spinning shared/exclusive page latch
// with a pending bit, and a granular (IS/IX/S/SIX/X) lock built on a
// mutex and a FIFO waiter list.
package latch

import (
	"runtime"
	"sync/atomic"
)

const (
	pendingBit uint32 = 1 << 31
	countMask  uint32 = ^pendingBit
	xLock      uint32 = pendingBit | countMask
)

func isXSet(val uint32) bool  { return val&countMask == countMask }
func noSLeft(val uint32) bool { return val&countMask == 0 }
func isPSet(val uint32) bool  { return val&pendingBit != 0 }

// yieldInterval bounds how many spins pass between runtime.Gosched calls,
// so a latch held across a long critical section doesn't starve the
// scheduler.
const yieldInterval = 1000

// Page is a spinning shared/exclusive latch over a single page's state.
// State encodes a shared-holder count in the low 31 bits and a pending
// flag (an X acquisition in progress, draining S holders) in bit 31.
type Page struct {
	state atomic.Uint32
}

// LockS blocks until a shared latch is held. Multiple goroutines may
// hold S simultaneously; LockS blocks while a pending X acquisition is
// draining or an X holder is present.
func (l *Page) LockS() {
	var spins int
	for {
		expected := l.state.Load()
		if isPSet(expected) || isXSet(expected) {
			spins = spin(spins)
			continue
		}
		if l.state.CompareAndSwap(expected, expected+1) {
			return
		}
	}
}

// UnlockS releases one shared hold.
func (l *Page) UnlockS() {
	l.state.Add(^uint32(0)) // -1
}

// TryLockS attempts to acquire S without blocking.
func (l *Page) TryLockS() bool {
	expected := l.state.Load()
	if isPSet(expected) || isXSet(expected) {
		return false
	}
	return l.state.CompareAndSwap(expected, expected+1)
}

// LockX blocks until an exclusive latch is held: it first claims the
// pending bit (blocking later S/X acquirers), then spins until every
// already-held S is drained before taking the full X encoding.
func (l *Page) LockX() {
	var spins int
	for {
		expected := l.state.Load()
		if isPSet(expected) {
			spins = spin(spins)
			continue
		}
		if !l.state.CompareAndSwap(expected, expected|pendingBit) {
			continue
		}
		l.drainToX()
		return
	}
}

func (l *Page) drainToX() {
	var spins int
	for {
		expected := l.state.Load()
		if noSLeft(expected) {
			if l.state.CompareAndSwap(expected, xLock) {
				return
			}
			continue
		}
		spins = spin(spins)
	}
}

// UnlockX releases an exclusive latch, clearing both the pending bit
// and the count.
func (l *Page) UnlockX() {
	l.state.Store(0)
}

// TryLockX attempts to acquire X without blocking.
func (l *Page) TryLockX() bool {
	expected := l.state.Load()
	if isPSet(expected) || expected != 0 {
		return false
	}
	return l.state.CompareAndSwap(0, xLock)
}

// UpgradeSToX converts a held S latch (the caller's own) into X, waiting
// for any other S holders to drain first. The caller must already hold
// exactly one S.
func (l *Page) UpgradeSToX() {
	var spins int
	for {
		expected := l.state.Load()
		if isPSet(expected) {
			spins = spin(spins)
			continue
		}
		if !l.state.CompareAndSwap(expected, (expected-1)|pendingBit) {
			continue
		}
		l.drainToX()
		return
	}
}

// DowngradeXToS converts a held X latch into a single S hold.
func (l *Page) DowngradeXToS() {
	l.state.Store(1)
}

func spin(spins int) int {
	spins++
	if spins%yieldInterval == 0 {
		runtime.Gosched()
	}
	return spins
}
