package latch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPageBasicShared(t *testing.T) {
	var l Page
	l.LockS()
	require.Greater(t, l.state.Load(), uint32(0))
	require.False(t, isPSet(l.state.Load()))
	l.UnlockS()
	require.Equal(t, uint32(0), l.state.Load())
}

func TestPageBasicExclusive(t *testing.T) {
	var l Page
	l.LockX()
	require.True(t, isPSet(l.state.Load()))
	require.True(t, isXSet(l.state.Load()))
	l.UnlockX()
	require.Equal(t, uint32(0), l.state.Load())
}

func TestPageMultipleSharedOneGoroutine(t *testing.T) {
	var l Page
	l.LockS()
	l.LockS()
	l.LockS()
	require.Equal(t, uint32(3), l.state.Load()&countMask)
	l.UnlockS()
	l.UnlockS()
	l.UnlockS()
	require.Equal(t, uint32(0), l.state.Load())
}

// TestPageSXExclusive checks Testable Property 4: an X latch holder
// excludes every other S/X acquirer until released.
func TestPageSXExclusive(t *testing.T) {
	var l Page
	var sAcquired, xPending, xAcquired atomic.Bool

	l.LockS()
	sAcquired.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		xPending.Store(true)
		l.LockX()
		xAcquired.Store(true)
		l.UnlockX()
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, sAcquired.Load())
	require.False(t, xAcquired.Load())

	l.UnlockS()
	wg.Wait()
	require.True(t, xAcquired.Load())
	require.Equal(t, uint32(0), l.state.Load())
}

// TestPagePendingBlocksNewShared checks that once an X waiter sets the
// pending bit, later S acquirers block behind it instead of starving it.
func TestPagePendingBlocksNewShared(t *testing.T) {
	var l Page
	var sBlocked atomic.Bool

	l.LockS() // held by "t1"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.LockX()
		l.UnlockX()
	}()
	time.Sleep(10 * time.Millisecond) // let X set pending

	go func() {
		defer wg.Done()
		l.LockS()
		sBlocked.Store(true)
		l.UnlockS()
	}()
	time.Sleep(10 * time.Millisecond)
	require.False(t, sBlocked.Load())

	l.UnlockS()
	wg.Wait()
	require.True(t, sBlocked.Load())
}

func TestPageXWaitsForMultipleShared(t *testing.T) {
	var l Page
	l.LockS()
	l.LockS()
	l.LockS()

	var xAcquired atomic.Bool
	done := make(chan struct{})
	go func() {
		l.LockX()
		xAcquired.Store(true)
		l.UnlockX()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.False(t, xAcquired.Load())

	l.UnlockS()
	l.UnlockS()
	require.False(t, xAcquired.Load())
	l.UnlockS()

	<-done
	require.True(t, xAcquired.Load())
}

func TestPageDataRaceProtection(t *testing.T) {
	var l Page
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.LockX()
				old := counter
				counter = old + 1
				l.UnlockX()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 500, counter)
}

func TestPageUpgradeDowngrade(t *testing.T) {
	var l Page
	l.LockS()
	l.UpgradeSToX()
	require.True(t, isXSet(l.state.Load()))
	l.DowngradeXToS()
	require.Equal(t, uint32(1), l.state.Load())
	l.UnlockS()
}
