// Package adaptive implements two handle/key-stable data structures that
// resize without ever invalidating a live reference: a clock-scanned
// slot allocator (§4.3-style) and a Robin Hood open-addressed hash table
// (§4.4-style), both migrating between a "current" and a "prev" arena in
// bounded increments instead of stopping the world on resize.
package adaptive

import "github.com/intellect4all/numstore/pkgerr"

// Settings bounds an Allocator's behavior: MigrationWork is the quantum
// of prev-arena slots moved per Alloc/Free call while a migration is in
// flight; MinCapacity/MaxCapacity floor and ceiling the current arena.
type Settings struct {
	MigrationWork uint32
	MinCapacity   uint32
	MaxCapacity   uint32
}

// Handle is a stable reference into an Allocator: its integer value
// never changes for the handle's lifetime, even as the backing arena the
// handle's data physically lives in is resized and migrated.
type Handle int32

type frame struct {
	allocated bool
	inCurrent bool
	physIdx   uint32
}

// Allocator is a typed handle pool over two arenas. Alloc returns a
// handle stable for its lifetime; Get returns a pointer into whichever
// arena currently holds the slot, which may move between calls as a
// migration progresses.
type Allocator[T any] struct {
	settings Settings

	size uint32

	currentData     []T
	currentOccupied []bool
	currentClock    uint32

	prevData     []T
	prevOccupied []bool
	migratePos   uint32

	handles []frame
}

// New creates an Allocator with the given initial capacity.
func New[T any](initialCapacity uint32, settings Settings) *Allocator[T] {
	if initialCapacity == 0 {
		initialCapacity = 1
	}
	return &Allocator[T]{
		settings:        settings,
		currentData:     make([]T, initialCapacity),
		currentOccupied: make([]bool, initialCapacity),
		handles:         make([]frame, initialCapacity),
	}
}

// Size returns the number of live handles.
func (a *Allocator[T]) Size() uint32 { return a.size }

// Capacity returns the current arena's capacity (not counting prev).
func (a *Allocator[T]) Capacity() uint32 { return uint32(len(a.currentData)) }

// Migrating reports whether a resize-triggered migration is in flight.
func (a *Allocator[T]) Migrating() bool { return a.prevData != nil }

func findFreeSlot(occupied []bool, clock *uint32) int32 {
	n := uint32(len(occupied))
	for i := uint32(0); i < n; i++ {
		idx := *clock
		*clock = (*clock + 1) % n
		if !occupied[idx] {
			return int32(idx)
		}
	}
	return -1
}

// migrateStep moves up to quantum still-in-prev handles into current,
// finalizing the migration once prev is drained.
func (a *Allocator[T]) migrateStep(quantum uint32) {
	if a.prevData == nil {
		return
	}
	moved := uint32(0)
	for moved < quantum && a.migratePos < uint32(len(a.handles)) {
		h := a.migratePos
		a.migratePos++
		fr := &a.handles[h]
		if !fr.allocated || fr.inCurrent {
			continue
		}
		newIdx := findFreeSlot(a.currentOccupied, &a.currentClock)
		if newIdx < 0 {
			// No room yet (current may itself be near full pre-resize);
			// retry this handle on the next call.
			a.migratePos--
			break
		}
		a.currentData[newIdx] = a.prevData[fr.physIdx]
		a.currentOccupied[newIdx] = true
		fr.inCurrent = true
		fr.physIdx = uint32(newIdx)
		moved++
	}
	if a.migratePos >= uint32(len(a.handles)) {
		a.finishMigration()
	}
}

func (a *Allocator[T]) finishMigration() {
	for h := range a.handles {
		fr := &a.handles[h]
		if fr.allocated && !fr.inCurrent {
			newIdx := findFreeSlot(a.currentOccupied, &a.currentClock)
			if newIdx < 0 {
				return // still no room; caller will retry via Alloc's own resize check
			}
			a.currentData[newIdx] = a.prevData[fr.physIdx]
			a.currentOccupied[newIdx] = true
			fr.inCurrent = true
			fr.physIdx = uint32(newIdx)
		}
	}
	a.prevData = nil
	a.prevOccupied = nil
	a.migratePos = 0
}

func (a *Allocator[T]) triggerResize(newCapacity uint32) {
	a.finishMigration()

	a.prevData = a.currentData
	a.prevOccupied = a.currentOccupied

	a.currentData = make([]T, newCapacity)
	a.currentOccupied = make([]bool, newCapacity)
	a.currentClock = 0
	a.migratePos = 0

	for h := range a.handles {
		if a.handles[h].allocated {
			a.handles[h].inCurrent = false
		}
	}

	if newCapacity > uint32(len(a.handles)) {
		grown := make([]frame, newCapacity)
		copy(grown, a.handles)
		a.handles = grown
	}
}

// Alloc reserves a handle and performs one migration quantum's worth of
// background work if a resize is in progress.
func (a *Allocator[T]) Alloc() (Handle, error) {
	if a.settings.MigrationWork > 0 {
		a.migrateStep(a.settings.MigrationWork)
	} else {
		a.migrateStep(^uint32(0))
	}

	if a.size >= uint32(len(a.currentData)) {
		newCap := uint32(len(a.currentData)) * 2
		if a.settings.MaxCapacity != 0 && newCap > a.settings.MaxCapacity {
			return -1, pkgerr.New(pkgerr.NoMem, "adaptive: allocator at max capacity")
		}
		a.triggerResize(newCap)
	}

	handle := -1
	for i := range a.handles {
		if !a.handles[i].allocated {
			handle = i
			break
		}
	}
	if handle == -1 {
		return -1, pkgerr.New(pkgerr.NoMem, "adaptive: no free handles")
	}

	physIdx := findFreeSlot(a.currentOccupied, &a.currentClock)
	if physIdx < 0 {
		return -1, pkgerr.New(pkgerr.NoMem, "adaptive: no free slots in current arena")
	}

	a.currentOccupied[physIdx] = true
	a.handles[handle] = frame{allocated: true, inCurrent: true, physIdx: uint32(physIdx)}
	a.size++

	return Handle(handle), nil
}

// Calloc allocates a handle and zeroes its backing storage.
func (a *Allocator[T]) Calloc() (Handle, error) {
	h, err := a.Alloc()
	if err != nil {
		return -1, err
	}
	if p := a.Get(h); p != nil {
		var zero T
		*p = zero
	}
	return h, nil
}

// Free releases a handle's physical slot, shrinking the current arena
// when occupancy drops to a quarter of capacity.
func (a *Allocator[T]) Free(h Handle) error {
	if h < 0 || int(h) >= len(a.handles) || !a.handles[h].allocated {
		return pkgerr.New(pkgerr.InvalidArgument, "adaptive: handle not allocated")
	}

	if a.settings.MigrationWork > 0 {
		a.migrateStep(a.settings.MigrationWork)
	}

	fr := a.handles[h]
	if fr.inCurrent {
		a.currentOccupied[fr.physIdx] = false
	} else if a.prevOccupied != nil {
		a.prevOccupied[fr.physIdx] = false
	}
	a.handles[h] = frame{}
	a.size--

	threshold := uint32(len(a.currentData)) / 4
	if a.size <= threshold && a.size > 0 {
		newCap := uint32(len(a.currentData)) / 2
		if newCap >= a.settings.MinCapacity {
			a.triggerResize(newCap)
		}
	}
	return nil
}

// Get returns a pointer to handle h's live data, or nil if h is not
// currently allocated. The returned pointer is only valid until the
// next Alloc/Free/migration step.
func (a *Allocator[T]) Get(h Handle) *T {
	if h < 0 || int(h) >= len(a.handles) {
		return nil
	}
	fr := a.handles[h]
	if !fr.allocated {
		return nil
	}
	if fr.inCurrent {
		return &a.currentData[fr.physIdx]
	}
	return &a.prevData[fr.physIdx]
}
