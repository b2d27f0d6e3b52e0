package adaptive

import "github.com/intellect4all/numstore/pkgerr"

// HashSettings bounds a Table's resizing behavior. Growth triggers when
// an Insert would take size past cap*MaxLoadFactor or past cap, whichever
// is smaller (an open-addressed arena holds at most cap entries); shrink
// triggers when size drops to cap*MinLoadFactor or below and the entries
// fit in half the capacity. RehashingWork bounds how many still-in-prev
// entries each Insert/Lookup/Delete migrates.
type HashSettings struct {
	MaxLoadFactor uint32
	MinLoadFactor uint32
	RehashingWork uint32
	MinSize       uint32
	MaxSize       uint32
}

type slot[K comparable, V any] struct {
	occupied bool
	key      K
	value    V
	psl      uint32 // probe sequence length, Robin Hood's displacement measure
}

type arena[K comparable, V any] struct {
	slots []slot[K, V]
	size  uint32
}

// Table is an open-addressed Robin Hood hash table with incremental
// rehashing between a current and a prev arena, used where a resize
// must never stall a caller mid-transaction (the transaction table, the
// granular lock table).
type Table[K comparable, V any] struct {
	settings HashSettings
	hash     func(K) uint64

	current    *arena[K, V]
	prev       *arena[K, V]
	migratePos uint32
}

// NewTable creates a Table of the given initial capacity, hashing keys
// with hash.
func NewTable[K comparable, V any](initialCapacity uint32, hash func(K) uint64, settings HashSettings) *Table[K, V] {
	if initialCapacity == 0 {
		initialCapacity = 1
	}
	return &Table[K, V]{
		settings: settings,
		hash:     hash,
		current:  &arena[K, V]{slots: make([]slot[K, V], initialCapacity)},
	}
}

// Size returns the total number of live entries across both arenas.
func (t *Table[K, V]) Size() uint32 {
	n := t.current.size
	if t.prev != nil {
		n += t.prev.size
	}
	return n
}

func robinHoodInsert[K comparable, V any](a *arena[K, V], hash func(K) uint64, key K, value V) {
	cap := uint32(len(a.slots))
	idx := uint32(hash(key) % uint64(cap))
	s := slot[K, V]{occupied: true, key: key, value: value, psl: 0}

	for {
		cur := &a.slots[idx]
		if !cur.occupied {
			*cur = s
			a.size++
			return
		}
		if cur.key == s.key {
			cur.value = s.value
			return
		}
		if cur.psl < s.psl {
			cur.psl, s.psl = s.psl, cur.psl
			cur.key, s.key = s.key, cur.key
			cur.value, s.value = s.value, cur.value
		}
		idx = (idx + 1) % cap
		s.psl++
	}
}

func robinHoodLookup[K comparable, V any](a *arena[K, V], hash func(K) uint64, key K) (*slot[K, V], bool) {
	if a == nil || len(a.slots) == 0 {
		return nil, false
	}
	cap := uint32(len(a.slots))
	idx := uint32(hash(key) % uint64(cap))
	psl := uint32(0)
	for {
		cur := &a.slots[idx]
		if !cur.occupied || psl > cur.psl {
			return nil, false
		}
		if cur.key == key {
			return cur, true
		}
		idx = (idx + 1) % cap
		psl++
	}
}

// robinHoodDelete removes key from a, backward-shifting subsequent
// entries to close the probe-sequence gap Robin Hood hashing relies on.
func robinHoodDelete[K comparable, V any](a *arena[K, V], hash func(K) uint64, key K) (V, bool) {
	var zero V
	if a == nil || len(a.slots) == 0 {
		return zero, false
	}
	cap := uint32(len(a.slots))
	idx := uint32(hash(key) % uint64(cap))
	psl := uint32(0)
	for {
		cur := &a.slots[idx]
		if !cur.occupied || psl > cur.psl {
			return zero, false
		}
		if cur.key == key {
			removed := cur.value
			next := (idx + 1) % cap
			for a.slots[next].occupied && a.slots[next].psl > 0 {
				a.slots[idx] = a.slots[next]
				a.slots[idx].psl--
				idx = next
				next = (idx + 1) % cap
			}
			a.slots[idx] = slot[K, V]{}
			a.size--
			return removed, true
		}
		idx = (idx + 1) % cap
		psl++
	}
}

func (t *Table[K, V]) migrateStep(quantum uint32) {
	if t.prev == nil {
		return
	}
	moved := uint32(0)
	for moved < quantum && t.migratePos < uint32(len(t.prev.slots)) {
		s := t.prev.slots[t.migratePos]
		if !s.occupied {
			t.migratePos++
			continue
		}
		robinHoodInsert(t.current, t.hash, s.key, s.value)
		// Deleting backward-shifts the rest of the cluster into
		// migratePos, so that slot is examined again, not skipped.
		robinHoodDelete(t.prev, t.hash, s.key)
		moved++
	}
	if t.migratePos >= uint32(len(t.prev.slots)) {
		t.prev = nil
		t.migratePos = 0
	}
}

func (t *Table[K, V]) triggerResize(newCap uint32) {
	t.finishMigration()
	t.prev = t.current
	t.current = &arena[K, V]{slots: make([]slot[K, V], newCap)}
	t.migratePos = 0
}

func (t *Table[K, V]) finishMigration() {
	if t.prev == nil {
		return
	}
	t.migrateStep(^uint32(0))
}

// Insert adds or overwrites key's value, performing one rehashing
// quantum of background migration work first.
func (t *Table[K, V]) Insert(key K, value V) error {
	t.migrateStep(t.settings.RehashingWork)

	if _, found := robinHoodLookup(t.prev, t.hash, key); found {
		robinHoodDelete(t.prev, t.hash, key)
	}

	cap := uint32(len(t.current.slots))
	loadFactor := t.settings.MaxLoadFactor
	if loadFactor == 0 {
		loadFactor = 1
	}
	threshold := cap * loadFactor
	if threshold > cap {
		threshold = cap
	}

	_, alreadyPresent := robinHoodLookup(t.current, t.hash, key)
	if !alreadyPresent && t.Size()+1 > threshold {
		newCap := cap * 2
		atMax := t.settings.MaxSize != 0 && cap >= t.settings.MaxSize
		if atMax {
			if t.Size() >= cap {
				return pkgerr.New(pkgerr.NoMem, "adaptive: hash table at max capacity")
			}
		} else {
			if t.settings.MaxSize != 0 && newCap > t.settings.MaxSize {
				newCap = t.settings.MaxSize
			}
			t.triggerResize(newCap)
		}
	}

	robinHoodInsert(t.current, t.hash, key, value)
	return nil
}

// Lookup finds key, checking current first and falling back to prev for
// entries not yet migrated.
func (t *Table[K, V]) Lookup(key K) (V, bool) {
	t.migrateStep(t.settings.RehashingWork)

	if s, ok := robinHoodLookup(t.current, t.hash, key); ok {
		return s.value, true
	}
	if s, ok := robinHoodLookup(t.prev, t.hash, key); ok {
		return s.value, true
	}
	var zero V
	return zero, false
}

// Delete removes key, checking current and falling back to prev, and
// triggers a shrink once load drops to the configured floor.
func (t *Table[K, V]) Delete(key K) (V, bool) {
	t.migrateStep(t.settings.RehashingWork)

	if v, ok := robinHoodDelete(t.current, t.hash, key); ok {
		t.maybeShrink()
		return v, true
	}
	if v, ok := robinHoodDelete(t.prev, t.hash, key); ok {
		t.maybeShrink()
		return v, true
	}
	var zero V
	return zero, false
}

func (t *Table[K, V]) maybeShrink() {
	if t.prev != nil {
		return
	}
	cap := uint32(len(t.current.slots))
	threshold := cap * t.settings.MinLoadFactor
	size := t.Size()
	if size <= threshold && size > 0 {
		newCap := cap / 2
		if newCap >= t.settings.MinSize && newCap > 0 && size < newCap {
			t.triggerResize(newCap)
		}
	}
}

// Foreach visits every live entry across both arenas; order is
// unspecified.
func (t *Table[K, V]) Foreach(fn func(K, V)) {
	for _, s := range t.current.slots {
		if s.occupied {
			fn(s.key, s.value)
		}
	}
	if t.prev != nil {
		for _, s := range t.prev.slots {
			if s.occupied {
				fn(s.key, s.value)
			}
		}
	}
}
