package adaptive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorBasic(t *testing.T) {
	a := New[int32](8, Settings{MigrationWork: 4, MaxCapacity: 1024, MinCapacity: 4})
	require.Equal(t, uint32(0), a.Size())
	require.Equal(t, uint32(8), a.Capacity())

	h1, err := a.Alloc()
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(h1), 0)
	*a.Get(h1) = 42

	h2, err := a.Calloc()
	require.NoError(t, err)
	require.Equal(t, int32(0), *a.Get(h2))
	*a.Get(h2) = 100

	require.Equal(t, int32(42), *a.Get(h1))
	require.Equal(t, int32(100), *a.Get(h2))

	require.NoError(t, a.Free(h1))
	require.Nil(t, a.Get(h1))
}

// TestAllocatorResizeUp checks Testable Property 6: handles remain
// valid and their values survive a growth-triggered migration.
func TestAllocatorResizeUp(t *testing.T) {
	a := New[uint32](4, Settings{MigrationWork: 2, MaxCapacity: 256, MinCapacity: 4})

	var handles [5]Handle
	for i := uint32(0); i < 4; i++ {
		h, err := a.Alloc()
		require.NoError(t, err)
		handles[i] = h
		*a.Get(h) = i * 10
	}
	require.Equal(t, uint32(4), a.Capacity())

	for i := uint32(0); i < 4; i++ {
		require.Equal(t, i*10, *a.Get(handles[i]))
	}

	h5, err := a.Alloc()
	require.NoError(t, err)
	handles[4] = h5
	require.Equal(t, uint32(8), a.Capacity())
	*a.Get(h5) = 40

	for i := uint32(0); i < 5; i++ {
		require.Equal(t, i*10, *a.Get(handles[i]), "handle %d", i)
	}
}

func TestAllocatorResizeDown(t *testing.T) {
	a := New[uint64](16, Settings{MigrationWork: 4, MaxCapacity: 256, MinCapacity: 4})

	var handles [17]Handle
	for i := 0; i < 16; i++ {
		h, err := a.Alloc()
		require.NoError(t, err)
		handles[i] = h
		*a.Get(h) = uint64(i) * 1000
	}

	h16, err := a.Alloc()
	require.NoError(t, err)
	handles[16] = h16
	*a.Get(h16) = 16000
	require.Equal(t, uint32(32), a.Capacity())

	for i := 0; i < 9; i++ {
		require.NoError(t, a.Free(handles[i]))
	}

	require.Equal(t, uint32(8), a.Size())
	require.Equal(t, uint32(16), a.Capacity())

	for i := 9; i < 17; i++ {
		p := a.Get(handles[i])
		require.NotNil(t, p)
		require.Equal(t, uint64(i)*1000, *p)
	}
}

// TestAllocatorHandleStableAcrossManyResizes checks Testable Property 6
// more aggressively: a single long-lived handle's value survives
// repeated grow/shrink cycles and incremental migration steps driven by
// unrelated Alloc/Free traffic.
func TestAllocatorHandleStableAcrossManyResizes(t *testing.T) {
	a := New[int](4, Settings{MigrationWork: 1, MaxCapacity: 4096, MinCapacity: 4})

	anchor, err := a.Alloc()
	require.NoError(t, err)
	*a.Get(anchor) = -1

	var churn []Handle
	for i := 0; i < 500; i++ {
		h, err := a.Alloc()
		require.NoError(t, err)
		*a.Get(h) = i
		churn = append(churn, h)
		require.Equal(t, -1, *a.Get(anchor))
	}
	for _, h := range churn {
		require.NoError(t, a.Free(h))
		require.Equal(t, -1, *a.Get(anchor))
	}
	require.Equal(t, -1, *a.Get(anchor))
}

func TestAllocatorMaxCapacity(t *testing.T) {
	a := New[int](4, Settings{MaxCapacity: 4, MinCapacity: 4})
	for i := 0; i < 4; i++ {
		_, err := a.Alloc()
		require.NoError(t, err)
	}
	_, err := a.Alloc()
	require.Error(t, err)
}
