package vardir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/pkgerr"
)

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	cfg := pager.DefaultConfig(dir)
	p, err := pager.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewThenGetRoundTrips(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)

	require.NoError(t, New(p, tid, "x", []byte("int64"), page.Pgno(7)))
	require.NoError(t, p.Commit(tid))

	entry, err := Get(p, "x")
	require.NoError(t, err)
	require.Equal(t, page.Pgno(7), entry.Root)
	require.Equal(t, []byte("int64"), entry.TypeInfo)
}

func TestGetMissingReturnsNotExist(t *testing.T) {
	p := openTestPager(t)
	_, err := Get(p, "nope")
	require.Error(t, err)
	kind, ok := pkgerr.CauseKind(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.VariableNotExist, kind)
}

func TestNewDuplicateNameRejected(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, New(p, tid, "dup", []byte("f64"), page.Pgno(5)))

	err = New(p, tid, "dup", []byte("f64"), page.Pgno(9))
	require.Error(t, err)
	kind, ok := pkgerr.CauseKind(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.DuplicateVariable, kind)
	require.NoError(t, p.Rollback(tid, 0))
}

func TestNewChainsWithinSameBucket(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)

	// Enough distinct names guarantee at least one hash-bucket collision,
	// exercising the chain walk instead of only ever hitting an empty bucket.
	names := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		names = append(names, strings.Repeat("n", 1)+string(rune('a'+i%26))+string(rune('0'+i/26)))
	}
	for i, n := range names {
		require.NoError(t, New(p, tid, n, []byte{byte(i)}, page.Pgno(100+i)))
	}
	require.NoError(t, p.Commit(tid))

	for i, n := range names {
		entry, err := Get(p, n)
		require.NoError(t, err)
		require.Equal(t, page.Pgno(100+i), entry.Root)
		require.Equal(t, []byte{byte(i)}, entry.TypeInfo)
	}
}

func TestNewSpillsIntoOverflowPages(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)

	bigType := make([]byte, page.VarHeadInlineCap+3*page.VarTailCap+17)
	for i := range bigType {
		bigType[i] = byte(i % 251)
	}
	require.NoError(t, New(p, tid, "wide", bigType, page.Pgno(42)))
	require.NoError(t, p.Commit(tid))

	entry, err := Get(p, "wide")
	require.NoError(t, err)
	require.Equal(t, page.Pgno(42), entry.Root)
	require.Equal(t, bigType, entry.TypeInfo)
}

func TestDeleteUnlinksAndTombstonesChain(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)

	bigType := make([]byte, page.VarHeadInlineCap+page.VarTailCap+5)
	require.NoError(t, New(p, tid, "gone", bigType, page.Pgno(3)))
	require.NoError(t, p.Commit(tid))

	before := p.NumPages()

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, Delete(p, tid2, "gone"))
	require.NoError(t, p.Commit(tid2))

	_, err = Get(p, "gone")
	require.Error(t, err)
	kind, ok := pkgerr.CauseKind(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.VariableNotExist, kind)

	// Deleting tombstones pages in place rather than shrinking the file.
	require.Equal(t, before, p.NumPages())

	// A fresh New() should be able to reuse the tombstoned chain.
	tid3, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, New(p, tid3, "again", []byte("u8"), page.Pgno(11)))
	require.NoError(t, p.Commit(tid3))
	require.LessOrEqual(t, p.NumPages(), before+1)
}

func TestDeleteMissingReturnsNotExist(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	err = Delete(p, tid, "missing")
	require.Error(t, err)
	kind, ok := pkgerr.CauseKind(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.VariableNotExist, kind)
}

func TestDeleteFromMiddleOfChainPreservesSiblings(t *testing.T) {
	p := openTestPager(t)
	tid, err := p.BeginTxn()
	require.NoError(t, err)

	names := []string{"one", "two", "three", "four"}
	for i, n := range names {
		require.NoError(t, New(p, tid, n, []byte{byte(i)}, page.Pgno(200+i)))
	}
	require.NoError(t, p.Commit(tid))

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, Delete(p, tid2, "two"))
	require.NoError(t, p.Commit(tid2))

	_, err = Get(p, "two")
	require.Error(t, err)

	for i, n := range names {
		if n == "two" {
			continue
		}
		entry, err := Get(p, n)
		require.NoError(t, err)
		require.Equal(t, page.Pgno(200+i), entry.Root)
	}
}
