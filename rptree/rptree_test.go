package rptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/walfile"
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

func newTestTree(t *testing.T, p *pager.Pager) *Tree {
	t.Helper()
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	root, err := New(p, tid)
	require.NoError(t, err)
	require.NoError(t, p.Commit(tid))
	return Open(p, root)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestInsertIntoEmptyTreeThenRead(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	data := []byte("hello rptree")
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, data, 1, len(data)))
	require.NoError(t, p.Commit(tid))

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), size)

	dest := make([]byte, len(data))
	n, err := tr.Read(dest, 1, 0, 1, len(data))
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, dest)
}

func TestInsertAppendAtEnd(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("abc"), 1, 3))
	require.NoError(t, tr.Insert(tid, 3, []byte("def"), 1, 3))
	require.NoError(t, p.Commit(tid))

	dest := make([]byte, 6)
	n, err := tr.Read(dest, 1, 0, 1, 6)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, []byte("abcdef"), dest)
}

func TestInsertCausesLeafSplit(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	big := pattern(page.DataListCap + 1000)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, big, 1, len(big)))
	require.NoError(t, p.Commit(tid))

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(len(big)), size)

	dest := make([]byte, len(big))
	n, err := tr.Read(dest, 1, 0, 1, len(big))
	require.NoError(t, err)
	require.Equal(t, len(big), n)
	require.Equal(t, big, dest)
}

func TestInsertCausesMultiLevelSplits(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	huge := pattern(page.DataListCap*page.M*2 + 777)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, huge, 1, len(huge)))
	require.NoError(t, p.Commit(tid))

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(len(huge)), size)

	dest := make([]byte, len(huge))
	n, err := tr.Read(dest, 1, 0, 1, len(huge))
	require.NoError(t, err)
	require.Equal(t, len(huge), n)
	require.Equal(t, huge, dest)
}

func TestInsertInMiddleShiftsTail(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("acd"), 1, 3))
	require.NoError(t, tr.Insert(tid, 1, []byte("b"), 1, 1))
	require.NoError(t, p.Commit(tid))

	dest := make([]byte, 4)
	n, err := tr.Read(dest, 1, 0, 1, 4)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("abcd"), dest)
}

func TestWriteStridedSingleLeafFastPath(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	// 4 elements of 2 bytes each, 4-byte stride: positions 0,4,8,12.
	data := make([]byte, 16)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, data, 1, len(data)))
	require.NoError(t, p.Commit(tid))

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, tr.Write(tid2, src, 2, 0, 4, 4))
	require.NoError(t, p.Commit(tid2))

	dest := make([]byte, 16)
	n, err := tr.Read(dest, 1, 0, 1, 16)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, []byte{1, 2, 0, 0, 3, 4, 0, 0, 5, 6, 0, 0, 7, 8, 0, 0}, dest)

	rdest := make([]byte, 8)
	n, err = tr.Read(rdest, 2, 0, 4, 4)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, src, rdest)
}

func TestWriteStridedFallbackAcrossLeaves(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	total := page.DataListCap*2 + 100
	data := pattern(total)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, data, 1, len(data)))
	require.NoError(t, p.Commit(tid))

	// Stride spans well past a single leaf, forcing the fallback path.
	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	stride := page.DataListCap + 10
	src := []byte{0xAA, 0xBB, 0xAA, 0xBB}
	require.NoError(t, tr.Write(tid2, src, 2, 5, stride, 2))
	require.NoError(t, p.Commit(tid2))

	got := make([]byte, 2)
	n, err := tr.Read(got, 2, 5, stride, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{0xAA, 0xBB}, got)

	n, err = tr.Read(got, 2, 5+stride, stride, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{0xAA, 0xBB}, got)
}

func TestReadPastEndIsShort(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("abcdef"), 1, 6))
	require.NoError(t, p.Commit(tid))

	dest := make([]byte, 4)
	n, err := tr.Read(dest, 2, 4, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("ef"), dest[:2])
}

func TestRemoveCompactsLeafInPlace(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("abcdefgh"), 1, 8))
	require.NoError(t, p.Commit(tid))

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	dest := make([]byte, 2)
	require.NoError(t, tr.Remove(tid2, dest, 2, 2, 0, 1))
	require.NoError(t, p.Commit(tid2))

	require.Equal(t, []byte("cd"), dest)

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(6), size)

	out := make([]byte, 6)
	n, err := tr.Read(out, 1, 0, 1, 6)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, []byte("abefgh"), out)
}

func TestRemoveStridedHighestOffsetFirst(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("0123456789"), 1, 10))
	require.NoError(t, p.Commit(tid))

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	dest := make([]byte, 3)
	// remove single bytes at offsets 2, 4, 6 (stride 2, 3 elements).
	require.NoError(t, tr.Remove(tid2, dest, 1, 2, 2, 3))
	require.NoError(t, p.Commit(tid2))

	require.Equal(t, []byte("246"), dest)

	out := make([]byte, 7)
	n, err := tr.Read(out, 1, 0, 1, 7)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, []byte("0135789"), out)
}

func TestRemoveAllCollapsesToEmptyTree(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, []byte("abcd"), 1, 4))
	require.NoError(t, p.Commit(tid))

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Remove(tid2, nil, 4, 0, 4, 1))
	require.NoError(t, p.Commit(tid2))

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(0), size)

	n, err := tr.Read(make([]byte, 4), 1, 0, 1, 4)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDestroyTombstonesEveryPage(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	total := page.DataListCap*page.M*2 + 777
	data := pattern(total)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, data, 1, len(data)))
	require.NoError(t, p.Commit(tid))

	before := p.NumPages()

	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Destroy(tid2))
	require.NoError(t, p.Commit(tid2))

	// Tombstoning doesn't shrink the file, only marks pages free.
	require.Equal(t, before, p.NumPages())
}

func TestRemoveAcrossMultiLevelTreeCollapsesRoot(t *testing.T) {
	p := openTestPager(t)
	tr := newTestTree(t, p)

	total := page.DataListCap*page.M + 500
	data := pattern(total)
	tid, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Insert(tid, 0, data, 1, len(data)))
	require.NoError(t, p.Commit(tid))

	// Remove everything but the first 10 bytes, highest offset first via
	// a single large remove.
	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.Remove(tid2, nil, total-10, 10, 1, 1))
	require.NoError(t, p.Commit(tid2))

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(10), size)

	out := make([]byte, 10)
	n, err := tr.Read(out, 1, 0, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, data[:10], out)
}

// newLeaf allocates a DATA_LIST page with used bytes at its front, for
// hand-assembling a tree shape too deep for Insert to reach cheaply.
// Prev/Next default to page.Null, not the zero Pgno, which would
// otherwise alias a real page.
func newLeaf(t *testing.T, p *pager.Pager, tid walfile.TxnID, used int) page.Pgno {
	t.Helper()
	pg, err := p.New(tid, page.TypeDataList)
	require.NoError(t, err)
	dl := &page.DataList{Prev: page.Null, Next: page.Null, Used: uint16(used)}
	page.EncodeDataList(pg, dl)
	require.NoError(t, p.Release(pg.Pgno, page.MaskOf(page.TypeDataList)))
	return pg.Pgno
}

// newInner allocates an INNER page from in, defaulting Prev/Next to
// page.Null if the caller left them unset.
func newInner(t *testing.T, p *pager.Pager, tid walfile.TxnID, in *page.Inner) page.Pgno {
	t.Helper()
	if in.Prev == 0 {
		in.Prev = page.Null
	}
	if in.Next == 0 {
		in.Next = page.Null
	}
	pg, err := p.New(tid, page.TypeInner)
	require.NoError(t, err)
	page.EncodeInner(pg, in)
	require.NoError(t, p.Release(pg.Pgno, page.MaskOf(page.TypeInner)))
	return pg.Pgno
}

func readInner(t *testing.T, p *pager.Pager, pgno page.Pgno) *page.Inner {
	t.Helper()
	pg, err := p.Get(pgno, page.MaskOf(page.TypeInner))
	require.NoError(t, err)
	in, err := page.DecodeInner(pg)
	require.NoError(t, err)
	require.NoError(t, p.Release(pgno, page.MaskOf(page.TypeInner)))
	return in
}

// TestRemoveUnderfullInnerMergesWithRightSibling builds a three-level
// tree (root -> innerA -> {innerB1, innerB2} -> leaves) by hand, then
// removes innerB1's only entry that wouldn't leave it empty, dropping
// it to 1 entry (well below page.M/2). Since innerB1 and innerB2
// together fit in one node, propagateRemove must fold them into one
// merged node rather than leaving innerB1 underfull.
func TestRemoveUnderfullInnerMergesWithRightSibling(t *testing.T) {
	p := openTestPager(t)

	tid, err := p.BeginTxn()
	require.NoError(t, err)

	l1 := newLeaf(t, p, tid, 10)
	l2 := newLeaf(t, p, tid, 10)
	l3 := newLeaf(t, p, tid, 10)
	l4 := newLeaf(t, p, tid, 10)

	innerB1 := newInner(t, p, tid, &page.Inner{
		Entries: []page.InnerEntry{{Key: 10, Leaf: l1}, {Key: 10, Leaf: l2}},
	})
	innerB2 := newInner(t, p, tid, &page.Inner{
		Entries: []page.InnerEntry{{Key: 10, Leaf: l3}, {Key: 10, Leaf: l4}},
	})
	// Link innerB1 <-> innerB2 as sibling leaf-level inner nodes.
	b1, err := p.GetWritable(innerB1, page.MaskOf(page.TypeInner), tid)
	require.NoError(t, err)
	b1in, err := page.DecodeInner(b1)
	require.NoError(t, err)
	b1in.Next = innerB2
	page.EncodeInner(b1, b1in)
	require.NoError(t, p.Release(innerB1, page.MaskOf(page.TypeInner)))

	b2, err := p.GetWritable(innerB2, page.MaskOf(page.TypeInner), tid)
	require.NoError(t, err)
	b2in, err := page.DecodeInner(b2)
	require.NoError(t, err)
	b2in.Prev = innerB1
	page.EncodeInner(b2, b2in)
	require.NoError(t, p.Release(innerB2, page.MaskOf(page.TypeInner)))

	innerA := newInner(t, p, tid, &page.Inner{
		Entries: []page.InnerEntry{{Key: 20, Leaf: innerB1}, {Key: 20, Leaf: innerB2}},
	})

	rootPgno, err := New(p, tid)
	require.NoError(t, err)
	require.NoError(t, p.Commit(tid))

	tr := Open(p, rootPgno)
	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.writeRoot(tid2, page.RPTRoot{Top: innerA, TopIsLeaf: false, TotalSize: 40}))

	// Remove all 10 bytes of l1, dropping innerB1 to its other entry
	// alone: 1 entry, far below page.M/2.
	require.NoError(t, tr.removeAt(tid2, 0, 10))
	require.NoError(t, p.Commit(tid2))

	// innerB1 absorbed innerB2's entries; innerB2 was dropped entirely.
	b1After := readInner(t, p, innerB1)
	require.Equal(t, []page.InnerEntry{{Key: 10, Leaf: l2}, {Key: 10, Leaf: l3}, {Key: 10, Leaf: l4}}, b1After.Entries)
	require.Equal(t, page.Null, b1After.Next)

	aAfter := readInner(t, p, innerA)
	require.Equal(t, []page.InnerEntry{{Key: 30, Leaf: innerB1}}, aAfter.Entries)

	size, err := tr.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(30), size)
}

// TestRemoveUnderfullInnerBorrowsFromRightSibling builds the same shape
// as the merge test, but with innerB2 already at page.M capacity so a
// full merge would overflow it. propagateRemove must fall back to
// borrowing a single entry from innerB2 instead, leaving innerB2
// intact (minus one entry) and innerA's key for it updated to match.
func TestRemoveUnderfullInnerBorrowsFromRightSibling(t *testing.T) {
	p := openTestPager(t)

	tid, err := p.BeginTxn()
	require.NoError(t, err)

	l1 := newLeaf(t, p, tid, 10)
	l2 := newLeaf(t, p, tid, 10)

	fullEntries := make([]page.InnerEntry, page.M)
	for i := range fullEntries {
		fullEntries[i] = page.InnerEntry{Key: 1, Leaf: page.Pgno(90000 + i)}
	}

	innerB1 := newInner(t, p, tid, &page.Inner{
		Entries: []page.InnerEntry{{Key: 10, Leaf: l1}, {Key: 10, Leaf: l2}},
	})
	innerB2 := newInner(t, p, tid, &page.Inner{Entries: fullEntries})

	b1, err := p.GetWritable(innerB1, page.MaskOf(page.TypeInner), tid)
	require.NoError(t, err)
	b1in, err := page.DecodeInner(b1)
	require.NoError(t, err)
	b1in.Next = innerB2
	page.EncodeInner(b1, b1in)
	require.NoError(t, p.Release(innerB1, page.MaskOf(page.TypeInner)))

	b2, err := p.GetWritable(innerB2, page.MaskOf(page.TypeInner), tid)
	require.NoError(t, err)
	b2in, err := page.DecodeInner(b2)
	require.NoError(t, err)
	b2in.Prev = innerB1
	page.EncodeInner(b2, b2in)
	require.NoError(t, p.Release(innerB2, page.MaskOf(page.TypeInner)))

	innerA := newInner(t, p, tid, &page.Inner{
		Entries: []page.InnerEntry{{Key: 20, Leaf: innerB1}, {Key: uint64(page.M), Leaf: innerB2}},
	})

	rootPgno, err := New(p, tid)
	require.NoError(t, err)
	require.NoError(t, p.Commit(tid))

	tr := Open(p, rootPgno)
	tid2, err := p.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, tr.writeRoot(tid2, page.RPTRoot{Top: innerA, TopIsLeaf: false, TotalSize: uint64(20 + page.M)}))

	require.NoError(t, tr.removeAt(tid2, 0, 10))
	require.NoError(t, p.Commit(tid2))

	b1After := readInner(t, p, innerB1)
	require.Equal(t, []page.InnerEntry{{Key: 10, Leaf: l2}, fullEntries[0]}, b1After.Entries)
	require.Equal(t, innerB2, b1After.Next, "borrowing leaves the sibling itself in place")

	b2After := readInner(t, p, innerB2)
	require.Equal(t, fullEntries[1:], b2After.Entries)
	require.Equal(t, innerB1, b2After.Prev)

	aAfter := readInner(t, p, innerA)
	require.Equal(t, uint64(11), aAfter.Entries[0].Key)
	require.Equal(t, uint64(page.M-1), aAfter.Entries[1].Key)
}
