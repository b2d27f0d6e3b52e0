package rptree

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/walfile"
	"go.uber.org/zap"
)

// Insert splices nelem*size bytes of src into the tree starting at byte
// offset bofst, per spec §4.7.3.
func (t *Tree) Insert(tid walfile.TxnID, bofst int, src []byte, size, nelem int) error {
	n := size * nelem
	if n == 0 {
		return nil
	}
	return t.insertAt(tid, uint64(bofst), src[:n])
}

func (t *Tree) insertAt(tid walfile.TxnID, offset uint64, data []byte) error {
	root, err := t.readRoot()
	if err != nil {
		return err
	}
	if root.Top == page.Null {
		return t.buildInitialTree(tid, data)
	}

	path, leafPgno, localOffset, err := t.descend(offset)
	if err != nil {
		return err
	}
	return t.insertIntoLeaf(tid, path, leafPgno, localOffset, data)
}

// buildInitialTree populates a previously empty tree with data, chunking
// it across as many DATA_LIST leaves as needed and wrapping them in
// INNER layers bottom-up until a single top page remains.
func (t *Tree) buildInitialTree(tid walfile.TxnID, data []byte) error {
	leaves, err := t.allocateLeafChain(tid, data, page.Null, page.Null)
	if err != nil {
		return err
	}
	level := leaves
	topIsLeaf := true
	for len(level) > 1 {
		level, err = t.buildInnerLevel(tid, level)
		if err != nil {
			return err
		}
		topIsLeaf = false
	}
	return t.writeRoot(tid, page.RPTRoot{
		Top:       level[0].Leaf,
		TopIsLeaf: topIsLeaf,
		TotalSize: sumKeys(level),
	})
}

// allocateLeafChain writes data across fresh DATA_LIST pages of at most
// page.DataListCap bytes each, linking them prev/next between leftSib
// and rightSib (either may be page.Null), and returns one InnerEntry per
// new leaf.
func (t *Tree) allocateLeafChain(tid walfile.TxnID, data []byte, leftSib, rightSib page.Pgno) ([]page.InnerEntry, error) {
	var chunks [][]byte
	for off := 0; off < len(data); off += page.DataListCap {
		end := min(off+page.DataListCap, len(data))
		chunks = append(chunks, data[off:end])
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	pgnos := make([]page.Pgno, len(chunks))
	handles := make([]*page.Page, len(chunks))
	for i := range chunks {
		p, err := t.p.New(tid, page.TypeDataList)
		if err != nil {
			return nil, err
		}
		handles[i] = p
		pgnos[i] = p.Pgno
	}

	entries := make([]page.InnerEntry, len(chunks))
	for i, chunk := range chunks {
		prev := leftSib
		if i > 0 {
			prev = pgnos[i-1]
		}
		next := rightSib
		if i < len(chunks)-1 {
			next = pgnos[i+1]
		}
		dl := page.DataList{Prev: prev, Next: next, Used: uint16(len(chunk))}
		copy(dl.Payload[:], chunk)
		page.EncodeDataList(handles[i], dl)
		if err := t.p.Release(pgnos[i], page.MaskOf(page.TypeDataList)); err != nil {
			return nil, err
		}
		entries[i] = page.InnerEntry{Key: uint64(len(chunk)), Leaf: pgnos[i]}
	}

	if leftSib != page.Null {
		if err := t.relinkNext(tid, leftSib, pgnos[0]); err != nil {
			return nil, err
		}
	}
	if rightSib != page.Null {
		if err := t.relinkPrev(tid, rightSib, pgnos[len(pgnos)-1]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (t *Tree) relinkNext(tid walfile.TxnID, pgno, next page.Pgno) error {
	pg, dl, err := t.getLeafWritable(tid, pgno)
	if err != nil {
		return err
	}
	dl.Next = next
	page.EncodeDataList(pg, dl)
	return t.p.Release(pgno, page.MaskOf(page.TypeDataList))
}

func (t *Tree) relinkPrev(tid walfile.TxnID, pgno, prev page.Pgno) error {
	pg, dl, err := t.getLeafWritable(tid, pgno)
	if err != nil {
		return err
	}
	dl.Prev = prev
	page.EncodeDataList(pg, dl)
	return t.p.Release(pgno, page.MaskOf(page.TypeDataList))
}

// buildInnerLevel groups entries into fresh INNER pages of at most
// page.M entries each, linked prev/next in sequence, and returns one
// InnerEntry (summarizing each new page) for the level above.
func (t *Tree) buildInnerLevel(tid walfile.TxnID, entries []page.InnerEntry) ([]page.InnerEntry, error) {
	var groups [][]page.InnerEntry
	for off := 0; off < len(entries); off += page.M {
		end := min(off+page.M, len(entries))
		groups = append(groups, entries[off:end])
	}

	pgnos := make([]page.Pgno, len(groups))
	handles := make([]*page.Page, len(groups))
	for i := range groups {
		p, err := t.p.New(tid, page.TypeInner)
		if err != nil {
			return nil, err
		}
		handles[i] = p
		pgnos[i] = p.Pgno
	}

	out := make([]page.InnerEntry, len(groups))
	for i, g := range groups {
		prev, next := page.Null, page.Null
		if i > 0 {
			prev = pgnos[i-1]
		}
		if i < len(groups)-1 {
			next = pgnos[i+1]
		}
		in := page.Inner{Prev: prev, Next: next, Entries: g}
		page.EncodeInner(handles[i], &in)
		if err := t.p.Release(pgnos[i], page.MaskOf(page.TypeInner)); err != nil {
			return nil, err
		}
		out[i] = page.InnerEntry{Key: in.TotalSize(), Leaf: pgnos[i]}
	}
	return out, nil
}

// insertIntoLeaf splices data into leafPgno at localOffset, splitting
// the leaf across as many new DATA_LIST pages as needed when it
// overflows, and bubbles the resulting entry (or entries) up path.
func (t *Tree) insertIntoLeaf(tid walfile.TxnID, path []ancestorFrame, leafPgno page.Pgno, localOffset int, data []byte) error {
	pg, dl, err := t.getLeafWritable(tid, leafPgno)
	if err != nil {
		return err
	}

	combined := make([]byte, 0, int(dl.Used)+len(data))
	combined = append(combined, dl.Payload[:localOffset]...)
	combined = append(combined, data...)
	combined = append(combined, dl.Payload[localOffset:dl.Used]...)

	if len(combined) <= page.DataListCap {
		dl.Used = uint16(len(combined))
		copy(dl.Payload[:], combined)
		page.EncodeDataList(pg, dl)
		if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
			return err
		}
		return t.propagateInsert(tid, path, []page.InnerEntry{{Key: uint64(len(combined)), Leaf: leafPgno}})
	}

	t.metrics.LeafSplits.Inc()
	t.log.Debug("leaf split", zap.Uint64("pgno", uint64(leafPgno)), zap.Int("combined_size", len(combined)))
	oldPrev, oldNext := dl.Prev, dl.Next
	firstChunk := combined[:page.DataListCap]
	rest := combined[page.DataListCap:]

	var restEntries []page.InnerEntry
	var restPgnos []page.Pgno
	if len(rest) > 0 {
		restEntries, err = t.allocateLeafChain(tid, rest, leafPgno, oldNext)
		if err != nil {
			return err
		}
		for _, e := range restEntries {
			restPgnos = append(restPgnos, e.Leaf)
		}
	}

	newNext := oldNext
	if len(restPgnos) > 0 {
		newNext = restPgnos[0]
	}
	dl.Used = uint16(len(firstChunk))
	copy(dl.Payload[:], firstChunk)
	dl.Prev = oldPrev
	dl.Next = newNext
	page.EncodeDataList(pg, dl)
	if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
		return err
	}

	newEntries := append([]page.InnerEntry{{Key: uint64(len(firstChunk)), Leaf: leafPgno}}, restEntries...)
	return t.propagateInsert(tid, path, newEntries)
}

// propagateInsert replaces the single entry path's last frame points at
// with newEntries, splitting the parent inner node (and recursing
// further up, possibly growing the tree's height) whenever the
// replacement doesn't fit within page.M entries.
func (t *Tree) propagateInsert(tid walfile.TxnID, path []ancestorFrame, newEntries []page.InnerEntry) error {
	if len(path) == 0 {
		return t.installAtRoot(tid, newEntries)
	}

	frame := path[len(path)-1]
	parentPath := path[:len(path)-1]

	pg, in, err := t.getInnerWritable(tid, frame.pgno)
	if err != nil {
		return err
	}

	merged := make([]page.InnerEntry, 0, len(in.Entries)+len(newEntries))
	merged = append(merged, in.Entries[:frame.index]...)
	merged = append(merged, newEntries...)
	merged = append(merged, in.Entries[frame.index+1:]...)

	if len(merged) <= page.M {
		in.Entries = merged
		page.EncodeInner(pg, in)
		if err := t.p.Release(frame.pgno, page.MaskOf(page.TypeInner)); err != nil {
			return err
		}
		return t.propagateInsert(tid, parentPath, []page.InnerEntry{{Key: in.TotalSize(), Leaf: frame.pgno}})
	}

	t.metrics.InnerSplits.Inc()
	t.log.Debug("inner split", zap.Uint64("pgno", uint64(frame.pgno)), zap.Int("entries", len(merged)))
	oldPrev, oldNext := in.Prev, in.Next
	mid := len(merged) / 2
	leftEntries, rightEntries := merged[:mid], merged[mid:]

	rightPg, err := t.p.New(tid, page.TypeInner)
	if err != nil {
		return err
	}
	rightPgno := rightPg.Pgno

	left := page.Inner{Prev: oldPrev, Next: rightPgno, Entries: leftEntries}
	right := page.Inner{Prev: frame.pgno, Next: oldNext, Entries: rightEntries}
	page.EncodeInner(pg, &left)
	if err := t.p.Release(frame.pgno, page.MaskOf(page.TypeInner)); err != nil {
		return err
	}
	page.EncodeInner(rightPg, &right)
	if err := t.p.Release(rightPgno, page.MaskOf(page.TypeInner)); err != nil {
		return err
	}
	if oldNext != page.Null {
		if err := t.relinkInnerPrev(tid, oldNext, rightPgno); err != nil {
			return err
		}
	}

	return t.propagateInsert(tid, parentPath, []page.InnerEntry{
		{Key: left.TotalSize(), Leaf: frame.pgno},
		{Key: right.TotalSize(), Leaf: rightPgno},
	})
}

// installAtRoot sets the tree's top layer to newEntries, wrapping them
// in a fresh INNER page when more than one entry survived to the top
// (spec §4.7.2 step 6: "allocate a new single-entry root inner node
// above" generalizes here to N entries from a wide initial insert).
func (t *Tree) installAtRoot(tid walfile.TxnID, newEntries []page.InnerEntry) error {
	if len(newEntries) == 1 {
		wasLeaf, err := t.isLeafPage(newEntries[0].Leaf)
		if err != nil {
			return err
		}
		return t.writeRoot(tid, page.RPTRoot{
			Top:       newEntries[0].Leaf,
			TopIsLeaf: wasLeaf,
			TotalSize: newEntries[0].Key,
		})
	}

	rp, err := t.p.New(tid, page.TypeInner)
	if err != nil {
		return err
	}
	in := page.Inner{Prev: page.Null, Next: page.Null, Entries: newEntries}
	page.EncodeInner(rp, &in)
	if err := t.p.Release(rp.Pgno, page.MaskOf(page.TypeInner)); err != nil {
		return err
	}
	return t.writeRoot(tid, page.RPTRoot{
		Top:       rp.Pgno,
		TopIsLeaf: false,
		TotalSize: in.TotalSize(),
	})
}

func (t *Tree) relinkInnerPrev(tid walfile.TxnID, pgno, prev page.Pgno) error {
	pg, in, err := t.getInnerWritable(tid, pgno)
	if err != nil {
		return err
	}
	in.Prev = prev
	page.EncodeInner(pg, in)
	return t.p.Release(pgno, page.MaskOf(page.TypeInner))
}

func (t *Tree) isLeafPage(pgno page.Pgno) (bool, error) {
	pg, err := t.p.Get(pgno, leafOrInnerMask)
	if err != nil {
		return false, err
	}
	isLeaf := pg.Type() == page.TypeDataList
	return isLeaf, t.p.Release(pgno, leafOrInnerMask)
}
