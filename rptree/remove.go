package rptree

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
	"go.uber.org/zap"
)

// Remove deletes nelems elements of size bytes each, at strided absolute
// positions bstart, bstart+strideBytes, ..., compacting each affected
// leaf in place and bubbling rebalance (spec §4.7.3). If dest is
// non-nil, the removed bytes are copied into it first, packed in
// element order. Elements are removed highest-offset-first so that an
// earlier removal never shifts the position of one still pending.
func (t *Tree) Remove(tid walfile.TxnID, dest []byte, size, bstart, strideBytes, nelems int) error {
	for i := nelems - 1; i >= 0; i-- {
		off := bstart + i*strideBytes
		if dest != nil {
			if _, err := t.readAt(uint64(off), dest[i*size:(i+1)*size]); err != nil {
				return err
			}
		}
		if err := t.removeAt(tid, uint64(off), size); err != nil {
			return err
		}
	}
	return nil
}

// removeAt deletes size bytes starting at offset, looping across a leaf
// boundary when the range spans more than one DATA_LIST page. Each
// iteration re-descends from offset, since removing the bytes at the
// front of the range shifts what was previously just past it into
// offset's place.
func (t *Tree) removeAt(tid walfile.TxnID, offset uint64, size int) error {
	remaining := size
	for remaining > 0 {
		path, leafPgno, localOffset, err := t.descend(offset)
		if err != nil {
			return err
		}
		if leafPgno == page.Null {
			return pkgerr.New(pkgerr.InvalidArgument, "rptree: remove past end of tree")
		}

		pg, dl, err := t.getLeafWritable(tid, leafPgno)
		if err != nil {
			return err
		}
		avail := int(dl.Used) - localOffset
		if avail <= 0 {
			t.p.Release(leafPgno, page.MaskOf(page.TypeDataList))
			return pkgerr.New(pkgerr.InvalidArgument, "rptree: remove past end of leaf")
		}
		chunk := min(avail, remaining)

		copy(dl.Payload[localOffset:], dl.Payload[localOffset+chunk:dl.Used])
		dl.Used -= uint16(chunk)

		if dl.Used == 0 {
			t.metrics.LeafDrops.Inc()
			t.log.Debug("leaf dropped", zap.Uint64("pgno", uint64(leafPgno)))
			prev, next := dl.Prev, dl.Next
			if err := t.p.DeleteAndRelease(leafPgno, tid); err != nil {
				return err
			}
			if prev != page.Null {
				if err := t.relinkNext(tid, prev, next); err != nil {
					return err
				}
			}
			if next != page.Null {
				if err := t.relinkPrev(tid, next, prev); err != nil {
					return err
				}
			}
			if err := t.propagateRemove(tid, path, nil); err != nil {
				return err
			}
		} else {
			page.EncodeDataList(pg, dl)
			if err := t.p.Release(leafPgno, page.MaskOf(page.TypeDataList)); err != nil {
				return err
			}
			if err := t.propagateRemove(tid, path, []page.InnerEntry{{Key: uint64(dl.Used), Leaf: leafPgno}}); err != nil {
				return err
			}
		}

		remaining -= chunk
	}
	return nil
}

// propagateRemove replaces the entry path's last frame points at with
// newEntries (0 entries when the child was deleted entirely, 1 when it
// merely shrank), cascading the same collapse upward whenever a parent
// is left with no entries of its own.
func (t *Tree) propagateRemove(tid walfile.TxnID, path []ancestorFrame, newEntries []page.InnerEntry) error {
	return t.propagateRemoveSlice(tid, path, 0, 1, newEntries)
}

// propagateRemoveSlice replaces path's last frame's own
// Entries[frame.index+indexDelta : frame.index+indexDelta+count] with
// newEntries and cascades upward. count is 1 for an ordinary
// shrink/delete of the frame's own slot, or 2 when mergeUnderfullInner
// has just folded a same-parent sibling's slot into this one (a full
// merge collapses two old slots into newEntries' single surviving
// entry; a borrow leaves both slots occupied but rewrites both keys).
//
// When the frame itself survives non-empty but drops below page.M/2
// entries, it first tries to restore the invariant by merging with, or
// borrowing a single entry from, a same-parent sibling (spec §4.7.2
// step 5's merge-then-load fallback) before recursing upward. No
// same-parent sibling (the frame is the first or last child of its own
// parent) leaves it underfull — see DESIGN.md.
func (t *Tree) propagateRemoveSlice(tid walfile.TxnID, path []ancestorFrame, indexDelta, count int, newEntries []page.InnerEntry) error {
	if len(path) == 0 {
		return t.collapseRoot(tid, newEntries)
	}

	frame := path[len(path)-1]
	parentPath := path[:len(path)-1]

	pg, in, err := t.getInnerWritable(tid, frame.pgno)
	if err != nil {
		return err
	}

	start := frame.index + indexDelta
	end := start + count

	merged := make([]page.InnerEntry, 0, len(in.Entries)+len(newEntries)-count)
	merged = append(merged, in.Entries[:start]...)
	merged = append(merged, newEntries...)
	merged = append(merged, in.Entries[end:]...)
	prev, next := in.Prev, in.Next

	if len(merged) == 0 {
		t.metrics.InnerDrops.Inc()
		t.log.Debug("inner node dropped", zap.Uint64("pgno", uint64(frame.pgno)))
		if err := t.p.DeleteAndRelease(frame.pgno, tid); err != nil {
			return err
		}
		if prev != page.Null {
			if err := t.relinkInnerNext(tid, prev, next); err != nil {
				return err
			}
		}
		if next != page.Null {
			if err := t.relinkInnerPrev(tid, next, prev); err != nil {
				return err
			}
		}
		return t.propagateRemove(tid, parentPath, nil)
	}

	upDelta, upCount := 0, 1
	if len(parentPath) > 0 && len(merged) < page.M/2 {
		merged, prev, next, upDelta, upCount, err = t.mergeUnderfullInner(tid, frame.pgno, parentPath[len(parentPath)-1], merged, prev, next)
		if err != nil {
			return err
		}
	}

	in.Entries = merged
	in.Prev = prev
	in.Next = next
	page.EncodeInner(pg, in)
	if err := t.p.Release(frame.pgno, page.MaskOf(page.TypeInner)); err != nil {
		return err
	}
	return t.propagateRemoveSlice(tid, parentPath, upDelta, upCount, []page.InnerEntry{{Key: in.TotalSize(), Leaf: frame.pgno}})
}

// mergeUnderfullInner restores the page.M/2 minimum on selfPgno (whose
// caller has already spliced in entries and found the result
// underfull) using a same-parent right sibling when there is one: it
// merges with it when both fit in page.M entries, otherwise it borrows
// the sibling's first entry. Only when no same-parent right sibling
// exists is a same-parent left sibling used the same way (merge, else
// borrow its last entry). A left merge is not attempted when a right
// sibling exists, even if the right one is too full to merge with.
// Siblings are reached via the page cache. gp is selfPgno's own
// parent frame, giving gp.pgno's own Entries[gp.index] == selfPgno
// without a re-descent. Returns the new entries for selfPgno along
// with its (possibly updated) Prev/Next and the indexDelta/count the
// caller's own parent-level splice should use. A sibling belonging to
// a different parent than selfPgno is out of hand and left untouched.
func (t *Tree) mergeUnderfullInner(tid walfile.TxnID, selfPgno page.Pgno, gp ancestorFrame, entries []page.InnerEntry, prev, next page.Pgno) ([]page.InnerEntry, page.Pgno, page.Pgno, int, int, error) {
	_, gpIn, err := t.getInner(gp.pgno)
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	if err := t.p.Release(gp.pgno, page.MaskOf(page.TypeInner)); err != nil {
		return nil, 0, 0, 0, 0, err
	}

	rightInHand := next != page.Null && gp.index+1 < len(gpIn.Entries) && gpIn.Entries[gp.index+1].Leaf == next
	leftInHand := prev != page.Null && gp.index-1 >= 0 && gpIn.Entries[gp.index-1].Leaf == prev

	if rightInHand {
		rsPg, rsIn, err := t.getInnerWritable(tid, next)
		if err != nil {
			return nil, 0, 0, 0, 0, err
		}
		if len(entries)+len(rsIn.Entries) <= page.M {
			newNext := rsIn.Next
			combined := append(append([]page.InnerEntry{}, entries...), rsIn.Entries...)
			if err := t.p.DeleteAndRelease(next, tid); err != nil {
				return nil, 0, 0, 0, 0, err
			}
			if newNext != page.Null {
				if err := t.relinkInnerPrev(tid, newNext, selfPgno); err != nil {
					return nil, 0, 0, 0, 0, err
				}
			}
			t.metrics.InnerDrops.Inc()
			t.log.Debug("inner node merged with right sibling", zap.Uint64("pgno", uint64(selfPgno)), zap.Uint64("absorbed", uint64(next)))
			return combined, prev, newNext, 0, 2, nil
		}

		borrowed := rsIn.Entries[0]
		rsIn.Entries = rsIn.Entries[1:]
		page.EncodeInner(rsPg, rsIn)
		if err := t.p.Release(next, page.MaskOf(page.TypeInner)); err != nil {
			return nil, 0, 0, 0, 0, err
		}
		if err := t.rewriteInnerEntryKey(tid, gp.pgno, gp.index+1, rsIn.TotalSize()); err != nil {
			return nil, 0, 0, 0, 0, err
		}
		t.log.Debug("inner node borrowed from right sibling", zap.Uint64("pgno", uint64(selfPgno)))
		return append(append([]page.InnerEntry{}, entries...), borrowed), prev, next, 0, 1, nil
	}

	if leftInHand {
		lsPg, lsIn, err := t.getInnerWritable(tid, prev)
		if err != nil {
			return nil, 0, 0, 0, 0, err
		}
		if len(lsIn.Entries)+len(entries) <= page.M {
			newPrev := lsIn.Prev
			combined := append(append([]page.InnerEntry{}, lsIn.Entries...), entries...)
			if err := t.p.DeleteAndRelease(prev, tid); err != nil {
				return nil, 0, 0, 0, 0, err
			}
			if newPrev != page.Null {
				if err := t.relinkInnerNext(tid, newPrev, selfPgno); err != nil {
					return nil, 0, 0, 0, 0, err
				}
			}
			t.metrics.InnerDrops.Inc()
			t.log.Debug("inner node merged with left sibling", zap.Uint64("pgno", uint64(selfPgno)), zap.Uint64("absorbed", uint64(prev)))
			return combined, newPrev, next, -1, 2, nil
		}

		borrowed := lsIn.Entries[len(lsIn.Entries)-1]
		lsIn.Entries = lsIn.Entries[:len(lsIn.Entries)-1]
		page.EncodeInner(lsPg, lsIn)
		if err := t.p.Release(prev, page.MaskOf(page.TypeInner)); err != nil {
			return nil, 0, 0, 0, 0, err
		}
		if err := t.rewriteInnerEntryKey(tid, gp.pgno, gp.index-1, lsIn.TotalSize()); err != nil {
			return nil, 0, 0, 0, 0, err
		}
		t.log.Debug("inner node borrowed from left sibling", zap.Uint64("pgno", uint64(selfPgno)))
		return append([]page.InnerEntry{borrowed}, entries...), prev, next, 0, 1, nil
	}

	return entries, prev, next, 0, 1, nil
}

// rewriteInnerEntryKey updates a single entry's Key in place, used when
// a borrow changes a sibling's size without changing which pages exist
// or where they sit in the sibling chain.
func (t *Tree) rewriteInnerEntryKey(tid walfile.TxnID, pgno page.Pgno, index int, key uint64) error {
	pg, in, err := t.getInnerWritable(tid, pgno)
	if err != nil {
		return err
	}
	in.Entries[index].Key = key
	page.EncodeInner(pg, in)
	return t.p.Release(pgno, page.MaskOf(page.TypeInner))
}

// collapseRoot installs newEntries as the tree's top layer: empty means
// the tree is now empty, a single entry collapses straight to that
// child (spec §4.7.2 step 5's "if only one child remains ... the child
// becomes the new root").
func (t *Tree) collapseRoot(tid walfile.TxnID, newEntries []page.InnerEntry) error {
	switch len(newEntries) {
	case 0:
		return t.writeRoot(tid, page.RPTRoot{Top: page.Null, TopIsLeaf: false, TotalSize: 0})
	case 1:
		wasLeaf, err := t.isLeafPage(newEntries[0].Leaf)
		if err != nil {
			return err
		}
		return t.writeRoot(tid, page.RPTRoot{
			Top:       newEntries[0].Leaf,
			TopIsLeaf: wasLeaf,
			TotalSize: newEntries[0].Key,
		})
	default:
		return pkgerr.New(pkgerr.Corrupt, "rptree: removal produced more than one root entry")
	}
}

func (t *Tree) relinkInnerNext(tid walfile.TxnID, pgno, next page.Pgno) error {
	pg, in, err := t.getInnerWritable(tid, pgno)
	if err != nil {
		return err
	}
	in.Next = next
	page.EncodeInner(pg, in)
	return t.p.Release(pgno, page.MaskOf(page.TypeInner))
}
