package rptree

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/walfile"
)

// Destroy tombstones every page belonging to the tree — every leaf,
// every inner node at every level, and finally the RPT_ROOT itself —
// for a variable deletion (spec §4.9). The tree handle must not be used
// afterward.
func (t *Tree) Destroy(tid walfile.TxnID) error {
	root, err := t.readRoot()
	if err != nil {
		return err
	}
	if root.Top != page.Null {
		if err := t.destroySubtree(tid, root.Top, root.TopIsLeaf); err != nil {
			return err
		}
	}
	if _, err := t.p.GetWritable(t.Root, page.MaskOf(page.TypeRPTRoot), tid); err != nil {
		return err
	}
	return t.p.DeleteAndRelease(t.Root, tid)
}

func (t *Tree) destroySubtree(tid walfile.TxnID, pgno page.Pgno, isLeaf bool) error {
	if isLeaf {
		cur := pgno
		for cur != page.Null {
			_, dl, err := t.getLeaf(cur)
			if err != nil {
				return err
			}
			next := dl.Next
			if err := t.p.Release(cur, page.MaskOf(page.TypeDataList)); err != nil {
				return err
			}
			if _, err := t.p.GetWritable(cur, page.MaskOf(page.TypeDataList), tid); err != nil {
				return err
			}
			if err := t.p.DeleteAndRelease(cur, tid); err != nil {
				return err
			}
			cur = next
		}
		return nil
	}

	_, in, err := t.getInner(pgno)
	if err != nil {
		return err
	}
	entries := append([]page.InnerEntry(nil), in.Entries...)
	if err := t.p.Release(pgno, page.MaskOf(page.TypeInner)); err != nil {
		return err
	}

	if len(entries) > 0 {
		childIsLeaf, err := t.isLeafPage(entries[0].Leaf)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := t.destroySubtree(tid, e.Leaf, childIsLeaf); err != nil {
				return err
			}
		}
	}

	if _, err := t.p.GetWritable(pgno, page.MaskOf(page.TypeInner), tid); err != nil {
		return err
	}
	return t.p.DeleteAndRelease(pgno, tid)
}
