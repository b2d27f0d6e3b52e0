package rptree

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
)

// ancestorFrame records one step of a descent: the inner page visited
// and the index of the entry that was followed, so a mutation can later
// bubble an updated (or split, or removed) child representation back
// into exactly that slot.
type ancestorFrame struct {
	pgno  page.Pgno
	index int
}

var leafOrInnerMask = page.MaskOf(page.TypeInner, page.TypeDataList)

// chooseChild finds which entry's subtree offset falls within, per
// spec's choose_lidx: scan prefix sums of sibling sizes. offset equal to
// the node's total size lands in the last entry at its own size (the
// append-at-end case).
func chooseChild(entries []page.InnerEntry, offset uint64) (idx int, localOffset uint64, err error) {
	if len(entries) == 0 {
		return 0, 0, pkgerr.New(pkgerr.Corrupt, "rptree: empty inner node")
	}
	var cum uint64
	for i, e := range entries {
		if offset < cum+e.Key || i == len(entries)-1 {
			return i, offset - cum, nil
		}
		cum += e.Key
	}
	return 0, 0, pkgerr.New(pkgerr.Corrupt, "rptree: offset beyond inner node span")
}

// descend walks from the tree's top down to the leaf covering offset,
// returning the path of inner frames visited, the leaf's page number,
// and the byte offset within that leaf. An empty tree returns
// leafPgno == page.Null.
func (t *Tree) descend(offset uint64) (path []ancestorFrame, leafPgno page.Pgno, localOffset int, err error) {
	root, err := t.readRoot()
	if err != nil {
		return nil, page.Null, 0, err
	}
	if root.Top == page.Null {
		return nil, page.Null, 0, nil
	}

	cur := root.Top
	remaining := offset
	for {
		pg, err := t.p.Get(cur, leafOrInnerMask)
		if err != nil {
			return nil, page.Null, 0, err
		}
		typ := pg.Type()
		if typ == page.TypeDataList {
			if err := t.p.Release(cur, leafOrInnerMask); err != nil {
				return nil, page.Null, 0, err
			}
			return path, cur, int(remaining), nil
		}

		in, err := page.DecodeInner(pg)
		if err != nil {
			t.p.Release(cur, leafOrInnerMask)
			return nil, page.Null, 0, err
		}
		if err := t.p.Release(cur, leafOrInnerMask); err != nil {
			return nil, page.Null, 0, err
		}

		idx, local, err := chooseChild(in.Entries, remaining)
		if err != nil {
			return nil, page.Null, 0, err
		}
		path = append(path, ancestorFrame{pgno: cur, index: idx})
		cur = in.Entries[idx].Leaf
		remaining = local
	}
}

func (t *Tree) getLeaf(pgno page.Pgno) (*page.Page, *page.DataList, error) {
	pg, err := t.p.Get(pgno, page.MaskOf(page.TypeDataList))
	if err != nil {
		return nil, nil, err
	}
	dl, err := page.DecodeDataList(pg)
	if err != nil {
		t.p.Release(pgno, page.MaskOf(page.TypeDataList))
		return nil, nil, err
	}
	return pg, dl, nil
}

func (t *Tree) getInner(pgno page.Pgno) (*page.Page, *page.Inner, error) {
	pg, err := t.p.Get(pgno, page.MaskOf(page.TypeInner))
	if err != nil {
		return nil, nil, err
	}
	in, err := page.DecodeInner(pg)
	if err != nil {
		t.p.Release(pgno, page.MaskOf(page.TypeInner))
		return nil, nil, err
	}
	return pg, in, nil
}

func (t *Tree) getLeafWritable(tid walfile.TxnID, pgno page.Pgno) (*page.Page, *page.DataList, error) {
	pg, err := t.p.GetWritable(pgno, page.MaskOf(page.TypeDataList), tid)
	if err != nil {
		return nil, nil, err
	}
	dl, err := page.DecodeDataList(pg)
	if err != nil {
		t.p.Release(pgno, page.MaskOf(page.TypeDataList))
		return nil, nil, err
	}
	return pg, dl, nil
}

func (t *Tree) getInnerWritable(tid walfile.TxnID, pgno page.Pgno) (*page.Page, *page.Inner, error) {
	pg, err := t.p.GetWritable(pgno, page.MaskOf(page.TypeInner), tid)
	if err != nil {
		return nil, nil, err
	}
	in, err := page.DecodeInner(pg)
	if err != nil {
		t.p.Release(pgno, page.MaskOf(page.TypeInner))
		return nil, nil, err
	}
	return pg, in, nil
}
