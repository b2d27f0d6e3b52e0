// Package rptree implements the rp-tree: the byte-size-keyed B+ tree that
// backs one variable's storage (spec §3, §4.7). Each variable owns an
// RPT_ROOT page naming the current top layer page and the tree's total
// byte size; layers below it alternate INNER pages (cumulative-size keys
// over child subtrees) down to a chain of DATA_LIST leaves holding the
// raw payload bytes.
//
// Grounded on the teacher's btree/{page,node,split,merge}.go for
// intra-page cell layout and split mechanics. The teacher's own
// mergeInternalPages/redistributeInternal are left as stubs ("Skip
// internal node merging for now"); this package closes that gap with a
// recursive replace-and-cascade rebalancer (see DESIGN.md) rather than
// literally porting the node_updates left[]/right[] value object from
// original_source — the two approaches satisfy the same structural
// invariants (contiguous leaf coverage, exact cumulative-size keys,
// correct sibling links) by different means.
package rptree

import (
	"github.com/intellect4all/numstore/nslog"
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/walfile"
	"go.uber.org/zap"
)

// Tree is a handle onto one variable's rp-tree, rooted at Root.
type Tree struct {
	p       *pager.Pager
	Root    page.Pgno
	log     *zap.Logger
	metrics *Metrics
}

// Open returns a handle onto the tree rooted at root, counting its
// structural churn against rptree's private package-level Metrics
// (Open(p, root) is exactly OpenWithMetrics(p, root, nil)).
func Open(p *pager.Pager, root page.Pgno) *Tree {
	return OpenWithMetrics(p, root, nil)
}

// OpenWithMetrics is Open with an explicit metrics registry, for
// embedders that want every variable's tree counted against one
// process-wide Metrics instead of rptree's private fallback.
func OpenWithMetrics(p *pager.Pager, root page.Pgno, m *Metrics) *Tree {
	if m == nil {
		m = defaultMetrics
	}
	return &Tree{p: p, Root: root, log: nslog.Named("rptree"), metrics: m}
}

// New allocates a fresh, empty RPT_ROOT page and returns its page
// number, ready to be stored as a variable's root in the directory.
func New(p *pager.Pager, tid walfile.TxnID) (page.Pgno, error) {
	rp, err := p.New(tid, page.TypeRPTRoot)
	if err != nil {
		return page.Null, err
	}
	pgno := rp.Pgno
	page.EncodeRPTRoot(rp, page.RPTRoot{Top: page.Null, TopIsLeaf: false, TotalSize: 0})
	if err := p.Release(pgno, page.MaskOf(page.TypeRPTRoot)); err != nil {
		return page.Null, err
	}
	return pgno, nil
}

func (t *Tree) readRoot() (page.RPTRoot, error) {
	rp, err := t.p.Get(t.Root, page.MaskOf(page.TypeRPTRoot))
	if err != nil {
		return page.RPTRoot{}, err
	}
	root, err := page.DecodeRPTRoot(rp)
	if err != nil {
		t.p.Release(t.Root, page.MaskOf(page.TypeRPTRoot))
		return page.RPTRoot{}, err
	}
	return root, t.p.Release(t.Root, page.MaskOf(page.TypeRPTRoot))
}

func (t *Tree) writeRoot(tid walfile.TxnID, root page.RPTRoot) error {
	rp, err := t.p.GetWritable(t.Root, page.MaskOf(page.TypeRPTRoot), tid)
	if err != nil {
		return err
	}
	page.EncodeRPTRoot(rp, root)
	return t.p.Release(t.Root, page.MaskOf(page.TypeRPTRoot))
}

// Size returns the tree's current total byte size.
func (t *Tree) Size() (uint64, error) {
	root, err := t.readRoot()
	return root.TotalSize, err
}

func sumKeys(entries []page.InnerEntry) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.Key
	}
	return total
}
