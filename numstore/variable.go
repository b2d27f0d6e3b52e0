package numstore

import (
	"github.com/intellect4all/numstore/rptree"
	"github.com/intellect4all/numstore/vardir"
)

// NewVariable creates a fresh, empty variable named name carrying
// typeInfo (opaque to the core; the type-system metadata it deserializes
// from is an external collaborator per spec.md §1) and returns once the
// directory entry and its empty rp-tree are both written under tid
// (spec §6's new_variable).
func (db *DB) NewVariable(tid Txn, name string, typeInfo []byte) error {
	root, err := rptree.New(db.p, tid.id)
	if err != nil {
		return err
	}
	return vardir.New(db.p, tid.id, name, typeInfo, root)
}

// DeleteVariable removes name's directory entry and tombstones every
// page of its rp-tree (spec §6's delete_variable).
func (db *DB) DeleteVariable(tid Txn, name string) error {
	entry, err := vardir.Get(db.p, name)
	if err != nil {
		return err
	}
	tree := rptree.OpenWithMetrics(db.p, entry.Root, db.cfg.TreeMetrics)
	if err := tree.Destroy(tid.id); err != nil {
		return err
	}
	return vardir.Delete(db.p, tid.id, name)
}

// Fsize returns name's current total byte size: the sum of bytes ever
// successfully inserted minus those ever successfully removed (spec §8
// Testable Property 9) — exactly the rp-tree's TotalSize, since insert
// and remove are the only operations that change it.
func (db *DB) Fsize(name string) (uint64, error) {
	entry, err := vardir.Get(db.p, name)
	if err != nil {
		return 0, err
	}
	return rptree.OpenWithMetrics(db.p, entry.Root, db.cfg.TreeMetrics).Size()
}

func (db *DB) tree(name string) (*rptree.Tree, error) {
	entry, err := vardir.Get(db.p, name)
	if err != nil {
		return nil, err
	}
	return rptree.OpenWithMetrics(db.p, entry.Root, db.cfg.TreeMetrics), nil
}
