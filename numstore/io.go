package numstore

// Range describes a strided element range the way the original
// implementation's srange/ssrange structs do (original_source/src/
// ns_srange.h): Start and End count elements (not bytes), Stride is the
// element-to-element distance in elements (1 for contiguous). NElems is
// derived as (End-Start)/Stride, rounded up, matching
// ssrange's half-open [start, end) convention.
type Range struct {
	Start  uint64
	End    uint64
	Stride uint64
}

func (r Range) nelems() int {
	if r.Stride == 0 || r.End <= r.Start {
		return 0
	}
	return int((r.End - r.Start + r.Stride - 1) / r.Stride)
}

// Insert splices nelem elements of size bytes, read from src, into name
// at element offset bofst (spec §6's insert(id, src, bofst, size, nelem)).
func (db *DB) Insert(tid Txn, name string, src []byte, bofst, size, nelem int) error {
	tree, err := db.tree(name)
	if err != nil {
		return err
	}
	return tree.Insert(tid.id, bofst*size, src, size, nelem)
}

// Write overwrites existing elements of size bytes at rng's strided
// positions, sourced from src in order (spec §6's write(id, src, size,
// stride)).
func (db *DB) Write(tid Txn, name string, src []byte, size int, rng Range) error {
	tree, err := db.tree(name)
	if err != nil {
		return err
	}
	nelems := rng.nelems()
	if nelems == 0 {
		return nil
	}
	return tree.Write(tid.id, src, size, int(rng.Start)*size, int(rng.Stride)*size, nelems)
}

// Read gathers elements of size bytes from rng's strided positions into
// dest, returning the number of bytes actually read — a short read past
// the variable's current end is not an error (spec §6's read(id, dest,
// size, stride) -> nread).
func (db *DB) Read(name string, dest []byte, size int, rng Range) (int, error) {
	tree, err := db.tree(name)
	if err != nil {
		return 0, err
	}
	nelems := rng.nelems()
	if nelems == 0 {
		return 0, nil
	}
	return tree.Read(dest, size, int(rng.Start)*size, int(rng.Stride)*size, nelems)
}

// Remove deletes elements of size bytes at rng's strided positions,
// copying the removed bytes into dest first if dest is non-nil (spec
// §6's remove(id, dest?, size, stride) -> nremoved).
func (db *DB) Remove(tid Txn, name string, dest []byte, size int, rng Range) (int, error) {
	tree, err := db.tree(name)
	if err != nil {
		return 0, err
	}
	nelems := rng.nelems()
	if nelems == 0 {
		return 0, nil
	}
	if err := tree.Remove(tid.id, dest, size, int(rng.Start)*size, int(rng.Stride)*size, nelems); err != nil {
		return 0, err
	}
	return nelems, nil
}
