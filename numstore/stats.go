package numstore

// Stats reports whole-database counters, the numstore analogue of the
// teacher's common.Stats / BTree.Stats().
type Stats struct {
	NumPages   uint64
	FlushedLSN uint64
}

// Stats returns a snapshot of the database's page count and WAL flush
// watermark.
func (db *DB) Stats() Stats {
	return Stats{
		NumPages:   uint64(db.p.NumPages()),
		FlushedLSN: uint64(db.p.WAL().Flushed()),
	}
}
