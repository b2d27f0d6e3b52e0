package numstore

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/walfile"
)

// Txn is a handle onto one open transaction, opaque to callers beyond
// passing it back into Commit/Rollback and the data operations.
type Txn struct {
	id walfile.TxnID
}

// BeginTxn starts a new transaction (spec §6's begin_txn).
func (db *DB) BeginTxn() (Txn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tid, err := db.p.BeginTxn()
	if err != nil {
		return Txn{}, err
	}
	return Txn{id: tid}, nil
}

// Commit commits tid.
func (db *DB) Commit(tid Txn) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.p.Commit(tid.id)
}

// Rollback aborts tid, undoing every update it made.
func (db *DB) Rollback(tid Txn) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.p.Rollback(tid.id, page.LSN(0))
}
