package pager

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
)

// TxnState is a transaction's position in its BEGIN/COMMIT|ABORT/END
// lifecycle (spec §3's {ACTIVE, COMMITTED, ABORTING, ENDED}).
type TxnState uint8

const (
	Active TxnState = iota
	Committed
	Aborting
	Ended
)

type txnState struct {
	state    TxnState
	lastLSN  page.LSN
	beginLSN page.LSN
}

// BeginTxn reserves a fresh transaction id and logs its BEGIN record.
func (p *Pager) BeginTxn() (walfile.TxnID, error) {
	p.mu.Lock()
	tid := p.nextTid + 1
	p.nextTid = tid
	p.mu.Unlock()

	lsn, err := p.wal.Append(&walfile.Record{Type: walfile.TypeBegin, Tid: tid})
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.txns.Insert(tid, &txnState{state: Active, lastLSN: lsn, beginLSN: lsn})
	p.mu.Unlock()
	return tid, nil
}

// Commit logs COMMIT, flushes the WAL through it, logs END, and flushes
// again — a transaction is durable the instant COMMIT hits stable
// storage; END logging after that may be lost without harm (spec §4.5).
func (p *Pager) Commit(tid walfile.TxnID) error {
	p.mu.Lock()
	txn, ok := p.txns.Lookup(tid)
	p.mu.Unlock()
	if !ok {
		return pkgerr.New(pkgerr.InvalidArgument, "pager: commit of unknown transaction")
	}

	lsn, err := p.wal.Append(&walfile.Record{Type: walfile.TypeCommit, Tid: tid, Prev: txn.lastLSN})
	if err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	p.mu.Lock()
	txn.state = Committed
	txn.lastLSN = lsn
	p.mu.Unlock()

	endLSN, err := p.wal.Append(&walfile.Record{Type: walfile.TypeEnd, Tid: tid, Prev: txn.lastLSN})
	if err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	p.mu.Lock()
	txn.state = Ended
	txn.lastLSN = endLSN
	p.txns.Delete(tid)
	p.mu.Unlock()
	return nil
}

// Rollback walks tid's last_lsn chain back to savepoint, emitting a CLR
// for every UPDATE it passes and simply following undo_next for every CLR
// it passes (CLRs are never undone), then logs END, per spec §4.5. A zero
// savepoint means a full undo: the chain is walked back to tid's own BEGIN
// record, which is never itself interpreted as an update or CLR.
func (p *Pager) Rollback(tid walfile.TxnID, savepoint page.LSN) error {
	p.mu.Lock()
	txn, ok := p.txns.Lookup(tid)
	p.mu.Unlock()
	if !ok {
		return pkgerr.New(pkgerr.InvalidArgument, "pager: rollback of unknown transaction")
	}

	p.mu.Lock()
	txn.state = Aborting
	p.mu.Unlock()

	stop := savepoint
	if stop == 0 {
		stop = txn.beginLSN
	}

	current := txn.lastLSN
	for current != stop {
		rec, err := p.wal.ReadAt(current)
		if err != nil {
			return err
		}

		switch rec.Type {
		case walfile.TypeUpdate:
			clr := &walfile.Record{
				Type:        walfile.TypeCLR,
				Tid:         tid,
				Prev:        txn.lastLSN,
				Pgno:        rec.Pgno,
				UndoNextLSN: rec.Prev,
				RedoImage:   rec.UndoImage,
			}
			lsn, err := p.wal.Append(clr)
			if err != nil {
				return err
			}

			if err := p.applyDuringRecovery(rec.Pgno, rec.UndoImage, lsn); err != nil {
				return err
			}

			p.mu.Lock()
			txn.lastLSN = lsn
			if _, exists := p.dirty.Lookup(rec.Pgno); !exists {
				p.dirty.Insert(rec.Pgno, lsn)
			}
			p.mu.Unlock()

			current = rec.Prev
		case walfile.TypeCLR:
			current = rec.UndoNextLSN
		default:
			return pkgerr.New(pkgerr.Corrupt, "pager: unexpected record type in undo chain")
		}
	}

	endLSN, err := p.wal.Append(&walfile.Record{Type: walfile.TypeEnd, Tid: tid, Prev: txn.lastLSN})
	if err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	p.mu.Lock()
	txn.state = Ended
	txn.lastLSN = endLSN
	p.txns.Delete(tid)
	p.mu.Unlock()
	return nil
}

// applyDuringRecovery overwrites pgno's bytes with image and stamps its
// LSN, loading the page from disk first if it isn't cached. Used by
// Rollback's CLR application and by the recovery package's redo/undo
// passes, neither of which go through the ordinary GetWritable/Release
// WAL-logging path (the record is already on the log).
func (p *Pager) applyDuringRecovery(pgno page.Pgno, image []byte, lsn page.LSN) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, ok := p.cache[pgno]
	if !ok {
		if pgno >= p.numPages {
			p.numPages = pgno + 1
		}
		pg, err := page.FromBytes(pgno, image)
		if err != nil {
			return err
		}
		fr = &frame{pg: pg, typ: pg.Type()}
		p.cache[pgno] = fr
		p.touchLRU(pgno)
		fr.pg.SetLSN(lsn)
		return nil
	}

	newPg, err := page.FromBytes(pgno, image)
	if err != nil {
		return err
	}
	fr.pg = newPg
	fr.typ = newPg.Type()
	fr.pg.SetLSN(lsn)
	return nil
}
