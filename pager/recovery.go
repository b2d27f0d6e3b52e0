package pager

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/walfile"
)

// FetchRaw reads pgno's current bytes without going through the
// latch/pin protocol: recovery runs single-threaded before any ordinary
// cursor traffic exists. Returns pkgerr.PageOutOfRange if pgno has never
// been allocated.
func (p *Pager) FetchRaw(pgno page.Pgno) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fr, err := p.loadFrameLocked(pgno)
	if err != nil {
		return nil, err
	}
	return fr.pg, nil
}

// ApplyRedo writes redoImage to pgno and stamps its LSN, but only if the
// page's current LSN is older than lsn — an LSN regression during redo
// is not an error, it just means the page is already newer (spec §4.6).
// A missing page is grown into existence (the update predates the
// page's on-disk allocation surviving the crash).
func (p *Pager) ApplyRedo(pgno page.Pgno, redoImage []byte, lsn page.LSN) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, ok := p.cache[pgno]
	if !ok && pgno < p.numPages {
		loaded, err := p.loadFrameLocked(pgno)
		if err != nil {
			return err
		}
		fr = loaded
	}
	if fr != nil && fr.pg.LSN() >= lsn {
		return nil // already newer; idempotent no-op
	}

	newPg, err := page.FromBytes(pgno, redoImage)
	if err != nil {
		return err
	}
	newPg.SetLSN(lsn)

	if pgno >= p.numPages {
		p.numPages = pgno + 1
	}
	if fr == nil {
		fr = &frame{}
		p.cache[pgno] = fr
		p.touchLRU(pgno)
	}
	fr.pg = newPg
	fr.typ = newPg.Type()
	return nil
}

// ApplyUndoAndLogCLR applies undoImage to pgno unconditionally (undo is
// never idempotence-checked against the page's LSN the way redo is) and
// appends the compensating CLR, returning the CLR's LSN. Used by
// recovery's undo pass, which — unlike Rollback — operates outside any
// live in-memory txnState, so the caller supplies prevLSN directly.
func (p *Pager) ApplyUndoAndLogCLR(tid walfile.TxnID, prevLSN page.LSN, pgno page.Pgno, undoImage []byte, undoNext page.LSN) (page.LSN, error) {
	clr := &walfile.Record{
		Type:        walfile.TypeCLR,
		Tid:         tid,
		Prev:        prevLSN,
		Pgno:        pgno,
		UndoNextLSN: undoNext,
		RedoImage:   undoImage,
	}
	lsn, err := p.wal.Append(clr)
	if err != nil {
		return 0, err
	}
	if err := p.applyDuringRecovery(pgno, undoImage, lsn); err != nil {
		return 0, err
	}

	p.mu.Lock()
	if _, exists := p.dirty.Lookup(pgno); !exists {
		p.dirty.Insert(pgno, lsn)
	}
	p.mu.Unlock()
	return lsn, nil
}

// LogBareEnd appends an END record directly, for recovery's undo pass
// finishing off a loser transaction that has no live in-memory txnState.
func (p *Pager) LogBareEnd(tid walfile.TxnID, prevLSN page.LSN) error {
	_, err := p.wal.Append(&walfile.Record{Type: walfile.TypeEnd, Tid: tid, Prev: prevLSN})
	return err
}

// SeedAfterRecovery installs nextTid as the floor for future BeginTxn
// calls once recovery has determined the highest tid it observed, so a
// freshly recovered store never reissues a tid that appeared in the WAL.
func (p *Pager) SeedAfterRecovery(highestSeenTid walfile.TxnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if highestSeenTid > p.nextTid {
		p.nextTid = highestSeenTid
	}
}
