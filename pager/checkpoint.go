package pager

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/walfile"
)

// Checkpoint logs CKPT_BEGIN, snapshots the active transaction table and
// dirty-page table into CKPT_END, and advances ROOT.MasterLSN to the
// CKPT_BEGIN LSN, per spec §4.5. The checkpoint is fuzzy: transactions
// and page writes may continue concurrently with the snapshot, which is
// exactly why analysis replays forward from master_lsn instead of
// trusting the snapshot as a final state.
func (p *Pager) Checkpoint() error {
	beginLSN, err := p.wal.Append(&walfile.Record{Type: walfile.TypeCkptBegin})
	if err != nil {
		return err
	}

	p.mu.Lock()
	var att []walfile.AttEntry
	p.txns.Foreach(func(tid walfile.TxnID, t *txnState) {
		att = append(att, walfile.AttEntry{Tid: tid, State: uint8(t.state), LastLSN: t.lastLSN})
	})
	var dpt []walfile.DptEntry
	p.dirty.Foreach(func(pgno page.Pgno, recLSN page.LSN) {
		dpt = append(dpt, walfile.DptEntry{Pgno: pgno, RecLSN: recLSN})
	})
	p.mu.Unlock()

	if _, err := p.wal.Append(&walfile.Record{Type: walfile.TypeCkptEnd, Att: att, Dpt: dpt}); err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	return p.flushRootMasterLSN(beginLSN)
}

// flushRootMasterLSN updates ROOT.MasterLSN and writes the root page
// directly to the data file. This write is not itself WAL-logged:
// master_lsn is a recovery bookmark, not data that needs to survive a
// crash between this write and the next — if lost, recovery simply
// starts from an older checkpoint (or the beginning of the log).
func (p *Pager) flushRootMasterLSN(lsn page.LSN) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, err := p.loadFrameLocked(0)
	if err != nil {
		return err
	}
	body, err := page.DecodeRoot(fr.pg)
	if err != nil {
		return err
	}
	body.MasterLSN = lsn
	page.EncodeRoot(fr.pg, body)

	if err := p.writeFrameLocked(0, fr); err != nil {
		return err
	}
	return nil
}
