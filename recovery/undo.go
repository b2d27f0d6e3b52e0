package recovery

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
)

// loserState tracks one in-flight loser transaction's undo progress: the
// LSN the chain walk is currently at (pointer) and the most recent LSN
// actually logged in that transaction's chain (lastLSN, the Prev a new
// CLR must carry forward).
type loserState struct {
	tid     walfile.TxnID
	pointer page.LSN
	lastLSN page.LSN
}

// undo rolls back every ACTIVE or ABORTING transaction analysis found,
// repeatedly advancing whichever loser has the highest pointer (spec
// §4.6 step 3). A BEGIN record bounds a transaction's own chain: walking
// back onto one ends that loser without interpreting the BEGIN record
// itself as an update, since BEGIN carries no undo_image.
func undo(p *pager.Pager, att map[walfile.TxnID]*attEntry, m *Metrics) error {
	w := p.WAL()

	losers := make(map[walfile.TxnID]*loserState)
	for tid, e := range att {
		if e.state == pager.Active || e.state == pager.Aborting {
			losers[tid] = &loserState{tid: tid, pointer: e.lastLSN, lastLSN: e.lastLSN}
		}
	}

	for len(losers) > 0 {
		var pick *loserState
		for _, l := range losers {
			if pick == nil || l.pointer > pick.pointer {
				pick = l
			}
		}

		if pick.pointer == 0 {
			if err := p.LogBareEnd(pick.tid, pick.lastLSN); err != nil {
				return err
			}
			delete(losers, pick.tid)
			m.LosersRolledBack.Inc()
			continue
		}

		rec, err := w.ReadAt(pick.pointer)
		if err != nil {
			return err
		}

		switch rec.Type {
		case walfile.TypeBegin:
			if err := p.LogBareEnd(pick.tid, pick.lastLSN); err != nil {
				return err
			}
			delete(losers, pick.tid)
			m.LosersRolledBack.Inc()

		case walfile.TypeUpdate:
			lsn, err := p.ApplyUndoAndLogCLR(pick.tid, pick.lastLSN, rec.Pgno, rec.UndoImage, rec.Prev)
			if err != nil {
				return err
			}
			pick.lastLSN = lsn
			pick.pointer = rec.Prev
			m.UndoApplied.Inc()

		case walfile.TypeCLR:
			pick.pointer = rec.UndoNextLSN

		default:
			return pkgerr.New(pkgerr.Corrupt, "recovery: unexpected record type in undo chain")
		}
	}

	return nil
}
