package recovery

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/walfile"
)

// analyze scans forward from startLSN (the last CKPT_BEGIN, or the start
// of the log if none), seeding the transaction and dirty-page tables from
// the CKPT_END that follows and then updating them record by record, per
// spec §4.6 step 1. It also reports the highest transaction id observed,
// so recovery never reissues a tid that already appears in the log.
func analyze(p *pager.Pager, startLSN page.LSN) (map[walfile.TxnID]*attEntry, map[page.Pgno]*dptEntry, walfile.TxnID, error) {
	att := make(map[walfile.TxnID]*attEntry)
	dpt := make(map[page.Pgno]*dptEntry)
	var highestTid walfile.TxnID

	err := p.WAL().Replay(startLSN, func(r *walfile.Record) error {
		if r.Tid > highestTid {
			highestTid = r.Tid
		}

		switch r.Type {
		case walfile.TypeCkptBegin:
			// marks where this analysis scan started; carries no state.

		case walfile.TypeCkptEnd:
			for _, a := range r.Att {
				att[a.Tid] = &attEntry{state: pager.TxnState(a.State), lastLSN: a.LastLSN}
			}
			for _, d := range r.Dpt {
				if _, ok := dpt[d.Pgno]; !ok {
					dpt[d.Pgno] = &dptEntry{recLSN: d.RecLSN}
				}
			}

		case walfile.TypeBegin:
			att[r.Tid] = &attEntry{state: pager.Active, lastLSN: r.LSN}

		case walfile.TypeUpdate, walfile.TypeCLR:
			if _, ok := dpt[r.Pgno]; !ok {
				dpt[r.Pgno] = &dptEntry{recLSN: r.LSN}
			}
			e, ok := att[r.Tid]
			if !ok {
				e = &attEntry{}
				att[r.Tid] = e
			}
			e.lastLSN = r.LSN
			e.state = pager.Active

		case walfile.TypeCommit:
			if e, ok := att[r.Tid]; ok {
				e.state = pager.Committed
				e.lastLSN = r.LSN
			}

		case walfile.TypeEnd:
			delete(att, r.Tid)
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return att, dpt, highestTid, nil
}
