package recovery

import (
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/walfile"
)

// redo replays every UPDATE and CLR whose page is listed in dpt, starting
// at the earliest recLSN in the table, per spec §4.6 step 2. A page
// absent from dpt was already durable at crash time and is left alone;
// ApplyRedo itself skips any record whose LSN the page has already
// surpassed, making the whole pass idempotent across repeated recovery
// attempts.
func redo(p *pager.Pager, dpt map[page.Pgno]*dptEntry, m *Metrics) error {
	if len(dpt) == 0 {
		return nil
	}

	start := page.LSN(^uint64(0))
	for _, e := range dpt {
		if e.recLSN < start {
			start = e.recLSN
		}
	}

	return p.WAL().Replay(start, func(r *walfile.Record) error {
		if r.Type != walfile.TypeUpdate && r.Type != walfile.TypeCLR {
			return nil
		}
		e, ok := dpt[r.Pgno]
		if !ok || e.recLSN > r.LSN {
			return nil
		}
		if err := p.ApplyRedo(r.Pgno, r.RedoImage, r.LSN); err != nil {
			return err
		}
		m.RedoApplied.Inc()
		return nil
	})
}
