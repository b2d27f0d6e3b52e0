package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pager"
)

// TestRunUndoesUnfinishedTransaction simulates a crash mid-transaction:
// the page write reached disk but neither COMMIT nor END was ever
// logged. Recovery must undo it.
func TestRunUndoesUnfinishedTransaction(t *testing.T) {
	dir := t.TempDir()
	cfg := pager.DefaultConfig(dir)

	p1, err := pager.Open(cfg)
	require.NoError(t, err)

	tid, err := p1.BeginTxn()
	require.NoError(t, err)

	pg, err := p1.GetWritable(1, page.MaskOf(page.TypeVarHash), tid)
	require.NoError(t, err)
	copy(pg.Body()[:4], []byte{7, 7, 7, 7})
	require.NoError(t, p1.Release(1, page.MaskOf(page.TypeVarHash)))

	// Never Commit or Rollback: Close flushes the mutated page, the way
	// the OS might have before a crash, leaving the WAL showing a
	// transaction that never reached COMMIT or END.
	require.NoError(t, p1.Close())

	p2, err := pager.Open(cfg)
	require.NoError(t, err)
	defer p2.Close()

	require.NoError(t, Run(p2))

	pgAfter, err := p2.Get(1, page.MaskOf(page.TypeVarHash))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, pgAfter.Body()[:4], "an unfinished transaction's write must be undone")
	require.NoError(t, p2.Release(1, page.MaskOf(page.TypeVarHash)))
}

// TestRunRedoesCommittedTransaction confirms a committed change survives
// recovery unchanged (the redo pass is a no-op once the page is already
// durable, and the undo pass never touches an ended transaction).
func TestRunRedoesCommittedTransaction(t *testing.T) {
	dir := t.TempDir()
	cfg := pager.DefaultConfig(dir)

	p1, err := pager.Open(cfg)
	require.NoError(t, err)

	tid, err := p1.BeginTxn()
	require.NoError(t, err)
	pg, err := p1.GetWritable(1, page.MaskOf(page.TypeVarHash), tid)
	require.NoError(t, err)
	copy(pg.Body()[:4], []byte{5, 6, 7, 8})
	require.NoError(t, p1.Release(1, page.MaskOf(page.TypeVarHash)))
	require.NoError(t, p1.Commit(tid))
	require.NoError(t, p1.Close())

	p2, err := pager.Open(cfg)
	require.NoError(t, err)
	defer p2.Close()

	require.NoError(t, Run(p2))

	pgAfter, err := p2.Get(1, page.MaskOf(page.TypeVarHash))
	require.NoError(t, err)
	require.Equal(t, []byte{5, 6, 7, 8}, pgAfter.Body()[:4])
	require.NoError(t, p2.Release(1, page.MaskOf(page.TypeVarHash)))
}

// TestRunIsIdempotent checks that running recovery a second time over a
// log recovery itself already extended with CLRs and an END is a no-op.
func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := pager.DefaultConfig(dir)

	p1, err := pager.Open(cfg)
	require.NoError(t, err)
	tid, err := p1.BeginTxn()
	require.NoError(t, err)
	pg, err := p1.GetWritable(1, page.MaskOf(page.TypeVarHash), tid)
	require.NoError(t, err)
	copy(pg.Body()[:4], []byte{1, 2, 3, 4})
	require.NoError(t, p1.Release(1, page.MaskOf(page.TypeVarHash)))
	require.NoError(t, p1.Close())

	p2, err := pager.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Run(p2))
	require.NoError(t, p2.Close())

	p3, err := pager.Open(cfg)
	require.NoError(t, err)
	defer p3.Close()
	require.NoError(t, Run(p3))

	pgAfter, err := p3.Get(1, page.MaskOf(page.TypeVarHash))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, pgAfter.Body()[:4])
	require.NoError(t, p3.Release(1, page.MaskOf(page.TypeVarHash)))
}

func TestRunOnFreshStoreIsNoOp(t *testing.T) {
	dir := t.TempDir()
	p, err := pager.Open(pager.DefaultConfig(dir))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, Run(p))
}

// TestRunAfterCheckpointStartsFromMasterLSN checks that a checkpoint
// taken mid-session moves the recovery starting point forward: records
// before master_lsn are never replayed, and a still-active transaction
// seeded from the checkpoint's CKPT_END is still correctly undone.
func TestRunAfterCheckpointStartsFromMasterLSN(t *testing.T) {
	dir := t.TempDir()
	cfg := pager.DefaultConfig(dir)

	p1, err := pager.Open(cfg)
	require.NoError(t, err)

	tid, err := p1.BeginTxn()
	require.NoError(t, err)
	pg, err := p1.GetWritable(1, page.MaskOf(page.TypeVarHash), tid)
	require.NoError(t, err)
	copy(pg.Body()[:4], []byte{3, 3, 3, 3})
	require.NoError(t, p1.Release(1, page.MaskOf(page.TypeVarHash)))

	require.NoError(t, p1.Checkpoint())
	require.NoError(t, p1.Close())

	p2, err := pager.Open(cfg)
	require.NoError(t, err)
	defer p2.Close()

	require.NoError(t, Run(p2))

	pgAfter, err := p2.Get(1, page.MaskOf(page.TypeVarHash))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, pgAfter.Body()[:4], "a transaction seeded active from a checkpoint must still be undone")
	require.NoError(t, p2.Release(1, page.MaskOf(page.TypeVarHash)))
}
