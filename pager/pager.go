// Package pager implements the buffer pool, page latching, tombstone
// allocator, and write-ahead logging a cursor drives through acquire/
// release pairs (spec §4.5). Grounded on the teacher's btree.Pager
// cache/LRU/dirty-set shape (container/list LRU, map-based cache, a
// dirty set), generalized to latch-guarded frames carrying a per-page
// LSN, transaction-scoped undo/redo image capture, and the tombstone
// chain the teacher's own FreePage leaves as a TODO.
package pager

import (
	"container/list"
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intellect4all/numstore/adaptive"
	"github.com/intellect4all/numstore/latch"
	"github.com/intellect4all/numstore/nslog"
	"github.com/intellect4all/numstore/page"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/walfile"
)

// Config configures a Pager.
type Config struct {
	DataPath  string
	WALPath   string
	CacheSize int // max frames resident in the buffer pool
	Metrics   *Metrics

	// CheckpointInterval, when nonzero, starts a background goroutine on
	// Open that calls Checkpoint on this cadence until Close. Zero leaves
	// checkpointing entirely up to the caller.
	CheckpointInterval time.Duration
}

// DefaultConfig returns sane defaults rooted at dataDir, the way the
// teacher's btree.DefaultConfig does for a single data directory.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataPath:  dataDir + "/numstore.db",
		WALPath:   dataDir + "/numstore.wal",
		CacheSize: 4096,
	}
}

type frame struct {
	pg   *page.Page
	typ  page.Type
	pin  int
	lt   latch.Page

	// preImage is a clone of the frame's on-disk bytes taken the moment
	// it was last acquired exclusively for writing; nil when the frame
	// isn't mid-write. Release turns it into an UPDATE record's
	// undo_image, pairing it with the post-mutation bytes as redo_image.
	preImage []byte
	writer   walfile.TxnID
}

// Pager is the storage engine's sole owner of the data file, the buffer
// pool, the WAL file, the transaction table, and the dirty-page table
// (spec §4 Ownership).
type Pager struct {
	cfg Config
	log *zap.Logger

	file *os.File
	wal  *walfile.File

	mu       sync.Mutex
	cache    map[page.Pgno]*frame
	lru      *list.List
	lruElem  map[page.Pgno]*list.Element
	numPages page.Pgno

	dirty *adaptive.Table[page.Pgno, page.LSN]
	txns  *adaptive.Table[walfile.TxnID, *txnState]
	nextTid walfile.TxnID

	metrics *Metrics

	ckptCancel context.CancelFunc
	ckptGroup  *errgroup.Group
}

func hashPgno(p page.Pgno) uint64     { return uint64(p) * 2654435761 }
func hashTid(t walfile.TxnID) uint64  { return uint64(t) * 2654435761 }

// Open opens (creating if necessary) the data file and WAL file named in
// cfg. It does not run recovery; the embedding layer is responsible for
// calling into the recovery package first when a WAL file already holds
// records, per spec §4.6 ("run on open whenever a WAL file exists").
func Open(cfg Config) (*Pager, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	f, err := os.OpenFile(cfg.DataPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, pkgerr.FromOS(err, "pager: open data file")
	}
	w, err := walfile.Open(cfg.WALPath)
	if err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		cfg:     cfg,
		log:     nslog.Named("pager"),
		file:    f,
		wal:     w,
		cache:   make(map[page.Pgno]*frame),
		lru:     list.New(),
		lruElem: make(map[page.Pgno]*list.Element),
		dirty:   adaptive.NewTable[page.Pgno, page.LSN](16, hashPgno, adaptive.HashSettings{MaxLoadFactor: 4, MinLoadFactor: 1, RehashingWork: 16, MinSize: 16, MaxSize: 1 << 20}),
		txns:    adaptive.NewTable[walfile.TxnID, *txnState](16, hashTid, adaptive.HashSettings{MaxLoadFactor: 4, MinLoadFactor: 1, RehashingWork: 16, MinSize: 16, MaxSize: 1 << 20}),
		metrics: metrics,
	}

	stat, err := f.Stat()
	if err != nil {
		p.Close()
		return nil, pkgerr.FromOS(err, "pager: stat data file")
	}

	if stat.Size() == 0 {
		if err := p.bootstrap(); err != nil {
			p.Close()
			return nil, err
		}
	} else {
		if stat.Size()%page.Size != 0 {
			p.Close()
			return nil, pkgerr.New(pkgerr.Corrupt, "pager: data file size is not a multiple of page size")
		}
		p.numPages = page.Pgno(stat.Size() / page.Size)
	}

	if cfg.CheckpointInterval > 0 {
		p.startCheckpointLoop(cfg.CheckpointInterval)
	}

	return p, nil
}

// startCheckpointLoop runs Checkpoint on interval until Close cancels the
// returned context, logging (not failing) any single checkpoint's error
// since a missed checkpoint just means recovery replays a longer log.
func (p *Pager) startCheckpointLoop(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := p.Checkpoint(); err != nil {
					p.log.Warn("background checkpoint failed", zap.Error(err))
				}
			}
		}
	})
	p.ckptCancel = cancel
	p.ckptGroup = g
}

// bootstrap initializes a brand new data file: page 0 is ROOT, page 1 is
// VAR_HASH, per spec §4 ("page 0 is always ROOT; page 1 is always
// VAR_HASH").
func (p *Pager) bootstrap() error {
	root := page.New(0, page.TypeRoot)
	page.EncodeRoot(root, page.Root{FirstTombstone: page.Null, MasterLSN: 0})
	if _, err := p.file.WriteAt(root.Bytes(), 0); err != nil {
		return pkgerr.FromOS(err, "pager: write initial root page")
	}

	varHash := page.New(1, page.TypeVarHash)
	if _, err := p.file.WriteAt(varHash.Bytes(), page.Size); err != nil {
		return pkgerr.FromOS(err, "pager: write initial var-hash page")
	}

	if err := p.file.Sync(); err != nil {
		return pkgerr.FromOS(err, "pager: sync bootstrap")
	}
	p.numPages = 2
	return nil
}

// Close flushes every dirty frame, syncs both files, and closes them.
func (p *Pager) Close() error {
	if p.ckptCancel != nil {
		p.ckptCancel()
		p.ckptGroup.Wait()
	}

	// WAL-first: every dirty frame's last-update LSN must be durable
	// before that frame's bytes are permitted to reach the data file.
	if err := p.wal.Sync(); err != nil {
		return err
	}

	p.mu.Lock()
	for pgno, fr := range p.cache {
		if fr.preImage != nil {
			p.mu.Unlock()
			return pkgerr.New(pkgerr.InvalidArgument, "pager: close with an open write on a page")
		}
		if err := p.writeFrameLocked(pgno, fr); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.mu.Unlock()

	if err := p.file.Sync(); err != nil {
		return pkgerr.FromOS(err, "pager: sync on close")
	}
	if err := p.wal.Close(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return pkgerr.FromOS(err, "pager: close data file")
	}
	return nil
}

func (p *Pager) writeFrameLocked(pgno page.Pgno, fr *frame) error {
	if _, err := p.file.WriteAt(fr.pg.Bytes(), int64(pgno)*page.Size); err != nil {
		return pkgerr.FromOS(err, "pager: write page")
	}
	return nil
}

// touchLRU moves pgno to the front of the LRU list, inserting it if
// absent, and evicts the coldest unpinned frame if the cache is full.
func (p *Pager) touchLRU(pgno page.Pgno) {
	if e, ok := p.lruElem[pgno]; ok {
		p.lru.MoveToFront(e)
		return
	}
	p.lruElem[pgno] = p.lru.PushFront(pgno)
	if p.lru.Len() > p.cfg.CacheSize {
		p.evictLocked()
	}
}

func (p *Pager) evictLocked() {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		pgno := e.Value.(page.Pgno)
		fr := p.cache[pgno]
		if fr == nil || fr.pin > 0 {
			continue
		}
		// WAL-first: a dirty frame's last-update LSN must be durable
		// before its bytes are written out by eviction, same as Close.
		if fr.pg.LSN() > p.wal.Flushed() {
			if err := p.wal.Sync(); err != nil {
				p.log.Error("evict: wal sync failed", zap.Uint64("pgno", uint64(pgno)), zap.Error(err))
				continue
			}
		}
		if err := p.writeFrameLocked(pgno, fr); err != nil {
			p.log.Error("evict: write failed", zap.Uint64("pgno", uint64(pgno)), zap.Error(err))
			continue
		}
		delete(p.cache, pgno)
		p.lru.Remove(e)
		delete(p.lruElem, pgno)
		p.metrics.Evictions.Inc()
		return
	}
}

func (p *Pager) loadFrameLocked(pgno page.Pgno) (*frame, error) {
	if fr, ok := p.cache[pgno]; ok {
		p.metrics.CacheHits.Inc()
		return fr, nil
	}
	p.metrics.CacheMisses.Inc()

	if pgno >= p.numPages {
		return nil, pkgerr.New(pkgerr.PageOutOfRange, "pager: page out of range")
	}
	buf := make([]byte, page.Size)
	if _, err := p.file.ReadAt(buf, int64(pgno)*page.Size); err != nil {
		return nil, pkgerr.FromOS(err, "pager: read page")
	}
	pg, err := page.FromBytes(pgno, buf)
	if err != nil {
		return nil, err
	}
	fr := &frame{pg: pg, typ: pg.Type()}
	p.cache[pgno] = fr
	p.touchLRU(pgno)
	p.metrics.CachedPages.Set(float64(len(p.cache)))
	return fr, nil
}

// Get fetches pgno shared, validating its type against mask. Fails with
// pkgerr.PageOutOfRange or pkgerr.Corrupt, per spec.
func (p *Pager) Get(pgno page.Pgno, mask page.TypeMask) (*page.Page, error) {
	p.mu.Lock()
	fr, err := p.loadFrameLocked(pgno)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if !mask.Has(fr.typ) {
		p.mu.Unlock()
		return nil, pkgerr.New(pkgerr.Corrupt, "pager: page type mismatch")
	}
	fr.pin++
	p.touchLRU(pgno)
	p.mu.Unlock()

	fr.lt.LockS()
	return fr.pg, nil
}

// GetWritable fetches pgno exclusively for tid, capturing its current
// bytes as the undo_image the eventual Release will log.
func (p *Pager) GetWritable(pgno page.Pgno, mask page.TypeMask, tid walfile.TxnID) (*page.Page, error) {
	p.mu.Lock()
	fr, err := p.loadFrameLocked(pgno)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if !mask.Has(fr.typ) {
		p.mu.Unlock()
		return nil, pkgerr.New(pkgerr.Corrupt, "pager: page type mismatch")
	}
	fr.pin++
	p.touchLRU(pgno)
	p.mu.Unlock()

	fr.lt.LockX()
	fr.preImage = append([]byte(nil), fr.pg.Bytes()...)
	fr.writer = tid
	return fr.pg, nil
}

// MakeWritable upgrades an already shared-held pgno to exclusive for
// tid, with the same undo-image bookkeeping as GetWritable.
func (p *Pager) MakeWritable(pgno page.Pgno, tid walfile.TxnID) (*page.Page, error) {
	p.mu.Lock()
	fr, ok := p.cache[pgno]
	p.mu.Unlock()
	if !ok {
		return nil, pkgerr.New(pkgerr.InvalidArgument, "pager: make_writable on a page not held")
	}

	fr.lt.UpgradeSToX()
	fr.preImage = append([]byte(nil), fr.pg.Bytes()...)
	fr.writer = tid
	return fr.pg, nil
}

// New allocates a fresh page: pop the head of the tombstone chain
// (updating ROOT.FirstTombstone) or append at the end of the file. The
// page is returned exclusively latched; releasing it logs its
// allocation as an UPDATE record.
func (p *Pager) New(tid walfile.TxnID, typ page.Type) (*page.Page, error) {
	root, err := p.GetWritable(0, page.MaskOf(page.TypeRoot), tid)
	if err != nil {
		return nil, err
	}
	rootBody, err := page.DecodeRoot(root)
	if err != nil {
		p.Release(0, page.MaskOf(page.TypeRoot))
		return nil, err
	}

	var pgno page.Pgno
	var fr *frame
	if rootBody.FirstTombstone != page.Null {
		pgno = rootBody.FirstTombstone

		p.mu.Lock()
		reused, err := p.loadFrameLocked(pgno)
		if err != nil {
			p.mu.Unlock()
			p.Release(0, page.MaskOf(page.TypeRoot))
			return nil, err
		}
		if reused.typ != page.TypeTombstone {
			p.mu.Unlock()
			p.Release(0, page.MaskOf(page.TypeRoot))
			return nil, pkgerr.New(pkgerr.Corrupt, "pager: first_tmbst does not point at a tombstone")
		}
		tombBody, err := page.DecodeTombstone(reused.pg)
		if err != nil {
			p.mu.Unlock()
			p.Release(0, page.MaskOf(page.TypeRoot))
			return nil, err
		}
		reused.pin++
		p.touchLRU(pgno)
		p.mu.Unlock()

		reused.lt.LockX()
		// The tombstone's own bytes are the undo image: rolling this
		// transaction back must restore the free-chain link, not zero
		// the page, since the chain's integrity depends on it.
		reused.preImage = append([]byte(nil), reused.pg.Bytes()...)
		reused.writer = tid
		reused.pg = page.New(pgno, typ)
		reused.typ = typ
		fr = reused

		rootBody.FirstTombstone = tombBody.Next
	} else {
		p.mu.Lock()
		pgno = p.numPages
		p.numPages++
		fr = &frame{pg: page.New(pgno, typ), typ: typ}
		p.cache[pgno] = fr
		p.touchLRU(pgno)
		fr.pin++
		p.mu.Unlock()

		fr.lt.LockX()
		fr.preImage = make([]byte, page.Size) // never existed before: all-zero undo image
		fr.writer = tid
	}

	page.EncodeRoot(root, rootBody)
	if err := p.Release(0, page.MaskOf(page.TypeRoot)); err != nil {
		return nil, err
	}
	return fr.pg, nil
}

// Release unpins handle pgno, validating its type again, and — if it
// was held exclusively with a pending write — logs the UPDATE record
// pairing the undo_image captured at acquire with the post-mutation
// bytes, per the write-ahead-logging rule.
func (p *Pager) Release(pgno page.Pgno, mask page.TypeMask) error {
	p.mu.Lock()
	fr, ok := p.cache[pgno]
	p.mu.Unlock()
	if !ok {
		return pkgerr.New(pkgerr.InvalidArgument, "pager: release of a page not held")
	}
	if !mask.Has(fr.pg.Type()) {
		return pkgerr.New(pkgerr.Corrupt, "pager: page type mismatch on release")
	}

	if fr.preImage != nil {
		if err := p.logUpdate(fr, pgno); err != nil {
			return err
		}
		fr.preImage = nil
		fr.lt.UnlockX()
	} else {
		fr.lt.UnlockS()
	}

	p.mu.Lock()
	fr.pin--
	p.mu.Unlock()
	return nil
}

// logUpdate appends the pending UPDATE record for fr and advances the
// issuing transaction's last_lsn chain and the dirty-page table.
func (p *Pager) logUpdate(fr *frame, pgno page.Pgno) error {
	p.mu.Lock()
	txn, ok := p.txns.Lookup(fr.writer)
	p.mu.Unlock()
	if !ok {
		return pkgerr.New(pkgerr.InvalidArgument, "pager: write by an unknown transaction")
	}

	rec := &walfile.Record{
		Type:      walfile.TypeUpdate,
		Tid:       fr.writer,
		Prev:      txn.lastLSN,
		Pgno:      pgno,
		UndoImage: fr.preImage,
		RedoImage: append([]byte(nil), fr.pg.Bytes()...),
	}
	lsn, err := p.wal.Append(rec)
	if err != nil {
		return err
	}
	fr.pg.SetLSN(lsn)

	p.mu.Lock()
	txn.lastLSN = lsn
	if _, exists := p.dirty.Lookup(pgno); !exists {
		p.dirty.Insert(pgno, lsn)
	}
	p.metrics.DirtyPages.Set(float64(p.dirty.Size()))
	p.mu.Unlock()
	return nil
}

// DeleteAndRelease rewrites an exclusively held page as a TOMBSTONE
// linked onto the free chain, logs the resulting UPDATE, and releases
// it, per spec §4.5.
func (p *Pager) DeleteAndRelease(pgno page.Pgno, tid walfile.TxnID) error {
	p.mu.Lock()
	fr, ok := p.cache[pgno]
	p.mu.Unlock()
	if !ok || fr.preImage == nil || fr.writer != tid {
		return pkgerr.New(pkgerr.InvalidArgument, "pager: delete_and_release requires an open write handle")
	}

	root, err := p.GetWritable(0, page.MaskOf(page.TypeRoot), tid)
	if err != nil {
		return err
	}
	rootBody, err := page.DecodeRoot(root)
	if err != nil {
		return err
	}
	oldFirst := rootBody.FirstTombstone

	page.EncodeTombstone(fr.pg, page.Tombstone{Next: oldFirst})
	fr.typ = page.TypeTombstone
	if err := p.Release(pgno, page.MaskOf(page.TypeTombstone)); err != nil {
		return err
	}

	rootBody.FirstTombstone = pgno
	page.EncodeRoot(root, rootBody)
	return p.Release(0, page.MaskOf(page.TypeRoot))
}

// Root returns a snapshot of the ROOT page body.
func (p *Pager) Root() (page.Root, error) {
	r, err := p.Get(0, page.MaskOf(page.TypeRoot))
	if err != nil {
		return page.Root{}, err
	}
	defer p.Release(0, page.MaskOf(page.TypeRoot))
	return page.DecodeRoot(r)
}

// WAL exposes the underlying log file for the recovery package.
func (p *Pager) WAL() *walfile.File { return p.wal }

// NumPages reports the current size of the data file in pages.
func (p *Pager) NumPages() page.Pgno {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numPages
}
