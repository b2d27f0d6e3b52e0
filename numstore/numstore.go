// Package numstore is the embedding API named in spec.md §6 as an
// external collaborator rather than core scope: open/close/begin/commit/
// insert/read handles sitting on top of the pager, recovery, rptree, and
// vardir packages below it. Grounded on the teacher's top-level
// btree.BTree/hashindex.HashIndex shape — one struct constructed by
// Open, thin public methods delegating to the internal packages that do
// the real work, recovery run once up front before the struct is handed
// back to the caller.
package numstore

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intellect4all/numstore/nslog"
	"github.com/intellect4all/numstore/pager"
	"github.com/intellect4all/numstore/pkgerr"
	"github.com/intellect4all/numstore/recovery"
	"github.com/intellect4all/numstore/rptree"
	"github.com/intellect4all/numstore/walfile"
)

// Config configures a DB.
type Config struct {
	DataDir            string
	CacheSize          int
	CheckpointInterval time.Duration
	PagerMetrics       *pager.Metrics
	RecoveryMetrics    *recovery.Metrics
	TreeMetrics        *rptree.Metrics
}

// DefaultConfig returns sane defaults rooted at dataDir, the way the
// teacher's btree.DefaultConfig and this module's pager.DefaultConfig do.
func DefaultConfig(dataDir string) Config {
	return Config{DataDir: dataDir, CacheSize: 4096, CheckpointInterval: 30 * time.Second}
}

// DB is an open handle onto one numstore database: a data file, a WAL
// file, and the variable directory rooted in them. DB does not engage the
// granular lock table per operation, and it holds no database-wide lock
// around Insert/Write/Read/Remove: those rely on the pager's own latching.
// mu serializes only Close and the BeginTxn/Commit/Rollback calls.
type DB struct {
	id  uuid.UUID
	cfg Config
	p   *pager.Pager
	log *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the database at cfg.DataDir,
// running ARIES recovery first whenever the WAL file already holds
// records past its header (spec §4.6).
func Open(cfg Config) (*DB, error) {
	if cfg.DataDir == "" {
		return nil, pkgerr.New(pkgerr.InvalidArgument, "numstore: empty DataDir")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, pkgerr.FromOS(err, "numstore: create data dir")
	}

	pcfg := pager.DefaultConfig(cfg.DataDir)
	if cfg.CacheSize > 0 {
		pcfg.CacheSize = cfg.CacheSize
	}
	pcfg.Metrics = cfg.PagerMetrics
	pcfg.CheckpointInterval = cfg.CheckpointInterval

	p, err := pager.Open(pcfg)
	if err != nil {
		return nil, err
	}

	if p.WAL().Size() > int64(walfile.HeaderSize) {
		if err := recovery.RunWithMetrics(p, cfg.RecoveryMetrics); err != nil {
			p.Close()
			return nil, err
		}
	}

	return &DB{
		id:  uuid.New(),
		cfg: cfg,
		p:   p,
		log: nslog.Named("numstore"),
	}, nil
}

// ID returns the instance id minted for this open handle, used only to
// tell concurrent open DBs apart in logs; it is not persisted.
func (db *DB) ID() uuid.UUID { return db.id }

// Close flushes and closes the underlying data and WAL files. Close is
// not safe to call concurrently with any other DB method.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.p.Close()
}
