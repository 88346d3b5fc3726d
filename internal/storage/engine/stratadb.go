package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/internal/storage/bufpool"
	"github.com/strata-db/strata/internal/storage/cdc"
	"github.com/strata-db/strata/internal/storage/memory"
	"github.com/strata-db/strata/internal/storage/mvcc"
	"github.com/strata-db/strata/internal/storage/pebbledb"
	"github.com/strata-db/strata/internal/storage/tx"
)

// Engine errors.
var (
	ErrDatabaseClosed = errors.New("database is closed")
)

// StrataDB is the main storage engine implementation. It wires the
// backend stores, watermark tracker, transaction manager, change feed,
// and garbage collector into a cohesive API.
//
// All reads are snapshot reads: they name a version explicitly or go
// through a transaction that pinned one. Commits are serialized by the
// transaction manager and become visible atomically when the watermark
// frontier reaches their version.
type StrataDB struct {
	// Core components
	rows    storage.VersionedStore
	meta    storage.UnversionedStore
	tracker *mvcc.WatermarkTracker
	feed    *cdc.CommitLog
	txns    *tx.TxManager
	gc      *mvcc.GarbageCollector

	// Additional components
	pool *bufpool.Pool
	pdb  *pebbledb.DB

	// Configuration
	opts   Options
	logger zerolog.Logger

	// State
	closed bool
	mu     sync.RWMutex
}

// EngineStats aggregates statistics from all engine components.
type EngineStats struct {
	// Transactions holds transaction manager counters.
	Transactions tx.ManagerStats

	// Watermark holds visibility frontier counters.
	Watermark mvcc.WatermarkStats

	// GC holds garbage collector counters.
	GC mvcc.GCStats

	// Feed holds change feed counters.
	Feed cdc.LogStats

	// Buffers holds scratch buffer pool counters.
	Buffers bufpool.PoolStats
}

// Open opens, creating if necessary, a StrataDB engine with the given
// options. An empty Path runs the engine fully in memory.
func Open(opts Options) (*StrataDB, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	db := &StrataDB{
		opts:   opts,
		logger: opts.Logger,
	}

	if err := db.initComponents(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initComponents wires the storage components in dependency order.
func (db *StrataDB) initComponents() error {
	// 1. Scratch buffer pool, shared with the disk backend.
	db.pool = bufpool.NewPool(bufpool.DefaultCapacity, bufpool.DefaultBufferSize)

	// 2. Backend stores. The commit version counter resumes from the
	// backend's last durable version so versions stay monotonic across
	// restarts.
	var start storage.Version
	if db.opts.Path == "" {
		db.rows = memory.NewStore()
		db.meta = memory.NewMetaStore()
	} else {
		cfg := pebbledb.DefaultConfig(db.opts.Path)
		cfg.CacheSize = db.opts.CacheSize
		cfg.DisableSync = !db.opts.SyncWrites
		cfg.FS = db.opts.FS
		cfg.Pool = db.pool
		cfg.Logger = db.logger

		pdb, err := pebbledb.Open(cfg)
		if err != nil {
			return err
		}
		db.pdb = pdb
		db.rows = pdb.Rows()
		db.meta = pdb.Meta()

		start, err = pdb.Rows().LastVersion()
		if err != nil {
			return err
		}
	}

	// 3. Watermark tracker seeded at the last durable version.
	db.tracker = mvcc.NewWatermarkTracker(start)

	// 4. Change feed.
	db.feed = cdc.NewCommitLog(cdc.LogConfig{
		HistorySize:      db.opts.FeedHistorySize,
		SubscriberBuffer: db.opts.SubscriberBuffer,
		Logger:           db.logger,
	})

	// 5. Transaction manager.
	db.txns = tx.NewTxManager(db.rows, db.tracker, db.feed, tx.Config{
		StartVersion:    start,
		MaxPendingBytes: db.opts.MaxPendingBytes,
		Logger:          db.logger,
	})

	// 6. Garbage collector over the versioned store.
	db.gc = mvcc.NewGarbageCollectorWithConfig(
		db.tracker,
		[]mvcc.Compactable{db.rows},
		mvcc.GCConfig{
			MaxDelay:   db.opts.GCMaxDelay,
			BatchLimit: db.opts.GCBatchLimit,
			Logger:     db.logger,
		},
	)
	if db.opts.GCEnabled {
		if err := db.gc.Start(); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the engine and releases all resources. Close is
// idempotent.
func (db *StrataDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error

	// Stop garbage collection
	if db.gc != nil {
		if err := db.gc.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Close transaction manager
	if db.txns != nil {
		if err := db.txns.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Close change feed
	if db.feed != nil {
		if err := db.feed.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Close watermark tracker
	if db.tracker != nil {
		if err := db.tracker.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// Close backend. The disk backend hosts both stores, so it is
	// closed once; the memory stores are independent.
	if db.pdb != nil {
		if err := db.pdb.Close(); err != nil {
			errs = append(errs, err)
		}
	} else {
		if db.rows != nil {
			if err := db.rows.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if db.meta != nil {
			if err := db.meta.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}

// Get returns the entry visible at version. ok is false when the key
// never existed at that snapshot or was deleted by it.
func (db *StrataDB) Get(key storage.EncodedKey, version storage.Version) (storage.Versioned, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return storage.Versioned{}, false, ErrDatabaseClosed
	}

	return db.rows.Get(key, version)
}

// Contains reports whether key has a live value at version.
func (db *StrataDB) Contains(key storage.EncodedKey, version storage.Version) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return false, ErrDatabaseClosed
	}

	return db.rows.Contains(key, version)
}

// Range returns an iterator over r resolved at the snapshot version,
// in ascending key order. Deleted keys are filtered out. batchSize is
// a read-ahead hint; zero selects the backend default.
func (db *StrataDB) Range(r storage.KeyRange, version storage.Version, batchSize int) (storage.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	it, err := db.rows.Range(r, version, batchSize)
	if err != nil {
		return nil, err
	}
	return tx.Visible(it), nil
}

// RangeRev is Range in descending key order.
func (db *StrataDB) RangeRev(r storage.KeyRange, version storage.Version, batchSize int) (storage.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	it, err := db.rows.RangeRev(r, version, batchSize)
	if err != nil {
		return nil, err
	}
	return tx.Visible(it), nil
}

// Commit atomically applies deltas at an explicitly chosen version on
// behalf of txID, bypassing the optimistic transaction surface. It is
// the write path for layers that order their own commits; version must
// exceed every previously committed version. The commit participates
// in conflict detection, the change feed, and the watermark like any
// other.
func (db *StrataDB) Commit(deltas []storage.Delta, version storage.Version, txID storage.TxID) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return ErrDatabaseClosed
	}

	return db.txns.CommitAt(deltas, version, txID)
}

// BeginWrite starts an optimistic write transaction.
func (db *StrataDB) BeginWrite() (*tx.WriteTx, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.txns.BeginWrite()
}

// BeginQuery starts a read-only transaction pinned at the current
// watermark.
func (db *StrataDB) BeginQuery() (*tx.QueryTx, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.txns.BeginQuery()
}

// BeginQueryAt starts a read-only transaction pinned at an explicit
// snapshot version.
func (db *StrataDB) BeginQueryAt(version storage.Version) (*tx.QueryTx, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.txns.BeginQueryAt(version)
}

// View runs fn inside a read-only transaction and releases it when fn
// returns.
func (db *StrataDB) View(fn func(q *tx.QueryTx) error) error {
	q, err := db.BeginQuery()
	if err != nil {
		return err
	}
	defer q.Close()

	return fn(q)
}

// Update runs fn inside a write transaction and commits it when fn
// returns nil. A non-nil error from fn rolls the transaction back and
// is returned unchanged. On success the commit version is returned and
// the commit is visible to subsequent reads.
func (db *StrataDB) Update(fn func(w *tx.WriteTx) error) (storage.Version, error) {
	w, err := db.BeginWrite()
	if err != nil {
		return 0, err
	}
	defer w.Rollback()

	if err := fn(w); err != nil {
		return 0, err
	}

	return w.Commit()
}

// UpdateWithRetry is Update retried on write conflicts, up to attempts
// tries. fn must be safe to run more than once.
func (db *StrataDB) UpdateWithRetry(attempts int, fn func(w *tx.WriteTx) error) (storage.Version, error) {
	var version storage.Version

	err := tx.Retry(attempts, func() error {
		v, err := db.Update(fn)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

// MetaGet returns the current value for key from the unversioned
// metadata store.
func (db *StrataDB) MetaGet(key storage.EncodedKey) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, false, ErrDatabaseClosed
	}

	return db.meta.Get(key)
}

// MetaSet stores value for key in the unversioned metadata store,
// replacing any existing value.
func (db *StrataDB) MetaSet(key storage.EncodedKey, value []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return ErrDatabaseClosed
	}

	return db.meta.Set(key, value)
}

// MetaRemove deletes key from the unversioned metadata store.
func (db *StrataDB) MetaRemove(key storage.EncodedKey) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return ErrDatabaseClosed
	}

	return db.meta.Remove(key)
}

// MetaRange returns an iterator over the metadata store in ascending
// key order.
func (db *StrataDB) MetaRange(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.meta.Range(r, batchSize)
}

// MetaRangeRev is MetaRange in descending key order.
func (db *StrataDB) MetaRangeRev(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.meta.RangeRev(r, batchSize)
}

// ChangeRange returns the retained commit events with version in
// [from, to], oldest first. cdc.ErrHistoryTrimmed reports that from
// has aged out of the history buffer.
func (db *StrataDB) ChangeRange(from, to storage.Version) ([]cdc.CommitEvent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.feed.Range(from, to)
}

// ChangeScan returns up to limit of the most recent commit events,
// oldest first.
func (db *StrataDB) ChangeScan(limit int) ([]cdc.CommitEvent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.feed.Scan(limit)
}

// SubscribeChanges registers a live subscription for commit events
// matching filter.
func (db *StrataDB) SubscribeChanges(filter cdc.Filter) (*cdc.Subscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.feed.Subscribe(filter)
}

// SubscribeChangesFrom registers a live subscription that first
// replays retained history from the given version.
func (db *StrataDB) SubscribeChangesFrom(filter cdc.Filter, from storage.Version) (*cdc.Subscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	return db.feed.SubscribeFrom(filter, from)
}

// Unsubscribe removes a live subscription and closes its channel.
func (db *StrataDB) Unsubscribe(id cdc.SubscriptionID) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return
	}

	db.feed.Unsubscribe(id)
}

// WaitForVersion blocks until every commit at or below version is
// settled, the context is cancelled, or the engine closes.
func (db *StrataDB) WaitForVersion(ctx context.Context, version storage.Version) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDatabaseClosed
	}
	tracker := db.tracker
	db.mu.RUnlock()

	return tracker.WaitFor(ctx, version)
}

// CollectGarbage runs one synchronous collection pass and returns the
// number of chain entries removed.
func (db *StrataDB) CollectGarbage() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return 0, ErrDatabaseClosed
	}

	return db.gc.Collect()
}

// LastVersion returns the highest commit version allocated so far.
func (db *StrataDB) LastVersion() storage.Version {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return 0
	}

	return db.txns.LastVersion()
}

// Watermark returns the visibility frontier: every commit at or below
// it is settled.
func (db *StrataDB) Watermark() storage.Version {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return 0
	}

	return db.tracker.DoneUntil()
}

// Stats returns statistics aggregated across the engine components.
func (db *StrataDB) Stats() EngineStats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := EngineStats{}
	if db.closed {
		return stats
	}

	stats.Transactions = db.txns.Stats()
	stats.Watermark = db.tracker.Stats()
	stats.GC = db.gc.Stats()
	stats.Feed = db.feed.Stats()
	stats.Buffers = db.pool.Stats()

	return stats
}
