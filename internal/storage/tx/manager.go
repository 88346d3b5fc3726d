package tx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/internal/storage/cdc"
	"github.com/strata-db/strata/internal/storage/mvcc"
)

// DefaultMaxPendingBytes is the default cap on a single write
// transaction's buffered key and value payload.
const DefaultMaxPendingBytes = 64 << 20

// Config holds configuration options for the TxManager.
type Config struct {
	// StartVersion seeds the commit version counter. The first commit
	// is assigned StartVersion+1. Pass the backend's last durable
	// version when reopening a store.
	StartVersion storage.Version

	// MaxPendingBytes caps a write transaction's pending set; a
	// mutation that would exceed it fails with ErrTxTooLarge.
	MaxPendingBytes int

	// Logger receives commit-level diagnostics. The zero value is
	// silent.
	Logger zerolog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		MaxPendingBytes: DefaultMaxPendingBytes,
		Logger:          zerolog.Nop(),
	}
}

// TxManager coordinates transactions over a versioned store: it hands
// out snapshots from the watermark frontier, allocates commit versions,
// detects write conflicts, applies commits to the backend, and
// publishes committed deltas to the change feed.
//
// Commits are serialized; reads run concurrently against immutable
// snapshots and are never blocked by writers.
type TxManager struct {
	store   storage.VersionedStore
	tracker *mvcc.WatermarkTracker
	feed    *cdc.CommitLog
	cfg     Config

	// version is the highest commit version allocated so far.
	version atomic.Uint64

	// lastTxID is the most recently issued transaction id. Id zero is
	// reserved.
	lastTxID atomic.Uint64

	oracle *conflictOracle

	// commitMu serializes the commit pipeline: version allocation,
	// conflict check, backend apply, and feed publish.
	commitMu sync.Mutex

	// mu guards activeWrites.
	mu           sync.Mutex
	activeWrites map[storage.TxID]storage.Version

	activeQueries atomic.Int64
	commits       atomic.Uint64
	conflicts     atomic.Uint64
	rollbacks     atomic.Uint64

	closed atomic.Bool
}

// ManagerStats holds statistics about a transaction manager.
type ManagerStats struct {
	// LastVersion is the highest commit version allocated.
	LastVersion storage.Version

	// Watermark is the current visibility frontier.
	Watermark storage.Version

	// ActiveWrites is the number of open write transactions.
	ActiveWrites int

	// ActiveQueries is the number of open query transactions.
	ActiveQueries int

	// Commits is the total number of successful commits.
	Commits uint64

	// Conflicts is the total number of commits aborted by conflict.
	Conflicts uint64

	// Rollbacks is the total number of explicit rollbacks.
	Rollbacks uint64

	// OracleWindow is the number of committed write sets retained for
	// conflict detection.
	OracleWindow int
}

// NewTxManager creates a manager over store. The tracker supplies
// snapshot versions and is advanced by every commit. The feed receives
// committed deltas and may be nil to disable change capture.
func NewTxManager(store storage.VersionedStore, tracker *mvcc.WatermarkTracker, feed *cdc.CommitLog, cfg Config) *TxManager {
	if cfg.MaxPendingBytes <= 0 {
		cfg.MaxPendingBytes = DefaultMaxPendingBytes
	}

	m := &TxManager{
		store:        store,
		tracker:      tracker,
		feed:         feed,
		cfg:          cfg,
		oracle:       newConflictOracle(),
		activeWrites: make(map[storage.TxID]storage.Version),
	}
	m.version.Store(uint64(cfg.StartVersion))

	return m
}

// BeginWrite starts a read-write transaction reading from the current
// watermark frontier.
func (m *TxManager) BeginWrite() (*WriteTx, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	id := storage.TxID(m.lastTxID.Add(1))
	base := m.tracker.DoneUntil()

	m.mu.Lock()
	m.activeWrites[id] = base
	m.mu.Unlock()

	return newWriteTx(m, id, base), nil
}

// BeginQuery starts a read-only transaction pinned to the current
// watermark frontier.
func (m *TxManager) BeginQuery() (*QueryTx, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	m.activeQueries.Add(1)
	return newQueryTx(m, m.tracker.DoneUntil()), nil
}

// BeginQueryAt starts a read-only transaction pinned to an explicit
// snapshot version, which may lie in the past.
func (m *TxManager) BeginQueryAt(version storage.Version) (*QueryTx, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	m.activeQueries.Add(1)
	return newQueryTx(m, version), nil
}

// commitWrite runs the commit pipeline for t and returns the version
// its deltas were applied at. An empty pending set commits at the
// transaction's base without allocating a version.
func (m *TxManager) commitWrite(t *WriteTx, deltas []storage.Delta, reads, writes map[uint64]struct{}) (storage.Version, error) {
	if m.closed.Load() {
		m.forgetWrite(t.id)
		return 0, ErrManagerClosed
	}

	if len(deltas) == 0 {
		m.forgetWrite(t.id)
		return t.base, nil
	}

	version, err := m.applyCommit(t, deltas, reads, writes)
	m.forgetWrite(t.id)
	if err != nil {
		return 0, err
	}

	// Block until the frontier covers the new version so a transaction
	// begun after Commit returns always observes its writes. Lower
	// versions have all settled by now, so the wait cannot stall.
	if err := m.tracker.WaitFor(context.Background(), version); err != nil {
		m.cfg.Logger.Debug().
			Uint64("version", uint64(version)).
			Err(err).
			Msg("commit visibility wait interrupted")
	}

	m.commits.Add(1)
	return version, nil
}

// applyCommit is the serialized section of the pipeline.
func (m *TxManager) applyCommit(t *WriteTx, deltas []storage.Delta, reads, writes map[uint64]struct{}) (storage.Version, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if m.oracle.conflicts(t.base, reads, writes) {
		m.conflicts.Add(1)
		return 0, fmt.Errorf("base version %d: %w", t.base, ErrTxConflict)
	}

	version := storage.Version(m.version.Add(1))
	if err := m.tracker.Begin(version); err != nil {
		return 0, fmt.Errorf("%w: begin version %d: %w", ErrCommitFailed, version, err)
	}

	if err := m.store.Commit(deltas, version, t.id); err != nil {
		// The version burned by the failed apply still settles so the
		// frontier never stalls behind it.
		m.tracker.Done(version)
		return 0, fmt.Errorf("%w: apply version %d: %w", ErrCommitFailed, version, err)
	}

	m.oracle.observe(version, writes)
	m.publish(version, deltas)
	m.tracker.Done(version)

	m.cfg.Logger.Debug().
		Uint64("tx_id", uint64(t.id)).
		Uint64("version", uint64(version)).
		Int("deltas", len(deltas)).
		Msg("commit applied")

	return version, nil
}

// CommitAt applies deltas at an externally chosen version, bypassing
// transaction bookkeeping. The version must exceed every version
// allocated so far; the write sets of the deltas still feed conflict
// detection and the change feed, so optimistic transactions and
// subscribers observe direct commits like any other.
func (m *TxManager) CommitAt(deltas []storage.Delta, version storage.Version, txID storage.TxID) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if len(deltas) == 0 {
		return nil
	}

	m.commitMu.Lock()
	last := storage.Version(m.version.Load())
	if version <= last {
		m.commitMu.Unlock()
		return fmt.Errorf("commit version %d not above %d: %w", version, last, mvcc.ErrVersionOrder)
	}
	m.version.Store(uint64(version))

	if err := m.tracker.Begin(version); err != nil {
		m.commitMu.Unlock()
		return fmt.Errorf("%w: begin version %d: %w", ErrCommitFailed, version, err)
	}
	if err := m.store.Commit(deltas, version, txID); err != nil {
		m.tracker.Done(version)
		m.commitMu.Unlock()
		return fmt.Errorf("%w: apply version %d: %w", ErrCommitFailed, version, err)
	}

	writes := make(map[uint64]struct{}, len(deltas))
	for _, d := range deltas {
		if d.Kind != storage.DeltaDrop {
			writes[fingerprint(d.Key)] = struct{}{}
		}
	}
	m.oracle.observe(version, writes)
	m.publish(version, deltas)
	m.tracker.Done(version)
	m.commitMu.Unlock()

	if err := m.tracker.WaitFor(context.Background(), version); err != nil {
		m.cfg.Logger.Debug().
			Uint64("version", uint64(version)).
			Err(err).
			Msg("commit visibility wait interrupted")
	}

	m.commits.Add(1)
	return nil
}

// publish hands a commit to the change feed. Caller holds commitMu so
// events arrive in version order.
func (m *TxManager) publish(version storage.Version, deltas []storage.Delta) {
	if m.feed == nil {
		return
	}
	event, ok := cdc.NewCommitEvent(version, deltas)
	if !ok {
		return
	}
	if !m.feed.Append(event) {
		m.cfg.Logger.Warn().
			Uint64("version", uint64(version)).
			Msg("change feed rejected commit event")
	}
}

// rollbackWrite releases an explicitly rolled back transaction.
func (m *TxManager) rollbackWrite(t *WriteTx) {
	m.rollbacks.Add(1)
	m.forgetWrite(t.id)
}

// forgetWrite unregisters a finished write transaction and prunes the
// conflict window below the lowest snapshot still reachable.
func (m *TxManager) forgetWrite(id storage.TxID) {
	floor := m.tracker.DoneUntil()

	m.mu.Lock()
	delete(m.activeWrites, id)
	for _, base := range m.activeWrites {
		if base < floor {
			floor = base
		}
	}
	m.mu.Unlock()

	m.oracle.pruneBelow(floor)
}

// releaseQuery is called by QueryTx.Close.
func (m *TxManager) releaseQuery() {
	m.activeQueries.Add(-1)
}

// LastVersion returns the highest commit version allocated so far.
func (m *TxManager) LastVersion() storage.Version {
	return storage.Version(m.version.Load())
}

// Watermark returns the current visibility frontier.
func (m *TxManager) Watermark() storage.Version {
	return m.tracker.DoneUntil()
}

// Stats returns current manager statistics.
func (m *TxManager) Stats() ManagerStats {
	m.mu.Lock()
	activeWrites := len(m.activeWrites)
	m.mu.Unlock()

	return ManagerStats{
		LastVersion:   m.LastVersion(),
		Watermark:     m.tracker.DoneUntil(),
		ActiveWrites:  activeWrites,
		ActiveQueries: int(m.activeQueries.Load()),
		Commits:       m.commits.Load(),
		Conflicts:     m.conflicts.Load(),
		Rollbacks:     m.rollbacks.Load(),
		OracleWindow:  m.oracle.size(),
	}
}

// Close stops the manager. Transactions already begun fail their next
// commit with ErrManagerClosed; reads against already-taken snapshots
// remain valid until the underlying store closes. Close is idempotent.
func (m *TxManager) Close() error {
	m.closed.Store(true)
	return nil
}
