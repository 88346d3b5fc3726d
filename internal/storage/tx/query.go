package tx

import (
	"sync"

	"github.com/strata-db/strata/internal/storage"
)

// QueryTx is a read-only transaction pinned to a snapshot version.
// Every read observes the same immutable prefix of history regardless
// of concurrent commits, and no read ever blocks a writer.
//
// Query transactions keep no read set and cannot conflict; they are
// released with Close rather than committed or rolled back.
type QueryTx struct {
	mgr *TxManager

	mu      sync.Mutex
	version storage.Version
	closed  bool
}

func newQueryTx(mgr *TxManager, version storage.Version) *QueryTx {
	return &QueryTx{mgr: mgr, version: version}
}

// Version returns the snapshot version reads observe.
func (t *QueryTx) Version() storage.Version {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// ReadAsOf re-pins the transaction to an older snapshot, used for
// time-travel reads over retained history. The snapshot only narrows:
// a version above the current one fails with ErrSnapshotForward, since
// moving forward could surface commits the transaction has not been
// isolated against.
func (t *QueryTx) ReadAsOf(version storage.Version) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrQueryTxClosed
	}
	if version > t.version {
		return ErrSnapshotForward
	}
	t.version = version
	return nil
}

// Get returns the newest value for key at or below the snapshot.
func (t *QueryTx) Get(key storage.EncodedKey) (storage.Versioned, bool, error) {
	version, err := t.snapshot()
	if err != nil {
		return storage.Versioned{}, false, err
	}
	return t.mgr.store.Get(key, version)
}

// Contains reports whether key is visible at the snapshot.
func (t *QueryTx) Contains(key storage.EncodedKey) (bool, error) {
	version, err := t.snapshot()
	if err != nil {
		return false, err
	}
	return t.mgr.store.Contains(key, version)
}

// Range returns an ascending iterator over [r.Start, r.End) at the
// snapshot. Deleted keys are filtered out.
func (t *QueryTx) Range(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return t.scan(r, batchSize, false)
}

// RangeRev is Range in descending key order.
func (t *QueryTx) RangeRev(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return t.scan(r, batchSize, true)
}

func (t *QueryTx) scan(r storage.KeyRange, batchSize int, reverse bool) (storage.Iterator, error) {
	version, err := t.snapshot()
	if err != nil {
		return nil, err
	}

	var committed storage.Iterator
	if reverse {
		committed, err = t.mgr.store.RangeRev(r, version, batchSize)
	} else {
		committed, err = t.mgr.store.Range(r, version, batchSize)
	}
	if err != nil {
		return nil, err
	}
	// No overlay; the merge still filters tombstones and duplicates.
	return newMergeIterator(committed, nil, reverse, nil), nil
}

// Set always fails with ErrTxReadOnly.
func (t *QueryTx) Set(storage.EncodedKey, []byte) error {
	return ErrTxReadOnly
}

// Remove always fails with ErrTxReadOnly.
func (t *QueryTx) Remove(storage.EncodedKey) error {
	return ErrTxReadOnly
}

// Drop always fails with ErrTxReadOnly.
func (t *QueryTx) Drop(storage.EncodedKey, storage.Version, int) error {
	return ErrTxReadOnly
}

// Commit always fails with ErrCommitReadTx.
func (t *QueryTx) Commit() (storage.Version, error) {
	return 0, ErrCommitReadTx
}

// Rollback always fails with ErrRollbackReadTx.
func (t *QueryTx) Rollback() error {
	return ErrRollbackReadTx
}

// Close releases the transaction. Close is idempotent.
func (t *QueryTx) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.mgr.releaseQuery()
	return nil
}

func (t *QueryTx) snapshot() (storage.Version, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrQueryTxClosed
	}
	return t.version, nil
}
