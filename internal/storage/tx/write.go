package tx

import (
	"math"
	"sync"

	"github.com/tidwall/btree"

	"github.com/strata-db/strata/internal/storage"
)

// txState tracks a write transaction through its lifecycle.
type txState uint8

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

// pendingWrite is one entry in a transaction's pending set: the latest
// mutation recorded for a key.
type pendingWrite struct {
	key   storage.EncodedKey
	delta storage.Delta
}

func lessPendingWrite(a, b pendingWrite) bool {
	return a.key.Compare(b.key) < 0
}

// WriteTx is a read-write transaction. Reads observe the snapshot taken
// at begin time overlaid with the transaction's own pending writes;
// mutations buffer in an ordered pending set until Commit applies them
// atomically at a freshly allocated version.
//
// A write transaction is not safe for concurrent use by multiple
// goroutines. It ends in exactly one of Commit or Rollback; a failed
// Commit rolls it back.
type WriteTx struct {
	mgr  *TxManager
	id   storage.TxID
	base storage.Version

	mu           sync.Mutex
	state        txState
	pending      *btree.BTreeG[pendingWrite]
	pendingBytes int
	nextSeq      uint32
	reads        map[uint64]struct{}
	writes       map[uint64]struct{}
}

func newWriteTx(mgr *TxManager, id storage.TxID, base storage.Version) *WriteTx {
	return &WriteTx{
		mgr:     mgr,
		id:      id,
		base:    base,
		pending: btree.NewBTreeG(lessPendingWrite),
		reads:   make(map[uint64]struct{}),
		writes:  make(map[uint64]struct{}),
	}
}

// ID returns the transaction's identifier.
func (t *WriteTx) ID() storage.TxID {
	return t.id
}

// Base returns the snapshot version the transaction reads from.
func (t *WriteTx) Base() storage.Version {
	return t.base
}

// Pending returns the number of keys with buffered mutations.
func (t *WriteTx) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len()
}

// PendingBytes returns the buffered key and value payload size.
func (t *WriteTx) PendingBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingBytes
}

// Set buffers a write of value for key. The key and value are copied,
// so callers may reuse their slices.
func (t *WriteTx) Set(key storage.EncodedKey, value []byte) error {
	d := storage.NewSetDelta(key.Clone(), append([]byte(nil), value...))
	return t.put(d)
}

// Remove buffers a tombstone for key.
func (t *WriteTx) Remove(key storage.EncodedKey) error {
	return t.put(storage.NewRemoveDelta(key.Clone()))
}

// Drop buffers a history prune for key: committed entries at or below
// upTo become garbage-collectible beyond the newest keepLast. Drops do
// not change what readers see and never appear on the change feed.
func (t *WriteTx) Drop(key storage.EncodedKey, upTo storage.Version, keepLast int) error {
	return t.put(storage.NewDropDelta(key.Clone(), upTo, keepLast))
}

// put records d as the latest pending mutation for its key, replacing
// any earlier one.
func (t *WriteTx) put(d storage.Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.active(); err != nil {
		return err
	}
	if t.nextSeq > math.MaxUint16 {
		return ErrSequenceExhausted
	}

	grow := len(d.Key) + len(d.Value)
	prev, replaced := t.pending.Get(pendingWrite{key: d.Key})
	if replaced {
		grow -= len(prev.key) + len(prev.delta.Value)
	}
	if t.pendingBytes+grow > t.mgr.cfg.MaxPendingBytes {
		return ErrTxTooLarge
	}

	d.Sequence = uint16(t.nextSeq)
	t.nextSeq++
	t.pendingBytes += grow
	t.pending.Set(pendingWrite{key: d.Key, delta: d})
	if d.Kind != storage.DeltaDrop {
		t.writes[fingerprint(d.Key)] = struct{}{}
	}
	return nil
}

// Get returns the value visible to the transaction for key. Pending
// writes shadow the snapshot: a buffered Set is returned with Version
// zero, a buffered Remove hides the key, and a buffered Drop falls
// through to the snapshot. Snapshot reads join the read set used for
// conflict detection.
func (t *WriteTx) Get(key storage.EncodedKey) (storage.Versioned, bool, error) {
	t.mu.Lock()
	if err := t.active(); err != nil {
		t.mu.Unlock()
		return storage.Versioned{}, false, err
	}
	if pw, ok := t.pending.Get(pendingWrite{key: key}); ok {
		switch pw.delta.Kind {
		case storage.DeltaSet:
			t.mu.Unlock()
			return storage.Versioned{Key: pw.key, Value: pw.delta.Value}, true, nil
		case storage.DeltaRemove:
			t.mu.Unlock()
			return storage.Versioned{}, false, nil
		}
	}
	t.reads[fingerprint(key)] = struct{}{}
	base := t.base
	t.mu.Unlock()

	return t.mgr.store.Get(key, base)
}

// Contains reports whether key is visible to the transaction.
func (t *WriteTx) Contains(key storage.EncodedKey) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Range returns an ascending iterator over [r.Start, r.End) merging the
// snapshot with the transaction's pending writes. Every key the scan
// yields joins the read set, so a commit that would have changed the
// scan's outcome conflicts with this transaction.
func (t *WriteTx) Range(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return t.scan(r, batchSize, false)
}

// RangeRev is Range in descending key order.
func (t *WriteTx) RangeRev(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return t.scan(r, batchSize, true)
}

func (t *WriteTx) scan(r storage.KeyRange, batchSize int, reverse bool) (storage.Iterator, error) {
	t.mu.Lock()
	if err := t.active(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	pending := t.pendingInRange(r, reverse)
	base := t.base
	t.mu.Unlock()

	var committed storage.Iterator
	var err error
	if reverse {
		committed, err = t.mgr.store.RangeRev(r, base, batchSize)
	} else {
		committed, err = t.mgr.store.Range(r, base, batchSize)
	}
	if err != nil {
		return nil, err
	}
	return newMergeIterator(committed, pending, reverse, t.noteRead), nil
}

// pendingInRange snapshots the pending mutations inside r in scan
// order. Caller holds t.mu.
func (t *WriteTx) pendingInRange(r storage.KeyRange, reverse bool) []storage.Delta {
	if t.pending.Len() == 0 || r.Empty() {
		return nil
	}
	var out []storage.Delta
	if reverse {
		walk := func(pw pendingWrite) bool {
			if r.End != nil && pw.key.Compare(r.End) >= 0 {
				return true
			}
			if r.Start != nil && pw.key.Compare(r.Start) < 0 {
				return false
			}
			out = append(out, pw.delta)
			return true
		}
		if r.End != nil {
			t.pending.Descend(pendingWrite{key: r.End}, walk)
		} else {
			t.pending.Reverse(walk)
		}
		return out
	}
	walk := func(pw pendingWrite) bool {
		if r.End != nil && pw.key.Compare(r.End) >= 0 {
			return false
		}
		out = append(out, pw.delta)
		return true
	}
	if r.Start != nil {
		t.pending.Ascend(pendingWrite{key: r.Start}, walk)
	} else {
		t.pending.Scan(walk)
	}
	return out
}

// noteRead folds a scanned key into the read set.
func (t *WriteTx) noteRead(key storage.EncodedKey) {
	t.mu.Lock()
	if t.state == txActive {
		t.reads[fingerprint(key)] = struct{}{}
	}
	t.mu.Unlock()
}

// Commit applies the pending set atomically and returns the commit
// version. A transaction with no pending mutations commits without
// allocating a version and returns its base. On ErrTxConflict, or any
// other failure, the transaction is rolled back and the caller retries
// with a fresh one.
func (t *WriteTx) Commit() (storage.Version, error) {
	t.mu.Lock()
	if err := t.active(); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	deltas := make([]storage.Delta, 0, t.pending.Len())
	t.pending.Scan(func(pw pendingWrite) bool {
		deltas = append(deltas, pw.delta)
		return true
	})
	reads, writes := t.reads, t.writes
	t.mu.Unlock()

	version, err := t.mgr.commitWrite(t, deltas, reads, writes)

	t.mu.Lock()
	if err != nil {
		t.state = txRolledBack
	} else {
		t.state = txCommitted
	}
	t.pending = nil
	t.reads = nil
	t.writes = nil
	t.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return version, nil
}

// Rollback discards the pending set. The transaction cannot be used
// afterwards.
func (t *WriteTx) Rollback() error {
	t.mu.Lock()
	if err := t.active(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = txRolledBack
	t.pending = nil
	t.reads = nil
	t.writes = nil
	t.mu.Unlock()

	t.mgr.rollbackWrite(t)
	return nil
}

// active returns the misuse error for the transaction's terminal state,
// or nil while it is usable. Caller holds t.mu.
func (t *WriteTx) active() error {
	switch t.state {
	case txCommitted:
		return ErrTxCommitted
	case txRolledBack:
		return ErrTxRolledBack
	default:
		return nil
	}
}
