package memory

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/strata-db/strata/internal/storage"
)

// keyValue is one tree item of the unversioned store.
type keyValue struct {
	key   storage.EncodedKey
	value []byte
}

func lessKeyValue(a, b keyValue) bool {
	return a.key.Compare(b.key) < 0
}

// MetaStore is the in-memory unversioned store: one current value per
// key, no history, no snapshots. It backs process-local metadata that
// lives outside multi-version control.
type MetaStore struct {
	// mu serializes writes against reads and snapshot cloning.
	mu sync.RWMutex

	// tree maps encoded keys to their current values.
	tree *btree.BTreeG[keyValue]

	// closed marks the store as released.
	closed bool
}

// NewMetaStore creates an empty unversioned store.
func NewMetaStore() *MetaStore {
	return &MetaStore{
		tree: btree.NewBTreeG(lessKeyValue),
	}
}

// Get returns the current value for key. The value aliases the store's
// internal buffer and must not be modified.
func (m *MetaStore) Get(key storage.EncodedKey) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, storage.ErrStoreClosed
	}
	kv, ok := m.tree.Get(keyValue{key: key})
	if !ok {
		return nil, false, nil
	}
	return kv.value, true, nil
}

// Set stores value for key, replacing any existing value. The key and
// value are cloned, so caller buffers may be reused.
func (m *MetaStore) Set(key storage.EncodedKey, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storage.ErrStoreClosed
	}
	m.tree.Set(keyValue{
		key:   key.Clone(),
		value: append([]byte(nil), value...),
	})
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MetaStore) Remove(key storage.EncodedKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storage.ErrStoreClosed
	}
	m.tree.Delete(keyValue{key: key})
	return nil
}

// Range returns an iterator over r in ascending key order.
func (m *MetaStore) Range(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return m.newIterator(r, batchSize, false)
}

// RangeRev is Range in descending key order.
func (m *MetaStore) RangeRev(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return m.newIterator(r, batchSize, true)
}

func (m *MetaStore) newIterator(r storage.KeyRange, batchSize int, reverse bool) (storage.Iterator, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, storage.ErrStoreClosed
	}
	clone := m.tree.Copy()
	m.mu.RUnlock()

	if r.Empty() {
		clone = nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &metaIterator{
		rng:       r,
		batchSize: batchSize,
		reverse:   reverse,
		tree:      clone,
		idx:       -1,
	}, nil
}

// Len returns the number of keys in the store.
func (m *MetaStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0
	}
	return m.tree.Len()
}

// Close releases the store. Further operations fail with
// ErrStoreClosed. Close is idempotent.
func (m *MetaStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.tree = nil
	return nil
}

// metaIterator streams current values from an unversioned tree clone.
// Items carry a zero Version and are never tombstones.
type metaIterator struct {
	rng       storage.KeyRange
	batchSize int
	reverse   bool

	// tree is the isolated snapshot being walked; nil once exhausted.
	tree *btree.BTreeG[keyValue]

	batch []storage.Versioned
	idx   int

	// resume is the key of the last item handed out.
	resume storage.EncodedKey

	closed bool
}

func (it *metaIterator) Next() bool {
	if it.closed {
		return false
	}
	if it.idx+1 < len(it.batch) {
		it.idx++
		return true
	}

	it.refill()
	if len(it.batch) == 0 {
		return false
	}
	it.idx = 0
	return true
}

func (it *metaIterator) Item() storage.Versioned {
	if it.idx < 0 || it.idx >= len(it.batch) {
		return storage.Versioned{}
	}
	return it.batch[it.idx]
}

func (it *metaIterator) Error() error {
	return nil
}

func (it *metaIterator) Close() error {
	it.closed = true
	it.tree = nil
	it.batch = nil
	return nil
}

func (it *metaIterator) refill() {
	it.batch = it.batch[:0]
	it.idx = -1
	if it.tree == nil {
		return
	}

	full := false
	collect := func(kv keyValue) bool {
		if it.reverse {
			if it.resume != nil && kv.key.Compare(it.resume) >= 0 {
				return true
			}
			if it.rng.End != nil && kv.key.Compare(it.rng.End) >= 0 {
				return true
			}
			if it.rng.Start != nil && kv.key.Compare(it.rng.Start) < 0 {
				return false
			}
		} else {
			if it.resume != nil && kv.key.Compare(it.resume) <= 0 {
				return true
			}
			if it.rng.End != nil && kv.key.Compare(it.rng.End) >= 0 {
				return false
			}
		}

		it.batch = append(it.batch, storage.Versioned{Key: kv.key, Value: kv.value})
		it.resume = kv.key
		full = len(it.batch) >= it.batchSize
		return !full
	}

	if it.reverse {
		switch {
		case it.resume != nil:
			it.tree.Descend(keyValue{key: it.resume}, collect)
		case it.rng.End != nil:
			it.tree.Descend(keyValue{key: it.rng.End}, collect)
		default:
			it.tree.Reverse(collect)
		}
	} else {
		switch {
		case it.resume != nil:
			it.tree.Ascend(keyValue{key: it.resume}, collect)
		case it.rng.Start != nil:
			it.tree.Ascend(keyValue{key: it.rng.Start}, collect)
		default:
			it.tree.Scan(collect)
		}
	}

	if !full {
		// Crossed the range bound or walked off the end: either way
		// the snapshot is exhausted.
		it.tree = nil
	}
}
