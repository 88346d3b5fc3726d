package pebbledb

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/strata-db/strata/internal/storage"
)

// MetaStore is the unversioned metadata view of a pebble database: one
// current value per key, no history, no snapshots.
type MetaStore struct {
	db *DB
}

// Get returns the current value for key. The value is an independent
// copy.
func (m *MetaStore) Get(key storage.EncodedKey) ([]byte, bool, error) {
	if m.db.closed.Load() {
		return nil, false, storage.ErrStoreClosed
	}

	val, closer, err := m.db.db.Get(spaceKey(metaSpace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	return append([]byte(nil), val...), true, nil
}

// Set stores value for key, replacing any existing value. The write is
// synced.
func (m *MetaStore) Set(key storage.EncodedKey, value []byte) error {
	if m.db.closed.Load() {
		return storage.ErrStoreClosed
	}
	return m.db.db.Set(spaceKey(metaSpace, key), value, m.db.sync)
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MetaStore) Remove(key storage.EncodedKey) error {
	if m.db.closed.Load() {
		return storage.ErrStoreClosed
	}
	return m.db.db.Delete(spaceKey(metaSpace, key), m.db.sync)
}

// Range returns an iterator over r in ascending key order. Items carry
// a zero Version and are never tombstones.
func (m *MetaStore) Range(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return m.newIterator(r, batchSize, false)
}

// RangeRev is Range in descending key order.
func (m *MetaStore) RangeRev(r storage.KeyRange, batchSize int) (storage.Iterator, error) {
	return m.newIterator(r, batchSize, true)
}

// Close closes the store and the database it shares with the row view.
// Close is idempotent.
func (m *MetaStore) Close() error {
	return m.db.Close()
}

func (m *MetaStore) newIterator(r storage.KeyRange, batchSize int, reverse bool) (storage.Iterator, error) {
	if m.db.closed.Load() {
		return nil, storage.ErrStoreClosed
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	it := &metaIterator{
		batchSize: batchSize,
		reverse:   reverse,
		idx:       -1,
	}
	if r.Empty() {
		return it, nil
	}

	lower, upper := spaceBounds(metaSpace, r)
	pi, err := m.db.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	it.iter = pi
	if reverse {
		it.valid = pi.Last()
	} else {
		it.valid = pi.First()
	}
	return it, nil
}

// metaIterator streams metadata entries from a pebble scan over the
// meta namespace.
type metaIterator struct {
	batchSize int
	reverse   bool

	iter  *pebble.Iterator
	valid bool

	batch []storage.Versioned
	idx   int

	err    error
	closed bool
}

// Next advances to the next entry and returns true if one is
// available.
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

// Item returns the current entry.
func (it *metaIterator) Item() storage.Versioned {
	if it.idx < 0 || it.idx >= len(it.batch) {
		return storage.Versioned{}
	}
	return it.batch[it.idx]
}

// Error returns the first error encountered during iteration.
func (it *metaIterator) Error() error {
	return it.err
}

// Close releases the iterator. Close is idempotent.
func (it *metaIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.batch = nil
	if it.iter == nil {
		return nil
	}
	err := it.iter.Close()
	it.iter = nil
	return err
}

func (it *metaIterator) refill() {
	it.batch = it.batch[:0]
	it.idx = -1
	if it.iter == nil || it.err != nil {
		return
	}

	for it.valid && len(it.batch) < it.batchSize {
		val, err := it.iter.ValueAndErr()
		if err != nil {
			it.err = err
			it.valid = false
			it.batch = it.batch[:0]
			return
		}

		it.batch = append(it.batch, storage.Versioned{
			Key:   append(storage.EncodedKey(nil), it.iter.Key()[1:]...),
			Value: append([]byte(nil), val...),
		})

		if it.reverse {
			it.valid = it.iter.Prev()
		} else {
			it.valid = it.iter.Next()
		}
	}

	if !it.valid {
		if err := it.iter.Error(); err != nil {
			it.err = err
			it.batch = it.batch[:0]
		}
	}
}
