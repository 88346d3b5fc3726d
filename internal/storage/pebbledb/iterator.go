package pebbledb

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/strata-db/strata/internal/storage"
)

// iterator streams resolved entries from a pebble scan. The underlying
// pebble iterator pins a consistent view of the database at
// construction, so the scan observes no commit applied after it.
// Items are resolved in batches of batchSize.
type iterator struct {
	version   storage.Version
	batchSize int
	reverse   bool

	// iter is the pebble cursor, bounded to the scanned range. Nil for
	// a scan over an empty range.
	iter *pebble.Iterator

	// valid tracks the cursor position between refills.
	valid bool

	// batch holds items read ahead of the cursor; idx is the cursor
	// position within it.
	batch []storage.Versioned
	idx   int

	err    error
	closed bool
}

func (s *Store) newIterator(r storage.KeyRange, version storage.Version, batchSize int, reverse bool) (storage.Iterator, error) {
	if s.db.closed.Load() {
		return nil, storage.ErrStoreClosed
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	it := &iterator{
		version:   version,
		batchSize: batchSize,
		reverse:   reverse,
		idx:       -1,
	}
	if r.Empty() {
		return it, nil
	}

	lower, upper := spaceBounds(rowSpace, r)
	pi, err := s.db.db.NewIter(&pebble.IterOptions{
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

// Next advances to the next entry and returns true if one is
// available.
func (it *iterator) Next() bool {
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
func (it *iterator) Item() storage.Versioned {
	if it.idx < 0 || it.idx >= len(it.batch) {
		return storage.Versioned{}
	}
	return it.batch[it.idx]
}

// Error returns the first error encountered during iteration.
func (it *iterator) Error() error {
	return it.err
}

// Close releases the iterator. Close is idempotent.
func (it *iterator) Close() error {
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

// refill resolves the next batch of items from the cursor. Key and
// payload bytes are copied out of pebble's buffers, so items stay
// valid as the cursor moves on.
func (it *iterator) refill() {
	it.batch = it.batch[:0]
	it.idx = -1
	if it.iter == nil || it.err != nil {
		return
	}

	for it.valid && len(it.batch) < it.batchSize {
		val, err := it.iter.ValueAndErr()
		if err != nil {
			it.fail(err)
			return
		}
		chain, err := decodeChain(val)
		if err != nil {
			it.fail(fmt.Errorf("pebbledb: key %x: %w", it.iter.Key()[1:], err))
			return
		}

		if entry, ok := chain.GetAt(it.version); ok {
			key := append(storage.EncodedKey(nil), it.iter.Key()[1:]...)
			it.batch = append(it.batch, storage.Versioned{
				Key:       key,
				Version:   entry.Version,
				Value:     entry.Value,
				Tombstone: entry.Tombstone,
			})
		}

		if it.reverse {
			it.valid = it.iter.Prev()
		} else {
			it.valid = it.iter.Next()
		}
	}

	if !it.valid {
		if err := it.iter.Error(); err != nil {
			it.fail(err)
		}
	}
}

func (it *iterator) fail(err error) {
	it.err = err
	it.valid = false
	it.batch = it.batch[:0]
}
