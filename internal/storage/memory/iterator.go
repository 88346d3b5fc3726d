package memory

import (
	"github.com/tidwall/btree"

	"github.com/strata-db/strata/internal/storage"
)

// iterator streams resolved entries from a set of partition snapshots.
// Partitions never interleave keys, so the scan is a plain
// concatenation of the clones in scan order. Items are resolved in
// batches of batchSize; between refills the iterator holds no lock and
// touches no live tree.
type iterator struct {
	version   storage.Version
	rng       storage.KeyRange
	batchSize int
	reverse   bool

	// clones are the partition snapshots left to scan, in scan order.
	// clones[0] is the partition the cursor is in.
	clones []*btree.BTreeG[keyChain]

	// batch holds items read ahead of the cursor; idx is the cursor
	// position within it.
	batch []storage.Versioned
	idx   int

	// resume is the key of the last item handed out. A refill
	// continues strictly past it.
	resume storage.EncodedKey

	closed bool
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

// Error returns nil: in-memory scans cannot fail.
func (it *iterator) Error() error {
	return nil
}

// Close releases the iterator. Close is idempotent.
func (it *iterator) Close() error {
	it.closed = true
	it.clones = nil
	it.batch = nil
	return nil
}

// refill resolves the next batch of items from the remaining clones.
func (it *iterator) refill() {
	it.batch = it.batch[:0]
	it.idx = -1

	finished := false
	full := false
	collect := func(kc keyChain) bool {
		if it.reverse {
			if it.resume != nil && kc.key.Compare(it.resume) >= 0 {
				return true
			}
			if it.rng.End != nil && kc.key.Compare(it.rng.End) >= 0 {
				return true
			}
			if it.rng.Start != nil && kc.key.Compare(it.rng.Start) < 0 {
				finished = true
				return false
			}
		} else {
			if it.resume != nil && kc.key.Compare(it.resume) <= 0 {
				return true
			}
			if it.rng.End != nil && kc.key.Compare(it.rng.End) >= 0 {
				finished = true
				return false
			}
		}

		entry, ok := kc.chain.GetAt(it.version)
		if !ok {
			return true
		}
		it.batch = append(it.batch, storage.Versioned{
			Key:       kc.key,
			Version:   entry.Version,
			Value:     entry.Value,
			Tombstone: entry.Tombstone,
		})
		it.resume = kc.key
		full = len(it.batch) >= it.batchSize
		return !full
	}

	for len(it.clones) > 0 && !full {
		it.walk(it.clones[0], collect)
		if finished {
			// Partitions are disjoint and ordered, so crossing the
			// range bound in one partition ends the whole scan.
			it.clones = nil
			return
		}
		if full {
			return
		}
		it.clones = it.clones[1:]
	}
}

// walk visits the clone's keys in scan order starting from the resume
// point, or from the range bound on the first refill.
func (it *iterator) walk(tree *btree.BTreeG[keyChain], collect func(keyChain) bool) {
	if it.reverse {
		switch {
		case it.resume != nil:
			tree.Descend(keyChain{key: it.resume}, collect)
		case it.rng.End != nil:
			tree.Descend(keyChain{key: it.rng.End}, collect)
		default:
			tree.Reverse(collect)
		}
		return
	}

	switch {
	case it.resume != nil:
		tree.Ascend(keyChain{key: it.resume}, collect)
	case it.rng.Start != nil:
		tree.Ascend(keyChain{key: it.rng.Start}, collect)
	default:
		tree.Scan(collect)
	}
}
