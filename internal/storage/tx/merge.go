package tx

import "github.com/strata-db/strata/internal/storage"

// mergeIterator implements storage.Iterator over the union of a
// transaction's pending writes and a committed snapshot stream. Both
// inputs arrive in scan order; the merge compares heads and lets the
// pending side win ties, so uncommitted writes shadow committed rows
// and pending removals suppress them.
//
// Pending entries are yielded with Version zero to mark them as
// uncommitted. Committed tombstones and duplicate keys are filtered
// here rather than in the backends, which keeps backend iterators free
// to expose raw version chains.
type mergeIterator struct {
	committed storage.Iterator
	pending   []storage.Delta
	reverse   bool

	// onRead, when set, observes every key the scan yields so callers
	// can fold scanned keys into a transaction's read set.
	onRead func(storage.EncodedKey)

	pi     int
	cur    storage.Versioned
	cOK    bool
	primed bool

	item   storage.Versioned
	last   storage.EncodedKey
	closed bool
}

// Visible wraps a backend snapshot iterator, hiding tombstones and
// duplicate chain reads. Engine-level scans use it when no transaction
// overlay applies; the wrapped iterator works in either direction.
func Visible(committed storage.Iterator) storage.Iterator {
	return newMergeIterator(committed, nil, false, nil)
}

// newMergeIterator builds a merge over committed and pending. The
// pending slice must already be restricted to the scan's key range and
// sorted in scan order; pass nil when the transaction has no overlay,
// which still applies tombstone and duplicate filtering to the
// committed stream. onRead may be nil.
func newMergeIterator(committed storage.Iterator, pending []storage.Delta, reverse bool, onRead func(storage.EncodedKey)) *mergeIterator {
	return &mergeIterator{
		committed: committed,
		pending:   pending,
		reverse:   reverse,
		onRead:    onRead,
	}
}

// Next advances to the next visible row.
func (it *mergeIterator) Next() bool {
	if it.closed {
		return false
	}
	if !it.primed {
		it.advanceCommitted()
		it.primed = true
	}
	for {
		var p *storage.Delta
		if it.pi < len(it.pending) {
			p = &it.pending[it.pi]
		}
		switch {
		case p == nil && !it.cOK:
			return false
		case p == nil:
			row := it.cur
			it.advanceCommitted()
			if it.emitCommitted(row) {
				return true
			}
		case !it.cOK:
			d := *p
			it.pi++
			if it.emitPending(d) {
				return true
			}
		default:
			cmp := p.Key.Compare(it.cur.Key)
			if it.reverse {
				cmp = -cmp
			}
			switch {
			case cmp < 0:
				d := *p
				it.pi++
				if it.emitPending(d) {
					return true
				}
			case cmp > 0:
				row := it.cur
				it.advanceCommitted()
				if it.emitCommitted(row) {
					return true
				}
			default:
				// Same key on both sides: consume both heads, let the
				// pending mutation decide what the caller sees.
				d := *p
				it.pi++
				row := it.cur
				it.advanceCommitted()
				if d.Kind == storage.DeltaDrop {
					// A pending history prune leaves visibility alone.
					if it.emitCommitted(row) {
						return true
					}
				} else if it.emitPending(d) {
					return true
				}
			}
		}
	}
}

func (it *mergeIterator) advanceCommitted() {
	it.cOK = it.committed.Next()
	if it.cOK {
		it.cur = it.committed.Item()
	}
}

func (it *mergeIterator) emitCommitted(row storage.Versioned) bool {
	if row.Tombstone {
		return false
	}
	if it.last != nil && row.Key.Equal(it.last) {
		return false
	}
	it.item = row
	it.note(row.Key)
	return true
}

func (it *mergeIterator) emitPending(d storage.Delta) bool {
	switch d.Kind {
	case storage.DeltaSet:
		it.item = storage.Versioned{Key: d.Key, Value: d.Value}
		it.note(d.Key)
		return true
	default:
		// A pending removal hides the key; a pending drop with no
		// committed counterpart has nothing to show.
		return false
	}
}

func (it *mergeIterator) note(key storage.EncodedKey) {
	it.last = key
	if it.onRead != nil {
		it.onRead(key)
	}
}

// Item returns the row positioned by the last successful Next.
func (it *mergeIterator) Item() storage.Versioned {
	return it.item
}

// Error reports a failure in the underlying committed stream.
func (it *mergeIterator) Error() error {
	return it.committed.Error()
}

// Close releases the underlying committed iterator.
func (it *mergeIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.pending = nil
	return it.committed.Close()
}
