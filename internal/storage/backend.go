package storage

// Iterator streams entries from a backend scan in key order.
//
// An iterator starts positioned before its first entry; the usual loop
// is Next / Item until Next returns false, then a final Error check.
// Item's fields remain valid until the next call to Next.
type Iterator interface {
	// Next advances to the next entry and returns true if one is
	// available.
	Next() bool

	// Item returns the current entry.
	Item() Versioned

	// Error returns the first error encountered during iteration.
	Error() error

	// Close releases resources held by the iterator. Close is
	// idempotent.
	Close() error
}

// VersionedStore is a pluggable multi-version chain store. It keeps an
// append-only version chain per key, partitioned by Owner, and answers
// every read at an explicit snapshot version.
//
// Implementations must make Commit atomic with respect to concurrent
// readers: a reader at any snapshot either observes all of a commit's
// deltas or none of them. Partition locks are held only long enough to
// clone a scan's starting cursor, never for an iterator's lifetime.
type VersionedStore interface {
	// Get returns the entry visible at version. ok is false when the
	// key never existed at that snapshot or was deleted by it.
	Get(key EncodedKey, version Version) (item Versioned, ok bool, err error)

	// Contains reports whether key has a live value at version.
	Contains(key EncodedKey, version Version) (bool, error)

	// Range returns an iterator over r resolved at the snapshot
	// version, in ascending key order. batchSize is a read-ahead hint;
	// zero or negative selects the implementation default. The
	// iterator may yield tombstones.
	Range(r KeyRange, version Version, batchSize int) (Iterator, error)

	// RangeRev is Range in descending key order.
	RangeRev(r KeyRange, version Version, batchSize int) (Iterator, error)

	// Commit atomically applies deltas at version on behalf of txID.
	Commit(deltas []Delta, version Version, txID TxID) error

	// CompactBelow removes obsolete chain entries whose version is
	// strictly below watermark, always retaining the newest such entry
	// per key so readers in the gap still resolve. At most batchLimit
	// entries are removed per call (zero or negative means unlimited);
	// the count removed is returned.
	CompactBelow(watermark Version, batchLimit int) (int, error)

	// Close releases the store. Further operations fail with
	// ErrStoreClosed.
	Close() error
}

// UnversionedStore holds process-local metadata outside multi-version
// control: one current value per key, no history, no snapshots.
// Iterators yield Versioned items with a zero Version and never yield
// tombstones.
type UnversionedStore interface {
	// Get returns the current value for key.
	Get(key EncodedKey) (value []byte, ok bool, err error)

	// Set stores value for key, replacing any existing value.
	Set(key EncodedKey, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key EncodedKey) error

	// Range returns an iterator over r in ascending key order.
	// batchSize is a read-ahead hint; zero or negative selects the
	// implementation default.
	Range(r KeyRange, batchSize int) (Iterator, error)

	// RangeRev is Range in descending key order.
	RangeRev(r KeyRange, batchSize int) (Iterator, error)

	// Close releases the store. Further operations fail with
	// ErrStoreClosed.
	Close() error
}
