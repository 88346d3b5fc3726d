package pebbledb

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/strata-db/strata/internal/keycodec"
	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/internal/storage/bufpool"
	"github.com/strata-db/strata/internal/storage/mvcc"
)

// DefaultBatchSize is the iterator read-ahead used when a scan does not
// request one.
const DefaultBatchSize = 256

// chainReader is the read surface chain loads run against: the
// database for reads, the indexed commit batch for read-your-writes
// inside a commit.
type chainReader interface {
	Get(key []byte) (value []byte, closer io.Closer, err error)
}

// loadChain reads and decodes the chain stored under the namespaced
// key. An absent key decodes as the empty chain.
func loadChain(r chainReader, key []byte) (mvcc.Chain, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return mvcc.Chain{}, nil
	}
	if err != nil {
		return mvcc.Chain{}, err
	}
	defer closer.Close()
	return decodeChain(val)
}

// Store is the versioned row view of a pebble database. It keeps one
// row per key holding the key's entire version chain and serves every
// read at an explicit snapshot version.
type Store struct {
	db *DB

	// pool supplies scratch buffers for chain encoding. Batch writes
	// copy values into the batch, so a buffer is reusable as soon as
	// Set returns.
	pool *bufpool.Pool

	// writeMu serializes chain rewrites: commits against compaction.
	// Readers do not take it.
	writeMu sync.Mutex

	// commits counts Commit calls applied; removed counts chain
	// entries discarded by CompactBelow.
	commits atomic.Uint64
	removed atomic.Uint64
}

// Get returns the entry visible at version. ok is false when the key
// never existed at that snapshot or was deleted by it.
func (s *Store) Get(key storage.EncodedKey, version storage.Version) (storage.Versioned, bool, error) {
	if len(key) < storage.OwnerPrefixSize {
		return storage.Versioned{}, false, fmt.Errorf("key of %d bytes: %w", len(key), storage.ErrShortKey)
	}
	if s.db.closed.Load() {
		return storage.Versioned{}, false, storage.ErrStoreClosed
	}

	chain, err := loadChain(s.db.db, spaceKey(rowSpace, key))
	if err != nil {
		return storage.Versioned{}, false, fmt.Errorf("pebbledb: read key %x: %w", key, err)
	}

	entry, ok := chain.GetAt(version)
	if !ok || entry.Tombstone {
		return storage.Versioned{}, false, nil
	}
	return storage.Versioned{Key: key, Version: entry.Version, Value: entry.Value}, true, nil
}

// Contains reports whether key has a live value at version.
func (s *Store) Contains(key storage.EncodedKey, version storage.Version) (bool, error) {
	_, ok, err := s.Get(key, version)
	return ok, err
}

// Range returns an iterator over r resolved at version, in ascending
// key order. The iterator may yield tombstones.
func (s *Store) Range(r storage.KeyRange, version storage.Version, batchSize int) (storage.Iterator, error) {
	return s.newIterator(r, version, batchSize, false)
}

// RangeRev is Range in descending key order.
func (s *Store) RangeRev(r storage.KeyRange, version storage.Version, batchSize int) (storage.Iterator, error) {
	return s.newIterator(r, version, batchSize, true)
}

// Commit atomically applies deltas at version on behalf of txID. All
// chain rewrites and the commit checkpoint land in one synced pebble
// batch, so a crash preserves either the whole commit or none of it.
func (s *Store) Commit(deltas []storage.Delta, version storage.Version, txID storage.TxID) error {
	if s.db.closed.Load() {
		return storage.ErrStoreClosed
	}
	for i := range deltas {
		if err := deltas[i].Validate(); err != nil {
			return fmt.Errorf("delta %d: %w", i, err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Indexed so a later delta reads the chain an earlier delta in the
	// same commit wrote.
	batch := s.db.db.NewIndexedBatch()
	defer batch.Close()

	scratch := s.pool.Get(0)
	defer func() { s.pool.Put(scratch) }()

	for _, d := range deltas {
		rk := spaceKey(rowSpace, d.Key)
		chain, err := loadChain(batch, rk)
		if err != nil {
			return fmt.Errorf("pebbledb: read key %x: %w", d.Key, err)
		}

		switch d.Kind {
		case storage.DeltaSet, storage.DeltaRemove:
			entry := mvcc.Entry{Version: version, Tombstone: d.Kind == storage.DeltaRemove}
			if d.Kind == storage.DeltaSet {
				entry.Value = d.Value
			}
			next, err := chain.Append(entry)
			if err != nil {
				return fmt.Errorf("apply %s to key %x: %w", d.Kind, d.Key, err)
			}
			scratch = appendChain(scratch[:0], next.Entries())
			if err := batch.Set(rk, scratch, nil); err != nil {
				return err
			}

		case storage.DeltaDrop:
			if chain.Len() == 0 {
				continue
			}
			next, n := chain.Trim(d.UpToVersion, d.KeepLast)
			if n == 0 {
				continue
			}
			scratch = appendChain(scratch[:0], next.Entries())
			if err := batch.Set(rk, scratch, nil); err != nil {
				return err
			}
		}
	}

	ver := keycodec.AppendUint64(make([]byte, 0, keycodec.Uint64Size), uint64(version))
	if err := batch.Set(checkpointKey, ver, nil); err != nil {
		return err
	}

	if err := batch.Commit(s.db.sync); err != nil {
		return fmt.Errorf("pebbledb: commit version %d: %w", version, err)
	}
	s.commits.Add(1)
	return nil
}

// CompactBelow removes obsolete chain entries whose version is below
// watermark, retaining the newest such entry per key. A chain reduced
// to a lone tombstone below the watermark reads the same as an absent
// key at every snapshot, so its row is deleted outright. At most
// batchLimit entries are removed (zero or negative means unlimited);
// the count removed is returned.
func (s *Store) CompactBelow(watermark storage.Version, batchLimit int) (int, error) {
	if s.db.closed.Load() {
		return 0, storage.ErrStoreClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	iter, err := s.db.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{rowSpace},
		UpperBound: []byte{rowSpace + 1},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := s.db.db.NewBatch()
	defer batch.Close()

	scratch := s.pool.Get(0)
	defer func() { s.pool.Put(scratch) }()

	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return 0, err
		}
		chain, err := decodeChain(val)
		if err != nil {
			return 0, fmt.Errorf("pebbledb: key %x: %w", iter.Key()[1:], err)
		}

		compacted, n := chain.CompactBelow(watermark)
		if newest, ok := compacted.Newest(); ok && compacted.Len() == 1 && newest.Tombstone && newest.Version < watermark {
			if err := batch.Delete(iter.Key(), nil); err != nil {
				return 0, err
			}
			removed += n + 1
		} else if n > 0 {
			scratch = appendChain(scratch[:0], compacted.Entries())
			if err := batch.Set(iter.Key(), scratch, nil); err != nil {
				return 0, err
			}
			removed += n
		}

		// The budget is checked between chains, so one chain is always
		// compacted whole.
		if batchLimit > 0 && removed >= batchLimit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	if !batch.Empty() {
		// No sync: compaction is idempotent and is redone after a
		// crash.
		if err := batch.Commit(pebble.NoSync); err != nil {
			return 0, fmt.Errorf("pebbledb: compact below %d: %w", watermark, err)
		}
	}
	s.removed.Add(uint64(removed))
	return removed, nil
}

// LastVersion returns the version of the most recent commit, or zero
// for a fresh database. Open seeds the engine's version counter with
// it after a restart.
func (s *Store) LastVersion() (storage.Version, error) {
	if s.db.closed.Load() {
		return 0, storage.ErrStoreClosed
	}

	val, closer, err := s.db.db.Get(checkpointKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	v, _, err := keycodec.DecodeUint64(val)
	if err != nil {
		return 0, fmt.Errorf("pebbledb: checkpoint: %w", err)
	}
	return storage.Version(v), nil
}

// Close closes the store and the database it shares with the metadata
// view. Close is idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreStats reports point-in-time counters for a Store.
type StoreStats struct {
	// Keys is the number of distinct keys.
	Keys int

	// Entries is the total number of chain entries.
	Entries int

	// Commits is the number of commits applied.
	Commits uint64

	// RemovedEntries is the number of chain entries discarded by
	// compaction.
	RemovedEntries uint64

	// DiskUsage is pebble's reported disk usage in bytes.
	DiskUsage uint64
}

// Stats returns current statistics about the store. Keys and Entries
// walk every row.
func (s *Store) Stats() StoreStats {
	stats := StoreStats{
		Commits:        s.commits.Load(),
		RemovedEntries: s.removed.Load(),
	}
	if s.db.closed.Load() {
		return stats
	}
	stats.DiskUsage = s.db.db.Metrics().DiskSpaceUsage()

	iter, err := s.db.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{rowSpace},
		UpperBound: []byte{rowSpace + 1},
	})
	if err != nil {
		return stats
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		stats.Keys++
		if val, err := iter.ValueAndErr(); err == nil {
			stats.Entries += chainLen(val)
		}
	}
	return stats
}
