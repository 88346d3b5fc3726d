package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/internal/storage/mvcc"
)

// DefaultBatchSize is the iterator read-ahead used when a scan does not
// request one.
const DefaultBatchSize = 256

// keyChain is one tree item: a full encoded key and its version chain.
type keyChain struct {
	key   storage.EncodedKey
	chain mvcc.Chain
}

func lessKeyChain(a, b keyChain) bool {
	return a.key.Compare(b.key) < 0
}

// partition holds the chains of a single owner.
type partition struct {
	// owner identifies the partition.
	owner storage.Owner

	// prefix is the owner's encoded key prefix; succ is the smallest
	// key above every key in the partition (nil when unbounded).
	prefix storage.EncodedKey
	succ   storage.EncodedKey

	// mu serializes commits against reads and snapshot cloning. It is
	// held only across a single commit batch, a single key lookup, or
	// a tree root clone, never for the lifetime of an iterator.
	mu sync.RWMutex

	// tree maps full encoded keys to their version chains.
	tree *btree.BTreeG[keyChain]
}

func newPartition(owner storage.Owner) *partition {
	prefix := owner.Prefix()
	return &partition{
		owner:  owner,
		prefix: prefix,
		succ:   storage.PrefixSuccessor(prefix),
		tree:   btree.NewBTreeG(lessKeyChain),
	}
}

// snapshot returns an isolated copy-on-write clone of the partition's
// tree. The clone observes no commit applied after the call.
func (p *partition) snapshot() *btree.BTreeG[keyChain] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tree.Copy()
}

// overlaps reports whether the partition's key space intersects r.
func (p *partition) overlaps(r storage.KeyRange) bool {
	if r.End != nil && p.prefix.Compare(r.End) >= 0 {
		return false
	}
	if r.Start != nil && p.succ != nil && p.succ.Compare(r.Start) <= 0 {
		return false
	}
	return true
}

// apply runs one commit's deltas for this partition. The partition
// lock is held for the whole batch so a concurrent snapshot sees all
// of the commit's chains or none of them.
func (p *partition) apply(deltas []storage.Delta, version storage.Version) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, d := range deltas {
		kc, ok := p.tree.Get(keyChain{key: d.Key})

		switch d.Kind {
		case storage.DeltaSet, storage.DeltaRemove:
			entry := mvcc.Entry{Version: version, Tombstone: d.Kind == storage.DeltaRemove}
			if d.Kind == storage.DeltaSet {
				entry.Value = append([]byte(nil), d.Value...)
			}
			chain, err := kc.chain.Append(entry)
			if err != nil {
				return fmt.Errorf("apply %s to key %x: %w", d.Kind, d.Key, err)
			}
			key := kc.key
			if !ok {
				key = d.Key.Clone()
			}
			p.tree.Set(keyChain{key: key, chain: chain})

		case storage.DeltaDrop:
			if !ok {
				continue
			}
			chain, n := kc.chain.Trim(d.UpToVersion, d.KeepLast)
			if n > 0 {
				p.tree.Set(keyChain{key: kc.key, chain: chain})
			}
		}
	}
	return nil
}

// compact discards chain entries below the watermark, retaining the
// newest such entry per key. limit bounds the number of entries
// removed (zero or negative means unlimited); the budget is checked
// between chains, so one chain is always compacted whole.
func (p *partition) compact(watermark storage.Version, limit int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var updates []keyChain
	var drops []storage.EncodedKey
	removed := 0

	p.tree.Scan(func(kc keyChain) bool {
		chain, n := kc.chain.CompactBelow(watermark)
		if newest, ok := chain.Newest(); ok && chain.Len() == 1 && newest.Tombstone && newest.Version < watermark {
			// A lone tombstone below the watermark reads the same as
			// an absent key at every snapshot.
			drops = append(drops, kc.key)
			removed += n + 1
		} else if n > 0 {
			updates = append(updates, keyChain{key: kc.key, chain: chain})
			removed += n
		}
		return limit <= 0 || removed < limit
	})

	for _, kc := range updates {
		p.tree.Set(kc)
	}
	for _, key := range drops {
		p.tree.Delete(keyChain{key: key})
	}
	return removed
}

func lessPartition(a, b *partition) bool {
	return a.owner.Compare(b.owner) < 0
}

// Store is the in-memory versioned store. It partitions version chains
// by Owner and serves every read at an explicit snapshot version.
type Store struct {
	// mu protects the partition set and the closed flag.
	mu sync.RWMutex

	// partitions orders the owner partitions by encoded prefix.
	partitions *btree.BTreeG[*partition]

	// closed marks the store as released.
	closed bool

	// commits counts Commit calls applied; removed counts chain
	// entries discarded by CompactBelow.
	commits atomic.Uint64
	removed atomic.Uint64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		partitions: btree.NewBTreeG(lessPartition),
	}
}

// partition returns the owner's partition. When create is set an
// absent partition is created; otherwise nil is returned for it.
func (s *Store) partition(owner storage.Owner, create bool) (*partition, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrStoreClosed
	}
	p, ok := s.partitions.Get(&partition{owner: owner})
	s.mu.RUnlock()

	if ok {
		return p, nil
	}
	if !create {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	if p, ok := s.partitions.Get(&partition{owner: owner}); ok {
		return p, nil
	}
	p = newPartition(owner)
	s.partitions.Set(p)
	return p, nil
}

// Get returns the entry visible at version. ok is false when the key
// never existed at that snapshot or was deleted by it.
func (s *Store) Get(key storage.EncodedKey, version storage.Version) (storage.Versioned, bool, error) {
	owner, _, err := storage.SplitOwner(key)
	if err != nil {
		return storage.Versioned{}, false, err
	}

	p, err := s.partition(owner, false)
	if err != nil || p == nil {
		return storage.Versioned{}, false, err
	}

	p.mu.RLock()
	kc, ok := p.tree.Get(keyChain{key: key})
	p.mu.RUnlock()
	if !ok {
		return storage.Versioned{}, false, nil
	}

	entry, ok := kc.chain.GetAt(version)
	if !ok || entry.Tombstone {
		return storage.Versioned{}, false, nil
	}
	return storage.Versioned{Key: kc.key, Version: entry.Version, Value: entry.Value}, true, nil
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

func (s *Store) newIterator(r storage.KeyRange, version storage.Version, batchSize int, reverse bool) (storage.Iterator, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrStoreClosed
	}

	var clones []*btree.BTreeG[keyChain]
	if !r.Empty() {
		s.partitions.Scan(func(p *partition) bool {
			if p.overlaps(r) {
				clones = append(clones, p.snapshot())
			}
			return true
		})
	}
	s.mu.RUnlock()

	if reverse {
		for i, j := 0, len(clones)-1; i < j; i, j = i+1, j-1 {
			clones[i], clones[j] = clones[j], clones[i]
		}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &iterator{
		version:   version,
		rng:       r,
		batchSize: batchSize,
		reverse:   reverse,
		clones:    clones,
		idx:       -1,
	}, nil
}

// Commit atomically applies deltas at version on behalf of txID. Each
// touched partition is updated under its write lock, so a snapshot
// taken by a concurrent reader sees the partition before or after the
// whole commit, never in between.
func (s *Store) Commit(deltas []storage.Delta, version storage.Version, txID storage.TxID) error {
	for i := range deltas {
		if err := deltas[i].Validate(); err != nil {
			return fmt.Errorf("delta %d: %w", i, err)
		}
	}

	// Group by owner, preserving delta order within each partition.
	type ownerGroup struct {
		owner  storage.Owner
		deltas []storage.Delta
	}
	var groups []ownerGroup
	index := make(map[storage.Owner]int, 1)
	for _, d := range deltas {
		owner, _, err := storage.SplitOwner(d.Key)
		if err != nil {
			return err
		}
		gi, ok := index[owner]
		if !ok {
			gi = len(groups)
			index[owner] = gi
			groups = append(groups, ownerGroup{owner: owner})
		}
		groups[gi].deltas = append(groups[gi].deltas, d)
	}

	for i := range groups {
		p, err := s.partition(groups[i].owner, true)
		if err != nil {
			return err
		}
		if err := p.apply(groups[i].deltas, version); err != nil {
			return err
		}
	}

	s.commits.Add(1)
	return nil
}

// CompactBelow removes obsolete chain entries whose version is below
// watermark, retaining the newest such entry per key. At most
// batchLimit entries are removed (zero or negative means unlimited);
// the count removed is returned.
func (s *Store) CompactBelow(watermark storage.Version, batchLimit int) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, storage.ErrStoreClosed
	}
	parts := make([]*partition, 0, s.partitions.Len())
	s.partitions.Scan(func(p *partition) bool {
		parts = append(parts, p)
		return true
	})
	s.mu.RUnlock()

	removed := 0
	for _, p := range parts {
		limit := 0
		if batchLimit > 0 {
			limit = batchLimit - removed
			if limit <= 0 {
				break
			}
		}
		removed += p.compact(watermark, limit)
	}

	s.removed.Add(uint64(removed))
	return removed, nil
}

// Close releases the store. Further operations fail with
// ErrStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.partitions = nil
	return nil
}

// StoreStats reports point-in-time counters for a Store.
type StoreStats struct {
	// Partitions is the number of owner partitions.
	Partitions int

	// Keys is the number of distinct keys across all partitions.
	Keys int

	// Entries is the total number of chain entries.
	Entries int

	// Commits is the number of commits applied.
	Commits uint64

	// RemovedEntries is the number of chain entries discarded by
	// compaction.
	RemovedEntries uint64
}

// Stats returns current statistics about the store.
func (s *Store) Stats() StoreStats {
	stats := StoreStats{
		Commits:        s.commits.Load(),
		RemovedEntries: s.removed.Load(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stats
	}

	stats.Partitions = s.partitions.Len()
	s.partitions.Scan(func(p *partition) bool {
		p.mu.RLock()
		stats.Keys += p.tree.Len()
		p.tree.Scan(func(kc keyChain) bool {
			stats.Entries += kc.chain.Len()
			return true
		})
		p.mu.RUnlock()
		return true
	})
	return stats
}
