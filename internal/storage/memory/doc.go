// Package memory implements the in-memory storage backend for StrataDB.
//
// # Overview
//
// Store keeps one ordered tree per Owner partition. Each tree maps full
// encoded keys to their version chains, so a commit appends entries and
// a read resolves the chain at its snapshot version:
//
//	store := memory.NewStore()
//	defer store.Close()
//
//	err := store.Commit([]storage.Delta{
//	    storage.NewSetDelta(key, []byte("v")),
//	}, version, txID)
//
//	item, ok, err := store.Get(key, version)
//
// # Concurrency
//
// Partitions are guarded by per-partition read-write mutexes, held only
// long enough to apply a commit or clone a tree root. Scans copy the
// tree root under the read lock and iterate the copy without locks; an
// iterator therefore observes no commit that starts after its
// construction, and holds no lock for its lifetime.
//
// Keys and values handed out by reads alias the store's internal
// buffers and must not be modified. Commit clones delta keys and
// values, so caller buffers may be reused once Commit returns.
//
// # Compaction
//
// CompactBelow walks every partition and discards chain entries below
// the watermark, always retaining the newest such entry per key. A
// chain reduced to a lone tombstone below the watermark reads the same
// as an absent key at every snapshot, so the key is removed outright.
package memory
