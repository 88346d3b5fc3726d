// Package storage defines the shared vocabulary of the StrataDB
// transactional storage core: encoded keys, owners, versions, deltas,
// and the backend interfaces the engine is assembled from.
//
// # Overview
//
// StrataDB keeps every committed value in a per-key version chain and
// gives each reader a fixed snapshot version. The types in this package
// are the currency the components trade in:
//
//   - EncodedKey: an order-preserving binary key (see internal/keycodec)
//   - Owner: the partition namespace a key belongs to (table, index, ...)
//   - Version: a global commit version, allocated monotonically
//   - Delta: one buffered mutation (Set, Remove, or Drop)
//   - Versioned: one entry yielded by a snapshot read or scan
//
// # Keys and Owners
//
// Every key the engine stores begins with a nine byte owner prefix (one
// kind byte plus a big-endian id) so backends can route operations to
// the right partition without consulting a catalog:
//
//	owner := storage.Owner{Kind: storage.OwnerTable, ID: 42}
//	key := owner.Key(keycodec.AppendUint64(nil, rowID))
//
// Because both the prefix and the suffix are order-preserving, a raw
// byte comparison of two encoded keys matches the logical ordering, and
// range scans are served by byte-wise seeks alone.
//
// # Backends
//
// VersionedStore is the pluggable chain store. Two implementations ship
// with the engine:
//
//   - internal/storage/memory: copy-on-write B-tree partitions
//   - internal/storage/pebbledb: durable LSM storage on pebble
//
// UnversionedStore carries process-local metadata that is not subject
// to multi-version control (single current value, no history).
//
// # Scans
//
// Range and RangeRev return an Iterator positioned before the first
// entry; batchSize is a read-ahead hint, not a result cap:
//
//	it, err := store.Range(storage.OwnerRange(owner), snapshot, 0)
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//
//	for it.Next() {
//	    item := it.Item()
//	    // Process item...
//	}
//
//	if err := it.Error(); err != nil {
//	    return err
//	}
//
// Backend iterators may yield tombstones so that merge scans can
// suppress deleted keys; user-facing scans in internal/storage/engine
// filter them out.
package storage
