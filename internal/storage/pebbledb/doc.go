// Package pebbledb implements the disk storage backend for StrataDB on
// top of cockroachdb/pebble.
//
// # Overview
//
// Open creates one pebble database exposing two views: Rows, the
// versioned chain store, and Meta, the unversioned metadata store. The
// views share the database and are separated by a one-byte namespace
// prefix:
//
//	db, err := pebbledb.Open(pebbledb.DefaultConfig(dir))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	rows := db.Rows()
//	err = rows.Commit([]storage.Delta{
//	    storage.NewSetDelta(key, []byte("v")),
//	}, version, txID)
//
// # Layout
//
// A row key is the namespace byte followed by the full encoded key; the
// row value is the key's entire version chain, encoded oldest first.
// Keeping the chain in the value preserves plain byte ordering of user
// keys under pebble's default comparer, so range scans walk keys in
// exactly the order the memory backend yields them. Every commit also
// rewrites a checkpoint record holding the commit version, in the same
// batch; LastVersion reads it back after a restart to seed the version
// counter.
//
// # Concurrency
//
// Commit and CompactBelow rewrite whole chains and serialize on a
// store mutex. Readers take no lock: point reads go straight to
// pebble, and scans run on a pebble iterator, which pins a consistent
// view of the database at construction. All iterators must be closed
// before the database.
//
// # Durability
//
// Commits and metadata writes sync the WAL. Compaction batches are
// applied without sync: compaction is idempotent and is simply redone
// after a crash.
package pebbledb
