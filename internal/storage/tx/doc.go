// Package tx implements optimistic transactions over the StrataDB
// storage core.
//
// # Snapshots
//
// Every transaction reads from the watermark frontier captured at
// begin time, so it observes an immutable prefix of commit history. A
// QueryTx stays pinned there (or re-pins to an older version with
// ReadAsOf); a WriteTx overlays its own pending mutations on top of
// the snapshot, so it reads its own uncommitted writes while everyone
// else does not.
//
// # Commits
//
// WriteTx buffers mutations in a key-ordered pending set and applies
// them atomically on Commit. The manager allocates the commit version,
// checks the transaction's reads and writes against the write sets of
// transactions that committed after its snapshot, applies the deltas to
// the backend, publishes them to the change feed, and advances the
// watermark. A lost race surfaces as ErrTxConflict and rolls the
// transaction back:
//
//	err := tx.Retry(5, func() error {
//	    w, err := mgr.BeginWrite()
//	    if err != nil {
//	        return err
//	    }
//	    if err := w.Set(key, value); err != nil {
//	        w.Rollback()
//	        return err
//	    }
//	    _, err = w.Commit()
//	    return err
//	})
//
// Conflict detection works on 64-bit key fingerprints rather than key
// copies, trading a negligible false-conflict rate for flat per-key
// overhead.
//
// # Scans
//
// Range and RangeRev merge the committed snapshot stream with the
// pending set: pending writes shadow committed rows, pending removals
// hide them, and committed tombstones are filtered out. Keys yielded
// by a write transaction's scan join its read set, so a commit that
// would have changed the scan's outcome conflicts with it.
package tx
