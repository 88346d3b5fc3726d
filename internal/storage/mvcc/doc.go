// Package mvcc provides the multi-version building blocks of the
// StrataDB storage core: per-key version chains, the watermark
// tracker, and the garbage collector.
//
// # Version Chains
//
// Every key's committed history is a Chain: an append-only list of
// entries ordered by ascending commit version, where each entry is a
// value or a tombstone. A reader at snapshot version V resolves the
// entry with the greatest version at or below V:
//
//	chain, _ = chain.Append(mvcc.Entry{Version: 7, Value: []byte("x")})
//	entry, ok := chain.GetAt(9) // the version 7 entry
//
// Chains have value semantics; mutating operations return a new chain.
// Backends that hand out copy-on-write snapshots rely on this: a
// snapshot taken before a commit keeps resolving against the entries
// it captured.
//
// # Watermark
//
// The WatermarkTracker turns out-of-order commit completion into a
// monotonic visibility frontier. Commits signal Begin at version
// allocation and Done at completion; the tracker advances DoneUntil to
// the highest version below which everything has settled. Readers that
// need a version to become visible block on WaitFor:
//
//	tracker := mvcc.NewWatermarkTracker(0)
//	defer tracker.Close()
//
//	tracker.Begin(5)
//	tracker.Done(5)
//
//	err := tracker.WaitFor(ctx, 5)
//
// # Garbage Collection
//
// The GarbageCollector periodically compacts registered stores below
// the tracker's frontier. Per key it always keeps the newest entry
// below the frontier, so a reader whose snapshot falls into the pruned
// gap still resolves. The pace is adaptive: a pass that hits its
// removal budget reruns immediately, an idle pass backs off to the
// configured maximum delay.
//
//	gc := mvcc.NewGarbageCollector(tracker, stores)
//	if err := gc.Start(); err != nil {
//	    return err
//	}
//	defer gc.Close()
package mvcc
