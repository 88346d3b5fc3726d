// Package engine assembles the StrataDB storage core: backend stores,
// watermark tracker, transaction manager, change feed, and garbage
// collector, wired together behind one handle.
//
// # Opening
//
// Open builds every component explicitly from an Options value; there
// is no global state, so a process can host any number of independent
// engines:
//
//	db, err := engine.Open(engine.DefaultOptions().WithPath(dir))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// An empty Path runs the engine fully in memory. With a Path the
// engine persists through a pebble-backed store and resumes its commit
// version counter from the last durable version on reopen.
//
// # Reading and Writing
//
// The transactional surface is View, Update, and UpdateWithRetry,
// plus BeginQuery/BeginWrite for callers that manage transaction
// lifetimes themselves:
//
//	version, err := db.Update(func(w *tx.WriteTx) error {
//	    return w.Set(key, value)
//	})
//
// Layers that order their own commits bypass the optimistic surface
// with Commit, which applies a delta batch at an explicitly chosen
// version. Get, Contains, Range, and RangeRev read the committed state
// at any snapshot version without a transaction.
//
// # Change Feed
//
// Every commit is published to the change feed. ChangeRange and
// ChangeScan poll retained history; SubscribeChanges delivers live
// events, with SubscribeChangesFrom replaying history first so
// consumers can resume without a gap.
package engine
