package tx

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/strata-db/strata/internal/storage"
)

// fingerprint reduces an encoded key to the 64-bit hash used for
// conflict detection. Read and write sets store fingerprints instead of
// key copies, trading a vanishingly small false-conflict rate for flat
// per-key memory.
func fingerprint(key storage.EncodedKey) uint64 {
	return xxhash.Sum64(key)
}

// committedTxn records the write fingerprints of one committed
// transaction, kept until no active transaction's snapshot predates it.
type committedTxn struct {
	version storage.Version
	writes  map[uint64]struct{}
}

// conflictOracle retains a sliding window of recently committed write
// sets, ordered by commit version. A committing transaction conflicts
// when any transaction that committed after its snapshot wrote a key
// the committing transaction read or wrote.
type conflictOracle struct {
	mu     sync.Mutex
	window []committedTxn
}

func newConflictOracle() *conflictOracle {
	return &conflictOracle{}
}

// conflicts reports whether any commit with a version above base wrote
// a fingerprint present in one of the given sets.
func (o *conflictOracle) conflicts(base storage.Version, sets ...map[uint64]struct{}) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.window) - 1; i >= 0; i-- {
		txn := o.window[i]
		if txn.version <= base {
			break
		}
		for _, set := range sets {
			for fp := range set {
				if _, ok := txn.writes[fp]; ok {
					return true
				}
			}
		}
	}
	return false
}

// observe records a committed write set. The oracle takes ownership of
// the fingerprint map. Versions must be observed in ascending order;
// the commit pipeline guarantees this by serializing version
// allocation.
func (o *conflictOracle) observe(version storage.Version, writes map[uint64]struct{}) {
	if len(writes) == 0 {
		return
	}
	o.mu.Lock()
	o.window = append(o.window, committedTxn{version: version, writes: writes})
	o.mu.Unlock()
}

// pruneBelow discards committed records at or below floor. The floor is
// the lowest snapshot any active or future transaction can hold, so the
// dropped records can never participate in a conflict check again.
func (o *conflictOracle) pruneBelow(floor storage.Version) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cut := 0
	for cut < len(o.window) && o.window[cut].version <= floor {
		cut++
	}
	if cut == 0 {
		return
	}
	remaining := len(o.window) - cut
	copy(o.window, o.window[cut:])
	for i := remaining; i < len(o.window); i++ {
		o.window[i] = committedTxn{}
	}
	o.window = o.window[:remaining]
}

// size reports the number of retained commit records.
func (o *conflictOracle) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.window)
}
