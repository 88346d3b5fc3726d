package mvcc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage"
)

// GC errors.
var (
	ErrGCAlreadyRunning = errors.New("mvcc: garbage collector is already running")
	ErrGCNotRunning     = errors.New("mvcc: garbage collector is not running")
	ErrGCClosed         = errors.New("mvcc: garbage collector is closed")
)

// Default garbage collector tuning.
const (
	// DefaultGCMaxDelay is the default longest pause between passes.
	DefaultGCMaxDelay = 30 * time.Second

	// DefaultGCBatchLimit is the default per-pass removal budget.
	DefaultGCBatchLimit = 4096

	// gcDelayFloor is the smallest non-zero pause between passes.
	gcDelayFloor = 10 * time.Millisecond
)

// Frontier reports the durable visibility frontier compaction must
// respect: no entry at or above it may be removed.
type Frontier interface {
	DoneUntil() storage.Version
}

// Compactable is a store the collector prunes.
type Compactable interface {
	CompactBelow(watermark storage.Version, batchLimit int) (int, error)
}

// GCConfig holds configuration options for the GarbageCollector.
type GCConfig struct {
	// MaxDelay is the longest pause between passes, used when a pass
	// finds no work.
	MaxDelay time.Duration

	// BatchLimit is the maximum number of entries removed per pass.
	// Hitting the limit schedules the next pass immediately.
	BatchLimit int

	// Logger receives pass-level diagnostics. The zero value is
	// silent.
	Logger zerolog.Logger
}

// DefaultGCConfig returns the default GC configuration.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		MaxDelay:   DefaultGCMaxDelay,
		BatchLimit: DefaultGCBatchLimit,
		Logger:     zerolog.Nop(),
	}
}

// gcCommand drives the collector loop.
type gcCommand struct {
	// stop asks the loop to exit.
	stop bool

	// reply, when non-nil, receives the result of an immediate pass.
	reply chan gcResult
}

// gcResult is the outcome of one collection pass.
type gcResult struct {
	removed int
	err     error
}

// GarbageCollector prunes version chain entries that no live or future
// snapshot can reach. Every pass compacts the registered stores
// strictly below the current watermark while keeping, per key, the
// newest entry below it, so a reader whose snapshot falls in the
// pruned gap still resolves.
//
// The collector self-tunes its pace from the work each pass finds:
// a pass that hits the batch limit reruns immediately, a pass that
// finds nothing backs off to MaxDelay, and anything in between scales
// the pause down from MaxDelay in proportion to the work done.
type GarbageCollector struct {
	// frontier supplies the watermark each pass compacts below.
	frontier Frontier

	// stores are the compaction targets.
	stores []Compactable

	// config holds GC configuration.
	config GCConfig

	// running indicates if the background loop is running.
	running int32

	// commands carries stop and trigger requests to the loop.
	commands chan gcCommand

	// doneCh signals that the background loop has stopped.
	doneCh chan struct{}

	// stats tracks GC statistics.
	stats GCStats

	// mu protects lifecycle fields and stats.
	mu sync.RWMutex

	// closed indicates if the collector has been closed.
	closed bool
}

// GCStats holds statistics about garbage collection.
type GCStats struct {
	// TotalRuns is the total number of passes.
	TotalRuns uint64

	// TotalRemoved is the total number of entries removed.
	TotalRemoved uint64

	// LastRunTime is the wall time of the last pass.
	LastRunTime time.Time

	// LastRunDuration is the duration of the last pass.
	LastRunDuration time.Duration

	// LastRemoved is the number of entries removed by the last pass.
	LastRemoved int

	// LastDelay is the pause scheduled after the last pass.
	LastDelay time.Duration
}

// NewGarbageCollector creates a collector over the given stores with
// the default configuration.
func NewGarbageCollector(frontier Frontier, stores []Compactable) *GarbageCollector {
	return NewGarbageCollectorWithConfig(frontier, stores, DefaultGCConfig())
}

// NewGarbageCollectorWithConfig creates a collector with custom
// configuration.
func NewGarbageCollectorWithConfig(frontier Frontier, stores []Compactable, config GCConfig) *GarbageCollector {
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultGCMaxDelay
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = DefaultGCBatchLimit
	}

	return &GarbageCollector{
		frontier: frontier,
		stores:   stores,
		config:   config,
	}
}

// Start starts the background collection loop.
func (gc *GarbageCollector) Start() error {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.closed {
		return ErrGCClosed
	}

	if !atomic.CompareAndSwapInt32(&gc.running, 0, 1) {
		return ErrGCAlreadyRunning
	}

	commands := make(chan gcCommand)
	doneCh := make(chan struct{})
	gc.commands = commands
	gc.doneCh = doneCh

	go gc.run(commands, doneCh)

	return nil
}

// Stop stops the background collection loop, waiting for any pass in
// progress to finish.
func (gc *GarbageCollector) Stop() error {
	gc.mu.Lock()
	if gc.closed {
		gc.mu.Unlock()
		return ErrGCClosed
	}

	if !atomic.CompareAndSwapInt32(&gc.running, 1, 0) {
		gc.mu.Unlock()
		return ErrGCNotRunning
	}

	commands := gc.commands
	doneCh := gc.doneCh
	gc.commands = nil
	gc.doneCh = nil
	gc.mu.Unlock()

	commands <- gcCommand{stop: true}
	<-doneCh

	return nil
}

// Collect runs one pass immediately and returns the number of entries
// removed. When the background loop is running the pass is executed by
// the loop, so passes never run concurrently.
func (gc *GarbageCollector) Collect() (int, error) {
	gc.mu.RLock()
	if gc.closed {
		gc.mu.RUnlock()
		return 0, ErrGCClosed
	}
	commands := gc.commands
	doneCh := gc.doneCh
	gc.mu.RUnlock()

	if commands == nil {
		return gc.collectOnce()
	}

	reply := make(chan gcResult, 1)
	select {
	case commands <- gcCommand{reply: reply}:
		res := <-reply
		return res.removed, res.err
	case <-doneCh:
		// Loop exited between the snapshot above and the send.
		return gc.collectOnce()
	}
}

// IsRunning returns true if the background loop is running.
func (gc *GarbageCollector) IsRunning() bool {
	return atomic.LoadInt32(&gc.running) == 1
}

// Stats returns the current GC statistics.
func (gc *GarbageCollector) Stats() GCStats {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.stats
}

// Close stops the collector and releases resources. Close is
// idempotent.
func (gc *GarbageCollector) Close() error {
	gc.mu.Lock()
	if gc.closed {
		gc.mu.Unlock()
		return nil
	}
	gc.closed = true

	if atomic.CompareAndSwapInt32(&gc.running, 1, 0) {
		commands := gc.commands
		doneCh := gc.doneCh
		gc.commands = nil
		gc.doneCh = nil
		gc.mu.Unlock()

		commands <- gcCommand{stop: true}
		<-doneCh

		return nil
	}

	gc.mu.Unlock()
	return nil
}

// run is the background collection loop.
func (gc *GarbageCollector) run(commands <-chan gcCommand, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(gc.config.MaxDelay)
	defer timer.Stop()

	reschedule := func(removed int) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		delay := gc.nextDelay(removed)
		gc.noteDelay(delay)
		timer.Reset(delay)
	}

	for {
		select {
		case cmd := <-commands:
			if cmd.stop {
				return
			}
			removed, err := gc.collectOnce()
			if cmd.reply != nil {
				cmd.reply <- gcResult{removed: removed, err: err}
			}
			reschedule(removed)
		case <-timer.C:
			removed, err := gc.collectOnce()
			if err != nil {
				gc.config.Logger.Warn().Err(err).Msg("gc pass failed")
			}
			reschedule(removed)
		}
	}
}

// nextDelay computes the pause before the next pass from the work the
// last pass did.
func (gc *GarbageCollector) nextDelay(removed int) time.Duration {
	limit := gc.config.BatchLimit
	switch {
	case removed >= limit:
		// Budget exhausted; more garbage is likely waiting.
		return 0
	case removed == 0:
		return gc.config.MaxDelay
	default:
		delay := gc.config.MaxDelay - time.Duration(removed)*(gc.config.MaxDelay/time.Duration(limit))
		if delay < gcDelayFloor {
			delay = gcDelayFloor
		}
		return delay
	}
}

// collectOnce compacts every store strictly below the current
// watermark, spending at most BatchLimit removals across all stores.
func (gc *GarbageCollector) collectOnce() (int, error) {
	startTime := time.Now()
	watermark := gc.frontier.DoneUntil()

	removed := 0
	remaining := gc.config.BatchLimit
	var firstErr error

	for _, store := range gc.stores {
		if remaining <= 0 {
			break
		}
		n, err := store.CompactBelow(watermark, remaining)
		removed += n
		remaining -= n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	duration := time.Since(startTime)
	gc.updateStats(removed, duration)

	if removed > 0 {
		gc.config.Logger.Debug().
			Uint64("watermark", uint64(watermark)).
			Int("removed", removed).
			Dur("took", duration).
			Msg("gc pass")
	}

	return removed, firstErr
}

// noteDelay records the pause scheduled after the last pass.
func (gc *GarbageCollector) noteDelay(delay time.Duration) {
	gc.mu.Lock()
	gc.stats.LastDelay = delay
	gc.mu.Unlock()
}

// updateStats updates the GC statistics after a pass.
func (gc *GarbageCollector) updateStats(removed int, duration time.Duration) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	gc.stats.TotalRuns++
	gc.stats.TotalRemoved += uint64(removed)
	gc.stats.LastRunTime = time.Now()
	gc.stats.LastRunDuration = duration
	gc.stats.LastRemoved = removed
}
