package mvcc

import (
	"container/heap"
	"context"
	"errors"
	"sync/atomic"

	"github.com/strata-db/strata/internal/storage"
)

// Watermark tracker errors.
var (
	// ErrTrackerClosed is returned when an event is submitted to a
	// closed tracker, or when Close releases a blocked waiter.
	ErrTrackerClosed = errors.New("mvcc: watermark tracker closed")
)

// DefaultTrackerBuffer is the default capacity of the tracker's event
// channel.
const DefaultTrackerBuffer = 1024

// mark is one event submitted to the tracker loop: a begin, a done, or
// a waiter registration (waiter non-nil).
type mark struct {
	version storage.Version
	done    bool
	waiter  chan struct{}
}

// WatermarkTracker tracks begin and done events of commit versions
// that complete in arbitrary order, and exposes the monotonically
// advancing frontier below which every version is settled: fully
// committed or aborted, never to be invalidated.
//
// Events are processed strictly in submission order by a single
// consumer goroutine. That loop is the engine's one serialization
// point for visibility advancement and must never be parallelized.
type WatermarkTracker struct {
	// doneUntil is the current frontier, read without locking.
	doneUntil atomic.Uint64

	// inFlight counts versions begun but not yet settled.
	inFlight atomic.Int64

	// waiting counts registered waiters not yet released.
	waiting atomic.Int64

	// events carries begins, dones, and waiter registrations to the
	// consumer loop.
	events chan mark

	// stopCh signals the consumer loop to drain and exit.
	stopCh chan struct{}

	// doneCh is closed once the consumer loop has exited.
	doneCh chan struct{}

	// closed flips once on Close.
	closed int32
}

// WatermarkStats holds statistics about a watermark tracker.
type WatermarkStats struct {
	// DoneUntil is the current frontier.
	DoneUntil storage.Version

	// InFlight is the number of versions begun but not yet settled.
	InFlight int

	// Waiting is the number of blocked waiters.
	Waiting int
}

// NewWatermarkTracker creates a tracker whose frontier starts at
// startAt and starts its consumer loop. The caller must Close the
// tracker to stop the loop.
func NewWatermarkTracker(startAt storage.Version) *WatermarkTracker {
	w := &WatermarkTracker{
		events: make(chan mark, DefaultTrackerBuffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.doneUntil.Store(uint64(startAt))

	go w.run()

	return w
}

// Begin records that version has entered the in-flight set. Every
// Begin must eventually be matched by exactly one Done, whether the
// version commits or aborts; otherwise the frontier stalls.
func (w *WatermarkTracker) Begin(version storage.Version) error {
	return w.submit(mark{version: version})
}

// Done records that version has settled.
func (w *WatermarkTracker) Done(version storage.Version) error {
	return w.submit(mark{version: version, done: true})
}

// DoneUntil returns the frontier: every version at or below it is
// settled. The frontier never decreases.
func (w *WatermarkTracker) DoneUntil() storage.Version {
	return storage.Version(w.doneUntil.Load())
}

// WaitFor blocks until the frontier reaches version, the context is
// cancelled, or the tracker closes. A target already at or below the
// frontier returns immediately without registering a waiter, which
// also covers targets so far in the past that no event for them will
// ever arrive.
func (w *WatermarkTracker) WaitFor(ctx context.Context, version storage.Version) error {
	if w.DoneUntil() >= version {
		return nil
	}

	waiter := make(chan struct{})
	select {
	case w.events <- mark{version: version, waiter: waiter}:
	case <-w.stopCh:
		return ErrTrackerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-waiter:
		if w.DoneUntil() >= version {
			return nil
		}
		// Released by Close, not by frontier progress.
		return ErrTrackerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current tracker statistics.
func (w *WatermarkTracker) Stats() WatermarkStats {
	return WatermarkStats{
		DoneUntil: w.DoneUntil(),
		InFlight:  int(w.inFlight.Load()),
		Waiting:   int(w.waiting.Load()),
	}
}

// Close stops the consumer loop after draining already-submitted
// events and releases every blocked waiter. Close is idempotent.
func (w *WatermarkTracker) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}

	close(w.stopCh)
	<-w.doneCh

	return nil
}

// submit hands an event to the consumer loop.
func (w *WatermarkTracker) submit(m mark) error {
	select {
	case w.events <- m:
		return nil
	case <-w.stopCh:
		return ErrTrackerClosed
	}
}

// run is the single-consumer event loop.
func (w *WatermarkTracker) run() {
	defer close(w.doneCh)

	var pending versionHeap
	counts := make(map[storage.Version]int)
	waiters := make(map[storage.Version][]chan struct{})

	release := func(target storage.Version) {
		for _, ch := range waiters[target] {
			close(ch)
			w.waiting.Add(-1)
		}
		delete(waiters, target)
	}

	process := func(m mark) {
		if m.waiter != nil {
			// Re-check under the loop: the frontier may have passed
			// the target between the caller's fast path and here.
			if w.DoneUntil() >= m.version {
				close(m.waiter)
			} else {
				waiters[m.version] = append(waiters[m.version], m.waiter)
				w.waiting.Add(1)
			}
			return
		}

		prev, seen := counts[m.version]
		if !seen {
			heap.Push(&pending, m.version)
		}
		if m.done {
			counts[m.version] = prev - 1
			w.inFlight.Add(-1)
		} else {
			counts[m.version] = prev + 1
			w.inFlight.Add(1)
		}

		// Pop every settled minimum and advance the frontier to the
		// last one popped.
		until := w.DoneUntil()
		advanced := false
		for len(pending) > 0 {
			min := pending[0]
			if counts[min] > 0 {
				break
			}
			heap.Pop(&pending)
			delete(counts, min)
			until = min
			advanced = true
		}
		if !advanced {
			return
		}

		w.doneUntil.Store(uint64(until))
		for target := range waiters {
			if target <= until {
				release(target)
			}
		}
	}

	for {
		select {
		case m := <-w.events:
			process(m)
		case <-w.stopCh:
			// Drain submissions that won the race against stopCh,
			// then release everyone still blocked.
			for {
				select {
				case m := <-w.events:
					process(m)
				default:
					for target := range waiters {
						release(target)
					}
					return
				}
			}
		}
	}
}

// versionHeap is a min-heap of in-flight versions.
type versionHeap []storage.Version

func (h versionHeap) Len() int            { return len(h) }
func (h versionHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h versionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *versionHeap) Push(x interface{}) { *h = append(*h, x.(storage.Version)) }
func (h *versionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}
