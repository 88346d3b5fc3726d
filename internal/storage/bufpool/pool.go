// Package bufpool provides explicit scratch-buffer pools for encoding
// and scan hot paths. A Pool is always threaded by handle; there is no
// package-level pool, so ownership of reused memory stays visible at
// call sites.
package bufpool

import "sync"

// Defaults applied by NewPool for non-positive arguments.
const (
	// DefaultCapacity is the number of buffers a pool retains.
	DefaultCapacity = 64

	// DefaultBufferSize is the capacity of a freshly allocated buffer.
	DefaultBufferSize = 4096
)

// maxRetainMultiple bounds the size of buffers worth keeping: anything
// past it would let one oversized row pin memory for the pool's whole
// lifetime.
const maxRetainMultiple = 4

// Pool hands out reusable byte buffers. Get returns a zero-length
// buffer with non-zero capacity; Put returns it for reuse. The
// freelist is bounded and last-in first-out, so under steady load the
// hottest buffer is reused first and the pool's footprint never grows
// past its capacity.
type Pool struct {
	mu   sync.Mutex
	free [][]byte

	capacity int
	bufSize  int

	gets     uint64
	hits     uint64
	discards uint64
}

// PoolStats contains statistics about a pool.
type PoolStats struct {
	// Capacity is the maximum number of retained buffers.
	Capacity int

	// Free is the number of buffers currently retained.
	Free int

	// Gets is the total number of Get calls.
	Gets uint64

	// Hits is the number of Gets served from the freelist.
	Hits uint64

	// Discards is the number of Puts dropped because the freelist was
	// full or the buffer too small to be worth keeping.
	Discards uint64
}

// NewPool creates a pool retaining up to capacity buffers of at least
// bufSize bytes. Non-positive arguments select the defaults.
func NewPool(capacity, bufSize int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &Pool{
		free:     make([][]byte, 0, capacity),
		capacity: capacity,
		bufSize:  bufSize,
	}
}

// Get returns a zero-length buffer with capacity of at least sizeHint
// bytes. A hint at or below the pool's buffer size is served from the
// freelist when possible; larger hints always allocate.
func (p *Pool) Get(sizeHint int) []byte {
	p.mu.Lock()
	p.gets++
	if n := len(p.free); n > 0 && sizeHint <= p.bufSize {
		buf := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.hits++
		p.mu.Unlock()
		return buf[:0]
	}
	p.mu.Unlock()

	size := p.bufSize
	if sizeHint > size {
		size = sizeHint
	}
	return make([]byte, 0, size)
}

// Put returns buf to the pool. Buffers outside the pool's retention
// window, or arriving when the freelist is full, are dropped for the
// garbage collector. Callers must not use buf after Put.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize || cap(buf) > maxRetainMultiple*p.bufSize {
		p.mu.Lock()
		p.discards++
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		p.discards++
		return
	}
	p.free = append(p.free, buf[:0])
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Capacity: p.capacity,
		Free:     len(p.free),
		Gets:     p.gets,
		Hits:     p.hits,
		Discards: p.discards,
	}
}
