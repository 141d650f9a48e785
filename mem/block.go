package mem

import "sync"

// RawAllocator is the OS-page-allocator collaborator PoCore calls through
// (spec's raw_alloc/raw_free). Alloc returns nil on failure instead of
// panicking, so a Context's oom_handler gets a chance to run.
type RawAllocator interface {
	Alloc(size int) []byte
	Free(buf []byte)
}

// goRawAllocator delegates to the Go runtime and never reports failure.
type goRawAllocator struct{}

func (goRawAllocator) Alloc(size int) []byte { return make([]byte, size) }
func (goRawAllocator) Free([]byte)           {}

// DefaultRawAllocator is used by a Context unless overridden via
// WithRawAllocator.
var DefaultRawAllocator RawAllocator = goRawAllocator{}

// block is a contiguous memory region handed out by a Context. Standard
// blocks chain through next when queued on the context's free list or a
// pool's block chain.
type block struct {
	buf  []byte
	next *block
}

// blockRecycler backs standard-size blocks with a sync.Pool so that bytes
// returned to the OS allocator via RawAllocator.Free can still be reused
// without a fresh make(), the same role mem.BufferPool played in the
// teacher package. gen supplies a fresh buffer (normally via the
// Context's RawAllocator) when the pool is empty, which lets a
// RawAllocator that reports exhaustion drive the OOM path even though
// sync.Pool itself never fails.
type blockRecycler struct {
	size int
	pool sync.Pool
}

func newBlockRecycler(size int, gen func() []byte) *blockRecycler {
	r := &blockRecycler{size: size}
	r.pool.New = func() any { return gen() }
	return r
}

func (r *blockRecycler) get() []byte {
	buf, _ := r.pool.Get().([]byte)
	if buf == nil || cap(buf) < r.size {
		return nil
	}
	return buf[:r.size:r.size]
}

func (r *blockRecycler) put(buf []byte) {
	if cap(buf) < r.size {
		return
	}
	r.pool.Put(buf[:r.size:r.size])
}
