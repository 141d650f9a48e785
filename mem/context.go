package mem

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultStdSize is used when no WithStdSize option is given (spec's
// PC_MEMBLOCK_SIZE).
const DefaultStdSize = 8192

// MinStdSize is the smallest standard block size a Context will honor
// (spec's PC_MEMBLOCK_MINIMUM).
const MinStdSize = 256

const maxOOMRetries = 3

// OOMAction tells a Context what to do after its RawAllocator fails to
// produce a standard block.
type OOMAction int

const (
	OOMRetry    OOMAction = iota // try again, up to an implementation-defined bound
	OOMFailNull                  // give up and return nil
	OOMAbort                     // terminate the process
)

// OOMHandler decides how a Context responds to a failed raw allocation.
type OOMHandler func(amt int) OOMAction

func defaultOOMHandler(int) OOMAction { return OOMAbort }

var defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Context is the process-wide allocator root: it owns the standard-block
// free list, the non-standard-size tree, allocator configuration, and the
// unhandled-error list (spec §3).
type Context struct {
	mu sync.Mutex // general-use mutex; spec §5 reserves it for atomicOnce, not for serializing allocation

	raw        RawAllocator
	stdSize    int
	oomHandler OOMHandler
	recycler   *blockRecycler

	trackUnhandled bool
	tracing        bool

	stdBlocks *block
	nonstd    *memtree

	unhandled *Error

	roots []*Pool

	errorPool     *Pool
	errorPoolOnce bool
	trackPool     *Pool
	trackPoolOnce bool
	ptrToReg      map[any]*trackReg

	log *slog.Logger
}

// Option configures a Context at construction time.
type Option func(*Context)

func WithStdSize(n int) Option         { return func(c *Context) { c.stdSize = n } }
func WithOOMHandler(h OOMHandler) Option {
	return func(c *Context) {
		if h != nil {
			c.oomHandler = h
		}
	}
}
func WithTrackUnhandled(enabled bool) Option { return func(c *Context) { c.trackUnhandled = enabled } }
func WithTracing(enabled bool) Option        { return func(c *Context) { c.tracing = enabled } }
func WithRawAllocator(r RawAllocator) Option {
	return func(c *Context) {
		if r != nil {
			c.raw = r
		}
	}
}
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// NewContext creates a Context, clamping stdsize to [MinStdSize, ...]
// (spec's context_create/context_create_custom).
func NewContext(opts ...Option) *Context {
	c := &Context{
		raw:        DefaultRawAllocator,
		stdSize:    DefaultStdSize,
		oomHandler: defaultOOMHandler,
		nonstd:     &memtree{},
		log:        defaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stdSize < MinStdSize {
		c.stdSize = MinStdSize
	}
	c.recycler = newBlockRecycler(c.stdSize, func() []byte { return c.raw.Alloc(c.stdSize) })
	return c
}

// atomicOnce is the one sanctioned use of Context.mu per spec §5
// ("General-use mutex... should only be used for pc_atomic_once()").
// Ordinary allocation never takes this lock.
func (c *Context) atomicOnce(done *bool, f func()) {
	if *done {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !*done {
		f()
		*done = true
	}
}

// Tracing toggles whether Trace wraps errors with a TRACE record.
func (c *Context) Tracing(enabled bool) { c.tracing = enabled }

// Unhandled returns the head of the unhandled-error list, or nil.
func (c *Context) Unhandled() *Error { return c.unhandled }

// UnhandledCount reports how many errors are currently linked onto c's
// unhandled list.
func (c *Context) UnhandledCount() int {
	n := 0
	for e := c.unhandled; e != nil; e = e.next {
		n++
	}
	return n
}

func (c *Context) acquireStandardBlock() *block {
	if c.stdBlocks != nil {
		b := c.stdBlocks
		c.stdBlocks = b.next
		b.next = nil
		return b
	}
	for attempt := 0; ; attempt++ {
		if buf := c.recycler.get(); buf != nil {
			return &block{buf: buf}
		}
		switch c.oomHandler(c.stdSize) {
		case OOMRetry:
			if attempt >= maxOOMRetries {
				panic("pocore/mem: out of memory after retrying standard block allocation")
			}
		case OOMFailNull:
			return nil
		default:
			panic(fmt.Sprintf("pocore/mem: out of memory allocating standard block of %d bytes", c.stdSize))
		}
	}
}

func (c *Context) releaseStandardBlock(b *block) {
	b.next = c.stdBlocks
	c.stdBlocks = b
}

func (c *Context) releaseBlockChain(chain *block) {
	for chain != nil {
		next := chain.next
		chain.next = nil
		c.releaseStandardBlock(chain)
		chain = next
	}
}

func (c *Context) releaseNonstdSlices(bufs [][]byte) {
	for _, buf := range bufs {
		if len(buf) >= MinFragmentSize {
			c.nonstd.insert(buf)
		}
	}
}

func (c *Context) fetchNonstd(size int) []byte {
	return c.nonstd.fetch(size)
}

func (c *Context) addRoot(p *Pool) {
	c.roots = append(c.roots, p)
}

func (c *Context) removeRoot(p *Pool) {
	for i, r := range c.roots {
		if r == p {
			c.roots = append(c.roots[:i], c.roots[i+1:]...)
			return
		}
	}
}

func (c *Context) getErrorPool() *Pool {
	c.atomicOnce(&c.errorPoolOnce, func() { c.errorPool = NewRootPool(c) })
	return c.errorPool
}

func (c *Context) getTrackPool() *Pool {
	c.atomicOnce(&c.trackPoolOnce, func() { c.trackPool = NewRootPool(c) })
	return c.trackPool
}

// Destroy destroys any remaining descendant pools (every root ever created
// from this Context, transitively including their children) and drains
// the standard-block list and non-standard tree, returning everything to
// the RawAllocator. Unhandled errors are logged rather than silently
// dropped (spec's "implementation-defined notification").
func (c *Context) Destroy() {
	roots := c.roots
	c.roots = nil
	for _, p := range roots {
		p.Destroy()
	}

	for e := c.unhandled; e != nil; e = e.next {
		c.log.Warn("pocore: unhandled error at context teardown",
			"code", e.code, "message", e.msg, "file", e.file, "line", e.line)
	}
	c.unhandled = nil

	for b := c.stdBlocks; b != nil; {
		next := b.next
		c.recycler.put(b.buf)
		c.raw.Free(b.buf)
		b = next
	}
	c.stdBlocks = nil
	for buf := c.nonstd.fetch(0); buf != nil; buf = c.nonstd.fetch(0) {
		c.raw.Free(buf)
	}
	c.nonstd = &memtree{}
}
