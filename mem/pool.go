package mem

import (
	"encoding/binary"
	"fmt"
)

// debugPoison mirrors PC_DEBUG: using a pool after Destroy panics instead
// of corrupting memory silently. This port has no separate release build,
// so the check is always on.
const debugPoison = true

const coalesceSuffixSize = 8

// Pool is a bump-pointer allocation arena over a chain of blocks borrowed
// from a Context (spec §3/§4.3).
type Pool struct {
	ctx *Context

	parent, sibling, child *Pool

	firstBlock, currentBlock *block
	current                  int // bump offset into currentBlock.buf

	remnants     *memtree
	nonstdBlocks [][]byte

	coalesce bool
	track    *trackReg

	destroyed bool
}

func newPool(ctx *Context) *Pool {
	b := ctx.acquireStandardBlock()
	if b == nil {
		return nil
	}
	p := &Pool{ctx: ctx, firstBlock: b, currentBlock: b, remnants: &memtree{}}
	p.track = newTrackReg(p, poolCleanup)
	return p
}

// NewRootPool obtains a standard block from ctx and creates a pool with no
// parent (spec's pool_root).
func NewRootPool(ctx *Context) *Pool {
	p := newPool(ctx)
	if p == nil {
		return nil
	}
	ctx.addRoot(p)
	return p
}

// NewPool creates a pool as a child of parent, linked at the head of
// parent's sibling chain (spec's pool_create).
func NewPool(parent *Pool) *Pool {
	parent.checkAlive()
	p := newPool(parent.ctx)
	if p == nil {
		return nil
	}
	p.parent = parent
	p.sibling = parent.child
	parent.child = p
	return p
}

// NewCoalescingPool creates a child pool whose allocations are followed
// by their size, so FreeMemAuto can recover length without being told
// (spec's pool_create_coalescing).
func NewCoalescingPool(parent *Pool) *Pool {
	p := NewPool(parent)
	if p != nil {
		p.coalesce = true
	}
	return p
}

func (p *Pool) checkAlive() {
	if debugPoison && p.destroyed {
		panic("pocore/mem: use of pool after Destroy")
	}
}

func alignUp(n int) int { return (n + 7) &^ 7 }

// Alloc reserves n bytes from the pool, aligned to 8 bytes (spec §4.3).
// The search order is: bump the current block, best-fit from this pool's
// remnants, carve a fresh standard block, or (for oversized requests) ask
// the context for a non-standard block.
func (p *Pool) Alloc(n int) []byte {
	p.checkAlive()
	if n <= 0 {
		return nil
	}
	if !p.coalesce {
		buf := p.allocRaw(alignUp(n))
		if buf == nil {
			return nil
		}
		return buf[:n:n]
	}

	amt := alignUp(n + coalesceSuffixSize)
	buf := p.allocRaw(amt)
	if buf == nil {
		return nil
	}
	binary.LittleEndian.PutUint64(buf[n:n+coalesceSuffixSize], uint64(n))
	// Capacity is left open past n so FreeMemAuto can reach the suffix.
	return buf[:n]
}

func (p *Pool) allocRaw(amt int) []byte {
	if remaining := len(p.currentBlock.buf) - p.current; remaining >= amt {
		start := p.current
		p.current += amt
		return p.currentBlock.buf[start:p.current:p.current]
	}

	if buf := p.remnants.fetch(amt); buf != nil {
		if extra := len(buf) - amt; extra >= MinFragmentSize {
			p.remnants.insert(buf[amt:])
		}
		return buf[:amt:amt]
	}

	if amt <= p.ctx.stdSize {
		p.stashCurrentTail()
		b := p.ctx.acquireStandardBlock()
		if b == nil {
			return nil
		}
		p.currentBlock.next = b
		p.currentBlock = b
		p.current = amt
		return b.buf[:amt:amt]
	}

	buf := p.ctx.fetchNonstd(amt)
	if buf == nil {
		buf = p.ctx.raw.Alloc(amt)
		if buf == nil {
			return nil
		}
	}
	if extra := len(buf) - amt; extra >= MinFragmentSize {
		p.remnants.insert(buf[amt:])
		buf = buf[:amt:amt]
	}
	p.nonstdBlocks = append(p.nonstdBlocks, buf)
	return buf
}

func (p *Pool) stashCurrentTail() {
	if tail := p.currentBlock.buf[p.current:]; len(tail) >= MinFragmentSize {
		p.remnants.insert(tail)
	}
}

// FreeMem returns mem (of the given length) to the pool's remnant tree for
// reuse by later Alloc calls on this pool. Not supported with unknown
// length in non-coalescing mode: the caller must know len(mem).
func (p *Pool) FreeMem(mem []byte, length int) {
	p.checkAlive()
	if length < MinFragmentSize {
		return
	}
	p.remnants.insert(mem[:length:length])
}

// FreeMemAuto recovers the allocation length from the coalesce suffix
// Alloc wrote after mem and frees it. Precondition: p is a coalescing
// pool and mem is exactly the slice most recently returned by p.Alloc for
// this allocation (its backing array must still carry the suffix).
func (p *Pool) FreeMemAuto(mem []byte) {
	p.checkAlive()
	if !p.coalesce {
		panic("pocore/mem: FreeMemAuto requires a coalescing pool")
	}
	full := mem[:len(mem)+coalesceSuffixSize : len(mem)+coalesceSuffixSize]
	n := binary.LittleEndian.Uint64(full[len(mem):])
	p.FreeMem(mem, int(n))
}

// Clear runs the cleanup protocol (owners drained before children, looped
// until both are empty) then resets the pool's bump state back to the
// start of first_block, discarding remnants (spec §4.4, §8 property 2).
func (p *Pool) Clear() {
	p.checkAlive()
	for {
		for p.track.owners != nil {
			o := p.track.popOwner()
			o.invoke()
			o.detachFromDependents()
		}
		for p.child != nil {
			p.child.Destroy()
		}
		if p.track.owners == nil && p.child == nil {
			break
		}
	}

	p.ctx.releaseNonstdSlices(p.nonstdBlocks)
	p.nonstdBlocks = nil

	if p.currentBlock != p.firstBlock {
		p.ctx.releaseBlockChain(p.firstBlock.next)
		p.firstBlock.next = nil
	}
	p.currentBlock = p.firstBlock
	p.current = 0
	p.remnants = &memtree{}
}

// Destroy clears the pool, unlinks it from its parent (or the context's
// root list), and returns its first block to the context (spec §8
// property 3).
func (p *Pool) Destroy() {
	if p.destroyed {
		return
	}
	p.Clear()
	if p.parent != nil {
		p.parent.unlinkChild(p)
	} else {
		p.ctx.removeRoot(p)
	}
	p.ctx.releaseStandardBlock(p.firstBlock)
	p.destroyed = true
	p.firstBlock = nil
	p.currentBlock = nil
}

func (p *Pool) unlinkChild(target *Pool) {
	if p.child == target {
		p.child = target.sibling
		target.sibling = nil
		return
	}
	for c := p.child; c != nil; c = c.sibling {
		if c.sibling == target {
			c.sibling = target.sibling
			target.sibling = nil
			return
		}
	}
}

func poolCleanup(tracked any) {
	if p, ok := tracked.(*Pool); ok {
		p.Destroy()
	}
}

// StrDup duplicates s into the pool with a trailing NUL byte.
func (p *Pool) StrDup(s string) []byte {
	buf := p.Alloc(len(s) + 1)
	copy(buf, s)
	buf[len(s)] = 0
	return buf
}

// StrMemDup copies len(s) bytes of s into the pool, NUL-terminated.
func (p *Pool) StrMemDup(s string) []byte {
	return p.StrDup(s)
}

// StrNDup copies at most amt bytes of s into the pool, stopping early at
// an embedded NUL, and NUL-terminates the result.
func (p *Pool) StrNDup(s string, amt int) []byte {
	if amt > len(s) {
		amt = len(s)
	}
	if idx := indexByte(s[:amt], 0); idx >= 0 {
		amt = idx
	}
	return p.StrDup(s[:amt])
}

// MemDup copies len bytes of mem into the pool.
func (p *Pool) MemDup(mem []byte) []byte {
	buf := p.Alloc(len(mem))
	copy(buf, mem)
	return buf
}

// StrCat concatenates parts into a single NUL-terminated allocation.
func (p *Pool) StrCat(parts ...string) []byte {
	total := 0
	for _, s := range parts {
		total += len(s)
	}
	buf := p.Alloc(total + 1)
	off := 0
	for _, s := range parts {
		copy(buf[off:], s)
		off += len(s)
	}
	buf[total] = 0
	return buf
}

// Sprintf formats args per format and duplicates the result into the
// pool, NUL-terminated (spec's vsprintf_into collaborator).
func (p *Pool) Sprintf(format string, args ...any) []byte {
	return p.StrDup(fmt.Sprintf(format, args...))
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
