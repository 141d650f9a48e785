package mem

import (
	"fmt"
	"runtime"
)

// Code identifies the kind of an Error. Application codes are caller
// defined; the values below are reserved for the subsystem itself.
type Code int

const (
	// Success is the zero Code, returned by Code() for a nil Error.
	Success Code = 0

	// Trace marks a wrapper produced by (*Error).Trace: it carries no
	// payload of its own, only a capture site. Code and Message see
	// through it to the first non-Trace node in the original chain;
	// Original does not.
	Trace Code = -1

	// ImproperWrap is returned in place of a wrapped Error when Wrap is
	// called on an Error that is no longer top-level — it was already
	// wrapped, joined, or handled (spec's misuse detection for wrapping
	// an error a second time).
	ImproperWrap Code = -2

	// ImproperUnhandledCall is returned by Handled when it is called
	// again on an Error that has already been handled.
	ImproperUnhandledCall Code = -3
)

// linkState tracks an Error's membership in its Context's unhandled list.
// It replaces the original's STOP_PROCESSING_MARKER sentinel pointer: a
// tagged enum can't be mistaken for a real list node.
type linkState int

const (
	linkDetached linkState = iota // not on the unhandled list
	linkActive                    // linked onto ctx.unhandled, still top-level
	linkStopped                   // no longer top-level: wrapped, joined, or handled
)

// Error is a chained error value: Original holds the cause it wraps (if
// any) and Separate chains sibling errors joined by Join. Every Error
// not yet passed to Handled is, when its Context tracks unhandled
// errors, reachable from that Context's unhandled list (spec §7).
type Error struct {
	ctx  *Context
	code Code
	msg  string
	file string
	line int

	original *Error
	separate *Error

	state      linkState
	prev, next *Error // links within ctx.unhandled
}

func callerLoc(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "", 0
	}
	return file, line
}

// dupMessage copies msg through the context's error pool, echoing the
// original's habit of keeping error text out of the general heap. The
// Go string conversion back out is itself a copy, so this buys nothing
// but parity with the pool-backed allocation story; kept for that.
func dupMessage(ctx *Context, msg string) string {
	if msg == "" {
		return ""
	}
	pool := ctx.getErrorPool()
	return string(pool.MemDup([]byte(msg)))
}

func createError(ctx *Context, code Code, msg string, original, separate *Error, skip int) *Error {
	file, line := callerLoc(skip + 1)
	e := &Error{
		ctx:      ctx,
		code:     code,
		msg:      dupMessage(ctx, msg),
		file:     file,
		line:     line,
		original: original,
		separate: separate,
	}
	ctx.linkUnhandled(e)
	return e
}

// linkUnhandled head-inserts e onto c's unhandled list, if c tracks one.
func (c *Context) linkUnhandled(e *Error) {
	if !c.trackUnhandled {
		return
	}
	e.state = linkActive
	e.next = c.unhandled
	if c.unhandled != nil {
		c.unhandled.prev = e
	}
	c.unhandled = e
}

// NewError creates a new, unwrapped Error at the caller's source
// location (spec's pc_error_create).
func (c *Context) NewError(code Code, msg string) *Error {
	return createError(c, code, msg, nil, nil, 2)
}

// NewErrorf is NewError with fmt.Sprintf-style formatting.
func (c *Context) NewErrorf(code Code, format string, args ...any) *Error {
	return createError(c, code, fmt.Sprintf(format, args...), nil, nil, 2)
}

// Wrap creates a new Error whose Original is the given cause (spec's
// pc_error_wrap), and detaches original from the unhandled list: once
// wrapped, it is reachable through the wrapper and no longer top-level
// (spec §4.5). Wrapping an Error that is already wrapped, joined, or
// handled is misuse: Wrap returns an ImproperWrap error referencing the
// double-wrapped error instead of attaching to it again.
func (c *Context) Wrap(original *Error, code Code, msg string) *Error {
	if original != nil {
		if original.state == linkStopped {
			return createError(c, ImproperWrap, "mem: Wrap called on an error that is no longer top-level", original, nil, 2)
		}
		original.detachTopLevel()
	}
	return createError(c, code, msg, original, nil, 2)
}

// detachTopLevel removes e from its context's unhandled list, if it was
// on it, and marks it no longer top-level: it is now reachable only
// through whatever wraps or joins it.
func (e *Error) detachTopLevel() {
	if e.state == linkActive {
		e.unlinkFromUnhandled()
	}
	e.state = linkStopped
}

// Join chains errs together through their Separate links and returns a
// Trace wrapper around the first non-nil one, recording the join site, or
// nil if errs is empty or all nil. Every joined error is detached from
// the unhandled list: once joined, each is reachable only through the
// returned wrapper's Original/Separate chain, never independently (spec
// §4.5, §8.5). Joining walks the growing chain from its head each time
// to find its end; nil entries in errs are skipped.
func Join(errs ...*Error) *Error {
	var head *Error
	for _, e := range errs {
		if e == nil {
			continue
		}
		e.detachTopLevel()
		if head == nil {
			head = e
			continue
		}
		scan := head
		for scan.separate != nil {
			scan = scan.separate
		}
		scan.separate = e
	}
	if head == nil {
		return nil
	}
	file, line := callerLoc(2)
	wrapper := &Error{ctx: head.ctx, code: Trace, file: file, line: line, original: head}
	head.ctx.linkUnhandled(wrapper)
	return wrapper
}

// scanUseful walks past Trace wrappers to the first node carrying a real
// payload, so Code and Message are transparent to tracing (spec §7.2).
func scanUseful(e *Error) *Error {
	for e != nil && e.code == Trace {
		e = e.original
	}
	return e
}

// Code returns e's error code, skipping any Trace wrappers. A nil
// receiver reports Success.
func (e *Error) Code() Code {
	u := scanUseful(e)
	if u == nil {
		return Success
	}
	return u.code
}

// Message returns e's error text, skipping any Trace wrappers.
func (e *Error) Message() string {
	u := scanUseful(e)
	if u == nil {
		return ""
	}
	return u.msg
}

// Original returns what e wraps: for an ordinary Error, its cause; for a
// Trace wrapper, the error it traces. Unlike Code and Message, Original
// is not transparent to tracing — callers walking the chain see every
// Trace node along the way.
func (e *Error) Original() *Error {
	if e == nil {
		return nil
	}
	return e.original
}

// Separate returns the next error joined to e by Join, or nil.
func (e *Error) Separate() *Error {
	if e == nil {
		return nil
	}
	return e.separate
}

// File and Line report where e was created or traced.
func (e *Error) File() string {
	if e == nil {
		return ""
	}
	return e.file
}

func (e *Error) Line() int {
	if e == nil {
		return 0
	}
	return e.line
}

// Trace wraps e in a capture-site record if its Context has tracing
// enabled, otherwise returns e unchanged (spec's pc_error_trace). The
// wrapper is never itself linked onto the unhandled list; Handled on the
// wrapper still unlinks e through Original.
func (e *Error) Trace() *Error {
	if e == nil || !e.ctx.tracing {
		return e
	}
	file, line := callerLoc(2)
	return &Error{ctx: e.ctx, code: Trace, file: file, line: line, original: e}
}

func (e *Error) unlinkFromUnhandled() {
	if e.prev != nil {
		e.prev.next = e.next
	} else if e.ctx.unhandled == e {
		e.ctx.unhandled = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.prev, e.next = nil, nil
}

// markHandled detaches e and everything it wraps or is joined to from
// their unhandled lists, permanently. A node already linkStopped (handled,
// wrapped, or joined previously) is left alone rather than revisited, so
// markHandled is safe to call on a chain with shared subtrees.
func (e *Error) markHandled() {
	if e == nil || e.state == linkStopped {
		return
	}
	e.detachTopLevel()
	e.original.markHandled()
	e.separate.markHandled()
}

// Handled marks e (and everything it wraps or is joined to) as handled,
// unlinking each from its Context's unhandled list for good. Calling
// Handled a second time on an Error that has already been handled (or
// that was consumed by a later Wrap/Join) is misuse; it returns an
// ImproperUnhandledCall error instead of silently doing nothing.
func (e *Error) Handled() *Error {
	if e == nil {
		return nil
	}
	if e.state == linkStopped {
		return createError(e.ctx, ImproperUnhandledCall, "mem: Handled called on an error that was already handled", nil, nil, 2)
	}
	e.markHandled()
	return nil
}
