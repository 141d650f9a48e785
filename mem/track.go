package mem

// Cleanup is invoked, at most once, with the tracked value it was
// registered with, when the pool it was registered on is cleared or
// destroyed (spec's pc_cleanup_fn).
type Cleanup func(tracked any)

// trackReg is one entry in a pool's owner/dependent graph (spec's
// pc_trackreg_u). Every pool carries its own trackReg, whose owners list
// holds the cleanups registered on that pool; TrackThisPool registers a
// separate trackReg for the pool on its parent's list.
type trackReg struct {
	tracked any
	cleanup Cleanup

	parent *trackReg // the trackReg whose owners list this entry is linked into, if any
	owners *trackReg // head of the list of entries this trackReg owns
	next   *trackReg // link to the next sibling in parent.owners

	dependents []*trackReg // entries to detach (not invoke) when this one fires
}

func newTrackReg(tracked any, cleanup Cleanup) *trackReg {
	return &trackReg{tracked: tracked, cleanup: cleanup}
}

// register adds child to t's owners list, head-first, so cleanups run in
// roughly the reverse order they were registered (spec's "most recently
// registered owner cleans up first").
func (t *trackReg) register(child *trackReg) {
	child.parent = t
	child.next = t.owners
	t.owners = child
}

// popOwner removes and returns the head of t's owners list, or nil.
func (t *trackReg) popOwner() *trackReg {
	o := t.owners
	if o == nil {
		return nil
	}
	t.owners = o.next
	o.next = nil
	o.parent = nil
	return o
}

// removeOwner unlinks target from t's owners list without invoking it.
func (t *trackReg) removeOwner(target *trackReg) {
	if t.owners == target {
		t.owners = target.next
		target.next = nil
		target.parent = nil
		return
	}
	for o := t.owners; o != nil; o = o.next {
		if o.next == target {
			o.next = target.next
			target.next = nil
			target.parent = nil
			return
		}
	}
}

// invoke runs t's cleanup, if any, exactly once.
func (t *trackReg) invoke() {
	if t.cleanup != nil {
		cleanup := t.cleanup
		t.cleanup = nil
		cleanup(t.tracked)
	}
}

// detachFromDependents unlinks every trackReg that asked to depend on t
// from its own owner list, without invoking their cleanups: they are
// simply no longer reachable now that t (the thing they depended on) is
// gone (spec's dependent-notification pass).
func (t *trackReg) detachFromDependents() {
	deps := t.dependents
	t.dependents = nil
	for _, d := range deps {
		if d.parent != nil {
			d.parent.removeOwner(d)
		}
	}
}

// dependOn records that t depends on on: when on fires, t is detached
// from its owner list, not invoked.
func (t *trackReg) dependOn(on *trackReg) {
	on.dependents = append(on.dependents, t)
}

// RegisterCleanup ties cleanup to tracked's lifetime: it runs once, with
// tracked as its argument, the next time p is cleared or destroyed (spec's
// pc_pool_track). Registrations on the same pool run most-recently-first.
func (p *Pool) RegisterCleanup(tracked any, cleanup Cleanup) {
	p.checkAlive()
	reg := newTrackReg(tracked, cleanup)
	p.track.register(reg)
}

// TrackThisPool registers p itself as a cleanup-tracked owner of parent,
// so that destroying or clearing parent destroys p in the same pass as
// parent's other tracked values rather than strictly afterward. Pools
// created with NewPool are already unlinked from their parent's child
// chain by Destroy; this is for callers that want a subpool's lifetime
// interleaved with unrelated RegisterCleanup entries on the same parent.
func (p *Pool) TrackThisPool() {
	p.checkAlive()
	if p.parent == nil {
		return
	}
	reg := newTrackReg(p, poolCleanup)
	p.parent.track.register(reg)
}
