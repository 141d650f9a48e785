package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackRegPopOwnerIsLIFO(t *testing.T) {
	owner := newTrackReg(nil, nil)
	owner.register(newTrackReg(1, nil))
	owner.register(newTrackReg(2, nil))
	owner.register(newTrackReg(3, nil))

	var seen []any
	for o := owner.popOwner(); o != nil; o = owner.popOwner() {
		seen = append(seen, o.tracked)
	}
	assert.Equal(t, []any{3, 2, 1}, seen)
}

func TestTrackRegDetachFromDependentsUnlinksWithoutInvoking(t *testing.T) {
	owner := newTrackReg(nil, nil)
	var invoked bool
	dependent := newTrackReg("dep", func(any) { invoked = true })
	owner.register(dependent)

	target := newTrackReg("target", nil)
	dependent.dependOn(target)

	target.detachFromDependents()

	assert.False(t, invoked, "detaching must not run the dependent's cleanup")
	// dependent should no longer be reachable from owner's owners list
	found := false
	for o := owner.owners; o != nil; o = o.next {
		if o == dependent {
			found = true
		}
	}
	assert.False(t, found)
}

func TestPoolTrackThisPoolInterleavesWithParentCleanups(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	parent := NewRootPool(ctx)
	require.NotNil(t, parent)

	var order []string
	parent.RegisterCleanup("outer", func(any) { order = append(order, "outer") })

	child := NewPool(parent)
	require.NotNil(t, child)
	child.TrackThisPool()

	parent.RegisterCleanup("inner", func(any) { order = append(order, "inner") })

	parent.Destroy()

	require.Len(t, order, 2)
	assert.Equal(t, "inner", order[0])
}
