package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBumpAllocationWithinBlock(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	p := NewRootPool(ctx)
	require.NotNil(t, p)
	defer p.Destroy()

	a := p.Alloc(16)
	b := p.Alloc(16)
	require.Len(t, a, 16)
	require.Len(t, b, 16)
	assert.NotSame(t, &a[0], &b[0])
}

func TestPoolClearResetsBumpPointerForReuse(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	p := NewRootPool(ctx)
	require.NotNil(t, p)
	defer p.Destroy()

	first := p.Alloc(64)
	require.Len(t, first, 64)

	p.Clear()

	second := p.Alloc(64)
	require.Len(t, second, 64)
	assert.Same(t, &first[0], &second[0], "cleared pool should hand back the same bump region")
}

func TestPoolOversizedAllocSpillsToNonStandard(t *testing.T) {
	ctx := NewContext(WithStdSize(256))
	p := NewRootPool(ctx)
	require.NotNil(t, p)
	defer p.Destroy()

	big := p.Alloc(4096)
	require.Len(t, big, 4096)
	assert.Len(t, p.nonstdBlocks, 1)
}

func TestPoolChildDestroyedBeforeParentRemnantReset(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	root := NewRootPool(ctx)
	require.NotNil(t, root)
	defer root.Destroy()

	child := NewPool(root)
	require.NotNil(t, child)
	childAlloc := child.Alloc(32)
	require.Len(t, childAlloc, 32)

	root.Clear()
	assert.Nil(t, root.child)
}

func TestPoolCleanupRunsMostRecentlyRegisteredFirst(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	p := NewRootPool(ctx)
	require.NotNil(t, p)

	var order []int
	p.RegisterCleanup(1, func(any) { order = append(order, 1) })
	p.RegisterCleanup(2, func(any) { order = append(order, 2) })
	p.RegisterCleanup(3, func(any) { order = append(order, 3) })

	p.Destroy()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestPoolClearIsReentrantWhenCleanupRegistersMore(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	p := NewRootPool(ctx)
	require.NotNil(t, p)
	defer p.Destroy()

	var ran []string
	p.RegisterCleanup("first", func(any) {
		ran = append(ran, "first")
		p.RegisterCleanup("second", func(any) {
			ran = append(ran, "second")
		})
	})

	p.Clear()
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestPoolFreeMemRoundTrip(t *testing.T) {
	// A small standard block forces the second Alloc past the exhausted
	// bump region and into the remnant that FreeMem put back.
	ctx := NewContext(WithStdSize(MinStdSize))
	p := NewRootPool(ctx)
	require.NotNil(t, p)
	defer p.Destroy()

	buf := p.Alloc(200)
	require.Len(t, buf, 200)
	p.FreeMem(buf, 200)

	again := p.Alloc(160)
	require.Len(t, again, 160)
	assert.Same(t, &buf[0], &again[0], "should be served from the just-freed remnant, not a fresh block")
}

func TestCoalescingPoolFreeMemAutoRecoversLength(t *testing.T) {
	ctx := NewContext(WithStdSize(MinStdSize))
	root := NewRootPool(ctx)
	require.NotNil(t, root)
	defer root.Destroy()

	p := NewCoalescingPool(root)
	require.NotNil(t, p)

	buf := p.Alloc(100)
	require.Len(t, buf, 100)

	require.NotPanics(t, func() { p.FreeMemAuto(buf) })

	again := p.Alloc(100)
	require.Len(t, again, 100)
}

func TestPoolUseAfterDestroyPanics(t *testing.T) {
	ctx := NewContext(WithStdSize(1024))
	p := NewRootPool(ctx)
	require.NotNil(t, p)

	p.Destroy()
	assert.Panics(t, func() { p.Alloc(8) })
}
