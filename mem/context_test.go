package mem

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAllocator hands out real buffers until it has given out budget
// of them, then reports exhaustion by returning nil, letting tests drive
// a Context's OOMHandler deterministically.
type countingAllocator struct {
	budget int
	given  int
}

func (a *countingAllocator) Alloc(size int) []byte {
	if a.given >= a.budget {
		return nil
	}
	a.given++
	return make([]byte, size)
}

func (a *countingAllocator) Free([]byte) {}

func TestContextStandardBlockRecycling(t *testing.T) {
	ctx := NewContext(WithStdSize(512))
	p := NewRootPool(ctx)
	require.NotNil(t, p)

	buf := p.Alloc(16)
	require.Len(t, buf, 16)

	p.Destroy()

	p2 := NewRootPool(ctx)
	require.NotNil(t, p2)
	got := p2.Alloc(16)
	assert.Len(t, got, 16)
	p2.Destroy()
}

func TestContextOOMFailNull(t *testing.T) {
	raw := &countingAllocator{budget: 1}
	ctx := NewContext(
		WithStdSize(MinStdSize),
		WithRawAllocator(raw),
		WithOOMHandler(func(int) OOMAction { return OOMFailNull }),
	)

	p := NewRootPool(ctx)
	require.NotNil(t, p, "first root pool should succeed within budget")

	p2 := NewRootPool(ctx)
	assert.Nil(t, p2, "second root pool should fail once the raw allocator is exhausted")
}

func TestContextOOMAbortPanics(t *testing.T) {
	raw := &countingAllocator{budget: 0}
	ctx := NewContext(WithRawAllocator(raw))

	assert.Panics(t, func() {
		NewRootPool(ctx)
	})
}

func TestContextUnhandledErrorsLoggedOnDestroy(t *testing.T) {
	var logged bytes.Buffer
	ctx := NewContext(WithTrackUnhandled(true), WithLogger(slog.New(slog.NewTextHandler(&logged, nil))))
	ctx.NewError(Code(1), "boom")
	require.NotNil(t, ctx.Unhandled())

	ctx.Destroy()
	assert.Nil(t, ctx.Unhandled())
	assert.Contains(t, logged.String(), "unhandled error at context teardown")
}
