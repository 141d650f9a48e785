package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemtreeFetchBestFit(t *testing.T) {
	tr := &memtree{}
	tr.insert(make([]byte, 64))
	tr.insert(make([]byte, 128))
	tr.insert(make([]byte, 256))

	got := tr.fetch(100)
	require.NotNil(t, got)
	assert.Equal(t, 128, len(got))

	// the 128-byte fragment is gone now; 100 should ceiling to 256
	got = tr.fetch(100)
	require.NotNil(t, got)
	assert.Equal(t, 256, len(got))
}

func TestMemtreeFetchNoFit(t *testing.T) {
	tr := &memtree{}
	tr.insert(make([]byte, 32))
	assert.Nil(t, tr.fetch(64))
}

func TestMemtreeSameSizeChainsWithoutRebalance(t *testing.T) {
	tr := &memtree{}
	tr.insert(make([]byte, 64))
	tr.insert(make([]byte, 64))
	tr.insert(make([]byte, 64))

	for i := 0; i < 3; i++ {
		got := tr.fetch(64)
		require.NotNilf(t, got, "expected a 64-byte fragment on round %d", i)
		assert.Equal(t, 64, len(got))
	}
	assert.Nil(t, tr.fetch(64))
}

func TestMemtreeManyInsertsStayBalanced(t *testing.T) {
	tr := &memtree{}
	sizes := make([]int, 0, 200)
	for i := 1; i <= 200; i++ {
		size := i * 8
		sizes = append(sizes, size)
		tr.insert(make([]byte, size))
	}

	for _, size := range sizes {
		got := tr.fetch(size)
		require.NotNilf(t, got, "expected a fragment of at least %d bytes", size)
		assert.GreaterOrEqual(t, len(got), size)
	}
}
