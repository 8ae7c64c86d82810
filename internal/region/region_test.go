package region

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

func TestAllocIsWordAligned(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Destroy()

	for _, n := range []uintptr{1, 3, 7, 17, 100} {
		ptr, err := r.Alloc(n)
		require.NoError(t, err)
		assert.Zero(t, uintptr(ptr)%unsafe.Sizeof(uintptr(0)))
	}
}

func TestAllocReturnsDistinctNonOverlappingRegions(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Destroy()

	a, err := r.Alloc(64)
	require.NoError(t, err)
	b, err := r.Alloc(64)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAllocAlignedPageIsPageAligned(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Destroy()

	ptr, err := r.AllocAlignedPage()
	require.NoError(t, err)
	assert.Zero(t, uintptr(ptr)%uintptr(sizeclass.PageSize))
}

func TestAllocAlignedPageMmapIsPageAlignedAndFreeable(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Destroy()

	ptr, err := r.AllocAlignedPageMmap()
	require.NoError(t, err)
	assert.Zero(t, uintptr(ptr)%uintptr(sizeclass.PageSize))

	require.NoError(t, r.FreeAlignedPageMmap(ptr))
}

func TestOversizeAllocGetsItsOwnBlock(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Destroy()

	before := r.NumBlocks()
	_, err = r.Alloc(BlockSize * 2)
	require.NoError(t, err)
	assert.Greater(t, r.NumBlocks(), before)
}
