package pageindex

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/jonahmer22/ReMem/internal/page"
	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

func fakePage(base uintptr) *page.Page {
	return &page.Page{Block: unsafe.Pointer(base)}
}

func TestInsertAndLookupInterior(t *testing.T) {
	idx := New()
	base := uintptr(sizeclass.PageSize * 7)
	pg := fakePage(base)
	idx.Insert(base, pg)

	got, ok := idx.Lookup(base + 123)
	assert.True(t, ok)
	assert.Same(t, pg, got)
}

func TestLookupMiss(t *testing.T) {
	idx := New()
	_, ok := idx.Lookup(uintptr(sizeclass.PageSize * 99))
	assert.False(t, ok)
}

func TestRemoveThenLookupMisses(t *testing.T) {
	idx := New()
	base := uintptr(sizeclass.PageSize * 3)
	idx.Insert(base, fakePage(base))
	idx.Remove(base)

	_, ok := idx.Lookup(base)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Count())
}

func TestRemoveBackshiftKeepsOthersFindable(t *testing.T) {
	idx := New()
	var bases []uintptr
	for i := 0; i < 40; i++ {
		base := uintptr(sizeclass.PageSize * (i + 1))
		bases = append(bases, base)
		idx.Insert(base, fakePage(base))
	}

	// Remove every third entry, forcing the Robin-Hood backshift to
	// run across clusters formed by collisions.
	for i := 0; i < len(bases); i += 3 {
		idx.Remove(bases[i])
	}

	for i, base := range bases {
		pg, ok := idx.Lookup(base)
		if i%3 == 0 {
			assert.False(t, ok)
		} else {
			assert.True(t, ok)
			assert.Equal(t, base, uintptr(pg.Block))
		}
	}
}

func TestGrowsUnderLoad(t *testing.T) {
	idx := New()
	startCap := len(idx.entries)
	n := startCap // well past the 0.7 load factor trigger
	for i := 0; i < n; i++ {
		base := uintptr(sizeclass.PageSize * (i + 1))
		idx.Insert(base, fakePage(base))
	}
	assert.Greater(t, len(idx.entries), startCap)
	assert.Equal(t, n, idx.Count())

	for i := 0; i < n; i++ {
		base := uintptr(sizeclass.PageSize * (i + 1))
		_, ok := idx.Lookup(base)
		assert.True(t, ok)
	}
}

func TestDuplicateInsertUpdatesInPlace(t *testing.T) {
	idx := New()
	base := uintptr(sizeclass.PageSize * 11)
	p1 := fakePage(base)
	p2 := fakePage(base)

	idx.Insert(base, p1)
	idx.Insert(base, p2)

	assert.Equal(t, 1, idx.Count())
	got, _ := idx.Lookup(base)
	assert.Same(t, p2, got)
}
