// Package region is the external collaborator described in spec §6.1: a
// linked list of large buffers from which raw page storage is carved.
// It never releases memory back to the OS before Destroy.
//
// Grounded directly on original_source/arena/arena.c (jonahmer22/ReMem's
// C arena): a singly linked chain of MemBlock buffers, a running head
// cursor per block, and word alignment on every carve. The aligned-page
// sourcing path additionally grounds on golang.org/x/sys/unix, used
// directly by several pack storage engines (Giulio2002/gdbx,
// 7thCode/bptree2, Icarus9913/myBolt, 0xd34d10cc/dumbdb) for
// mmap-backed, page-aligned buffers.
package region

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

// BlockSize is the default backing-buffer size, matching the C arena's
// BUFF_SIZE.
const BlockSize = 1024 * 1024

const wordSize = unsafe.Sizeof(uintptr(0))

// block is one link in the region's buffer chain (arena.c: MemBlock).
type block struct {
	buf  []byte
	head int
	next *block
}

// Region is the bump-allocating backing store. It is never reset while
// live; the only supported lifecycle is New -> Alloc/AllocAlignedPage
// (any number of times, in any order) -> Destroy. See SPEC_FULL.md §C.2
// for why a reset-while-live operation is intentionally not offered:
// the C original's arenaReset conflates the block-list head pointer
// with a zeroed cursor and dereferences the nulled-out head, which is
// undefined when blocks are still referenced by live pages (spec §9
// Open Question).
type Region struct {
	head    *block
	tail    *block
	mmapped [][]byte // free-mode aligned pages sourced via mmap, tracked for Destroy
	numBlocks int
}

// New allocates the region's first backing block.
func New() (*Region, error) {
	b, err := newBlock(BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "region: initial block")
	}
	return &Region{head: b, tail: b, numBlocks: 1}, nil
}

func newBlock(size int) (*block, error) {
	buf := make([]byte, size)
	return &block{buf: buf, head: 0}, nil
}

// Alloc returns a zeroed, word-aligned pointer to n writable bytes,
// carved from the current tail block (or a fresh block if it doesn't
// fit). Mirrors arena.c: arenaAlloc's three cases: oversize chunk gets
// its own dedicated block, a chunk that doesn't fit in the remaining
// tail gets a fresh standard block, otherwise it's carved in place.
func (r *Region) Alloc(n uintptr) (unsafe.Pointer, error) {
	if n == 0 {
		n = 1
	}
	tail := r.tail
	base := uintptr(unsafe.Pointer(&tail.buf[0])) + uintptr(tail.head)
	pad := padFor(base)
	tailCap := uintptr(len(tail.buf))

	switch {
	case n+uintptr(pad) > BlockSize:
		nb, err := newBlock(int(n) + int(wordSize) - 1)
		if err != nil {
			return nil, errors.Wrap(err, "region: dedicated oversize block")
		}
		r.tail.next = nb
		r.tail = nb
		r.numBlocks++
		return r.carve(nb, n)

	case uintptr(tail.head)+n+uintptr(pad) > tailCap:
		nb, err := newBlock(BlockSize)
		if err != nil {
			return nil, errors.Wrap(err, "region: fresh block")
		}
		r.tail.next = nb
		r.tail = nb
		r.numBlocks++
		return r.carve(nb, n)

	default:
		return r.carve(tail, n)
	}
}

func (r *Region) carve(b *block, n uintptr) (unsafe.Pointer, error) {
	base := uintptr(unsafe.Pointer(&b.buf[0])) + uintptr(b.head)
	pad := padFor(base)
	if uintptr(b.head)+uintptr(pad)+n > uintptr(len(b.buf)) {
		return nil, errors.New("region: carve exceeds block bounds")
	}
	ptr := unsafe.Pointer(uintptr(unsafe.Pointer(&b.buf[0])) + uintptr(b.head) + uintptr(pad))
	b.head += pad + int(n)
	return ptr, nil
}

func padFor(base uintptr) int {
	mis := base % uintptr(wordSize)
	if mis == 0 {
		return 0
	}
	return int(wordSize - mis)
}

// AllocAlignedPage returns a sizeclass.PageSize-aligned buffer. In
// cache mode the caller sources pages straight from Alloc via an
// over-allocate-and-align pattern since the region never frees
// individual blocks; in free mode the caller should instead use
// AllocAlignedPageMmap, which can be released with FreeAlignedPageMmap.
func (r *Region) AllocAlignedPage() (unsafe.Pointer, error) {
	raw, err := r.Alloc(uintptr(sizeclass.PageSize) + uintptr(sizeclass.PageSize) - 1)
	if err != nil {
		return nil, errors.Wrap(err, "region: aligned page")
	}
	addr := uintptr(raw)
	aligned := (addr + uintptr(sizeclass.PageSize) - 1) &^ (uintptr(sizeclass.PageSize) - 1)
	return unsafe.Pointer(aligned), nil
}

// AllocAlignedPageMmap sources a PageSize-aligned, individually
// releasable 1 MiB buffer via an anonymous mmap, for the free-mode
// page lifecycle (§4.2: "from an aligned system allocator that can be
// returned later").
func (r *Region) AllocAlignedPageMmap() (unsafe.Pointer, error) {
	// Over-map by one page size to guarantee we can carve an aligned
	// region out of it, matching the "over-allocated region plus manual
	// alignment" fallback permitted by spec §6.1.
	size := sizeclass.PageSize * 2
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "region: mmap aligned page")
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	aligned := (addr + uintptr(sizeclass.PageSize) - 1) &^ (uintptr(sizeclass.PageSize) - 1)
	r.mmapped = append(r.mmapped, data)
	return unsafe.Pointer(aligned), nil
}

// FreeAlignedPageMmap releases a buffer previously returned by
// AllocAlignedPageMmap. Lookup is by the original mmap base, which the
// caller (page package) does not retain, so region tracks its own
// mmapped slices and unmaps by matching containment of ptr.
func (r *Region) FreeAlignedPageMmap(ptr unsafe.Pointer) error {
	addr := uintptr(ptr)
	for i, data := range r.mmapped {
		base := uintptr(unsafe.Pointer(&data[0]))
		if addr >= base && addr < base+uintptr(len(data)) {
			if err := unix.Munmap(data); err != nil {
				return errors.Wrap(err, "region: munmap aligned page")
			}
			r.mmapped[i] = r.mmapped[len(r.mmapped)-1]
			r.mmapped = r.mmapped[:len(r.mmapped)-1]
			return nil
		}
	}
	return errors.New("region: unknown mmap page")
}

// NumBlocks reports how many backing blocks have been allocated, used
// by tests asserting that empty-page reuse does not request a new
// block (§8 scenario 4).
func (r *Region) NumBlocks() int {
	return r.numBlocks
}

// Destroy releases any mmap-backed free-mode pages. Cache-mode blocks
// are ordinary Go heap memory collected by the host runtime once the
// Region becomes unreachable; there is no manual free for them,
// matching the spec's "region store never returns memory before
// destroy" contract applied to a GC'd host language.
func (r *Region) Destroy() {
	for _, data := range r.mmapped {
		_ = unix.Munmap(data)
	}
	r.mmapped = nil
	r.head = nil
	r.tail = nil
}
