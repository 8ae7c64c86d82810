// Package page implements the Page type (§3, §4.2-§4.3, §4.10): a fixed
// 1 MiB, naturally-aligned block partitioned into equal-sized slots of
// one size class, with per-slot in-use/mark bitmaps and an intrusive
// free list encoded in the slot payload itself.
//
// Grounded on the teacher's mspan (mheap.go: allocBits/gcmarkBits as
// parallel bitmaps, nelems/freeindex bookkeeping) generalized from the
// runtime's page-run-of-arbitrary-length spans down to the spec's
// fixed single-size-class 1 MiB page, and on mcentral.go's free-list-
// in-payload convention (gclink/gclinkptr) adapted to a 32-bit index
// per spec §9 ("Implementations on 64-bit targets should use a 32-bit
// index").
package page

import (
	"math/bits"
	"unsafe"

	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

// FreeSentinel marks the end of a page's intrusive free list.
const FreeSentinel = int32(-1)

// Page is one fixed-size, size-class-homogeneous block of slots.
type Page struct {
	Block      unsafe.Pointer // base of a PageSize-aligned 1 MiB block
	SizeClass  int
	NSlots     int
	InUseCount int
	FreeHead   int32

	InUseBits []byte
	MarkBits  []byte

	FreeMode bool // true if Block came from the aligned system allocator (mmap)

	Next *Page // intrusive link for book's per-class / empty lists
}

func bitBytes(nslots int) int {
	return (nslots + 7) / 8
}

// InitForClass initializes (or re-initializes, for the reset-for-class
// path) a page's metadata for size class sc. The block's alignment is
// assumed already correct; this only (re)builds slot bookkeeping.
func (p *Page) InitForClass(sc int) {
	p.SizeClass = sc
	p.NSlots = sizeclass.SlotsPerPage(sc)
	p.InUseCount = 0
	p.FreeHead = 0

	nb := bitBytes(p.NSlots)
	if cap(p.InUseBits) >= nb {
		p.InUseBits = p.InUseBits[:nb]
		for i := range p.InUseBits {
			p.InUseBits[i] = 0
		}
	} else {
		p.InUseBits = make([]byte, nb)
	}
	if cap(p.MarkBits) >= nb {
		p.MarkBits = p.MarkBits[:nb]
		for i := range p.MarkBits {
			p.MarkBits[i] = 0
		}
	} else {
		p.MarkBits = make([]byte, nb)
	}

	p.buildFreeList()
}

// buildFreeList writes, into every slot's first 4 bytes, the index of
// the next free slot (or FreeSentinel for the last), per §4.2 step 4.
func (p *Page) buildFreeList() {
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	for i := 0; i < p.NSlots; i++ {
		next := int32(i + 1)
		if i == p.NSlots-1 {
			next = FreeSentinel
		}
		*p.nextFieldAt(i, slotSize) = next
	}
}

func (p *Page) nextFieldAt(idx int, slotSize uintptr) *int32 {
	addr := uintptr(p.Block) + uintptr(idx)*slotSize
	return (*int32)(unsafe.Pointer(addr))
}

// SlotBase returns the address of slot idx.
func (p *Page) SlotBase(idx int) unsafe.Pointer {
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	return unsafe.Pointer(uintptr(p.Block) + uintptr(idx)*slotSize)
}

func bitGet(bits []byte, idx int) bool {
	return bits[idx/8]&(1<<(uint(idx)%8)) != 0
}

func bitSet(bits []byte, idx int) {
	bits[idx/8] |= 1 << (uint(idx) % 8)
}

func bitClear(bits []byte, idx int) {
	bits[idx/8] &^= 1 << (uint(idx) % 8)
}

// InUse reports whether slot idx is currently allocated.
func (p *Page) InUse(idx int) bool { return bitGet(p.InUseBits, idx) }

// Marked reports whether slot idx is currently marked live.
func (p *Page) Marked(idx int) bool { return bitGet(p.MarkBits, idx) }

// SetMarked sets slot idx's mark bit.
func (p *Page) SetMarked(idx int) { bitSet(p.MarkBits, idx) }

// ClearMarked clears slot idx's mark bit.
func (p *Page) ClearMarked(idx int) { bitClear(p.MarkBits, idx) }

// PopcountInUse returns the number of set bits in InUseBits, used by
// the invariant check inuse_count == popcount(inuse_bits) (§3, §8.1).
func (p *Page) PopcountInUse() int {
	n := 0
	for _, b := range p.InUseBits {
		n += bits.OnesCount8(b)
	}
	return n
}

// PopFreeSlot pops the head of the free list, marking it in
// use, and returns its index. Caller must have already verified
// FreeHead != FreeSentinel.
func (p *Page) PopFreeSlot() int {
	idx := int(p.FreeHead)
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	p.FreeHead = *p.nextFieldAt(idx, slotSize)
	bitSet(p.InUseBits, idx)
	p.InUseCount++
	return idx
}

// PushFreeSlot returns slot idx to the free list and clears its
// in-use bit (sweep's reclaim path, §4.8).
func (p *Page) PushFreeSlot(idx int) {
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	*p.nextFieldAt(idx, slotSize) = p.FreeHead
	p.FreeHead = int32(idx)
	bitClear(p.InUseBits, idx)
	p.InUseCount--
}

// HasFree reports whether the page has at least one free slot.
func (p *Page) HasFree() bool { return p.FreeHead != FreeSentinel }

// SlotForOffset reports whether byte offset off (p relative to Block)
// lies inside the page and resolves to a valid, in-use slot index.
// This is the core of mark_ptr's steps 3-5 (§4.7).
func (p *Page) SlotForOffset(off uintptr) (idx int, ok bool) {
	if off >= sizeclass.PageSize {
		return 0, false
	}
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	i := int(off / slotSize)
	if i >= p.NSlots {
		return 0, false
	}
	if !p.InUse(i) {
		return 0, false
	}
	return i, true
}

// WordsOf returns the slot's payload viewed as an array of machine
// words, for the worklist trace (§4.7).
func (p *Page) WordsOf(idx int) []uintptr {
	slotSize := uintptr(sizeclass.SlotSize(p.SizeClass))
	n := int(slotSize / unsafe.Sizeof(uintptr(0)))
	base := p.SlotBase(idx)
	return unsafe.Slice((*uintptr)(base), n)
}

// ZeroSlot zero-fills a slot's payload. The allocation front end calls
// it on every slot it hands out, so reused slots come back zeroed as
// well as fresh ones (§6.2 leaves the content of a reused slot
// undefined, which zeroing satisfies).
func (p *Page) ZeroSlot(idx int) {
	b := unsafe.Slice((*byte)(p.SlotBase(idx)), sizeclass.SlotSize(p.SizeClass))
	for i := range b {
		b[i] = 0
	}
}
