// Package book implements the Book (§3, §3 "Book"): per-size-class
// linked lists of live pages plus a shared list of empty, reusable
// pages. A page belongs to exactly one list at any time.
//
// Grounded on the teacher's mheap.central[spanClass] array of mcentral
// lists (mheap.go) generalized from the runtime's swept/unswept
// mspan-set pairs down to the spec's single singly-linked list per
// class, since this collector has no concurrent sweeper needing the
// two-generation split.
package book

import (
	"github.com/jonahmer22/ReMem/internal/page"
	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

// Book owns the per-class page lists and the empty-pages cache.
type Book struct {
	Classes    [sizeclass.Count]*page.Page
	Empty      *page.Page
	emptyCount int
}

// New returns an empty Book.
func New() *Book {
	return &Book{}
}

// PushClassFront links p at the head of class sc's list.
func (b *Book) PushClassFront(sc int, p *page.Page) {
	p.Next = b.Classes[sc]
	b.Classes[sc] = p
}

// PushEmpty links p at the head of the empty-pages list.
func (b *Book) PushEmpty(p *page.Page) {
	p.Next = b.Empty
	b.Empty = p
	b.emptyCount++
}

// PopEmpty detaches and returns the head of the empty-pages list.
func (b *Book) PopEmpty() (*page.Page, bool) {
	if b.Empty == nil {
		return nil, false
	}
	p := b.Empty
	b.Empty = p.Next
	p.Next = nil
	b.emptyCount--
	return p, true
}

// EmptyCount reports how many pages are cached on the empty list.
func (b *Book) EmptyCount() int { return b.emptyCount }

// FirstWithFreeSlot returns the first page in class sc's list that has
// a free slot, used by the allocation front end (§4.5 step 2).
func (b *Book) FirstWithFreeSlot(sc int) (*page.Page, bool) {
	for p := b.Classes[sc]; p != nil; p = p.Next {
		if p.HasFree() {
			return p, true
		}
	}
	return nil, false
}

// WalkClass invokes fn for every page currently in class sc's list,
// in list order. fn must not unlink pages. The sweep pass, which does
// unlink pages mid-walk, does not use this helper; see
// collector/sweep.go, which keeps prev-pointer bookkeeping local to the
// one place that mutates the list while iterating.
func (b *Book) WalkClass(sc int, fn func(p *page.Page)) {
	for p := b.Classes[sc]; p != nil; p = p.Next {
		fn(p)
	}
}

// UnlinkFromClass removes p from class sc's list. O(n) in the class's
// page count, which the sweep pass already pays to visit every page.
func (b *Book) UnlinkFromClass(sc int, p *page.Page) {
	if b.Classes[sc] == p {
		b.Classes[sc] = p.Next
		p.Next = nil
		return
	}
	for cur := b.Classes[sc]; cur != nil; cur = cur.Next {
		if cur.Next == p {
			cur.Next = p.Next
			p.Next = nil
			return
		}
	}
}

// LiveBytes sums inuse_count * slot size across every class list,
// recomputing last_live_bytes after a sweep (§4.8).
func (b *Book) LiveBytes() uint64 {
	var total uint64
	for sc := 0; sc < sizeclass.Count; sc++ {
		for p := b.Classes[sc]; p != nil; p = p.Next {
			total += uint64(p.InUseCount) * uint64(sizeclass.SlotSize(sc))
		}
	}
	return total
}
