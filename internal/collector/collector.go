// Package collector implements the collector state (§3 "Collector
// state"), the allocation front end (§4.5), and Init/Destroy (§6.2).
// Mark and sweep live in mark.go and sweep.go respectively.
//
// Grounded on the teacher's mallocinit/mheap singleton wiring
// (malloc.go's mallocinit, mheap.go's mheap_ global) generalized per
// spec §9's "singleton vs. multi-instance" design note into an
// explicit handle type instead of a package-level global — idiomatic
// Go favors an explicit *Collector over ambient package state, and the
// spec itself calls this out as a valid re-architecture that changes
// no behavioral contract.
package collector

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/jonahmer22/ReMem/internal/book"
	"github.com/jonahmer22/ReMem/internal/diag"
	"github.com/jonahmer22/ReMem/internal/page"
	"github.com/jonahmer22/ReMem/internal/pageindex"
	"github.com/jonahmer22/ReMem/internal/pressure"
	"github.com/jonahmer22/ReMem/internal/region"
	"github.com/jonahmer22/ReMem/internal/roots"
	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

const initialWorklistCapacity = 128

// Stats mirrors the counters DebugStats reports and tests assert on.
type Stats struct {
	Collections uint64
}

// Collector is the singleton-shaped, but explicitly instantiable, GC
// handle (§3 "Collector state").
type Collector struct {
	region *region.Region
	book   *book.Book
	index  *pageindex.Index
	roots  *roots.Registry
	press  *pressure.Controller

	stackTopHint   uintptr
	freeEmptyPages bool

	worklist []workItem
	stats    Stats
}

type workItem struct {
	pg  *page.Page
	idx int
}

// New initializes a collector instance (§6.2 init). stackTopHint must
// be the address of a variable living at or above the deepest frame
// from which Alloc will ever be called (typically taken in main).
func New(stackTopHint unsafe.Pointer, freeEmptyPages bool) (*Collector, error) {
	r, err := region.New()
	if err != nil {
		return nil, errors.Wrap(err, "collector: init region")
	}
	return &Collector{
		region:         r,
		book:           book.New(),
		index:          pageindex.New(),
		roots:          roots.New(),
		press:          pressure.New(),
		stackTopHint:   uintptr(stackTopHint),
		freeEmptyPages: freeEmptyPages,
		worklist:       make([]workItem, 0, initialWorklistCapacity),
	}, nil
}

// Destroy tears the collector down: region, page metadata, roots,
// worklist, and page index. Idempotent when the region handle is nil.
func (c *Collector) Destroy() {
	if c.region == nil {
		return
	}
	c.region.Destroy()
	c.region = nil
	c.book = nil
	c.index = nil
	c.roots = nil
	c.worklist = nil
}

// Root registers the address of a client variable holding a managed
// pointer (§4.9).
func (c *Collector) Root(addr unsafe.Pointer) {
	c.roots.Root(addr)
}

// Unroot deregisters addr. A not-found condition is soft: it is logged
// to the diagnostic channel and otherwise ignored (§7).
func (c *Collector) Unroot(addr unsafe.Pointer) {
	if !c.roots.Unroot(addr) {
		diag.Warn("unroot", "address %#x was not rooted", uintptr(addr))
	}
}

// Alloc returns a pointer to n writable bytes (§6.2, §4.5, §4.1).
// Oversize requests (n > sizeclass.MaxClassSize) bypass the page
// system and are never GC-traced. Never returns nil: a metadata or
// post-retry OOM is fatal (§7).
func (c *Collector) Alloc(n uintptr) unsafe.Pointer {
	if n > sizeclass.MaxClassSize {
		return c.allocOversize(n)
	}

	sc := sizeclass.Of(n)
	slotBytes := uint64(sizeclass.SlotSize(sc))
	if c.press.ShouldCollect(slotBytes) {
		c.Collect()
	}

	ptr, err := c.tryAllocClass(sc)
	if err != nil {
		c.Collect()
		ptr, err = c.tryAllocClass(sc)
		if err != nil {
			diag.Fatal(1, "alloc", errors.Wrap(err, "out of memory after forced collect"))
		}
	}
	return ptr
}

func (c *Collector) allocOversize(n uintptr) unsafe.Pointer {
	c.press.RecordAlloc(uint64(n))
	ptr, err := c.region.Alloc(n)
	if err != nil {
		c.Collect()
		ptr, err = c.region.Alloc(n)
		if err != nil {
			diag.Fatal(2, "alloc-oversize", errors.Wrap(err, "out of memory after forced collect"))
		}
	}
	return ptr
}

// tryAllocClass implements §4.5 steps 2-4: an in-class page with a
// free slot, else an empty page repurposed for sc, else a freshly
// built page.
func (c *Collector) tryAllocClass(sc int) (unsafe.Pointer, error) {
	if pg, ok := c.book.FirstWithFreeSlot(sc); ok {
		return c.popAndReturn(pg, sc), nil
	}
	if pg, ok := c.book.PopEmpty(); ok {
		pg.InitForClass(sc)
		c.book.PushClassFront(sc, pg)
		return c.popAndReturn(pg, sc), nil
	}
	pg, err := c.newPage(sc)
	if err != nil {
		return nil, err
	}
	c.book.PushClassFront(sc, pg)
	return c.popAndReturn(pg, sc), nil
}

func (c *Collector) popAndReturn(pg *page.Page, sc int) unsafe.Pointer {
	idx := pg.PopFreeSlot()
	pg.ZeroSlot(idx)
	c.press.RecordAlloc(uint64(sizeclass.SlotSize(sc)))
	return pg.SlotBase(idx)
}

// newPage constructs a fresh page for class sc (§4.2), sourcing its
// block from the region store (cache mode) or the aligned system
// allocator (free mode), and inserts it into the page index.
func (c *Collector) newPage(sc int) (*page.Page, error) {
	var (
		blockPtr unsafe.Pointer
		err      error
	)
	if c.freeEmptyPages {
		blockPtr, err = c.region.AllocAlignedPageMmap()
	} else {
		blockPtr, err = c.region.AllocAlignedPage()
	}
	if err != nil {
		return nil, errors.Wrap(err, "new page")
	}

	pg := &page.Page{Block: blockPtr, FreeMode: c.freeEmptyPages}
	pg.InitForClass(sc)
	c.index.Insert(uintptr(blockPtr), pg)
	return pg, nil
}

func (c *Collector) destroyPage(sc int, pg *page.Page) error {
	c.index.Remove(uintptr(pg.Block))
	pg.InUseBits = nil
	pg.MarkBits = nil
	if pg.FreeMode {
		if err := c.region.FreeAlignedPageMmap(pg.Block); err != nil {
			return errors.Wrap(err, "destroy page")
		}
	}
	pg.Block = nil
	return nil
}

// DebugStats returns a one-line summary of page counts and live byte
// totals (§6.2). It prints nothing itself.
func (c *Collector) DebugStats() string {
	var perClass [sizeclass.Count]int
	for sc := 0; sc < sizeclass.Count; sc++ {
		n := 0
		for p := c.book.Classes[sc]; p != nil; p = p.Next {
			n++
		}
		perClass[sc] = n
	}
	return fmt.Sprintf(
		"remem stats: collections=%d empty_pages=%d last_live_bytes=%d bytes_since_gc=%d pages_per_class=%v",
		c.stats.Collections, c.book.EmptyCount(), c.press.LastLiveBytes, c.press.BytesSinceLastGC, perClass,
	)
}

// Stats exposes the collector's scalar counters for tests.
func (c *Collector) Stats() Stats { return c.stats }

// LastLiveBytes exposes the pressure controller's retained footprint,
// used by end-to-end tests asserting pressure-driven auto-collection
// (§8 scenario 6).
func (c *Collector) LastLiveBytes() uint64 { return c.press.LastLiveBytes }

// EmptyPageCount exposes the book's empty-list length, used by the
// empty-page-reuse scenario test (§8 scenario 4).
func (c *Collector) EmptyPageCount() int { return c.book.EmptyCount() }

// RegionBlockCount exposes the region's backing-block count, used by
// the same scenario to assert no new block was requested.
func (c *Collector) RegionBlockCount() int { return c.region.NumBlocks() }

// PageOf resolves p to its containing page, if any (§8 boundary/
// invariant tests use this directly against the page index).
func (c *Collector) PageOf(p unsafe.Pointer) (*page.Page, bool) {
	return c.index.Lookup(uintptr(p))
}
