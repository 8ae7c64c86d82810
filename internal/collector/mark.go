// Mark phase (§4.7): conservative stack scan, explicit root scan, and
// transitive worklist trace.
//
// Grounded on the teacher's stack-scanning discipline (mgcmark-style
// conservative root enumeration referenced throughout malloc.go's
// design notes on stack maps) adapted to this spec's fully type-blind
// scan: every machine word in range is a mark_ptr candidate, with no
// precise stack map available.
package collector

import (
	"runtime"
	"unsafe"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// mark runs the full mark phase: clear the worklist, scan the stack
// and roots, then trace the transitive closure (§4.7).
func (c *Collector) mark() {
	c.worklist = c.worklist[:0]
	c.scanStack()
	c.scanRoots()
	c.trace()
}

// scanStack conservatively scans [low, high) as an array of machine
// words, where low is sampled from the current frame and high is the
// registered stack-top hint (§4.7 "Stack scan").
//
// The sentinel write immediately before sampling low, and the
// non-inlined helper that performs it, exist to defeat register
// caching of the frame address: without them an optimizing compiler
// could keep the address computation entirely in registers and never
// materialize the frame marker the scan range depends on (spec §9).
func (c *Collector) scanStack() {
	var sentinel uintptr
	spillSentinel(&sentinel, 0x5ee1)

	low := uintptr(unsafe.Pointer(&sentinel))
	high := c.stackTopHint
	if low > high {
		low, high = high, low
	}

	for addr := low; addr+wordSize <= high; addr += wordSize {
		word := *(*uintptr)(unsafe.Pointer(addr))
		c.markPtr(word)
	}

	runtime.KeepAlive(&sentinel)
}

// spillSentinel writes v through p. It must not be inlined: inlining
// would let the compiler prove the write is dead and elide the spill
// it exists to force.
//
//go:noinline
func spillSentinel(p *uintptr, v uintptr) {
	*p = v
}

// scanRoots marks the current pointer value held at every registered
// root (§4.7 "Root scan").
func (c *Collector) scanRoots() {
	c.roots.Each(func(ptr uintptr) {
		c.markPtr(ptr)
	})
}

// markPtr attempts to mark the slot p points into, pushing it onto
// the worklist the first time it is marked (§4.7 "Attempt-to-mark").
func (c *Collector) markPtr(p uintptr) {
	if p == 0 {
		return
	}
	pg, ok := c.index.Lookup(p)
	if !ok {
		return
	}
	off := p - uintptr(pg.Block)
	idx, ok := pg.SlotForOffset(off)
	if !ok {
		return
	}
	if !pg.Marked(idx) {
		pg.SetMarked(idx)
		c.worklist = append(c.worklist, workItem{pg: pg, idx: idx})
	}
}

// trace drains the worklist, treating every marked slot's payload as
// an array of machine words to mark in turn (§4.7 "Worklist trace").
func (c *Collector) trace() {
	for len(c.worklist) > 0 {
		n := len(c.worklist) - 1
		item := c.worklist[n]
		c.worklist = c.worklist[:n]

		for _, w := range item.pg.WordsOf(item.idx) {
			c.markPtr(w)
		}
	}
}
