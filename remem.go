// Package remem is a conservative, non-moving, mark-and-sweep garbage
// collector layered over a bump-style region allocator (see
// SPEC_FULL.md). Reachability is determined conservatively by scanning
// the machine stack and a set of explicitly registered roots: any
// machine word that points into a managed slot is treated as a live
// reference. There is no object typing, no precise marking, no
// compaction, and no concurrency — the collector runs synchronously on
// the mutator goroutine.
package remem

import (
	"unsafe"

	"github.com/jonahmer22/ReMem/internal/collector"
)

// Collector is a single GC instance. The spec describes a process-wide
// singleton; this port follows its own "singleton vs. multi-instance"
// design note (§9) and exposes an explicit handle instead, which does
// not change any behavioral contract and is the idiomatic Go shape.
type Collector struct {
	c *collector.Collector
}

// Init initializes a new collector. stackTopHint must be the address
// of a variable living at or above the deepest frame from which Alloc
// will ever be called — typically taken in main with
// Init(unsafe.Pointer(&topVar), freeEmptyPages).
//
// freeEmptyPages selects the page-sourcing policy (§4.2): false carves
// page blocks from the region store and keeps emptied pages on an
// empty-page list for reuse ("cache mode"); true maps each page
// separately and returns it to the OS via munmap as soon as it empties
// out ("free mode").
func Init(stackTopHint unsafe.Pointer, freeEmptyPages bool) (*Collector, error) {
	c, err := collector.New(stackTopHint, freeEmptyPages)
	if err != nil {
		return nil, err
	}
	return &Collector{c: c}, nil
}

// Destroy tears the collector down. Idempotent.
func (g *Collector) Destroy() {
	g.c.Destroy()
}

// Alloc returns a pointer to n writable bytes, zero-initialized on
// first use of a slot and undefined on reuse. May trigger a collection
// under pressure. Requests larger than the largest size class are
// served directly from the region store and are never GC-traced; they
// persist until Destroy. Never returns nil — failure is fatal (§7).
func (g *Collector) Alloc(n uintptr) unsafe.Pointer {
	return g.c.Alloc(n)
}

// Collect forces a full mark-and-sweep cycle.
func (g *Collector) Collect() {
	g.c.Collect()
}

// RootAddr registers the address of a client variable holding a
// managed pointer. Re-rooting an already-rooted address is a no-op.
func (g *Collector) RootAddr(addr unsafe.Pointer) {
	g.c.Root(addr)
}

// UnrootAddr deregisters addr. Unrooting an address that was never
// rooted is logged to the diagnostic channel and otherwise ignored.
func (g *Collector) UnrootAddr(addr unsafe.Pointer) {
	g.c.Unroot(addr)
}

// DebugStats returns a one-line summary of page counts and live byte
// totals (§6.2).
func (g *Collector) DebugStats() string {
	return g.c.DebugStats()
}

// Root registers the address of v, a client variable of pointer type
// T holding a managed reference, mirroring the original C API's
// GC_MARK(var) macro (SPEC_FULL.md §C.1).
func Root[T any](g *Collector, v *T) {
	g.RootAddr(unsafe.Pointer(v))
}

// Unroot deregisters v, mirroring GC_UNMARK(var).
func Unroot[T any](g *Collector, v *T) {
	g.UnrootAddr(unsafe.Pointer(v))
}
