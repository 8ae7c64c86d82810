// Sweep phase (§4.8): reclaim unmarked slots, clear mark bits, and
// retire pages that end up empty.
//
// Grounded on the teacher's mspan.sweep (mgcsweep.go): the
// allocBits/gcmarkBits swap becomes, in this single-threaded non-
// generational collector, a direct per-slot in-use/mark bit
// reconciliation without the runtime's sweepgen bookkeeping.
package collector

import (
	"github.com/jonahmer22/ReMem/internal/page"
	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

// Collect forces a full mark-and-sweep cycle (§6.2 collect).
func (c *Collector) Collect() {
	c.mark()
	c.sweep()
	c.stats.Collections++
}

func (c *Collector) sweep() {
	for sc := 0; sc < sizeclass.Count; sc++ {
		c.sweepClass(sc)
	}
	c.press.AfterCollect(c.book.LiveBytes())
}

// sweepClass walks class sc's list in place, unlinking any page that
// ends up empty (§4.8). It tracks prev itself instead of going
// through book.UnlinkFromClass, since that helper would re-walk the
// list from the head for every retired page.
func (c *Collector) sweepClass(sc int) {
	var prev *page.Page
	cur := c.book.Classes[sc]

	for cur != nil {
		next := cur.Next
		c.sweepPage(cur)

		if cur.InUseCount == 0 {
			if prev == nil {
				c.book.Classes[sc] = next
			} else {
				prev.Next = next
			}
			cur.Next = nil

			if c.freeEmptyPages {
				_ = c.destroyPage(sc, cur)
			} else {
				c.book.PushEmpty(cur)
			}
		} else {
			prev = cur
		}
		cur = next
	}
}

// sweepPage reconciles one page's in-use/mark bits (§4.8):
// in-use-and-unmarked slots are freed, marked slots have their mark
// bit cleared for the next cycle, everything else is left alone.
func (c *Collector) sweepPage(pg *page.Page) {
	for idx := 0; idx < pg.NSlots; idx++ {
		switch {
		case pg.InUse(idx) && !pg.Marked(idx):
			pg.PushFreeSlot(idx)
		case pg.Marked(idx):
			pg.ClearMarked(idx)
		}
	}
}
