// Package pageindex implements the page index (§3, §4.4): an open-
// addressed, linearly-probed hash table keyed by page base address,
// giving O(1) interior-pointer lookup for conservative marking.
//
// Grounded on the teacher's heapArena/arenaIdx addressing scheme
// (mheap.go: arena-index lookup by masking an address down to an
// arena's granularity) generalized to the spec's explicit open-
// addressing contract with SplitMix64 hashing and Robin-Hood backshift
// removal, since the runtime's own arena index is a flat array keyed by
// a much coarser granularity than this spec calls for.
package pageindex

import (
	"unsafe"

	"github.com/jonahmer22/ReMem/internal/page"
	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

const initialCapacity = 128

type entry struct {
	key  uintptr // page base address; 0 means empty
	page *page.Page
}

// Index is the open-addressed page table.
type Index struct {
	entries []entry
	count   int
}

// New creates an index with the spec's default initial capacity (128).
func New() *Index {
	return &Index{entries: make([]entry, initialCapacity)}
}

// splitMix64 is the finalizer step of the SplitMix64 PRNG, used here
// purely as a hash-mixing function over the page base address.
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97f4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x ^= x >> 31
	return x
}

func (idx *Index) slotFor(key uintptr) int {
	h := splitMix64(uint64(key))
	return int(h % uint64(len(idx.entries)))
}

// Insert adds (base, pg) to the index, growing first if load factor
// would exceed 0.7 (§4.4: grow when (count+1)*10 >= cap*7).
func (idx *Index) Insert(base uintptr, pg *page.Page) {
	if (idx.count+1)*10 >= len(idx.entries)*7 {
		idx.grow()
	}
	i := idx.slotFor(base)
	for {
		if idx.entries[i].key == 0 {
			idx.entries[i] = entry{key: base, page: pg}
			idx.count++
			return
		}
		if idx.entries[i].key == base {
			idx.entries[i].page = pg
			return
		}
		i = (i + 1) % len(idx.entries)
	}
}

func (idx *Index) grow() {
	old := idx.entries
	newCap := len(old) * 2
	idx.entries = make([]entry, newCap)
	idx.count = 0
	for _, e := range old {
		if e.key != 0 {
			idx.Insert(e.key, e.page)
		}
	}
}

// Remove deletes the entry for base, if present, re-homing the probe
// chain behind it via Robin-Hood backshift (§4.4).
func (idx *Index) Remove(base uintptr) {
	i := idx.slotFor(base)
	for {
		if idx.entries[i].key == 0 {
			return // not present
		}
		if idx.entries[i].key == base {
			break
		}
		i = (i + 1) % len(idx.entries)
	}

	idx.entries[i] = entry{}
	idx.count--

	j := (i + 1) % len(idx.entries)
	for idx.entries[j].key != 0 {
		idealSlot := idx.slotFor(idx.entries[j].key)
		// Back-shift entry j into the hole at i if its ideal slot lies
		// at or before i in probe order (i.e. it's "owed" the earlier
		// slot), then continue the walk from j's now-vacated position.
		if probeDistance(idealSlot, i, len(idx.entries)) <= probeDistance(idealSlot, j, len(idx.entries)) {
			idx.entries[i] = idx.entries[j]
			idx.entries[j] = entry{}
			i = j
		}
		j = (j + 1) % len(idx.entries)
	}
}

func probeDistance(ideal, actual, cap int) int {
	if actual >= ideal {
		return actual - ideal
	}
	return cap - ideal + actual
}

// Lookup resolves an arbitrary machine word p to the page it falls
// inside, if any, by masking down to page alignment and probing
// (§4.4: "Lookup-by-interior-pointer").
func (idx *Index) Lookup(p uintptr) (*page.Page, bool) {
	base := p &^ (uintptr(sizeclass.PageSize) - 1)
	i := idx.slotFor(base)
	for {
		e := idx.entries[i]
		if e.key == 0 {
			return nil, false
		}
		if e.key == base {
			return e.page, true
		}
		i = (i + 1) % len(idx.entries)
	}
}

// LookupBlock is Lookup for a page's own base address (already
// aligned), used by invariant checks (§8.2: "every page's block is
// present in the page index exactly once").
func (idx *Index) LookupBlock(block unsafe.Pointer) (*page.Page, bool) {
	return idx.Lookup(uintptr(block))
}

// Count returns the number of live entries.
func (idx *Index) Count() int { return idx.count }
