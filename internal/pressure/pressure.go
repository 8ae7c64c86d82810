// Package pressure implements the pressure controller (§3, §4.6):
// decides when to auto-collect based on bytes allocated since the last
// cycle relative to a growth factor over the last live-byte footprint.
//
// Grounded on the teacher's gcController/gcTrigger pacing (malloc.go's
// heap_live vs. the GC trigger ratio) collapsed to the spec's single
// scalar ratio test, since this collector has no concurrent background
// marking to pace against.
package pressure

import "github.com/jonahmer22/ReMem/internal/sizeclass"

// DefaultGrowthFactor is the tunable's default value (§6.2).
const DefaultGrowthFactor = 1.5

// Controller tracks allocation pressure between collections.
type Controller struct {
	BytesSinceLastGC uint64
	LastLiveBytes    uint64
	GrowthFactor     float64
}

// New returns a controller with the default growth factor.
func New() *Controller {
	return &Controller{GrowthFactor: DefaultGrowthFactor}
}

// ShouldCollect reports whether an upcoming allocation of n bytes
// would cross the pressure threshold (§4.6): baseline is LastLiveBytes,
// or one page size whenever LastLiveBytes is zero (as on the very first
// call), and threshold is baseline * GrowthFactor.
func (c *Controller) ShouldCollect(n uint64) bool {
	baseline := c.LastLiveBytes
	if baseline == 0 {
		baseline = uint64(sizeclass.PageSize)
	}
	threshold := float64(baseline) * c.GrowthFactor
	return float64(c.BytesSinceLastGC+n) > threshold
}

// RecordAlloc adds n bytes to the running total counted toward the
// next pressure check (§4.5 step 2, §4.1 oversize path).
func (c *Controller) RecordAlloc(n uint64) {
	c.BytesSinceLastGC += n
}

// AfterCollect resets the running allocation total and records the
// retained footprint, per §4.8's post-sweep recomputation.
func (c *Controller) AfterCollect(liveBytes uint64) {
	c.LastLiveBytes = liveBytes
	c.BytesSinceLastGC = 0
}
