package pressure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonahmer22/ReMem/internal/sizeclass"
)

func TestFirstCallBaselineIsPageSize(t *testing.T) {
	c := New()
	assert.False(t, c.ShouldCollect(1))
	assert.True(t, c.ShouldCollect(uint64(float64(sizeclass.PageSize)*DefaultGrowthFactor)+1))
}

func TestShouldCollectAfterAccumulating(t *testing.T) {
	c := New()
	c.LastLiveBytes = 1000
	c.GrowthFactor = 1.5
	c.RecordAlloc(1400)
	assert.False(t, c.ShouldCollect(0)) // 1400 <= 1500
	assert.True(t, c.ShouldCollect(200))
}

func TestAfterCollectResets(t *testing.T) {
	c := New()
	c.RecordAlloc(5000)
	c.AfterCollect(300)
	assert.Equal(t, uint64(0), c.BytesSinceLastGC)
	assert.Equal(t, uint64(300), c.LastLiveBytes)
}
