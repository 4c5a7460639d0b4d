package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickLogsOncePerInterval(t *testing.T) {
	p := NewProfiler(time.Second)
	start := p.lastTime

	for i := 1; i < 60; i++ {
		assert.False(t, p.tickAt(start.Add(time.Duration(i)*10*time.Millisecond)))
	}
	require.True(t, p.tickAt(start.Add(2*time.Second)))

	assert.InDelta(t, 30.0, p.Last().FPS, 0.001)
	assert.Zero(t, p.frameCount)
	assert.Equal(t, start.Add(2*time.Second), p.lastTime)
}

func TestSkipIsCountedPerWindow(t *testing.T) {
	p := NewProfiler(time.Second)
	start := p.lastTime

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Skip()
		}()
	}
	wg.Wait()

	require.True(t, p.tickAt(start.Add(time.Second)))
	assert.Equal(t, uint64(8), p.Last().Skipped)

	require.True(t, p.tickAt(start.Add(2*time.Second)))
	assert.Zero(t, p.Last().Skipped, "the counter resets each window")
}

func TestCollectMaxPause(t *testing.T) {
	p := NewProfiler(0)
	assert.Equal(t, time.Second, p.updateInterval)

	p.memStats.NumGC = 3
	p.memStats.PauseNs[0] = 5000
	p.memStats.PauseNs[1] = 90000
	p.memStats.PauseNs[2] = 2000
	p.lastGCCount = 1
	p.frameCount = 1

	s := p.collect(time.Second)
	assert.Equal(t, uint64(2), s.LastPauseUs)
	assert.Equal(t, uint64(90), s.MaxPauseUs, "only pauses since the previous window count")
}
