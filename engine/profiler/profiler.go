package profiler

import (
	"log"
	"runtime"
	"sync/atomic"
	"time"
)

// Stats is one reporting window of frame and memory statistics.
type Stats struct {
	// FPS is the number of presented frames per second over the window.
	FPS float64
	// Skipped is the number of frames dropped over the window (out-of-date swapchain, frame limit).
	Skipped uint64
	// HeapMB is the live heap size.
	HeapMB float64
	// AllocRateMB is the heap allocation rate in MB per second.
	AllocRateMB float64
	// GCCount is the cumulative number of completed GC cycles.
	GCCount uint32
	// LastPauseUs is the most recent GC pause.
	LastPauseUs uint64
	// MaxPauseUs is the longest GC pause since the previous window.
	MaxPauseUs uint64
	// SysMB is the memory obtained from the OS.
	SysMB float64
}

// Profiler tracks frame rate, skipped frames and memory statistics for the render loop.
// Tick is called from the render goroutine; Skip may be called from any goroutine.
type Profiler struct {
	frameCount     int
	skipped        atomic.Uint64
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// NewProfiler creates a new Profiler.
//
// Parameters:
//   - interval: how often stats are logged; values <= 0 default to 1 second
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: interval,
	}
}

// Skip records a frame that was dropped instead of presented.
func (p *Profiler) Skip() {
	p.skipped.Add(1)
}

// Last returns the stats of the most recently completed reporting window.
func (p *Profiler) Last() Stats {
	return p.last
}

// Tick should be called once per presented frame.
// Logs performance statistics when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	return p.tickAt(time.Now())
}

func (p *Profiler) tickAt(now time.Time) bool {
	p.frameCount++
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	s := p.collect(elapsed)
	log.Printf("[Profiler] FPS: %.2f | Skipped: %d | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		s.FPS, s.Skipped, s.HeapMB, s.AllocRateMB, s.GCCount, s.LastPauseUs, s.MaxPauseUs, s.SysMB)

	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = s
	return true
}

// collect derives a Stats window from the frame counter and the last memory snapshot.
func (p *Profiler) collect(elapsed time.Duration) Stats {
	const mb = 1024 * 1024
	m := &p.memStats
	s := Stats{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		Skipped:     p.skipped.Swap(0),
		HeapMB:      float64(m.Alloc) / mb,
		AllocRateMB: float64(m.TotalAlloc-p.lastTotalAlloc) / mb / elapsed.Seconds(),
		GCCount:     m.NumGC,
		SysMB:       float64(m.Sys) / mb,
	}
	if s.GCCount == 0 {
		return s
	}

	// PauseNs is a circular buffer of the last 256 pauses.
	s.LastPauseUs = m.PauseNs[(s.GCCount+255)%256] / 1000
	start := p.lastGCCount
	if s.GCCount-start > 256 {
		start = s.GCCount - 256
	}
	for i := start; i < s.GCCount; i++ {
		s.MaxPauseUs = max(s.MaxPauseUs, m.PauseNs[i%256]/1000)
	}
	return s
}
