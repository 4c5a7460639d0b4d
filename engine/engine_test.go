package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameInterval(t *testing.T) {
	assert.Equal(t, time.Second/60, frameInterval(0))
	assert.Equal(t, time.Second/60, frameInterval(-5))
	assert.Equal(t, 10*time.Millisecond, frameInterval(100))
	assert.Equal(t, time.Duration(float64(time.Second)/144), frameInterval(144))
}

func TestFrameLimit(t *testing.T) {
	assert.Zero(t, frameLimit(0))
	assert.Zero(t, frameLimit(-1))
	assert.Equal(t, 20*time.Millisecond, frameLimit(50))
}

func TestNewEngineDefaults(t *testing.T) {
	e := newEngine()
	assert.Equal(t, time.Second/60, e.engineTickRate)
	assert.Zero(t, e.renderFrameLimit)
	assert.False(t, e.profilingEnabled)
	assert.False(t, e.validation)
	assert.Equal(t, "oxy-vk", e.name)
	assert.NotNil(t, e.profiler)
}

func TestBuilderOptions(t *testing.T) {
	s := scene.NewScene("opts", camera.NewCamera())
	e := newEngine(
		WithName("grass"),
		WithName(""),
		WithTickRate(30),
		WithRenderFrameLimit(120),
		WithProfiling(true),
		WithValidation(true),
		WithScene(s),
	)
	assert.Equal(t, "grass", e.name)
	assert.Equal(t, time.Duration(float64(time.Second)/30), e.engineTickRate)
	assert.Equal(t, time.Duration(float64(time.Second)/120), e.renderFrameLimit)
	assert.True(t, e.profilingEnabled)
	assert.True(t, e.validation)
	assert.Same(t, s, e.Scene())
}

func TestSetTickRateWhileRunningKeepsLatest(t *testing.T) {
	e := newEngine()
	e.running = true

	e.SetTickRate(10)
	e.SetTickRate(20)

	require.Len(t, e.tickRateChannel, 1)
	assert.Equal(t, 50*time.Millisecond, <-e.tickRateChannel)
	assert.Equal(t, time.Second/60, e.engineTickRate)
}

func TestSetTickRateStopped(t *testing.T) {
	e := newEngine()
	e.SetTickRate(25)
	assert.Equal(t, 40*time.Millisecond, e.engineTickRate)
	assert.Empty(t, e.tickRateChannel)
}

func TestQuitIsIdempotent(t *testing.T) {
	e := newEngine()
	e.running = true
	assert.NotPanics(t, func() {
		e.Quit()
		e.Quit()
	})
	assert.False(t, e.running)
	select {
	case <-e.quitChannel:
	default:
		t.Fatal("quit channel not closed")
	}
}

func TestTickLoopTicksSceneAndCallback(t *testing.T) {
	e := newEngine(WithTickRate(500), WithScene(scene.NewScene("tick", camera.NewCamera())))
	var ticks atomic.Int32
	e.SetTickCallback(func(dt float32) {
		assert.Greater(t, dt, float32(0))
		ticks.Add(1)
	})

	e.wg.Add(1)
	go e.handleEngine()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	e.Quit()
	e.wg.Wait()
}

func TestTickLoopAppliesRateChange(t *testing.T) {
	e := newEngine(WithTickRate(1))
	e.running = true

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) { ticks.Add(1) })

	e.wg.Add(1)
	go e.handleEngine()
	e.SetTickRate(1000)

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	e.Quit()
	e.wg.Wait()
	assert.Equal(t, time.Millisecond, e.engineTickRate)
}

func TestDragOrbitsCamera(t *testing.T) {
	ctrl := camera.NewCameraController()
	e := newEngine(WithScene(scene.NewScene("drag", camera.NewCamera(camera.WithController(ctrl)))))
	azimuth, elevation := ctrl.Azimuth(), ctrl.Elevation()

	e.moveDrag(50, 50)
	assert.Equal(t, azimuth, ctrl.Azimuth())

	e.beginDrag(10, 10)
	e.moveDrag(30, 10)
	assert.InDelta(t, azimuth-20*0.005, ctrl.Azimuth(), 1e-5)
	assert.InDelta(t, elevation, ctrl.Elevation(), 1e-5)

	e.endDrag()
	e.moveDrag(90, 90)
	assert.InDelta(t, azimuth-20*0.005, ctrl.Azimuth(), 1e-5)
}

func TestSetSceneIgnoresNil(t *testing.T) {
	s := scene.NewScene("keep", camera.NewCamera())
	e := newEngine(WithScene(s))
	e.SetScene(nil)
	assert.Same(t, s, e.Scene())

	next := scene.NewScene("next", camera.NewCamera())
	e.SetScene(next)
	assert.Same(t, next, e.Scene())
}

func TestHeldKeysPanCamera(t *testing.T) {
	ctrl := camera.NewCameraController(camera.WithPanSpeed(1))
	e := newEngine(WithScene(scene.NewScene("pan", camera.NewCamera(camera.WithController(ctrl)))))
	start := ctrl.Target()

	var seen []uint32
	e.SetKeyCallback(func(keyCode uint32, pressed bool) {
		if pressed {
			seen = append(seen, keyCode)
		}
	})

	e.panCamera()
	assert.Equal(t, start, ctrl.Target(), "no keys held")

	e.setKey(common.KeyW, true)
	e.panCamera()
	moved := ctrl.Target()
	assert.NotEqual(t, start, moved)

	e.setKey(common.KeyW, false)
	e.panCamera()
	assert.Equal(t, moved, ctrl.Target())
	assert.Equal(t, []uint32{common.KeyW}, seen)
}

// queueRecorder records the asset queue calls the engine forwards to its renderer.
type queueRecorder struct {
	renderer.Renderer
	queued  []model.Handle
	removed []model.Handle
}

func (q *queueRecorder) QueueAsset(h model.Handle, _ *model.Asset) { q.queued = append(q.queued, h) }
func (q *queueRecorder) QueueRemoval(h model.Handle) { q.removed = append(q.removed, h) }

func TestRemoveModelForgetsAsset(t *testing.T) {
	e := newEngine()
	q := &queueRecorder{}
	e.renderer = q
	asset := &model.Asset{Name: "crate"}

	h := e.AddModel(asset)
	assert.Equal(t, h, e.AddModel(asset), "one handle per asset")
	require.Len(t, q.queued, 1)

	e.RemoveModel(h)
	assert.Equal(t, []model.Handle{h}, q.removed)

	again := e.AddModel(asset)
	assert.NotEqual(t, h, again, "a removed asset is uploaded under a new handle")
	assert.Len(t, q.queued, 2)
}
