package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/vulkan"
	"github.com/Carmen-Shannon/oxy-vk/engine/loader"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/profiler"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/Carmen-Shannon/oxy-vk/engine/window"
)

const defaultTickRate = 60.0

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	name       string
	validation bool

	window   window.Window
	ctx      *device.Context
	renderer renderer.Renderer
	loader   loader.Loader

	rendererOptions []renderer.RendererBuilderOption
	contextOptions  []device.ContextBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	sceneMu sync.RWMutex
	scene   scene.Scene

	handleMu sync.Mutex
	handles  map[*model.Asset]model.Handle

	drag dragState

	keyMu       sync.Mutex
	keyState    map[uint32]bool
	keyCallback func(keyCode uint32, pressed bool)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// dragState tracks the mouse button that currently orbits the camera.
type dragState struct {
	active bool
	lastX  int32
	lastY  int32
}

// Engine is the main entry point for the engine.
// It owns the window, the device Context and the renderer, and runs the tick loop and the render
// loop on their own goroutines while the calling goroutine pumps window events.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Context returns the device Context the renderer records against.
	//
	// Returns:
	//   - *device.Context: the device Context
	Context() *device.Context

	// Renderer returns the frame renderer.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Loader returns the model loader used by LoadModel.
	//
	// Returns:
	//   - loader.Loader: the loader
	Loader() loader.Loader

	// Scene returns the scene that is ticked and rendered.
	//
	// Returns:
	//   - scene.Scene: the current scene
	Scene() scene.Scene

	// SetScene replaces the scene that is ticked and rendered. The swap takes effect on the next
	// tick and the next frame.
	//
	// Parameters:
	//   - s: the new scene, ignored when nil
	SetScene(s scene.Scene)

	// LoadModel imports a model file and queues it for upload on the next frame. Loading the same
	// path twice returns the same handle.
	//
	// Parameters:
	//   - path: the .gltf or .glb file path
	//
	// Returns:
	//   - model.Handle: the handle instances refer to the model by
	//   - error: error if the file could not be imported
	LoadModel(path string) (model.Handle, error)

	// AddModel queues an asset built in code for upload on the next frame.
	//
	// Parameters:
	//   - asset: the asset bundle
	//
	// Returns:
	//   - model.Handle: the handle instances refer to the model by
	AddModel(asset *model.Asset) model.Handle

	// RemoveModel queues the model for destruction on the next frame and forgets its asset, so a
	// later AddModel of the same asset uploads it again. Instances still referring to the handle
	// are skipped at draw time.
	//
	// Parameters:
	//   - h: the handle returned by LoadModel or AddModel
	RemoveModel(h model.Handle)

	// SetKeyCallback registers the function called on the window goroutine for every key press and
	// release, after the engine has recorded the key for camera panning.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it was pressed
	SetKeyCallback(callback func(keyCode uint32, pressed bool))

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after the scene has ticked.
	// Use this for game logic and queueing animation commands.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called on the render goroutine after each frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the tick and render goroutines and pumps window events on the calling goroutine,
	// which must be the one NewEngine ran on. Blocks until the window closes or Quit is called,
	// then tears down the renderer, the Context and the window in that order.
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the window (unless one is supplied), opens the Vulkan device against the
// window surface, then builds the device Context and the renderer. Must be called on the main
// goroutine. Device and renderer creation failures are fatal.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := newEngine(options...)

	if e.window == nil {
		e.window = window.NewWindow(window.WithTitle(e.name))
	}
	if e.scene == nil {
		e.scene = scene.NewScene("default", e.defaultCamera())
	}
	if e.loader == nil {
		e.loader = loader.NewLoader()
	}

	e.ctx = device.Create(func() (gpu.Device, error) {
		return vulkan.Open(
			vulkan.WithSurface(e.window),
			vulkan.WithValidation(e.validation),
			vulkan.WithApplicationName(e.name),
		)
	}, e.contextOptions...)

	extent := gpu.Extent2D{Width: uint32(e.window.Width()), Height: uint32(e.window.Height())}
	e.renderer = renderer.NewRenderer(e.ctx, extent, e.rendererOptions...)

	e.bindInput()
	return e
}

// newEngine applies options over the defaults without touching the platform.
func newEngine(options ...EngineBuilderOption) *engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		name:             "oxy-vk",
		running:          false,
		wg:               sync.WaitGroup{},
		profiler:         profiler.NewProfiler(time.Second),
		profilingEnabled: false,
		engineTickRate:   frameInterval(defaultTickRate),
		handles:          make(map[*model.Asset]model.Handle),
		keyState:         make(map[uint32]bool),
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) defaultCamera() camera.Camera {
	aspect := float32(1)
	if e.window.Height() > 0 {
		aspect = float32(e.window.Width()) / float32(e.window.Height())
	}
	return camera.NewCamera(
		camera.WithAspect(aspect),
		camera.WithController(camera.NewCameraController()),
	)
}

// bindInput routes left or middle mouse drags to the camera orbit, the scroll wheel to zoom and
// held WASDQE keys to camera panning on each tick.
func (e *engine) bindInput() {
	e.window.SetKeyDownCallback(func(keyCode uint32) { e.setKey(keyCode, true) })
	e.window.SetKeyUpCallback(func(keyCode uint32) { e.setKey(keyCode, false) })
	e.window.SetLeftMouseCallback(func(pressed bool, x, y int32) {
		if pressed {
			e.beginDrag(x, y)
		} else {
			e.endDrag()
		}
	})
	e.window.SetMiddleMouseDownCallback(e.beginDrag)
	e.window.SetMiddleMouseUpCallback(func(x, y int32) { e.endDrag() })
	e.window.SetMouseMoveCallback(e.moveDrag)
	e.window.SetScrollCallback(func(delta float32) {
		if ctrl := e.controller(); ctrl != nil {
			ctrl.Zoom(delta)
		}
	})
}

func (e *engine) beginDrag(x, y int32) {
	e.drag = dragState{active: true, lastX: x, lastY: y}
}

func (e *engine) endDrag() {
	e.drag.active = false
}

func (e *engine) moveDrag(x, y int32) {
	if !e.drag.active {
		return
	}
	dx, dy := float32(x-e.drag.lastX), float32(y-e.drag.lastY)
	e.drag.lastX, e.drag.lastY = x, y
	if ctrl := e.controller(); ctrl != nil {
		ctrl.Drag(dx, dy)
	}
}

func (e *engine) setKey(keyCode uint32, pressed bool) {
	e.keyMu.Lock()
	e.keyState[keyCode] = pressed
	callback := e.keyCallback
	e.keyMu.Unlock()

	if callback != nil {
		callback(keyCode, pressed)
	}
}

func (e *engine) keyHeld(keyCode uint32) bool {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()
	return e.keyState[keyCode]
}

// panCamera moves the camera one step per held movement key.
func (e *engine) panCamera() {
	ctrl := e.controller()
	if ctrl == nil {
		return
	}
	if e.keyHeld(common.KeyW) {
		ctrl.PanForward(1)
	}
	if e.keyHeld(common.KeyS) {
		ctrl.PanForward(-1)
	}
	if e.keyHeld(common.KeyA) {
		ctrl.PanRight(-1)
	}
	if e.keyHeld(common.KeyD) {
		ctrl.PanRight(1)
	}
	if e.keyHeld(common.KeyQ) {
		ctrl.PanUp(1)
	}
	if e.keyHeld(common.KeyE) {
		ctrl.PanUp(-1)
	}
}

func (e *engine) controller() camera.CameraController {
	s := e.Scene()
	if s == nil || s.Camera() == nil {
		return nil
	}
	return s.Camera().Controller()
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Context() *device.Context {
	return e.ctx
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Loader() loader.Loader {
	return e.loader
}

func (e *engine) Scene() scene.Scene {
	e.sceneMu.RLock()
	defer e.sceneMu.RUnlock()
	return e.scene
}

func (e *engine) SetScene(s scene.Scene) {
	if s == nil {
		return
	}
	e.sceneMu.Lock()
	defer e.sceneMu.Unlock()
	e.scene = s
}

func (e *engine) LoadModel(path string) (model.Handle, error) {
	asset, err := e.loader.Load(path)
	if err != nil {
		return model.Handle{}, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return e.AddModel(asset), nil
}

func (e *engine) AddModel(asset *model.Asset) model.Handle {
	e.handleMu.Lock()
	defer e.handleMu.Unlock()
	if h, ok := e.handles[asset]; ok {
		return h
	}
	h := model.NewHandle()
	e.handles[asset] = h
	e.renderer.QueueAsset(h, asset)
	return h
}

func (e *engine) RemoveModel(h model.Handle) {
	e.handleMu.Lock()
	defer e.handleMu.Unlock()
	for asset, held := range e.handles {
		if held == h {
			delete(e.handles, asset)
		}
	}
	e.renderer.QueueRemoval(h)
}

func (e *engine) Run() {
	e.running = true
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.window.RequestClose()
		default:
		}
	})

	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.destroy()
}

// destroy releases the renderer, then the Context (which destroys the device and surface), then
// the window. The surface must go before the native window it was created for.
func (e *engine) destroy() {
	e.renderer.Destroy()
	e.ctx.Destroy()
	if err := e.window.Close(); err != nil && !errors.Is(err, window.ErrNotInitialized) {
		log.Printf("[Engine] WARNING: failed to close window: %v", err)
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Ticks the scene, then fires the tick callback at the configured tick rate and listens for
// dynamic rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.panCamera()
			if s := e.Scene(); s != nil {
				s.Tick(dt)
			}
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Every frame goes through the renderer's full stage sequence. Recovers from panics, which is how
// fatal device errors surface, and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.renderFrame(dt)

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// renderFrame renders the current scene once and feeds skipped frames to the profiler.
func (e *engine) renderFrame(dt float32) {
	s := e.Scene()
	if s == nil || s.Camera() == nil {
		return
	}

	runner := e.renderer.Runner()
	skipped := runner.SkippedFrames()
	if err := e.renderer.RenderFrame(s, s.Camera(), dt); err != nil {
		log.Printf("[Engine] WARNING: frame failed: %v", err)
	}
	if runner.SkippedFrames() > skipped && e.profiler != nil {
		e.profiler.Skip()
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// SetKeyCallback registers the function called for every key press and release.
func (e *engine) SetKeyCallback(callback func(keyCode uint32, pressed bool)) {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()
	e.keyCallback = callback
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	newRate := frameInterval(fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameLimit(fps)
}

// frameInterval converts a rate into a ticker period. Non-positive rates use the 60Hz default.
func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = defaultTickRate
	}
	return time.Duration(float64(time.Second) / fps)
}

// frameLimit converts a frame cap into a minimum frame duration, 0 meaning uncapped.
func frameLimit(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
