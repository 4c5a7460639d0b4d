package renderer

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/light"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/plugin"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/grass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultShaderDir is the directory SPIR-V blobs are loaded from when no shader source is given.
const DefaultShaderDir = "shaders"

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	cfg       RenderConfig
	shaderFS  fs.FS
	workers   int
	skinSlots int

	grassEnabled bool
	grassOptions []grass.GrassBuilderOption
	overlay      plugin.Overlay
	effects      plugin.Effects

	ctx       *device.Context
	shaders   shader.Cache
	swapchain *Swapchain
	commands  *CommandList
	tracker   *pass.Tracker
	runner    *FrameRunner
	perFrame  *PerFrameUniform
	dummy     *resource.DummyResources
	shadow    *pass.ShadowPass
	forward   *pass.ForwardPass
	models    *model.Table
	drawer    *model.Renderer
	animator  *animator.Animator
	grass     *grass.Grass

	pending   []pendingAsset
	removals  []model.Handle
	totalTime float32
	destroyed bool
}

type pendingAsset struct {
	handle model.Handle
	asset  *model.Asset
}

// sunSource is implemented by worlds that carry a directional light for the shadow pass.
type sunSource interface {
	Sun() light.Light
	ShadowSettings() light.ShadowSettings
}

// Renderer orchestrates one frame: pending asset uploads, animation, grass compute, the shadow
// and forward passes, plugins and presentation.
//
// Every method except QueueAsset and QueueRemoval must be called from the render goroutine.
type Renderer interface {
	// QueueAsset schedules asset for upload at the start of the next frame. It is safe to call
	// from any goroutine.
	//
	// Parameters:
	//   - handle: the handle instances refer to the model by
	//   - asset: the parsed asset bundle
	QueueAsset(handle model.Handle, asset *model.Asset)

	// QueueRemoval schedules the model stored under handle for destruction at the start of the
	// next frame, after pending uploads. It is safe to call from any goroutine.
	//
	// Parameters:
	//   - handle: the model to remove
	QueueRemoval(handle model.Handle)

	// RenderFrame runs the stages of one frame in order: begin-upload, upload, end-upload,
	// prepare-draw, draw and end-draw. A frame skipped because the swapchain is out of date
	// returns nil.
	//
	// Parameters:
	//   - world: the entity query surface
	//   - cam: the camera the frame is rendered from
	//   - dt: elapsed seconds since the previous frame
	//
	// Returns:
	//   - error: recoverable API-shape errors such as unbalanced passes
	RenderFrame(world scene.World, cam camera.Camera, dt float32) error

	// Config returns the settings the renderer was created with, after device clamping.
	//
	// Returns:
	//   - RenderConfig: the effective settings
	Config() RenderConfig

	// Extent returns the swapchain size.
	//
	// Returns:
	//   - gpu.Extent2D: the swapchain size
	Extent() gpu.Extent2D

	// Runner returns the frame runner.
	//
	// Returns:
	//   - *FrameRunner: the frame runner
	Runner() *FrameRunner

	// Models returns the table of uploaded models.
	//
	// Returns:
	//   - *model.Table: the model table
	Models() *model.Table

	// Animator returns the skinned mesh animator.
	//
	// Returns:
	//   - *animator.Animator: the animator
	Animator() *animator.Animator

	// Grass returns the grass field, or nil when grass is disabled.
	//
	// Returns:
	//   - *grass.Grass: the grass field
	Grass() *grass.Grass

	// Destroy waits for the device, then releases the plugins, the animator workers, the frame
	// command buffers and the swapchain. Resources installed on the Context are released by the
	// Context's own Destroy.
	Destroy()
}

var _ Renderer = &renderer{}

// NewRenderer creates the swapchain ring, command list, passes, pipelines and the startup upload
// (placeholder textures and grass buffers). Creation failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - extent: the window surface size
//   - options: functional options to configure the renderer
//
// Returns:
//   - Renderer: the new renderer
func NewRenderer(ctx *device.Context, extent gpu.Extent2D, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:        &sync.Mutex{},
		cfg:       DefaultRenderConfig(),
		workers:   runtime.NumCPU(),
		skinSlots: animator.DefaultSkinSlots,
		ctx:       ctx,
	}
	for _, option := range options {
		option(r)
	}
	if r.shaderFS == nil {
		r.shaderFS = os.DirFS(DefaultShaderDir)
	}
	r.shaders = shader.NewCache(r.shaderFS)
	ctx.SetShaderCache(r.shaders)

	r.swapchain = NewSwapchain(ctx, extent, r.cfg.PresentMode.Mode())
	if f := r.swapchain.Format(); f != 0 && f != r.cfg.ColorFormat {
		log.Printf("[Renderer] color format %d replaced by swapchain format %d", r.cfg.ColorFormat, f)
		r.cfg.ColorFormat = f
	}
	samples := r.cfg.MSAA.Samples(ctx.Info().MaxSamples)
	if gpu.SampleCount(r.cfg.MSAA) > samples {
		log.Printf("[Renderer] WARNING: %dx MSAA not supported, using %dx", r.cfg.MSAA, samples)
		r.cfg.MSAA = MSAASampleCount(samples)
	}

	r.commands = NewCommandList(ctx, r.swapchain.ImageCount())
	r.tracker = pass.NewTracker()
	r.runner = NewFrameRunner(ctx, r.swapchain, r.commands, r.tracker)
	r.perFrame = NewPerFrameUniform(ctx, r.swapchain.ImageCount())
	r.models = model.NewTable(ctx)

	if r.cfg.ApplyShadow {
		r.shadow = pass.NewShadowPass(ctx, r.tracker, r.cfg.ShadowMapDim)
		ctx.InsertResource(device.ResourceShadowPass, r.shadow)
	}
	r.forward = pass.NewForwardPass(ctx, r.tracker, pass.ForwardConfig{
		Extent:      r.swapchain.Extent(),
		ColorFormat: r.cfg.ColorFormat,
		DepthFormat: r.cfg.DepthFormat,
		Samples:     samples,
		ClearColor:  r.cfg.ClearColor,
	})
	ctx.InsertResource(device.ResourceForwardPass, r.forward)
	r.animator = animator.NewAnimator(ctx, animator.WithWorkers(r.workers), animator.WithSkinSlots(r.skinSlots))

	r.startupUpload()
	r.initPlugins()

	log.Printf("[Renderer] %dx%d, %d frames in flight, %dx MSAA, shadows %t, grass %t",
		r.swapchain.Extent().Width, r.swapchain.Extent().Height, r.swapchain.ImageCount(),
		samples, r.shadow != nil, r.grass != nil)
	return r
}

// startupUpload records the placeholder textures and grass buffers into one upload submission and
// builds the pipelines that depend on them.
func (r *renderer) startupUpload() {
	cmd, err := r.runner.BeginUpload()
	if err != nil {
		panic(fmt.Sprintf("renderer: startup upload: %v", err))
	}
	r.dummy = resource.NewDummyResources(r.ctx, cmd)
	r.ctx.InsertResource(device.ResourceDummy, r.dummy)

	r.drawer, err = model.NewRenderer(r.ctx, r.models, model.RendererConfig{
		Shaders:        r.shaders,
		PerFrameLayout: r.perFrame.Layout,
		PerFrameSet:    r.perFrame.Set,
		Forward:        r.forward,
		Shadow:         r.shadow,
		Skinning:       r.animator.Joints(),
		Fallback:       r.dummy.White,
	})
	if err != nil {
		panic(fmt.Sprintf("renderer: failed to create model renderer: %v", err))
	}
	r.ctx.InsertResource(device.ResourceModelPipelines, r.drawer)

	if r.grassEnabled {
		r.grass, err = grass.New(r.ctx, cmd, grass.Config{
			Shaders:        r.shaders,
			PerFrameLayout: r.perFrame.Layout,
			PerFrameSet:    r.perFrame.Set,
			Forward:        r.forward,
			Shadow:         r.shadow,
			Fallback:       r.dummy.White,
		}, r.grassOptions...)
		if err != nil {
			panic(fmt.Sprintf("renderer: failed to create grass: %v", err))
		}
	}

	if err := r.runner.EndUpload(); err != nil {
		panic(fmt.Sprintf("renderer: startup upload: %v", err))
	}
}

func (r *renderer) initPlugins() {
	dev := r.ctx.Device()
	if r.effects != nil {
		handoff := plugin.NewDeviceHandoff(dev, r.commands.Pool(), r.forward.Output(), r.forward.Depth)
		if err := r.effects.Init(handoff); err != nil {
			log.Printf("[Renderer] WARNING: effects plugin disabled: %v", err)
			r.effects = nil
		}
	}
	if r.overlay != nil {
		if err := r.overlay.Init(dev, r.cfg.ColorFormat, r.swapchain.Extent()); err != nil {
			log.Printf("[Renderer] WARNING: overlay disabled: %v", err)
			r.overlay = nil
		}
	}
}

func (r *renderer) QueueAsset(handle model.Handle, asset *model.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingAsset{handle: handle, asset: asset})
}

func (r *renderer) QueueRemoval(handle model.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removals = append(r.removals, handle)
}

func (r *renderer) RenderFrame(world scene.World, cam camera.Camera, dt float32) error {
	if r.destroyed {
		return fmt.Errorf("%w: render after destroy", ErrIllegalTransition)
	}
	if err := r.uploadPending(); err != nil {
		return err
	}
	r.removePending()
	r.animator.Update(r.ctx, world, r.models, dt)

	cmd, ok, err := r.runner.BeginDraw()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	r.totalTime += dt
	r.perFrame.Upload(r.ctx, r.runner.Slot(), r.frameData(world, cam, dt))

	dev := r.ctx.Device()
	var errs []error
	if r.grass != nil {
		sem := r.grass.Compute(r.ctx)
		errs = append(errs, r.runner.WaitSemaphore(sem, grass.ConsumerStages))
		errs = append(errs, r.runner.SignalSemaphore(r.grass.Drawn()))
		r.grass.RecordBarrier(dev, cmd)
	}

	instances := r.instances(world)
	if r.shadow != nil {
		errs = append(errs, r.shadow.Begin(dev, cmd))
		r.drawer.DrawShadow(dev, cmd, instances)
		errs = append(errs, r.shadow.End(dev, cmd))
	}

	errs = append(errs, r.forward.Begin(dev, cmd))
	r.drawer.DrawForward(dev, cmd, instances, cam.ViewProjectionMatrix())
	if r.grass != nil {
		r.grass.Draw(dev, cmd)
	}
	errs = append(errs, r.forward.End(dev, cmd))

	if r.effects != nil && r.cfg.ApplyPostEffect {
		r.effects.Render(dev.NativeCommandBuffer(cmd), cam.ProjectionMatrix(), cam.ViewMatrix())
	}
	if r.overlay != nil {
		r.overlay.Draw(cmd)
	}

	errs = append(errs, r.runner.EndDraw(cmd, r.forward.Output()))
	return errors.Join(errs...)
}

// uploadPending records every queued asset into one upload submission. Nothing is submitted when
// the queue is empty.
func (r *renderer) uploadPending() error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	cmd, err := r.runner.BeginUpload()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if _, err := r.drawer.Upload(r.ctx, cmd, p.handle, p.asset); err != nil {
			log.Printf("[Renderer] WARNING: skipping upload of %s: %v", p.asset.Name, err)
		}
	}
	return r.runner.EndUpload()
}

// removePending destroys every model queued for removal. Table.Remove waits for the device, so
// the idle wait happens only on frames that remove something.
func (r *renderer) removePending() {
	r.mu.Lock()
	removals := r.removals
	r.removals = nil
	r.mu.Unlock()
	for _, h := range removals {
		if !r.models.Remove(r.ctx, h) {
			log.Printf("[Renderer] WARNING: no model to remove for handle %v", h)
		}
	}
}

// frameData fills the per-frame uniform from the camera and the world's sun.
func (r *renderer) frameData(world scene.World, cam camera.Camera, dt float32) PerFrameData {
	pos := cam.Position()
	fwd := cam.Forward()
	data := PerFrameData{
		View:        cam.ViewMatrix(),
		Proj:        cam.ProjectionMatrix(),
		LightMatrix: mgl32.Ident4(),
		LightDir:    mgl32.Vec4{0, -1, 0, 0},
		CameraPos:   pos.Vec4(1),
		CameraDir:   fwd.Vec4(0),
		DeltaTime:   dt,
		TotalTime:   r.totalTime,
	}

	settings := light.DefaultShadowSettings()
	dir := mgl32.Vec3{0, -1, 0}
	if src, ok := world.(sunSource); ok {
		settings = src.ShadowSettings()
		if sun := src.Sun(); sun != nil {
			dir = sun.Direction()
		}
	}
	data.LightDir = dir.Vec4(0)
	if r.shadow != nil {
		data.LightMatrix = light.DirectionalMatrix(dir, pos, settings)
	}
	return data
}

// instances resolves the world's renderables into model instances with their skin slots.
func (r *renderer) instances(world scene.World) []model.Instance {
	renderables := world.Renderables()
	out := make([]model.Instance, 0, len(renderables))
	for _, e := range renderables {
		out = append(out, model.Instance{
			Handle:   e.Asset,
			World:    e.World,
			SkinSlot: r.animator.SkinSlot(e.ID),
		})
	}
	return out
}

func (r *renderer) Config() RenderConfig {
	return r.cfg
}

func (r *renderer) Extent() gpu.Extent2D {
	return r.swapchain.Extent()
}

func (r *renderer) Runner() *FrameRunner {
	return r.runner
}

func (r *renderer) Models() *model.Table {
	return r.models
}

func (r *renderer) Animator() *animator.Animator {
	return r.animator
}

func (r *renderer) Grass() *grass.Grass {
	return r.grass
}

func (r *renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.ctx.WaitIdle()

	if r.effects != nil {
		r.effects.Destroy()
	}
	if r.overlay != nil {
		r.overlay.Destroy()
	}
	r.animator.Close()
	r.commands.Destroy(r.ctx)
	r.swapchain.Destroy(r.ctx)
	log.Printf("[Renderer] destroyed after %d frames (%d skipped)", r.runner.PresentedFrames(), r.runner.SkippedFrames())
}
