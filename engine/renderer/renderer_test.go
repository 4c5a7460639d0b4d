package renderer

import (
	"encoding/binary"
	"math"
	"testing"
	"testing/fstest"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/game_object"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/plugin"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/grass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShaders() fstest.MapFS {
	blob := make([]byte, 32)
	binary.LittleEndian.PutUint32(blob, 0x07230203)
	skinned := map[string]string{"SKINNED": "1"}
	fsys := fstest.MapFS{}
	for _, name := range []string{model.ModelVertexShader, model.ModelFragmentShader, model.ShadowVertexShader} {
		fsys[name+".spv"] = &fstest.MapFile{Data: blob}
		fsys[name+"."+shader.Key(name, skinned)+".spv"] = &fstest.MapFile{Data: blob}
	}
	for _, name := range []string{grass.GenerateShader, grass.UpdateShader, grass.VertexShader,
		grass.TessControlShader, grass.TessEvaluationShader, grass.FragmentShader} {
		fsys[name+".spv"] = &fstest.MapFile{Data: blob}
	}
	return fsys
}

// triangleAsset is a one-primitive asset centered at the origin.
func triangleAsset() *model.Asset {
	node := model.NewNode("triangle")
	node.Mesh = 0
	return &model.Asset{
		Name:  "triangle",
		Nodes: []model.Node{node},
		Roots: []int{0},
		Meshes: []model.Mesh{{Name: "triangle", Primitives: []model.Primitive{{
			Vertices: []model.Vertex{
				{Position: [3]float32{-1, 0, 0}},
				{Position: [3]float32{1, 0, 0}},
				{Position: [3]float32{0, 1, 0}},
			},
			Indices:   []uint32{0, 1, 2},
			BoundsMin: mgl32.Vec3{-1, 0, 0},
			BoundsMax: mgl32.Vec3{1, 1, 0},
		}}}},
		Materials: []model.Material{{Name: "plain", BaseColor: [4]float32{1, 1, 1, 1}}},
	}
}

// recordingOverlay draws one triangle so its position in the frame trace is visible.
type recordingOverlay struct {
	dev       gpu.Device
	format    gpu.Format
	extent    gpu.Extent2D
	draws     int
	destroyed bool
}

func (o *recordingOverlay) Init(dev gpu.Device, format gpu.Format, extent gpu.Extent2D) error {
	o.dev, o.format, o.extent = dev, format, extent
	return nil
}

func (o *recordingOverlay) Draw(cmd gpu.CommandBuffer) {
	o.draws++
	o.dev.CmdDraw(cmd, 3, 1, 0, 0)
}

func (o *recordingOverlay) Destroy() { o.destroyed = true }

type recordingEffects struct {
	handoff plugin.DeviceHandoff
	cmds    []uintptr
}

func (e *recordingEffects) Init(h plugin.DeviceHandoff) error {
	e.handoff = h
	return nil
}

func (e *recordingEffects) Render(cmd uintptr, proj, view mgl32.Mat4) {
	e.cmds = append(e.cmds, cmd)
}

func (e *recordingEffects) Destroy() {}

type rendererFixture struct {
	ctx     *device.Context
	dev     *gputest.Device
	r       Renderer
	world   scene.Scene
	cam     camera.Camera
	overlay *recordingOverlay
	effects *recordingEffects
}

func newRendererFixture(t *testing.T, options ...RendererBuilderOption) *rendererFixture {
	t.Helper()
	dev := gputest.NewDevice(gputest.WithQueueFamilies(0, 1, 0))
	ctx, err := device.New(dev, device.WithStorageDescriptors(16), device.WithDynamicUniformDescriptors(4))
	require.NoError(t, err)

	f := &rendererFixture{
		ctx:     ctx,
		dev:     dev,
		cam:     camera.NewCamera(camera.WithAspect(4.0 / 3.0)),
		overlay: &recordingOverlay{},
		effects: &recordingEffects{},
	}
	f.world = scene.NewScene("test", f.cam)
	options = append([]RendererBuilderOption{
		WithShaders(testShaders()),
		WithAnimatorWorkers(1),
		WithOverlay(f.overlay),
		WithEffects(f.effects),
	}, options...)
	f.r = NewRenderer(ctx, testExtent, options...)
	return f
}

func (f *rendererFixture) render(t *testing.T) {
	t.Helper()
	require.NoError(t, f.r.RenderFrame(f.world, f.cam, 1.0/60))
}

func indexOf(calls []gputest.Call, op string, from int) int {
	for i := from; i < len(calls); i++ {
		if calls[i].Op == op {
			return i
		}
	}
	return -1
}

func TestNewRendererInstallsSingletons(t *testing.T) {
	f := newRendererFixture(t, WithGrass(grass.WithGridSize(4, 4), grass.WithSlotSize(1, 1)))

	for _, kind := range []device.ResourceKind{
		device.ResourceDummy, device.ResourceShadowPass, device.ResourceForwardPass,
		device.ResourceModelPipelines, device.ResourceJointBuffer, device.ResourceGrass,
	} {
		_, ok := f.ctx.Resource(kind)
		assert.True(t, ok, kind.String())
	}
	assert.NotNil(t, f.r.Grass())
	assert.Equal(t, uint32(16), f.r.Grass().Grid().GrassCount)
	assert.Zero(t, f.ctx.PendingStagingBuffers(), "startup upload flushed its staging buffers")
	assert.Equal(t, StateIdle, f.r.Runner().State())

	assert.Equal(t, gpu.FormatB8G8R8A8Unorm, f.overlay.format)
	assert.Equal(t, testExtent, f.overlay.extent)
	assert.NotZero(t, f.effects.handoff.Color.Image)
	assert.NotZero(t, f.effects.handoff.CommandPool)
	assert.Equal(t, uint32(1), f.effects.handoff.ComputeFamily)
}

func TestMSAAIsClampedToDevice(t *testing.T) {
	dev := gputest.NewDevice()
	ctx, err := device.New(dev, device.WithDynamicUniformDescriptors(4))
	require.NoError(t, err)
	r := NewRenderer(ctx, testExtent, WithShaders(testShaders()), WithMSAA(MSAASampleCount(16)), WithShadows(false))

	assert.Equal(t, MSAA8x, r.Config().MSAA)
	_, ok := ctx.Resource(device.ResourceShadowPass)
	assert.False(t, ok)
	r.Destroy()
	ctx.Destroy()
}

func TestRenderFrameOrder(t *testing.T) {
	f := newRendererFixture(t, WithGrass(grass.WithGridSize(4, 4), grass.WithSlotSize(1, 1)))
	h := model.NewHandle()
	f.r.QueueAsset(h, triangleAsset())
	f.world.Add(game_object.NewGameObject(game_object.WithAsset(h, false), game_object.WithPosition(0, 0, -5)))
	f.dev.ClearTrace()

	f.render(t)
	require.Empty(t, f.dev.Violations())
	_, loaded := f.r.Models().Get(h)
	require.True(t, loaded)

	trace := f.dev.Trace()
	uploadSubmit := indexOf(trace, "QueueSubmit", 0)
	acquire := indexOf(trace, "AcquireNextImage", 0)
	require.NotEqual(t, -1, uploadSubmit)
	assert.Less(t, uploadSubmit, acquire, "uploads are submitted before the frame begins")
	assert.Less(t, indexOf(trace, "WaitIdle", uploadSubmit), acquire)

	frame := f.r.Runner().commands.Frame(0)
	recorded := f.dev.CommandsFor(frame)
	ownership := -1
	for i, c := range recorded {
		if c.Op != "CmdPipelineBarrier" {
			continue
		}
		for _, b := range c.Args.(gputest.Barrier).Buffers {
			if b.TransfersOwnership() {
				ownership = i
			}
		}
	}
	shadowBegin := indexOf(recorded, "CmdBeginRenderPass", 0)
	shadowDraw := indexOf(recorded, "CmdDrawIndexed", shadowBegin)
	shadowEnd := indexOf(recorded, "CmdEndRenderPass", shadowBegin)
	forwardBegin := indexOf(recorded, "CmdBeginRenderPass", shadowEnd)
	forwardDraw := indexOf(recorded, "CmdDrawIndexed", forwardBegin)
	grassDraw := indexOf(recorded, "CmdDrawIndirect", forwardBegin)
	forwardEnd := indexOf(recorded, "CmdEndRenderPass", forwardBegin)
	overlay := indexOf(recorded, "CmdDraw", forwardEnd)
	copyImage := indexOf(recorded, "CmdCopyImage", 0)

	require.NotEqual(t, -1, ownership)
	assert.Less(t, ownership, shadowBegin, "grass barrier precedes the shadow pass")
	assert.Less(t, shadowBegin, shadowDraw)
	assert.Less(t, shadowDraw, shadowEnd)
	assert.Less(t, shadowEnd, forwardBegin)
	assert.Less(t, forwardBegin, forwardDraw)
	assert.Less(t, forwardDraw, grassDraw, "models before grass")
	assert.Less(t, grassDraw, forwardEnd)
	assert.Less(t, forwardEnd, overlay)
	assert.Less(t, overlay, copyImage)

	assert.Equal(t, []uintptr{uintptr(frame)}, f.effects.cmds)
	assert.Equal(t, 1, f.overlay.draws)

	var frameSubmit gputest.Submit
	for _, c := range f.dev.Calls("QueueSubmit") {
		s := c.Args.(gputest.Submit)
		if s.Queue == gpu.QueueGraphics && s.Fence != 0 {
			frameSubmit = s
		}
	}
	require.Len(t, frameSubmit.Info.Wait, 2)
	assert.Equal(t, grass.ConsumerStages, frameSubmit.Info.Wait[1].Stage)
}

// queueOwnership collects the ownership-transfer buffer barriers recorded into every command
// buffer submitted to queue, keyed by buffer and family pair.
func queueOwnership(dev *gputest.Device, queue gpu.QueueKind) map[gpu.BufferBarrier]int {
	seen := map[gpu.CommandBuffer]bool{}
	out := map[gpu.BufferBarrier]int{}
	for _, c := range dev.Calls("QueueSubmit") {
		s := c.Args.(gputest.Submit)
		if s.Queue != queue {
			continue
		}
		for _, cmd := range s.Info.Commands {
			if seen[cmd] {
				continue
			}
			seen[cmd] = true
			for _, rc := range dev.CommandsFor(cmd) {
				if rc.Op != "CmdPipelineBarrier" {
					continue
				}
				for _, b := range rc.Args.(gputest.Barrier).Buffers {
					if b.TransfersOwnership() {
						key := gpu.BufferBarrier{Buffer: b.Buffer, SrcQueueFamily: b.SrcQueueFamily, DstQueueFamily: b.DstQueueFamily}
						out[key]++
					}
				}
			}
		}
	}
	return out
}

func TestGrassUpdateWaitsOnPreviousFrame(t *testing.T) {
	f := newRendererFixture(t, WithGrass(grass.WithGridSize(4, 4), grass.WithSlotSize(1, 1)))
	f.dev.ClearTrace()

	f.render(t)
	f.render(t)
	require.Empty(t, f.dev.Violations())

	var graphics, updates []gputest.Submit
	for _, c := range f.dev.Calls("QueueSubmit") {
		s := c.Args.(gputest.Submit)
		switch {
		case s.Queue == gpu.QueueGraphics && s.Fence != 0:
			graphics = append(graphics, s)
		case s.Queue == gpu.QueueCompute && s.Fence != 0:
			updates = append(updates, s)
		}
	}
	require.Len(t, graphics, 2)
	require.Len(t, updates, 2)

	require.Len(t, graphics[0].Info.Signal, 2, "render-finished and the grass draw semaphore")
	drawn := graphics[0].Info.Signal[1]
	require.Len(t, updates[1].Info.Wait, 1)
	assert.Equal(t, drawn, updates[1].Info.Wait[0].Semaphore, "the second update waits on the first frame")
	assert.NotZero(t, updates[1].Info.Wait[0].Stage&gpu.StageTransfer)
	for _, w := range updates[0].Info.Wait {
		assert.NotEqual(t, drawn, w.Semaphore)
	}

	trace := f.dev.Trace()
	firstFrame, secondUpdate := -1, -1
	for i, c := range trace {
		if c.Op != "QueueSubmit" {
			continue
		}
		s := c.Args.(gputest.Submit)
		if s.Queue == gpu.QueueGraphics && s.Fence != 0 && firstFrame == -1 {
			firstFrame = i
		}
		if s.Queue == gpu.QueueCompute && s.Fence != 0 {
			secondUpdate = i
		}
	}
	assert.Less(t, firstFrame, secondUpdate)

	released := queueOwnership(f.dev, gpu.QueueCompute)
	acquired := queueOwnership(f.dev, gpu.QueueGraphics)
	require.Len(t, released, 2)
	assert.Equal(t, released, acquired, "every release on the compute queue has a matching acquire")
	for key := range released {
		assert.Equal(t, uint32(1), key.SrcQueueFamily)
		assert.Equal(t, uint32(0), key.DstQueueFamily)
	}
}

func TestRenderFrameWithoutUploadsSkipsUploadSubmit(t *testing.T) {
	f := newRendererFixture(t)
	f.render(t)
	f.dev.ClearTrace()

	f.render(t)
	submits := f.dev.Calls("QueueSubmit")
	require.Len(t, submits, 1)
	assert.NotZero(t, submits[0].Args.(gputest.Submit).Fence)
	assert.Empty(t, f.dev.Calls("WaitIdle"))
}

func TestQueuedRemovalWaitsForDevice(t *testing.T) {
	f := newRendererFixture(t)
	h := model.NewHandle()
	f.r.QueueAsset(h, triangleAsset())
	f.world.Add(game_object.NewGameObject(game_object.WithAsset(h, false), game_object.WithPosition(0, 0, -5)))
	f.render(t)
	require.Equal(t, 1, f.r.Models().Len())

	f.r.QueueRemoval(h)
	assert.Equal(t, 1, f.r.Models().Len(), "removal waits for the next frame")
	f.dev.ClearTrace()
	f.render(t)

	assert.Zero(t, f.r.Models().Len())
	trace := f.dev.Trace()
	idle := indexOf(trace, "WaitIdle", 0)
	destroy := indexOf(trace, "DestroyBuffer", 0)
	acquire := indexOf(trace, "AcquireNextImage", 0)
	require.NotEqual(t, -1, idle)
	require.NotEqual(t, -1, destroy)
	assert.Less(t, idle, destroy)
	assert.Less(t, destroy, acquire, "removals happen between frames")
	assert.Empty(t, f.dev.Calls("CmdDrawIndexed"), "instances of a removed model are skipped")
	assert.Empty(t, f.dev.Violations())

	f.r.QueueRemoval(h)
	f.dev.ClearTrace()
	f.render(t)
	assert.Empty(t, f.dev.Calls("WaitIdle"), "an unknown handle does not stall the frame")
}

func TestOutOfDateFrameIsSkipped(t *testing.T) {
	f := newRendererFixture(t)
	f.dev.FailNextAcquire(gpu.ErrOutOfDate)
	f.dev.ClearTrace()

	f.render(t)
	assert.Empty(t, f.dev.Calls("QueueSubmit"))
	assert.Zero(t, f.overlay.draws)
	assert.Equal(t, uint64(1), f.r.Runner().SkippedFrames())

	f.render(t)
	assert.Equal(t, uint64(1), f.r.Runner().PresentedFrames())
}

func TestPerFrameDataFollowsCamera(t *testing.T) {
	f := newRendererFixture(t)
	f.render(t)
	f.render(t)

	data := f.ctx.PerFrame().(*PerFrameUniform).Data()
	assert.Equal(t, f.cam.ViewMatrix(), data.View)
	assert.Equal(t, f.cam.ProjectionMatrix(), data.Proj)
	assert.Equal(t, f.cam.Position().Vec4(1), data.CameraPos)
	assert.InDelta(t, 2.0/60, data.TotalTime, 1e-6)
	assert.NotEqual(t, mgl32.Ident4(), data.LightMatrix)
}

func TestPerFrameDataPerRingSlot(t *testing.T) {
	f := newRendererFixture(t, WithGrass(grass.WithGridSize(4, 4), grass.WithSlotSize(1, 1)))
	u := f.ctx.PerFrame().(*PerFrameUniform)
	require.Len(t, u.Sets, 3)
	assert.NotEqual(t, u.Sets[0], u.Sets[1])
	assert.NotEqual(t, u.Sets[1], u.Sets[2])
	assert.Equal(t, uint64(256), u.Stride())
	f.dev.ClearTrace()

	f.render(t)
	f.render(t)

	mem := f.dev.Memory(u.Buffer.Memory)
	totalTime := func(slot int) float32 {
		at := uint64(slot)*u.Stride() + uint64(unsafe.Offsetof(PerFrameData{}.TotalTime))
		return math.Float32frombits(binary.LittleEndian.Uint32(mem[at:]))
	}
	assert.InDelta(t, 1.0/60, totalTime(0), 1e-6, "the first frame keeps its own copy")
	assert.InDelta(t, 2.0/60, totalTime(1), 1e-6)
	assert.Zero(t, totalTime(2))

	for slot := range 2 {
		var bound []gpu.DescriptorSet
		for _, c := range f.dev.CommandsFor(f.r.Runner().commands.Frame(slot)) {
			if c.Op == "CmdBindDescriptorSets" {
				if b := c.Args.(gputest.BindSets); b.First == 0 && len(b.Sets) > 0 {
					bound = append(bound, b.Sets[0])
				}
			}
		}
		require.NotEmpty(t, bound, "slot %d", slot)
		for _, set := range bound {
			assert.Equal(t, u.Sets[slot], set, "slot %d binds its own per-frame set", slot)
		}
	}
}

func TestDestroyReleasesFrameObjects(t *testing.T) {
	f := newRendererFixture(t, WithGrass(grass.WithGridSize(2, 2), grass.WithSlotSize(1, 1)))
	f.render(t)

	f.r.Destroy()
	f.r.Destroy()
	assert.True(t, f.overlay.destroyed)
	assert.ErrorIs(t, f.r.RenderFrame(f.world, f.cam, 0), ErrIllegalTransition)

	f.ctx.Destroy()
	assert.Empty(t, f.dev.Violations())
	for h, kind := range f.dev.Live() {
		assert.NotContains(t, []string{"Fence", "Semaphore", "Swapchain", "CommandPool", "Pipeline", "Buffer"}, kind, "handle %d", h)
	}
}
