package model

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*device.Context, *gputest.Device, gpu.CommandBuffer) {
	t.Helper()
	dev := gputest.NewDevice()
	ctx, err := device.New(dev)
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool(gpu.QueueGraphics, gpu.CommandPoolTransient)
	require.NoError(t, err)
	cmds, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(cmds[0], true))
	return ctx, dev, cmds[0]
}

// cubeAsset returns a one-node asset with a single primitive spanning [-1, 1] on every axis.
func cubeAsset(skinned bool) *Asset {
	prim := Primitive{
		Indices:   []uint32{0, 1, 2},
		Material:  0,
		BoundsMin: mgl32.Vec3{-1, -1, -1},
		BoundsMax: mgl32.Vec3{1, 1, 1},
	}
	verts := []Vertex{{Position: [3]float32{-1, -1, -1}}, {Position: [3]float32{1, -1, 1}}, {Position: [3]float32{1, 1, 1}}}
	if skinned {
		for _, v := range verts {
			prim.SkinnedVertices = append(prim.SkinnedVertices, SkinnedVertex{Vertex: v, Weights: [4]float32{1}})
		}
	} else {
		prim.Vertices = verts
	}
	node := NewNode("cube")
	node.Mesh = 0
	node.Translation = mgl32.Vec3{0, 2, 0}
	return &Asset{
		Name:   "cube",
		Nodes:  []Node{node},
		Roots:  []int{0},
		Meshes: []Mesh{{Name: "cube", Primitives: []Primitive{prim}}},
		Materials: []Material{{
			Name:             "checker",
			BaseColor:        [4]float32{1, 0, 0, 1},
			BaseColorTexture: &TextureData{Pixels: make([]byte, 4*4*4), Width: 4, Height: 4, SRGB: true},
		}},
	}
}

func TestVertexSizes(t *testing.T) {
	assert.Equal(t, 64, (&Vertex{}).Size())
	assert.Equal(t, 96, (&SkinnedVertex{}).Size())
	assert.Equal(t, uint32(80), InstanceDataSize)

	_, attrs := VertexLayout(true)
	assert.Len(t, attrs, 7)
	assert.Equal(t, gpu.FormatR32G32B32A32Uint, attrs[5].Format)
}

func TestNewModelUploadsBuffersAndMaterials(t *testing.T) {
	ctx, dev, cmd := newTestContext(t)
	layout, err := dev.CreateDescriptorSetLayout(nil)
	require.NoError(t, err)
	dummy := resource.NewDummyResources(ctx, cmd)

	m := NewModel(ctx, cmd, NewHandle(), cubeAsset(false), WithMaterialLayout(layout), WithFallbackTexture(dummy.White))

	require.Len(t, m.Primitives(), 1)
	prim := m.Primitives()[0]
	assert.Equal(t, uint32(3), prim.IndexCount)
	assert.False(t, prim.Skinned)
	assert.Equal(t, mgl32.Translate3D(0, 2, 0), prim.Transform)
	assert.Len(t, dev.Calls("CmdCopyBuffer"), 2, "vertex and index buffers are staged")

	mat := m.Material(0)
	require.NotNil(t, mat.Texture)
	assert.NotZero(t, mat.Set)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, mat.BaseColor)

	def := m.Material(-1)
	assert.Nil(t, def.Texture)
	assert.NotZero(t, def.Set, "default material binds the fallback texture")
	assert.InDelta(t, mgl32.Vec3{1, 1, 1}.Len(), m.BoundingRadius(), 1e-6)

	m.Destroy(ctx)
	assert.Len(t, dev.Calls("DestroyDescriptorSet"), 2)
	assert.Empty(t, dev.Violations())
}

func TestNewModelWithoutMipmaps(t *testing.T) {
	ctx, dev, cmd := newTestContext(t)

	m := NewModel(ctx, cmd, NewHandle(), cubeAsset(false), WithMipmaps(false))

	assert.Equal(t, uint32(1), m.Material(0).Texture.Image.MipLevels)
	assert.Empty(t, dev.Calls("CmdBlitImage"))
	assert.Zero(t, m.Material(0).Set, "no layout means no descriptor sets")
}

func TestTable(t *testing.T) {
	ctx, dev, cmd := newTestContext(t)
	table := NewTable(ctx)
	assert.Same(t, table, ctx.Models())

	a := NewModel(ctx, cmd, NewHandle(), cubeAsset(false))
	b := NewModel(ctx, cmd, NewHandle(), cubeAsset(true))
	require.NoError(t, table.Insert(a))
	require.NoError(t, table.Insert(b))
	assert.Error(t, table.Insert(a), "duplicate handles are rejected")
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []Handle{a.Handle(), b.Handle()}, table.Handles())
	assert.True(t, b.Skinned())

	got, ok := table.Get(b.Handle())
	require.True(t, ok)
	assert.Same(t, b, got)

	dev.ClearTrace()
	assert.True(t, table.Remove(ctx, a.Handle()))
	ops := dev.Ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, "WaitIdle", ops[0], "the device is idle before the model's buffers go")
	assert.Contains(t, ops, "DestroyBuffer")

	dev.ClearTrace()
	assert.False(t, table.Remove(ctx, a.Handle()))
	assert.Empty(t, dev.Ops(), "an unknown handle waits on nothing")
	assert.Equal(t, []Handle{b.Handle()}, table.Handles())

	ctx.MarkSubmitted()
	ctx.Destroy()
	assert.Empty(t, dev.Violations())
	for _, kind := range dev.Live() {
		assert.Equal(t, "CommandPool", kind, "only the test's command pool outlives the Context")
	}
}

// fakeSkinning hands out one set with a fixed stride per slot.
type fakeSkinning struct {
	layout gpu.DescriptorSetLayout
	set    gpu.DescriptorSet
}

func (f *fakeSkinning) Layout() gpu.DescriptorSetLayout { return f.layout }
func (f *fakeSkinning) Set() gpu.DescriptorSet          { return f.set }
func (f *fakeSkinning) Offset(slot int) uint32          { return uint32(slot) * 32768 }

func shaderFS() fstest.MapFS {
	blob := make([]byte, 32)
	binary.LittleEndian.PutUint32(blob, 0x07230203)
	fsys := fstest.MapFS{}
	for _, name := range []string{ModelVertexShader, ModelFragmentShader, ShadowVertexShader} {
		fsys[name+".spv"] = &fstest.MapFile{Data: blob}
		fsys[name+"."+shader.Key(name, skinnedDefines)+".spv"] = &fstest.MapFile{Data: blob}
	}
	return fsys
}

type rendererFixture struct {
	ctx      *device.Context
	dev      *gputest.Device
	cmd      gpu.CommandBuffer
	renderer *Renderer
	forward  *pass.ForwardPass
	shadow   *pass.ShadowPass
}

func newRendererFixture(t *testing.T) *rendererFixture {
	t.Helper()
	ctx, dev, cmd := newTestContext(t)
	cache := shader.NewCache(shaderFS())
	ctx.SetShaderCache(cache)
	table := NewTable(ctx)
	tracker := pass.NewTracker()
	forward := pass.NewForwardPass(ctx, tracker, pass.ForwardConfig{
		Extent:      gpu.Extent2D{Width: 640, Height: 480},
		ColorFormat: gpu.FormatB8G8R8A8Unorm,
		DepthFormat: gpu.FormatD32Sfloat,
	})
	shadow := pass.NewShadowPass(ctx, tracker, 512)
	ctx.InsertResource(device.ResourceForwardPass, forward)
	ctx.InsertResource(device.ResourceShadowPass, shadow)
	dummy := resource.NewDummyResources(ctx, cmd)
	ctx.InsertResource(device.ResourceDummy, dummy)

	perFrame, err := dev.CreateDescriptorSetLayout(nil)
	require.NoError(t, err)
	jointLayout, err := dev.CreateDescriptorSetLayout(nil)
	require.NoError(t, err)

	r, err := NewRenderer(ctx, table, RendererConfig{
		Shaders:        cache,
		PerFrameLayout: perFrame,
		PerFrameSet:    func() gpu.DescriptorSet { return 7 },
		Forward:        forward,
		Shadow:         shadow,
		Skinning:       &fakeSkinning{layout: jointLayout, set: gpu.DescriptorSet(9)},
		Fallback:       dummy.White,
	})
	require.NoError(t, err)
	ctx.InsertResource(device.ResourceModelPipelines, r)
	return &rendererFixture{ctx: ctx, dev: dev, cmd: cmd, renderer: r, forward: forward, shadow: shadow}
}

func TestRendererBuildsEveryVariant(t *testing.T) {
	f := newRendererFixture(t)

	pipelines := f.dev.Calls("CreatePipeline")
	require.Len(t, pipelines, 4)
	fwd := pipelines[0].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, f.forward.RenderPass(), fwd.RenderPass)
	assert.Len(t, fwd.Stages, 2)
	shd := pipelines[1].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, f.shadow.RenderPass(), shd.RenderPass)
	assert.Len(t, shd.Stages, 1)
	assert.Zero(t, shd.ColorAttachments)
	assert.True(t, shd.DepthBias)
	skinned := pipelines[2].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, uint32(96), skinned.Bindings[0].Stride)
}

func TestDrawForwardCullsOutsideFrustum(t *testing.T) {
	f := newRendererFixture(t)
	m, err := f.renderer.Upload(f.ctx, f.cmd, NewHandle(), cubeAsset(false))
	require.NoError(t, err)

	proj := mgl32.Perspective(mgl32.DegToRad(60), 640.0/480.0, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	instances := []Instance{
		{Handle: m.Handle(), World: mgl32.Ident4(), SkinSlot: -1},
		{Handle: m.Handle(), World: mgl32.Translate3D(1000, 0, 0), SkinSlot: -1},
		{Handle: NewHandle(), World: mgl32.Ident4(), SkinSlot: -1},
	}

	f.dev.ClearTrace()
	require.NoError(t, f.forward.Begin(f.dev, f.cmd))
	f.renderer.DrawForward(f.dev, f.cmd, instances, proj.Mul4(view))
	require.NoError(t, f.forward.End(f.dev, f.cmd))

	drawn, culled := f.renderer.Stats()
	assert.Equal(t, 1, drawn)
	assert.Equal(t, 1, culled)
	draws := f.dev.Calls("CmdDrawIndexed")
	require.Len(t, draws, 1)
	assert.Equal(t, [2]uint32{3, 1}, draws[0].Args)
	assert.Len(t, f.dev.Calls("CmdBindPipeline"), 1)
	assert.Empty(t, f.dev.Violations())
}

func TestSkinnedDrawsBindJointOffset(t *testing.T) {
	f := newRendererFixture(t)
	m, err := f.renderer.Upload(f.ctx, f.cmd, NewHandle(), cubeAsset(true))
	require.NoError(t, err)

	instances := []Instance{
		{Handle: m.Handle(), World: mgl32.Ident4(), SkinSlot: 2},
		{Handle: m.Handle(), World: mgl32.Ident4(), SkinSlot: -1},
	}

	f.dev.ClearTrace()
	require.NoError(t, f.shadow.Begin(f.dev, f.cmd))
	f.renderer.DrawShadow(f.dev, f.cmd, instances)
	require.NoError(t, f.shadow.End(f.dev, f.cmd))

	assert.Len(t, f.dev.Calls("CmdDrawIndexed"), 1, "a skinned primitive without a slot is skipped")
	var offsets [][]uint32
	for _, c := range f.dev.Calls("CmdBindDescriptorSets") {
		if o := c.Args.(gputest.BindSets).Offsets; len(o) > 0 {
			offsets = append(offsets, o)
		}
	}
	assert.Equal(t, [][]uint32{{2 * 32768}}, offsets)
}

func TestUploadRejectsDuplicateHandle(t *testing.T) {
	f := newRendererFixture(t)
	h := NewHandle()
	_, err := f.renderer.Upload(f.ctx, f.cmd, h, cubeAsset(false))
	require.NoError(t, err)
	_, err = f.renderer.Upload(f.ctx, f.cmd, h, cubeAsset(false))
	assert.Error(t, err)
}

func TestAssetQueries(t *testing.T) {
	a := cubeAsset(true)
	a.Skins = []Skin{{Name: "rig", Joints: []Joint{{Node: 0, InverseBind: mgl32.Ident4()}}}}
	a.Animations = []Animation{{Name: "idle"}, {Name: "walk"}}

	assert.True(t, a.HasSkin())
	assert.Equal(t, 1, a.AnimationIndex("walk"))
	assert.Equal(t, -1, a.AnimationIndex("run"))
	assert.Equal(t, []string{"idle", "walk"}, a.AnimationNames())

	lo, hi := ComputeBounds([][3]float32{{1, -2, 3}, {-1, 4, 0}})
	assert.Equal(t, mgl32.Vec3{-1, -2, 0}, lo)
	assert.Equal(t, mgl32.Vec3{1, 4, 3}, hi)
}
