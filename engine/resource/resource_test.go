package resource

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, options ...gputest.DeviceOption) (*device.Context, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice(options...)
	ctx, err := device.New(dev)
	require.NoError(t, err)
	return ctx, dev
}

func beginUpload(t *testing.T, dev *gputest.Device) gpu.CommandBuffer {
	t.Helper()
	pool, err := dev.CreateCommandPool(gpu.QueueGraphics, gpu.CommandPoolTransient)
	require.NoError(t, err)
	cmds, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(cmds[0], true))
	return cmds[0]
}

func TestMapIsIdempotent(t *testing.T) {
	ctx, dev := newTestContext(t)
	b := NewBuffer(ctx, 128, gpu.BufferUsageUniform, HostVisible, "uniform")

	first := b.Map(ctx)
	second := b.Map(ctx)

	assert.Len(t, dev.Calls("MapMemory"), 1)
	assert.Same(t, &first[0], &second[0])

	b.Destroy(ctx)
	assert.Len(t, dev.Calls("UnmapMemory"), 1)
	assert.False(t, b.Mapped())
}

func TestHostVisibleBufferCopiesData(t *testing.T) {
	ctx, dev := newTestContext(t)
	data := []byte{1, 2, 3, 4, 5}

	b := NewHostVisibleBuffer(ctx, gpu.BufferUsageVertex, data, "verts")

	assert.Equal(t, uint64(5), b.Size)
	assert.Equal(t, data, dev.Memory(b.Memory)[:5])
	create := dev.Calls("CreateMemory")
	require.Len(t, create, 1)
	assert.Equal(t, uint32(1), create[0].Args, "host visible memory comes from the coherent type")
}

func TestDeviceLocalBufferStagesCopy(t *testing.T) {
	ctx, dev := newTestContext(t)
	cmd := beginUpload(t, dev)

	b := NewDeviceLocalBuffer(ctx, cmd, gpu.BufferUsageIndex, []byte{9, 9, 9, 9}, "indices")

	assert.Equal(t, gpu.BufferUsageIndex|gpu.BufferUsageTransferDst, b.Usage)
	assert.Equal(t, DeviceLocal, b.Class)
	copies := dev.Calls("CmdCopyBuffer")
	require.Len(t, copies, 1)
	assert.Equal(t, cmd, copies[0].Cmd)
	assert.Equal(t, gpu.Handle(b.Handle), copies[0].Handle)
	assert.Equal(t, 1, ctx.PendingStagingBuffers())

	assert.Equal(t, 0, ctx.FlushStagingBuffers(), "staging survives until its upload is submitted")
	ctx.MarkSubmitted()
	assert.Equal(t, 1, ctx.FlushStagingBuffers())
	assert.Empty(t, dev.Violations())
}

func TestMapDeviceLocalPanics(t *testing.T) {
	ctx, _ := newTestContext(t)
	b := NewBuffer(ctx, 16, gpu.BufferUsageStorage, DeviceLocal, "blades")

	assert.Panics(t, func() { b.Map(ctx) })
}

func TestMappedViewBounds(t *testing.T) {
	ctx, dev := newTestContext(t)
	b := NewBuffer(ctx, 256, gpu.BufferUsageUniform, HostVisible, "joints")

	view := b.View(ctx, 64, 128)
	assert.Equal(t, uint64(128), view.Len())
	assert.Equal(t, uint64(64), view.Base())

	require.NoError(t, view.WriteMat4(64, mgl32.Translate3D(1, 2, 3)))
	mem := dev.Memory(b.Memory)
	assert.Equal(t, byte(0x3f), mem[64+64+3], "first element is 1.0 little endian")

	assert.ErrorIs(t, view.WriteMat4(65, mgl32.Ident4()), ErrOutOfBounds)
	assert.ErrorIs(t, view.Write(129, nil), ErrOutOfBounds)

	sub, err := view.Sub(64, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), sub.Base())
	_, err = view.Sub(100, 64)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	assert.ErrorIs(t, b.Upload(ctx, 250, make([]byte, 10)), ErrOutOfBounds)
}

func TestTextureUploadBarrierSequence(t *testing.T) {
	ctx, dev := newTestContext(t)
	cmd := beginUpload(t, dev)

	img := NewTextureFromPixels(ctx, cmd, 4, 2, gpu.FormatR8G8B8A8Unorm, make([]byte, 4*2*4), true, "tex")
	require.Equal(t, uint32(3), img.MipLevels)

	type step struct {
		op       string
		mip      uint32
		from, to gpu.ImageLayout
	}
	var got []step
	for _, c := range dev.CommandsFor(cmd) {
		switch c.Op {
		case "CmdPipelineBarrier":
			b := c.Args.(gputest.Barrier)
			require.Len(t, b.Images, 1)
			got = append(got, step{c.Op, b.Images[0].BaseMip, b.Images[0].OldLayout, b.Images[0].NewLayout})
		case "CmdBlitImage":
			blits := c.Args.([]gpu.ImageBlit)
			got = append(got, step{op: c.Op, mip: blits[0].DstMip})
		case "CmdCopyBufferToImage":
			got = append(got, step{op: c.Op})
		}
	}

	dst, src, read := gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutShaderReadOnlyOptimal
	want := []step{
		{"CmdPipelineBarrier", 0, gpu.ImageLayoutUndefined, dst},
		{op: "CmdCopyBufferToImage"},
		{"CmdPipelineBarrier", 0, dst, src},
		{op: "CmdBlitImage", mip: 1},
		{"CmdPipelineBarrier", 0, src, read},
		{"CmdPipelineBarrier", 1, dst, src},
		{op: "CmdBlitImage", mip: 2},
		{"CmdPipelineBarrier", 1, src, read},
		{"CmdPipelineBarrier", 2, dst, read},
	}
	assert.Equal(t, want, got)

	blits := dev.Calls("CmdBlitImage")
	last := blits[1].Args.([]gpu.ImageBlit)[0]
	assert.Equal(t, gpu.Offset3D{X: 1, Y: 1, Z: 1}, last.DstOffsets[1], "extents halve and clamp at 1")
	assert.Equal(t, 1, ctx.PendingStagingBuffers())
}

func TestGenerateMipmapsRequiresLinearBlit(t *testing.T) {
	ctx, dev := newTestContext(t, gputest.WithLinearBlit(false))
	cmd := beginUpload(t, dev)

	assert.Panics(t, func() {
		NewTextureFromPixels(ctx, cmd, 8, 8, gpu.FormatR8G8B8A8Srgb, make([]byte, 8*8*4), true, "tex")
	})

	img := NewTextureFromPixels(ctx, cmd, 8, 8, gpu.FormatR8G8B8A8Srgb, make([]byte, 8*8*4), false, "flat")
	assert.Equal(t, uint32(1), img.MipLevels)
}

func TestRenderTargetUsage(t *testing.T) {
	ctx, dev := newTestContext(t)

	NewRenderTarget(ctx, gpu.Extent2D{Width: 64, Height: 32}, gpu.FormatB8G8R8A8Unorm, gpu.SampleCount1, "color")
	depth := NewDepthTarget(ctx, gpu.Extent2D{Width: 64, Height: 32}, gpu.FormatD32Sfloat, gpu.SampleCount4, "depth")

	images := dev.Calls("CreateImage")
	require.Len(t, images, 2)
	color := images[0].Args.(gpu.ImageDesc)
	assert.Equal(t, gpu.ImageUsageColorAttachment|gpu.ImageUsageTransferSrc|gpu.ImageUsageSampled, color.Usage)
	assert.Equal(t, gpu.AspectDepth, depth.Aspect)
	assert.Equal(t, gpu.SampleCount4, depth.Samples)
}

func TestDestroyReleasesEverything(t *testing.T) {
	ctx, dev := newTestContext(t)
	cmd := beginUpload(t, dev)

	dummy := NewDummyResources(ctx, cmd)
	buf := NewHostVisibleBuffer(ctx, gpu.BufferUsageUniform, make([]byte, 16), "u")
	ctx.InsertResource(device.ResourceDummy, dummy)
	ctx.SetPerFrame(buf)

	ctx.Destroy()

	for h, kind := range dev.Live() {
		assert.Equal(t, "CommandPool", kind, "leaked %s %d", kind, h)
	}
}
