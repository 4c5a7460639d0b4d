package pass

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*device.Context, *gputest.Device, gpu.CommandBuffer) {
	t.Helper()
	dev := gputest.NewDevice()
	ctx, err := device.New(dev)
	require.NoError(t, err)
	pool, err := dev.CreateCommandPool(gpu.QueueGraphics, gpu.CommandPoolResetCommandBuffer)
	require.NoError(t, err)
	cmds, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(cmds[0], false))
	return ctx, dev, cmds[0]
}

func forwardConfig(samples gpu.SampleCount) ForwardConfig {
	return ForwardConfig{
		Extent:      gpu.Extent2D{Width: 800, Height: 600},
		ColorFormat: gpu.FormatB8G8R8A8Unorm,
		DepthFormat: gpu.FormatD32Sfloat,
		Samples:     samples,
	}
}

func TestShadowPassDescription(t *testing.T) {
	ctx, dev, _ := setup(t)

	s := NewShadowPass(ctx, NewTracker(), 0)
	assert.Equal(t, gpu.Extent2D{Width: 2048, Height: 2048}, s.Extent())

	rps := dev.Calls("CreateRenderPass")
	require.Len(t, rps, 1)
	desc := rps[0].Args.(gpu.RenderPassDesc)
	require.Len(t, desc.Attachments, 1)
	att := desc.Attachments[0]
	assert.Equal(t, gpu.FormatD32Sfloat, att.Format)
	assert.Equal(t, gpu.LoadOpClear, att.LoadOp)
	assert.Equal(t, gpu.StoreOpStore, att.StoreOp)
	assert.Equal(t, gpu.ImageLayoutDepthStencilReadOnlyOptimal, att.FinalLayout)
	require.Len(t, desc.Dependencies, 2)
	assert.Equal(t, gpu.SubpassExternal, desc.Dependencies[0].SrcSubpass)
	assert.Equal(t, gpu.StageEarlyFragmentTests|gpu.StageLateFragmentTests, desc.Dependencies[0].DstStage)

	ctx.InsertResource(device.ResourceShadowPass, s)
	ctx.Destroy()
	for _, kind := range dev.Live() {
		assert.Equal(t, "CommandPool", kind)
	}
}

func TestForwardPassAttachments(t *testing.T) {
	tests := []struct {
		name        string
		samples     gpu.SampleCount
		attachments int
		resolve     bool
	}{
		{"single sample", gpu.SampleCount1, 2, false},
		{"msaa", gpu.SampleCount4, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, dev, _ := setup(t)
			f := NewForwardPass(ctx, NewTracker(), forwardConfig(tt.samples))

			desc := dev.Calls("CreateRenderPass")[0].Args.(gpu.RenderPassDesc)
			assert.Len(t, desc.Attachments, tt.attachments)
			assert.Equal(t, tt.resolve, len(desc.Subpasses[0].Resolve) == 1)
			last := desc.Attachments[len(desc.Attachments)-1]
			if !tt.resolve {
				last = desc.Attachments[0]
			}
			assert.Equal(t, gpu.ImageLayoutColorAttachmentOptimal, last.FinalLayout)
			assert.Equal(t, gpu.SampleCount1, f.Output().Samples)

			fb := dev.Calls("CreateFramebuffer")[0].Args.(gpu.FramebufferDesc)
			assert.Len(t, fb.Attachments, tt.attachments)
		})
	}
}

func TestBeginEndBalance(t *testing.T) {
	ctx, dev, cmd := setup(t)
	tracker := NewTracker()
	shadow := NewShadowPass(ctx, tracker, 512)
	forward := NewForwardPass(ctx, tracker, forwardConfig(gpu.SampleCount1))

	require.NoError(t, shadow.Begin(dev, cmd))
	assert.ErrorIs(t, forward.Begin(dev, cmd), ErrPassNested)
	assert.ErrorIs(t, shadow.Begin(dev, cmd), ErrPassNested)
	assert.ErrorIs(t, forward.End(dev, cmd), ErrPassNotBegun)
	require.NoError(t, shadow.End(dev, cmd))
	assert.ErrorIs(t, shadow.End(dev, cmd), ErrPassNotBegun)

	require.NoError(t, forward.Begin(dev, cmd))
	assert.ErrorIs(t, tracker.Finalize(cmd), ErrPassOpen)
	assert.NoError(t, tracker.Finalize(cmd))

	begins := dev.Calls("CmdBeginRenderPass")
	ends := dev.Calls("CmdEndRenderPass")
	assert.Len(t, begins, 2, "rejected begins record nothing")
	assert.Len(t, ends, 1)
	assert.Equal(t, gpu.Extent2D{Width: 512, Height: 512}, dev.Calls("CmdSetScissor")[0].Args)
	assert.Empty(t, dev.Violations())
}

func TestTrackerIsPerCommandBuffer(t *testing.T) {
	tracker := NewTracker()

	require.NoError(t, tracker.Begin(1, "shadow"))
	require.NoError(t, tracker.Begin(2, "forward"))
	name, ok := tracker.Open(1)
	assert.True(t, ok)
	assert.Equal(t, "shadow", name)
	assert.ErrorIs(t, tracker.End(1, "forward"), ErrPassNotBegun)
	assert.NoError(t, tracker.End(2, "forward"))
	assert.NoError(t, tracker.End(1, "shadow"))
	assert.NoError(t, tracker.Finalize(1))
}
