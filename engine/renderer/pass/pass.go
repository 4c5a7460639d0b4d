package pass

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Pass is a render pass with its framebuffer and attachments.
type Pass interface {
	device.Resource

	// Name identifies the pass in errors and logs.
	Name() string

	// RenderPass returns the device render pass pipelines are built against.
	RenderPass() gpu.RenderPass

	// Extent returns the framebuffer size.
	Extent() gpu.Extent2D

	// Samples returns the sample count of the pass attachments.
	Samples() gpu.SampleCount

	// Begin records the render pass begin with the pass clears and sets a full viewport and scissor.
	//
	// Parameters:
	//   - dev: the command recorder
	//   - cmd: the recording command buffer
	//
	// Returns:
	//   - error: ErrPassNested if another pass is open on cmd
	Begin(dev gpu.Commands, cmd gpu.CommandBuffer) error

	// End records the render pass end.
	//
	// Parameters:
	//   - dev: the command recorder
	//   - cmd: the recording command buffer
	//
	// Returns:
	//   - error: ErrPassNotBegun if this pass is not open on cmd
	End(dev gpu.Commands, cmd gpu.CommandBuffer) error
}

// base holds what every pass shares: the render pass, framebuffer and tracking.
type base struct {
	name        string
	tracker     *Tracker
	renderPass  gpu.RenderPass
	framebuffer gpu.Framebuffer
	extent      gpu.Extent2D
	samples     gpu.SampleCount
	clears      []gpu.ClearValue
}

func (b *base) Name() string {
	return b.name
}

func (b *base) RenderPass() gpu.RenderPass {
	return b.renderPass
}

func (b *base) Extent() gpu.Extent2D {
	return b.extent
}

func (b *base) Samples() gpu.SampleCount {
	return b.samples
}

func (b *base) Begin(dev gpu.Commands, cmd gpu.CommandBuffer) error {
	if err := b.tracker.Begin(cmd, b.name); err != nil {
		return err
	}
	dev.CmdBeginRenderPass(cmd, gpu.RenderPassBegin{
		RenderPass:  b.renderPass,
		Framebuffer: b.framebuffer,
		Extent:      b.extent,
		Clears:      b.clears,
	})
	dev.CmdSetViewport(cmd, 0, 0, float32(b.extent.Width), float32(b.extent.Height), 0, 1)
	dev.CmdSetScissor(cmd, 0, 0, b.extent)
	return nil
}

func (b *base) End(dev gpu.Commands, cmd gpu.CommandBuffer) error {
	if err := b.tracker.End(cmd, b.name); err != nil {
		return err
	}
	dev.CmdEndRenderPass(cmd)
	return nil
}

func (b *base) destroy(dev gpu.Device) {
	if b.framebuffer != 0 {
		dev.DestroyFramebuffer(b.framebuffer)
		b.framebuffer = 0
	}
	if b.renderPass != 0 {
		dev.DestroyRenderPass(b.renderPass)
		b.renderPass = 0
	}
}
