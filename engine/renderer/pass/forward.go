package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
)

// ForwardConfig sizes and formats the forward pass attachments.
type ForwardConfig struct {
	Extent      gpu.Extent2D
	ColorFormat gpu.Format
	DepthFormat gpu.Format
	Samples     gpu.SampleCount
	ClearColor  [4]float32
}

// ForwardPass renders the lit scene into an intermediate color target. With MSAA the
// multisampled color attachment is resolved into a single-sample target; Output returns the
// image that holds the final color either way.
type ForwardPass struct {
	base

	Color   *resource.Image
	Depth   *resource.Image
	Resolve *resource.Image
}

var _ Pass = &ForwardPass{}

// NewForwardPass creates the forward render pass, its render targets and framebuffer.
// Creation failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - tracker: the pass tracker shared by every pass recorded into the same command buffers
//   - cfg: the attachment configuration
//
// Returns:
//   - *ForwardPass: the new pass
func NewForwardPass(ctx *device.Context, tracker *Tracker, cfg ForwardConfig) *ForwardPass {
	if cfg.Samples == 0 {
		cfg.Samples = gpu.SampleCount1
	}
	dev := ctx.Device()

	rp, err := dev.CreateRenderPass(ForwardRenderPassDesc(cfg))
	if err != nil {
		panic(fmt.Sprintf("pass: failed to create forward render pass: %v", err))
	}

	f := &ForwardPass{
		Color: resource.NewRenderTarget(ctx, cfg.Extent, cfg.ColorFormat, cfg.Samples, "forward color"),
		Depth: resource.NewDepthTarget(ctx, cfg.Extent, cfg.DepthFormat, cfg.Samples, "forward depth"),
	}
	views := []gpu.ImageView{f.Color.View, f.Depth.View}
	if cfg.Samples > gpu.SampleCount1 {
		f.Resolve = resource.NewRenderTarget(ctx, cfg.Extent, cfg.ColorFormat, gpu.SampleCount1, "forward resolve")
		views = append(views, f.Resolve.View)
	}

	fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{
		RenderPass:  rp,
		Attachments: views,
		Extent:      cfg.Extent,
		Layers:      1,
	})
	if err != nil {
		panic(fmt.Sprintf("pass: failed to create forward framebuffer: %v", err))
	}

	f.base = base{
		name:        "forward",
		tracker:     tracker,
		renderPass:  rp,
		framebuffer: fb,
		extent:      cfg.Extent,
		samples:     cfg.Samples,
		clears: []gpu.ClearValue{
			{Color: cfg.ClearColor},
			{Depth: true, DepthValue: 1},
		},
	}
	if f.Resolve != nil {
		f.clears = append(f.clears, gpu.ClearValue{})
	}
	return f
}

// ForwardRenderPassDesc describes the forward render pass: color and depth attachments cleared
// and stored, plus a resolve attachment when multisampled. The final color image ends in
// COLOR_ATTACHMENT_OPTIMAL for the frame's copy to the swapchain.
func ForwardRenderPassDesc(cfg ForwardConfig) gpu.RenderPassDesc {
	samples := cfg.Samples
	if samples == 0 {
		samples = gpu.SampleCount1
	}
	desc := gpu.RenderPassDesc{
		Label: "forward",
		Attachments: []gpu.AttachmentDesc{
			{
				Format:        cfg.ColorFormat,
				Samples:       samples,
				LoadOp:        gpu.LoadOpClear,
				StoreOp:       gpu.StoreOpStore,
				InitialLayout: gpu.ImageLayoutUndefined,
				FinalLayout:   gpu.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:        cfg.DepthFormat,
				Samples:       samples,
				LoadOp:        gpu.LoadOpClear,
				StoreOp:       gpu.StoreOpStore,
				InitialLayout: gpu.ImageLayoutUndefined,
				FinalLayout:   gpu.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []gpu.SubpassDesc{{
			Color: []gpu.AttachmentRef{{Attachment: 0, Layout: gpu.ImageLayoutColorAttachmentOptimal}},
			Depth: &gpu.AttachmentRef{Attachment: 1, Layout: gpu.ImageLayoutDepthStencilAttachmentOptimal},
		}},
		Dependencies: []gpu.SubpassDependency{{
			SrcSubpass: gpu.SubpassExternal,
			DstSubpass: 0,
			SrcStage:   gpu.StageColorAttachmentOutput | gpu.StageEarlyFragmentTests,
			DstStage:   gpu.StageColorAttachmentOutput | gpu.StageEarlyFragmentTests,
			DstAccess:  gpu.AccessColorAttachmentWrite | gpu.AccessDepthStencilAttachmentWrite,
		}},
	}
	if samples > gpu.SampleCount1 {
		desc.Attachments = append(desc.Attachments, gpu.AttachmentDesc{
			Format:        cfg.ColorFormat,
			Samples:       gpu.SampleCount1,
			LoadOp:        gpu.LoadOpDontCare,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.ImageLayoutUndefined,
			FinalLayout:   gpu.ImageLayoutColorAttachmentOptimal,
		})
		desc.Subpasses[0].Resolve = []gpu.AttachmentRef{{Attachment: 2, Layout: gpu.ImageLayoutColorAttachmentOptimal}}
	}
	return desc
}

// Output returns the single-sample image holding the pass's final color.
func (f *ForwardPass) Output() *resource.Image {
	if f.Resolve != nil {
		return f.Resolve
	}
	return f.Color
}

// Destroy releases the framebuffer, render pass and render targets.
func (f *ForwardPass) Destroy(ctx *device.Context) {
	f.destroy(ctx.Device())
	if f.Resolve != nil {
		f.Resolve.Destroy(ctx)
	}
	f.Depth.Destroy(ctx)
	f.Color.Destroy(ctx)
}
