package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
)

// DefaultShadowMapDim is the side length of the square shadow map.
const DefaultShadowMapDim = 2048

// ShadowPass renders scene depth from the light into a square D32 map that the forward pass
// samples through a comparison sampler.
type ShadowPass struct {
	base

	Depth   *resource.Image
	Sampler gpu.Sampler
}

var _ Pass = &ShadowPass{}

// NewShadowPass creates the shadow map, its render pass, framebuffer and comparison sampler.
// Creation failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - tracker: the pass tracker shared by every pass recorded into the same command buffers
//   - dim: the shadow map side length; zero selects DefaultShadowMapDim
//
// Returns:
//   - *ShadowPass: the new pass
func NewShadowPass(ctx *device.Context, tracker *Tracker, dim uint32) *ShadowPass {
	if dim == 0 {
		dim = DefaultShadowMapDim
	}
	extent := gpu.Extent2D{Width: dim, Height: dim}
	dev := ctx.Device()

	rp, err := dev.CreateRenderPass(ShadowRenderPassDesc())
	if err != nil {
		panic(fmt.Sprintf("pass: failed to create shadow render pass: %v", err))
	}

	depth := resource.NewDepthTarget(ctx, extent, gpu.FormatD32Sfloat, gpu.SampleCount1, "shadow map")
	fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{
		RenderPass:  rp,
		Attachments: []gpu.ImageView{depth.View},
		Extent:      extent,
		Layers:      1,
	})
	if err != nil {
		panic(fmt.Sprintf("pass: failed to create shadow framebuffer: %v", err))
	}

	return &ShadowPass{
		base: base{
			name:        "shadow",
			tracker:     tracker,
			renderPass:  rp,
			framebuffer: fb,
			extent:      extent,
			samples:     gpu.SampleCount1,
			clears:      []gpu.ClearValue{{Depth: true, DepthValue: 1}},
		},
		Depth:   depth,
		Sampler: resource.NewComparisonSampler(ctx),
	}
}

// ShadowRenderPassDesc describes the depth-only shadow render pass: one D32 attachment cleared
// and stored, left in DEPTH_STENCIL_READ_ONLY_OPTIMAL for sampling.
func ShadowRenderPassDesc() gpu.RenderPassDesc {
	return gpu.RenderPassDesc{
		Label: "shadow",
		Attachments: []gpu.AttachmentDesc{{
			Format:        gpu.FormatD32Sfloat,
			Samples:       gpu.SampleCount1,
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.ImageLayoutUndefined,
			FinalLayout:   gpu.ImageLayoutDepthStencilReadOnlyOptimal,
		}},
		Subpasses: []gpu.SubpassDesc{{
			Depth: &gpu.AttachmentRef{Attachment: 0, Layout: gpu.ImageLayoutDepthStencilAttachmentOptimal},
		}},
		Dependencies: []gpu.SubpassDependency{
			{
				SrcSubpass: gpu.SubpassExternal,
				DstSubpass: 0,
				SrcStage:   gpu.StageFragmentShader,
				DstStage:   gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests,
				SrcAccess:  gpu.AccessShaderRead,
				DstAccess:  gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite,
				ByRegion:   true,
			},
			{
				SrcSubpass: 0,
				DstSubpass: gpu.SubpassExternal,
				SrcStage:   gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests,
				DstStage:   gpu.StageFragmentShader,
				SrcAccess:  gpu.AccessDepthStencilAttachmentWrite,
				DstAccess:  gpu.AccessShaderRead,
				ByRegion:   true,
			},
		},
	}
}

// SamplerWrite returns the descriptor write binding the shadow map with its comparison sampler.
func (s *ShadowPass) SamplerWrite(binding uint32) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Binding:   binding,
		Type:      gpu.DescriptorCombinedImageSampler,
		ImageView: s.Depth.View,
		Sampler:   s.Sampler,
		Layout:    gpu.ImageLayoutDepthStencilReadOnlyOptimal,
	}
}

// Destroy releases the framebuffer, render pass, sampler and shadow map.
func (s *ShadowPass) Destroy(ctx *device.Context) {
	dev := ctx.Device()
	s.destroy(dev)
	if s.Sampler != 0 {
		dev.DestroySampler(s.Sampler)
		s.Sampler = 0
	}
	s.Depth.Destroy(ctx)
}
