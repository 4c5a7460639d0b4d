package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Image is a device-local image with a view over all of its mip levels.
type Image struct {
	Handle    gpu.Image
	Memory    gpu.DeviceMemory
	View      gpu.ImageView
	Format    gpu.Format
	Extent    gpu.Extent2D
	MipLevels uint32
	Samples   gpu.SampleCount
	Aspect    gpu.ImageAspect
	Label     string
}

var _ device.Resource = &Image{}

// NewImage creates a device-local image and a view covering every mip level. Failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - desc: the image description; zero MipLevels, ArrayLayers and Samples default to 1
//
// Returns:
//   - *Image: the new image
func NewImage(ctx *device.Context, desc gpu.ImageDesc) *Image {
	desc.MipLevels = common.Coalesce(desc.MipLevels, 1)
	desc.ArrayLayers = common.Coalesce(desc.ArrayLayers, 1)
	desc.Samples = common.Coalesce(desc.Samples, gpu.SampleCount1)

	dev := ctx.Device()
	handle, req, err := dev.CreateImage(desc)
	if err != nil {
		panic(fmt.Sprintf("resource: failed to create image %s: %v", desc.Label, err))
	}
	mem := ctx.AllocateMemory(req, gpu.MemoryDeviceLocal, desc.Label)
	if err := dev.BindImageMemory(handle, mem, 0); err != nil {
		panic(fmt.Sprintf("resource: failed to bind memory of image %s: %v", desc.Label, err))
	}

	aspect := gpu.AspectColor
	if desc.Format.IsDepth() {
		aspect = gpu.AspectDepth
	}
	view, err := dev.CreateImageView(gpu.ImageViewDesc{
		Image:      handle,
		Format:     desc.Format,
		Aspect:     aspect,
		MipLevels:  desc.MipLevels,
		LayerCount: desc.ArrayLayers,
	})
	if err != nil {
		panic(fmt.Sprintf("resource: failed to create view of image %s: %v", desc.Label, err))
	}

	return &Image{
		Handle:    handle,
		Memory:    mem,
		View:      view,
		Format:    desc.Format,
		Extent:    desc.Extent,
		MipLevels: desc.MipLevels,
		Samples:   desc.Samples,
		Aspect:    aspect,
		Label:     desc.Label,
	}
}

// NewRenderTarget creates a color attachment that can also be copied from and sampled.
func NewRenderTarget(ctx *device.Context, extent gpu.Extent2D, format gpu.Format, samples gpu.SampleCount, label string) *Image {
	usage := gpu.ImageUsageColorAttachment
	if samples <= gpu.SampleCount1 {
		usage |= gpu.ImageUsageTransferSrc | gpu.ImageUsageSampled
	}
	return NewImage(ctx, gpu.ImageDesc{
		Extent:  extent,
		Format:  format,
		Samples: samples,
		Usage:   usage,
		Label:   label,
	})
}

// NewDepthTarget creates a depth attachment that can also be sampled.
func NewDepthTarget(ctx *device.Context, extent gpu.Extent2D, format gpu.Format, samples gpu.SampleCount, label string) *Image {
	return NewImage(ctx, gpu.ImageDesc{
		Extent:  extent,
		Format:  format,
		Samples: samples,
		Usage:   gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageSampled,
		Label:   label,
	})
}

// NewTextureFromPixels creates a sampled image and records its upload into cmd: a staging copy
// of pixels into level 0 followed by the mip chain, leaving every level in
// SHADER_READ_ONLY_OPTIMAL. The staging buffer is handed to the Context.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording upload command buffer
//   - width, height: the image size in pixels
//   - format: the pixel format of pixels
//   - pixels: tightly packed level 0 data
//   - mipmapped: whether to build a full mip chain
//   - label: a debug name
//
// Returns:
//   - *Image: the new image
func NewTextureFromPixels(ctx *device.Context, cmd gpu.CommandBuffer, width, height uint32, format gpu.Format, pixels []byte, mipmapped bool, label string) *Image {
	mips := uint32(1)
	if mipmapped {
		mips = common.MipLevels(width, height)
	}
	img := NewImage(ctx, gpu.ImageDesc{
		Extent:    gpu.Extent2D{Width: width, Height: height},
		Format:    format,
		MipLevels: mips,
		Usage:     gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst | gpu.ImageUsageSampled,
		Label:     label,
	})

	staging := NewHostVisibleBuffer(ctx, gpu.BufferUsageTransferSrc, pixels, label+" staging")
	dev := ctx.Device()

	dev.CmdPipelineBarrier(cmd, gpu.StageTopOfPipe, gpu.StageTransfer, nil, []gpu.ImageBarrier{
		img.barrier(0, mips, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal, 0, gpu.AccessTransferWrite),
	})
	dev.CmdCopyBufferToImage(cmd, staging.Handle, img.Handle, gpu.ImageLayoutTransferDstOptimal, []gpu.BufferImageCopy{{
		Aspect:     gpu.AspectColor,
		LayerCount: 1,
		Extent:     gpu.Extent3D{Width: width, Height: height, Depth: 1},
	}})
	ctx.PushStagingBuffer(staging)

	GenerateMipmaps(ctx, cmd, img)
	return img
}

// GenerateMipmaps records the blit chain that fills levels 1..n-1 from level 0 and transitions
// every level to SHADER_READ_ONLY_OPTIMAL. All levels must be in TRANSFER_DST_OPTIMAL. A format
// without linear-filter blit support is fatal when more than one level exists.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording command buffer
//   - img: the image to process
func GenerateMipmaps(ctx *device.Context, cmd gpu.CommandBuffer, img *Image) {
	dev := ctx.Device()
	if img.MipLevels > 1 && !dev.FormatSupportsLinearBlit(img.Format) {
		panic(fmt.Sprintf("resource: format %d of image %s does not support linear blitting", img.Format, img.Label))
	}

	w, h := int32(img.Extent.Width), int32(img.Extent.Height)
	for i := uint32(1); i < img.MipLevels; i++ {
		dev.CmdPipelineBarrier(cmd, gpu.StageTransfer, gpu.StageTransfer, nil, []gpu.ImageBarrier{
			img.barrier(i-1, 1, gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutTransferSrcOptimal, gpu.AccessTransferWrite, gpu.AccessTransferRead),
		})

		nw, nh := max(w/2, 1), max(h/2, 1)
		dev.CmdBlitImage(cmd, img.Handle, gpu.ImageLayoutTransferSrcOptimal, img.Handle, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageBlit{{
			Aspect:     gpu.AspectColor,
			LayerCount: 1,
			SrcMip:     i - 1,
			DstMip:     i,
			SrcOffsets: [2]gpu.Offset3D{{}, {X: w, Y: h, Z: 1}},
			DstOffsets: [2]gpu.Offset3D{{}, {X: nw, Y: nh, Z: 1}},
		}}, gpu.FilterLinear)

		dev.CmdPipelineBarrier(cmd, gpu.StageTransfer, gpu.StageFragmentShader, nil, []gpu.ImageBarrier{
			img.barrier(i-1, 1, gpu.ImageLayoutTransferSrcOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.AccessTransferRead, gpu.AccessShaderRead),
		})
		w, h = nw, nh
	}

	dev.CmdPipelineBarrier(cmd, gpu.StageTransfer, gpu.StageFragmentShader, nil, []gpu.ImageBarrier{
		img.barrier(img.MipLevels-1, 1, gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.AccessTransferWrite, gpu.AccessShaderRead),
	})
}

// Barrier returns a layout transition over all levels of the image with no ownership transfer.
func (i *Image) Barrier(oldLayout, newLayout gpu.ImageLayout, src, dst gpu.Access) gpu.ImageBarrier {
	return i.barrier(0, i.MipLevels, oldLayout, newLayout, src, dst)
}

func (i *Image) barrier(baseMip, count uint32, oldLayout, newLayout gpu.ImageLayout, src, dst gpu.Access) gpu.ImageBarrier {
	return gpu.ImageBarrier{
		Image:          i.Handle,
		OldLayout:      oldLayout,
		NewLayout:      newLayout,
		SrcAccess:      src,
		DstAccess:      dst,
		SrcQueueFamily: gpu.QueueFamilyIgnored,
		DstQueueFamily: gpu.QueueFamilyIgnored,
		Aspect:         i.Aspect,
		BaseMip:        baseMip,
		MipCount:       count,
		LayerCount:     1,
	}
}

// Destroy releases the view, the image and its memory.
func (i *Image) Destroy(ctx *device.Context) {
	if i.Handle == 0 {
		return
	}
	dev := ctx.Device()
	dev.DestroyImageView(i.View)
	dev.DestroyImage(i.Handle)
	dev.FreeMemory(i.Memory)
	i.Handle, i.View, i.Memory = 0, 0, 0
}
