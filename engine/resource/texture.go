package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Texture pairs a sampled image with the sampler it is read through.
type Texture struct {
	Image   *Image
	Sampler gpu.Sampler
}

var _ device.Resource = &Texture{}

// NewTexture uploads pixels as a mipmapped RGBA texture with a linear repeating sampler.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording upload command buffer
//   - width, height: the image size in pixels
//   - pixels: RGBA8 data, 4 bytes per pixel
//   - srgb: whether the pixels are sRGB encoded
//   - label: a debug name
//
// Returns:
//   - *Texture: the new texture
func NewTexture(ctx *device.Context, cmd gpu.CommandBuffer, width, height uint32, pixels []byte, srgb bool, label string) *Texture {
	format := gpu.FormatR8G8B8A8Unorm
	if srgb {
		format = gpu.FormatR8G8B8A8Srgb
	}
	img := NewTextureFromPixels(ctx, cmd, width, height, format, pixels, true, label)
	return &Texture{
		Image:   img,
		Sampler: NewSampler(ctx, img.MipLevels),
	}
}

// NewSampler creates a linear, repeating sampler covering mipLevels levels with anisotropy off.
func NewSampler(ctx *device.Context, mipLevels uint32) gpu.Sampler {
	s, err := ctx.Device().CreateSampler(gpu.SamplerDesc{
		MagFilter:    gpu.FilterLinear,
		MinFilter:    gpu.FilterLinear,
		MipmapFilter: gpu.FilterLinear,
		AddressMode:  gpu.AddressRepeat,
		MaxLod:       float32(mipLevels),
	})
	if err != nil {
		panic(fmt.Sprintf("resource: failed to create sampler: %v", err))
	}
	return s
}

// NewComparisonSampler creates the depth comparison sampler used to read shadow maps.
func NewComparisonSampler(ctx *device.Context) gpu.Sampler {
	s, err := ctx.Device().CreateSampler(gpu.SamplerDesc{
		MagFilter:     gpu.FilterLinear,
		MinFilter:     gpu.FilterLinear,
		MipmapFilter:  gpu.FilterNearest,
		AddressMode:   gpu.AddressClampToBorder,
		MaxLod:        1,
		CompareEnable: true,
		CompareOp:     gpu.CompareLessOrEqual,
	})
	if err != nil {
		panic(fmt.Sprintf("resource: failed to create comparison sampler: %v", err))
	}
	return s
}

// Write returns the descriptor write binding this texture at the given binding index.
func (t *Texture) Write(binding uint32) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Binding:   binding,
		Type:      gpu.DescriptorCombinedImageSampler,
		ImageView: t.Image.View,
		Sampler:   t.Sampler,
		Layout:    gpu.ImageLayoutShaderReadOnlyOptimal,
	}
}

// Destroy releases the sampler and the image.
func (t *Texture) Destroy(ctx *device.Context) {
	if t.Sampler != 0 {
		ctx.Device().DestroySampler(t.Sampler)
		t.Sampler = 0
	}
	if t.Image != nil {
		t.Image.Destroy(ctx)
	}
}
