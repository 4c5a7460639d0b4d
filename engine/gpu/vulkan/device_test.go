package vulkan

import (
	"encoding/binary"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestMaxSampleCount(t *testing.T) {
	assert.Equal(t, gpu.SampleCount8, maxSampleCount(0x1|0x2|0x4|0x8|0x10))
	assert.Equal(t, gpu.SampleCount4, maxSampleCount(0x1|0x4))
	assert.Equal(t, gpu.SampleCount1, maxSampleCount(0x1))
	assert.Equal(t, gpu.SampleCount1, maxSampleCount(0))
}

func TestUniqueFamilies(t *testing.T) {
	assert.Equal(t, []uint32{0}, uniqueFamilies([3]uint32{0, 0, 0}))
	assert.Equal(t, []uint32{0, 2}, uniqueFamilies([3]uint32{0, 2, 0}))
	assert.Equal(t, []uint32{1, 2, 0}, uniqueFamilies([3]uint32{1, 2, 0}))
}

func TestCStringsTerminateOnce(t *testing.T) {
	assert.Equal(t, []string{"VK_KHR_swapchain\x00", "main\x00"}, cStrings([]string{"VK_KHR_swapchain", "main\x00"}))
}

func TestSpirvWords(t *testing.T) {
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010300)

	words, err := spirvWords(code)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010300}, words)

	_, err = spirvWords(code[:6])
	assert.Error(t, err, "partial word")

	binary.LittleEndian.PutUint32(code, 0xdeadbeef)
	_, err = spirvWords(code)
	assert.Error(t, err, "bad magic")
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}))
	assert.Equal(t, other, chooseSurfaceFormat([]vk.SurfaceFormat{other}))
	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined}}))
}

func TestChoosePresentModeFallsBackToFifo(t *testing.T) {
	modes := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode(modes, vk.PresentModeImmediate))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(modes, vk.PresentModeMailbox))
}

func TestChooseExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, gpu.Extent2D{Width: 1024, Height: 768}))

	caps.CurrentExtent = vk.Extent2D{Width: undefinedExtent, Height: undefinedExtent}
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, chooseExtent(caps, gpu.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, vk.Extent2D{Width: 4096, Height: 1}, chooseExtent(caps, gpu.Extent2D{Width: 9000, Height: 0}))
}

func TestRegistryHandlesAreUniqueAcrossKinds(t *testing.T) {
	next := &atomic.Uint64{}
	a := newRegistry[int](next)
	b := newRegistry[string](next)

	h1 := a.add(1)
	h2 := b.add("two")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, gpu.NullHandle, h1)

	v, ok := a.get(h1)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = a.get(h2)
	assert.False(t, ok)

	_, ok = b.take(h2)
	assert.True(t, ok)
	_, ok = b.take(h2)
	assert.False(t, ok, "a handle is released once")
	assert.Zero(t, b.len())
	assert.Equal(t, "", b.must(h2))
}

func TestAspectDefaultsFromFormat(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspect(0, gpu.FormatD32Sfloat))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspect(0, gpu.FormatB8G8R8A8Unorm))
	assert.Equal(t, vk.ImageAspectFlags(gpu.AspectDepth), aspect(gpu.AspectDepth, gpu.FormatUndefined))
}
