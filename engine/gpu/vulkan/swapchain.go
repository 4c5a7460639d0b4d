package vulkan

import (
	"fmt"
	"log"
	"math"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

const undefinedExtent = math.MaxUint32

// CreateSwapchain creates a swapchain for the device's surface. The requested present mode falls
// back to FIFO when the surface does not offer it.
func (d *device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, gpu.SwapchainInfo, error) {
	if d.surface == vk.NullSurface {
		return 0, gpu.SwapchainInfo{}, fmt.Errorf("create swapchain: %w", ErrNoSurface)
	}

	var caps vk.SurfaceCapabilities
	if err := newError("query surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return 0, gpu.SwapchainInfo{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &modeCount, modes)

	format := chooseSurfaceFormat(formats)
	mode := choosePresentMode(modes, vk.PresentMode(desc.PresentMode))
	if mode != vk.PresentMode(desc.PresentMode) {
		log.Printf("[Device] WARNING: present mode %d unsupported, using FIFO", desc.PresentMode)
	}
	extent := chooseExtent(caps, desc.Extent)

	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    count,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(desc.Usage),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if g, p := d.families[gpu.QueueGraphics], d.families[gpu.QueuePresent]; g != p {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{g, p}
	} else {
		info.ImageSharingMode = vk.SharingModeExclusive
	}

	var sc vk.Swapchain
	if err := newError("create swapchain", vk.CreateSwapchain(d.dev, &info, nil, &sc)); err != nil {
		return 0, gpu.SwapchainInfo{}, err
	}

	var imageCount uint32
	vk.GetSwapchainImages(d.dev, sc, &imageCount, nil)
	native := make([]vk.Image, imageCount)
	vk.GetSwapchainImages(d.dev, sc, &imageCount, native)

	images := make([]gpu.Image, imageCount)
	for i, img := range native {
		images[i] = gpu.Image(d.images.add(image{img: img, external: true}))
	}
	handle := gpu.Swapchain(d.swapchains.add(swapchain{sc: sc, images: images}))
	return handle, gpu.SwapchainInfo{
		Images: images,
		Format: gpu.Format(format.Format),
		Extent: gpu.Extent2D{Width: extent.Width, Height: extent.Height},
	}, nil
}

func (d *device) DestroySwapchain(sc gpu.Swapchain) {
	s, ok := d.swapchains.take(gpu.Handle(sc))
	if !ok {
		return
	}
	for _, img := range s.images {
		d.images.take(gpu.Handle(img))
	}
	vk.DestroySwapchain(d.dev, s.sc, nil)
}

func (d *device) AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore) (uint32, error) {
	s, ok := d.swapchains.get(gpu.Handle(sc))
	if !ok {
		return 0, fmt.Errorf("acquire next image: %w", ErrUnknownHandle)
	}
	var index uint32
	res := vk.AcquireNextImage(d.dev, s.sc, math.MaxUint64, d.semaphores.must(gpu.Handle(signal)), vk.NullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, gpu.ErrOutOfDate
	}
	return 0, newError("acquire next image", res)
}

func (d *device) Present(sc gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	d.checkValidation()

	s, ok := d.swapchains.get(gpu.Handle(sc))
	if !ok {
		return fmt.Errorf("present: %w", ErrUnknownHandle)
	}
	waits := []vk.Semaphore{d.semaphores.must(gpu.Handle(wait))}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{imageIndex},
	}

	d.mu.Lock()
	res := vk.QueuePresent(d.queues[gpu.QueuePresent], &info)
	d.mu.Unlock()
	switch res {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return gpu.ErrOutOfDate
	}
	return newError("present", res)
}

// chooseSurfaceFormat prefers B8G8R8A8_UNORM in the sRGB non-linear color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode, want vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == want {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent unless the window system leaves it to the
// swapchain, in which case the requested extent is clamped to the supported range.
func chooseExtent(caps vk.SurfaceCapabilities, want gpu.Extent2D) vk.Extent2D {
	if caps.CurrentExtent.Width != undefinedExtent {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(want.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(want.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}
