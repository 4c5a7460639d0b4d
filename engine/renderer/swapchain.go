package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Swapchain is the presentation ring: the swapchain images plus, per slot, one fence created
// signaled and an image-available and render-finished semaphore pair.
type Swapchain struct {
	handle gpu.Swapchain
	info   gpu.SwapchainInfo

	fences         []gpu.Fence
	imageAvailable []gpu.Semaphore
	renderFinished []gpu.Semaphore
}

// NewSwapchain creates the swapchain and its synchronization ring. The ring size equals the
// swapchain image count. Failure is fatal.
//
// Parameters:
//   - ctx: the device Context
//   - extent: the surface size
//   - mode: the present mode
//
// Returns:
//   - *Swapchain: the new swapchain
func NewSwapchain(ctx *device.Context, extent gpu.Extent2D, mode gpu.PresentMode) *Swapchain {
	dev := ctx.Device()
	handle, info, err := dev.CreateSwapchain(gpu.SwapchainDesc{
		Extent:      extent,
		PresentMode: mode,
		Usage:       gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		panic(fmt.Sprintf("renderer: failed to create swapchain: %v", err))
	}
	if len(info.Images) == 0 {
		panic("renderer: swapchain returned no images")
	}

	s := &Swapchain{handle: handle, info: info}
	for range info.Images {
		f, err := dev.CreateFence(true)
		if err != nil {
			panic(fmt.Sprintf("renderer: failed to create frame fence: %v", err))
		}
		avail, err := dev.CreateSemaphore()
		if err != nil {
			panic(fmt.Sprintf("renderer: failed to create image-available semaphore: %v", err))
		}
		done, err := dev.CreateSemaphore()
		if err != nil {
			panic(fmt.Sprintf("renderer: failed to create render-finished semaphore: %v", err))
		}
		s.fences = append(s.fences, f)
		s.imageAvailable = append(s.imageAvailable, avail)
		s.renderFinished = append(s.renderFinished, done)
	}
	return s
}

// ImageCount returns the number of swapchain images, which is also the ring size.
func (s *Swapchain) ImageCount() int {
	return len(s.info.Images)
}

// Image returns swapchain image i.
func (s *Swapchain) Image(i uint32) gpu.Image {
	return s.info.Images[i]
}

// Extent returns the swapchain image size.
func (s *Swapchain) Extent() gpu.Extent2D {
	return s.info.Extent
}

// Format returns the swapchain image format.
func (s *Swapchain) Format() gpu.Format {
	return s.info.Format
}

// Fence returns the fence of ring slot i.
func (s *Swapchain) Fence(i int) gpu.Fence {
	return s.fences[i]
}

// Destroy destroys the synchronization ring and the swapchain. The device must be idle.
func (s *Swapchain) Destroy(ctx *device.Context) {
	dev := ctx.Device()
	for i := range s.fences {
		dev.DestroyFence(s.fences[i])
		dev.DestroySemaphore(s.imageAvailable[i])
		dev.DestroySemaphore(s.renderFinished[i])
	}
	s.fences, s.imageAvailable, s.renderFinished = nil, nil, nil
	if s.handle != 0 {
		dev.DestroySwapchain(s.handle)
		s.handle = 0
	}
}
