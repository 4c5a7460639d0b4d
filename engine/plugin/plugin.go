// Package plugin defines the collaborators that record into the engine's frame command buffer
// without going through the engine's own passes: post-processing effects that receive raw device
// handles, and a UI overlay drawn on top of the finished frame.
package plugin

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// Target describes one image the engine lends to a plugin.
type Target struct {
	Image  uintptr
	View   uintptr
	Format gpu.Format
	Extent gpu.Extent2D
}

// DeviceHandoff carries the raw handles an effects plugin records with through its own bindings.
// Every handle stays owned by the engine and is valid until the plugin's Destroy returns.
type DeviceHandoff struct {
	gpu.NativeHandles

	// CommandPool is the graphics pool the frame command buffers are allocated from.
	CommandPool uintptr

	// Color is the forward pass output in COLOR_ATTACHMENT_OPTIMAL when Render is called.
	Color Target

	// Depth is the forward pass depth attachment.
	Depth Target
}

// NewDeviceHandoff collects the native handles of dev and the forward pass images.
//
// Parameters:
//   - dev: the device the engine records with
//   - pool: the frame command pool
//   - color: the forward color output
//   - depth: the forward depth attachment
//
// Returns:
//   - DeviceHandoff: the handoff passed to Effects.Init
func NewDeviceHandoff(dev gpu.Device, pool gpu.CommandPool, color, depth *resource.Image) DeviceHandoff {
	return DeviceHandoff{
		NativeHandles: dev.Native(),
		CommandPool:   dev.NativeCommandPool(pool),
		Color:         target(dev, color),
		Depth:         target(dev, depth),
	}
}

func target(dev gpu.Device, img *resource.Image) Target {
	if img == nil {
		return Target{}
	}
	return Target{
		Image:  dev.NativeImage(img.Handle),
		View:   dev.NativeImageView(img.View),
		Format: img.Format,
		Extent: img.Extent,
	}
}

// Effects is a post-processing plugin recording straight into the frame command buffer after
// the forward pass closed and before the overlay.
type Effects interface {
	// Init is called once at startup after the forward pass exists.
	//
	// Parameters:
	//   - handoff: the raw handles the plugin records with
	//
	// Returns:
	//   - error: if the plugin cannot run; the renderer then disables it
	Init(handoff DeviceHandoff) error

	// Render records the effect.
	//
	// Parameters:
	//   - cmd: the native frame command buffer, recording and outside any render pass
	//   - proj: the camera projection matrix
	//   - view: the camera view matrix
	Render(cmd uintptr, proj, view mgl32.Mat4)

	// Destroy releases what the plugin created. The device is idle.
	Destroy()
}

// Overlay draws UI on top of the finished frame.
type Overlay interface {
	// Init is called once at startup with the device and the format and size of the image the
	// overlay draws into.
	//
	// Returns:
	//   - error: if the overlay cannot run; the renderer then disables it
	Init(dev gpu.Device, format gpu.Format, extent gpu.Extent2D) error

	// Draw records the overlay into cmd. The color output is in COLOR_ATTACHMENT_OPTIMAL and no
	// render pass is open; the overlay must leave it in that layout.
	//
	// Parameters:
	//   - cmd: the recording frame command buffer
	Draw(cmd gpu.CommandBuffer)

	// Destroy releases what the overlay created. The device is idle.
	Destroy()
}
