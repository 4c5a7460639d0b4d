package vulkan

import "unsafe"

// SurfaceSource is the window side of instance and surface creation. The engine's window
// implements it on top of glfw.
type SurfaceSource interface {
	// RequiredInstanceExtensions lists the instance extensions the window system needs.
	RequiredInstanceExtensions() []string

	// InstanceProcAddr returns the loader entry point vkGetInstanceProcAddr.
	InstanceProcAddr() unsafe.Pointer

	// CreateSurface creates a presentation surface for instance and returns the raw handle.
	CreateSurface(instance any) (uintptr, error)
}

// DeviceBuilderOption is a functional option applied to a device during Open.
type DeviceBuilderOption func(*device)

// WithSurface opens the device for presentation to the given window. Without a surface the
// device is headless and CreateSwapchain fails.
//
// Parameters:
//   - src: the window providing the surface
//
// Returns:
//   - DeviceBuilderOption: a function that applies the surface option to a device
func WithSurface(src SurfaceSource) DeviceBuilderOption {
	return func(d *device) {
		d.source = src
	}
}

// WithValidation enables the VK_LAYER_KHRONOS_validation layer and a debug report callback
// that logs through the standard logger. Error-severity reports panic on the next submit.
//
// Parameters:
//   - enabled: whether validation is requested
//
// Returns:
//   - DeviceBuilderOption: a function that applies the validation option to a device
func WithValidation(enabled bool) DeviceBuilderOption {
	return func(d *device) {
		d.validation = enabled
	}
}

// WithApplicationName sets the application name reported to the driver.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - DeviceBuilderOption: a function that applies the name option to a device
func WithApplicationName(name string) DeviceBuilderOption {
	return func(d *device) {
		if name != "" {
			d.appName = name
		}
	}
}
