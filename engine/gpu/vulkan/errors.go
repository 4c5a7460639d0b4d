package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

var (
	// ErrNoSuitableDevice is returned by Open when no physical device meets the engine's
	// requirements.
	ErrNoSuitableDevice = errors.New("no suitable physical device")

	// ErrNoSurface is returned by CreateSwapchain on a device opened without a surface.
	ErrNoSurface = errors.New("device has no presentation surface")

	// ErrUnknownHandle is returned when a handle was not issued by this device or was already
	// destroyed.
	ErrUnknownHandle = errors.New("unknown handle")
)

// newError converts a failing vk.Result into an error naming the operation. It returns nil for
// vk.Success.
func newError(op string, res vk.Result) error {
	if res == vk.Success {
		return nil
	}
	return fmt.Errorf("%s: vulkan error: %w (%d)", op, vk.Error(res), res)
}
