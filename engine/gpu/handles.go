// Package gpu defines the narrow device abstraction the engine records GPU work through.
// Handles are opaque identifiers issued by a Device implementation; they carry no meaning outside
// the Device that created them. Enumerations share their numeric values with the Vulkan API so a
// backend converts them with a plain cast.
package gpu

// Handle is the common representation of every opaque GPU object.
type Handle uint64

// NullHandle is never issued by a Device.
const NullHandle Handle = 0

type (
	Buffer              Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	DeviceMemory        Handle
	Fence               Handle
	Semaphore           Handle
	CommandPool         Handle
	CommandBuffer       Handle
	RenderPass          Handle
	Framebuffer         Handle
	ShaderModule        Handle
	Pipeline            Handle
	PipelineLayout      Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	Swapchain           Handle
)

// NativeHandles exposes the backend's raw device-level handles for collaborators that record
// into the engine's command buffers through their own bindings.
type NativeHandles struct {
	Instance       uintptr
	PhysicalDevice uintptr
	Device         uintptr
	GraphicsQueue  uintptr
	ComputeQueue   uintptr
	GraphicsFamily uint32
	ComputeFamily  uint32
}
