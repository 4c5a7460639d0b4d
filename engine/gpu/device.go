package gpu

import "errors"

// ErrOutOfDate is returned by AcquireNextImage and Present when the swapchain no longer
// matches the surface. Callers skip the frame.
var ErrOutOfDate = errors.New("swapchain out of date")

// Commands records GPU work into a command buffer. Every method takes the target command
// buffer first and is only valid between BeginCommandBuffer and EndCommandBuffer.
type Commands interface {
	BeginCommandBuffer(cmd CommandBuffer, oneTime bool) error
	EndCommandBuffer(cmd CommandBuffer) error
	ResetCommandBuffer(cmd CommandBuffer) error

	CmdPipelineBarrier(cmd CommandBuffer, src, dst PipelineStage, buffers []BufferBarrier, images []ImageBarrier)
	CmdCopyBuffer(cmd CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(cmd CommandBuffer, src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CmdCopyImage(cmd CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageCopy)
	CmdBlitImage(cmd CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter)
	CmdUpdateBuffer(cmd CommandBuffer, dst Buffer, offset uint64, data []byte)

	CmdBeginRenderPass(cmd CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cmd CommandBuffer)
	CmdBindPipeline(cmd CommandBuffer, point BindPoint, pipeline Pipeline)
	CmdBindDescriptorSets(cmd CommandBuffer, point BindPoint, layout PipelineLayout, first uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	CmdPushConstants(cmd CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdBindVertexBuffers(cmd CommandBuffer, first uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cmd CommandBuffer, buffer Buffer, offset uint64, indexType IndexType)
	CmdSetViewport(cmd CommandBuffer, x, y, width, height, minDepth, maxDepth float32)
	CmdSetScissor(cmd CommandBuffer, x, y int32, extent Extent2D)
	CmdDraw(cmd CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cmd CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDrawIndirect(cmd CommandBuffer, buffer Buffer, offset uint64, drawCount, stride uint32)
	CmdDispatch(cmd CommandBuffer, x, y, z uint32)
}

// Device is the explicit GPU device the engine drives. Object creation failures are returned as
// errors; the engine layers above decide which of them are fatal.
type Device interface {
	Commands

	Info() DeviceInfo
	Native() NativeHandles
	NativeImage(img Image) uintptr
	NativeImageView(view ImageView) uintptr
	NativeCommandBuffer(cmd CommandBuffer) uintptr
	NativeCommandPool(pool CommandPool) uintptr

	MemoryTypes() []MemoryType
	FormatSupportsLinearBlit(format Format) bool

	CreateBuffer(desc BufferDesc) (Buffer, MemoryRequirements, error)
	DestroyBuffer(buf Buffer)
	CreateImage(desc ImageDesc) (Image, MemoryRequirements, error)
	DestroyImage(img Image)
	AllocateMemory(size uint64, typeIndex uint32) (DeviceMemory, error)
	FreeMemory(mem DeviceMemory)
	BindBufferMemory(buf Buffer, mem DeviceMemory, offset uint64) error
	BindImageMemory(img Image, mem DeviceMemory, offset uint64) error
	// MapMemory returns a byte slice aliasing the mapped range. The slice is valid until
	// UnmapMemory or FreeMemory.
	MapMemory(mem DeviceMemory, offset, size uint64) ([]byte, error)
	UnmapMemory(mem DeviceMemory)

	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(s Sampler)

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSet(pool DescriptorPool, set DescriptorSet)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)

	CreateCommandPool(queue QueueKind, flags CommandPoolFlags) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFence blocks without a timeout until the fence is signaled.
	WaitForFence(f Fence) error
	ResetFence(f Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	QueueSubmit(queue QueueKind, submit SubmitInfo, fence Fence) error
	QueueWaitIdle(queue QueueKind) error
	WaitIdle() error

	CreateSwapchain(desc SwapchainDesc) (Swapchain, SwapchainInfo, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage returns ErrOutOfDate when the swapchain must be skipped this frame.
	AcquireNextImage(sc Swapchain, signal Semaphore) (uint32, error)
	Present(sc Swapchain, imageIndex uint32, wait Semaphore) error

	// Destroy releases the logical device and everything the backend owns beneath it. All
	// objects created through the Device must already be destroyed.
	Destroy()
}
