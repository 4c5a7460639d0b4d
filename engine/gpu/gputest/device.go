// Package gputest provides a recording gpu.Device for tests. Every call is appended to a trace
// so tests can assert ordering properties (destroy order, fence wait before reset, barrier
// placement) without a GPU.
package gputest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Call is one recorded device or command operation.
type Call struct {
	Op     string
	Cmd    gpu.CommandBuffer
	Handle gpu.Handle
	Args   any
}

// Barrier is the Args payload of a CmdPipelineBarrier call.
type Barrier struct {
	Src     gpu.PipelineStage
	Dst     gpu.PipelineStage
	Buffers []gpu.BufferBarrier
	Images  []gpu.ImageBarrier
}

// BindSets is the Args payload of a CmdBindDescriptorSets call.
type BindSets struct {
	First   uint32
	Sets    []gpu.DescriptorSet
	Offsets []uint32
}

// Submit is the Args payload of a QueueSubmit call.
type Submit struct {
	Queue gpu.QueueKind
	Info  gpu.SubmitInfo
	Fence gpu.Fence
}

type fenceState struct {
	signaled bool
	pending  bool
}

// Device is the recording fake. The zero value is not usable; construct with NewDevice.
type Device struct {
	mu sync.Mutex

	info        gpu.DeviceInfo
	memoryTypes []gpu.MemoryType
	linearBlit  bool

	next  uint64
	live  map[gpu.Handle]string
	trace []Call

	memory    map[gpu.DeviceMemory][]byte
	fences    map[gpu.Fence]*fenceState
	recording map[gpu.CommandBuffer]bool

	swapchainImages int
	acquireErrors   []error
	acquireIndex    uint32

	violations []string
}

var _ gpu.Device = &Device{}

// DeviceOption configures a fake Device.
type DeviceOption func(*Device)

// WithQueueFamilies sets the graphics, compute and present family indices the fake reports.
func WithQueueFamilies(graphics, compute, present uint32) DeviceOption {
	return func(d *Device) {
		d.info.GraphicsFamily = graphics
		d.info.ComputeFamily = compute
		d.info.PresentFamily = present
	}
}

// WithMinUniformAlignment sets the reported minUniformBufferOffsetAlignment.
func WithMinUniformAlignment(align uint64) DeviceOption {
	return func(d *Device) {
		d.info.MinUniformBufferOffsetAlignment = align
	}
}

// WithLinearBlit controls whether formats advertise linear-filter blit support.
func WithLinearBlit(supported bool) DeviceOption {
	return func(d *Device) {
		d.linearBlit = supported
	}
}

// WithSwapchainImages sets how many images CreateSwapchain returns.
func WithSwapchainImages(n int) DeviceOption {
	return func(d *Device) {
		d.swapchainImages = n
	}
}

// WithMemoryTypes replaces the reported memory types.
func WithMemoryTypes(types ...gpu.MemoryType) DeviceOption {
	return func(d *Device) {
		d.memoryTypes = types
	}
}

// NewDevice creates a fake device with one device-local type, one host-visible coherent type
// and a single queue family shared by every queue kind.
func NewDevice(options ...DeviceOption) *Device {
	d := &Device{
		info: gpu.DeviceInfo{
			Name:                            "gputest",
			MinUniformBufferOffsetAlignment: 256,
			MaxSamples:                      gpu.SampleCount8,
		},
		memoryTypes: []gpu.MemoryType{
			{Properties: gpu.MemoryDeviceLocal},
			{Properties: gpu.MemoryHostVisible | gpu.MemoryHostCoherent},
		},
		linearBlit:      true,
		live:            make(map[gpu.Handle]string),
		memory:          make(map[gpu.DeviceMemory][]byte),
		fences:          make(map[gpu.Fence]*fenceState),
		recording:       make(map[gpu.CommandBuffer]bool),
		swapchainImages: 3,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// FailNextAcquire queues an error for the next AcquireNextImage call.
func (d *Device) FailNextAcquire(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrors = append(d.acquireErrors, err)
}

// Trace returns a copy of every recorded call.
func (d *Device) Trace() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.trace))
	copy(out, d.trace)
	return out
}

// Ops returns the recorded operation names in order.
func (d *Device) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.trace))
	for i, c := range d.trace {
		out[i] = c.Op
	}
	return out
}

// Calls returns every recorded call with the given operation name.
func (d *Device) Calls(op string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.trace {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the first call matching op and handle, or -1.
func (d *Device) Index(op string, h gpu.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.trace {
		if c.Op == op && c.Handle == h {
			return i
		}
	}
	return -1
}

// CommandsFor returns the Cmd* calls recorded into cmd, in order.
func (d *Device) CommandsFor(cmd gpu.CommandBuffer) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.trace {
		if c.Cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}

// ClearTrace drops the recorded calls while keeping object state.
func (d *Device) ClearTrace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = nil
}

// Live returns the kinds of objects created and not yet destroyed, keyed by handle.
func (d *Device) Live() map[gpu.Handle]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[gpu.Handle]string, len(d.live))
	for h, k := range d.live {
		out[h] = k
	}
	return out
}

// Violations lists misuse the fake detected (commands outside recording, waits on fences with
// no pending work, destroying unknown objects).
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Memory returns the backing bytes of an allocation.
func (d *Device) Memory(mem gpu.DeviceMemory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory[mem]
}

func (d *Device) record(c Call) {
	d.trace = append(d.trace, c)
}

func (d *Device) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind string) gpu.Handle {
	d.next++
	h := gpu.Handle(d.next)
	d.live[h] = kind
	d.record(Call{Op: "Create" + kind, Handle: h})
	return h
}

func (d *Device) destroy(kind string, h gpu.Handle) {
	if got, ok := d.live[h]; !ok || got != kind {
		d.violate("destroy of unknown %s %d", kind, h)
	}
	delete(d.live, h)
	d.record(Call{Op: "Destroy" + kind, Handle: h})
}

func (d *Device) cmd(cmd gpu.CommandBuffer, op string, h gpu.Handle, args any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording[cmd] {
		d.violate("%s on command buffer %d outside recording", op, cmd)
	}
	d.record(Call{Op: op, Cmd: cmd, Handle: h, Args: args})
}

func (d *Device) Info() gpu.DeviceInfo { return d.info }

func (d *Device) Native() gpu.NativeHandles {
	return gpu.NativeHandles{
		Device:         0xD0,
		GraphicsFamily: d.info.GraphicsFamily,
		ComputeFamily:  d.info.ComputeFamily,
	}
}

func (d *Device) NativeImage(img gpu.Image) uintptr              { return uintptr(img) }
func (d *Device) NativeImageView(view gpu.ImageView) uintptr     { return uintptr(view) }
func (d *Device) NativeCommandBuffer(cmd gpu.CommandBuffer) uintptr { return uintptr(cmd) }
func (d *Device) NativeCommandPool(pool gpu.CommandPool) uintptr { return uintptr(pool) }

func (d *Device) MemoryTypes() []gpu.MemoryType { return d.memoryTypes }

func (d *Device) FormatSupportsLinearBlit(format gpu.Format) bool { return d.linearBlit }

func (d *Device) allTypeBits() uint32 {
	return uint32(1)<<uint32(len(d.memoryTypes)) - 1
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Size == 0 {
		return 0, gpu.MemoryRequirements{}, fmt.Errorf("buffer %q has zero size", desc.Label)
	}
	h := d.create("Buffer")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.Buffer(h), gpu.MemoryRequirements{
		Size:      (desc.Size + 255) &^ 255,
		Alignment: 256,
		TypeBits:  d.allTypeBits(),
	}, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Buffer", gpu.Handle(buf))
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, gpu.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("Image")
	d.trace[len(d.trace)-1].Args = desc
	size := uint64(desc.Extent.Width) * uint64(desc.Extent.Height) * 4 * uint64(max(desc.Samples, 1))
	return gpu.Image(h), gpu.MemoryRequirements{
		Size:      (size + 255) &^ 255,
		Alignment: 256,
		TypeBits:  d.allTypeBits(),
	}, nil
}

func (d *Device) DestroyImage(img gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Image", gpu.Handle(img))
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gpu.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(typeIndex) >= len(d.memoryTypes) {
		return 0, fmt.Errorf("memory type %d out of range", typeIndex)
	}
	h := d.create("Memory")
	d.trace[len(d.trace)-1].Args = typeIndex
	d.memory[gpu.DeviceMemory(h)] = make([]byte, size)
	return gpu.DeviceMemory(h), nil
}

func (d *Device) FreeMemory(mem gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memory, mem)
	d.destroy("Memory", gpu.Handle(mem))
}

func (d *Device) BindBufferMemory(buf gpu.Buffer, mem gpu.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "BindBufferMemory", Handle: gpu.Handle(buf), Args: mem})
	return nil
}

func (d *Device) BindImageMemory(img gpu.Image, mem gpu.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "BindImageMemory", Handle: gpu.Handle(img), Args: mem})
	return nil
}

func (d *Device) MapMemory(mem gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	backing, ok := d.memory[mem]
	if !ok {
		return nil, fmt.Errorf("map of unknown memory %d", mem)
	}
	if !d.memoryTypeHostVisible(mem) {
		return nil, fmt.Errorf("memory %d is not host visible", mem)
	}
	d.record(Call{Op: "MapMemory", Handle: gpu.Handle(mem)})
	end := uint64(len(backing))
	if size != gpu.WholeSize && offset+size < end {
		end = offset + size
	}
	return backing[offset:end], nil
}

func (d *Device) memoryTypeHostVisible(mem gpu.DeviceMemory) bool {
	for _, c := range d.trace {
		if c.Op == "CreateMemory" && c.Handle == gpu.Handle(mem) {
			idx, _ := c.Args.(uint32)
			return d.memoryTypes[idx].Properties&gpu.MemoryHostVisible != 0
		}
	}
	return true
}

func (d *Device) UnmapMemory(mem gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "UnmapMemory", Handle: gpu.Handle(mem)})
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("ImageView")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.ImageView(h), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("ImageView", gpu.Handle(view))
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Sampler(d.create("Sampler")), nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Sampler", gpu.Handle(s))
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("RenderPass")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.RenderPass(h), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("RenderPass", gpu.Handle(rp))
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("Framebuffer")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.Framebuffer(h), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Framebuffer", gpu.Handle(fb))
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, fmt.Errorf("shader code size %d is not a multiple of 4", len(code))
	}
	return gpu.ShaderModule(d.create("ShaderModule")), nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("ShaderModule", gpu.Handle(m))
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("DescriptorSetLayout")
	d.trace[len(d.trace)-1].Args = bindings
	return gpu.DescriptorSetLayout(h), nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("DescriptorSetLayout", gpu.Handle(l))
}

func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("PipelineLayout")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.PipelineLayout(h), nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("PipelineLayout", gpu.Handle(l))
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("Pipeline")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.Pipeline(h), nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("Pipeline")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.Pipeline(h), nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Pipeline", gpu.Handle(p))
}

func (d *Device) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("DescriptorPool")
	d.trace[len(d.trace)-1].Args = desc
	return gpu.DescriptorPool(h), nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("DescriptorPool", gpu.Handle(pool))
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[gpu.Handle(pool)]; !ok {
		return 0, fmt.Errorf("descriptor pool %d is not live", pool)
	}
	h := d.create("DescriptorSet")
	d.trace[len(d.trace)-1].Args = pool
	return gpu.DescriptorSet(h), nil
}

func (d *Device) FreeDescriptorSet(pool gpu.DescriptorPool, set gpu.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[gpu.Handle(pool)]; !ok {
		d.violate("descriptor set %d freed after pool %d was destroyed", set, pool)
	}
	d.destroy("DescriptorSet", gpu.Handle(set))
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "UpdateDescriptorSet", Handle: gpu.Handle(set), Args: writes})
}

func (d *Device) CreateCommandPool(queue gpu.QueueKind, flags gpu.CommandPoolFlags) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("CommandPool")
	d.trace[len(d.trace)-1].Args = flags
	return gpu.CommandPool(h), nil
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("CommandPool", gpu.Handle(pool))
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		d.next++
		out[i] = gpu.CommandBuffer(d.next)
		d.record(Call{Op: "AllocateCommandBuffer", Handle: gpu.Handle(out[i]), Args: pool})
	}
	return out, nil
}

func (d *Device) BeginCommandBuffer(cmd gpu.CommandBuffer, oneTime bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording[cmd] {
		return fmt.Errorf("command buffer %d already recording", cmd)
	}
	d.recording[cmd] = true
	d.record(Call{Op: "BeginCommandBuffer", Cmd: cmd, Handle: gpu.Handle(cmd)})
	return nil
}

func (d *Device) EndCommandBuffer(cmd gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording[cmd] {
		return fmt.Errorf("command buffer %d is not recording", cmd)
	}
	d.recording[cmd] = false
	d.record(Call{Op: "EndCommandBuffer", Cmd: cmd, Handle: gpu.Handle(cmd)})
	return nil
}

func (d *Device) ResetCommandBuffer(cmd gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording[cmd] = false
	d.record(Call{Op: "ResetCommandBuffer", Handle: gpu.Handle(cmd)})
	return nil
}

func (d *Device) CmdPipelineBarrier(cmd gpu.CommandBuffer, src, dst gpu.PipelineStage, buffers []gpu.BufferBarrier, images []gpu.ImageBarrier) {
	d.cmd(cmd, "CmdPipelineBarrier", 0, Barrier{
		Src:     src,
		Dst:     dst,
		Buffers: append([]gpu.BufferBarrier(nil), buffers...),
		Images:  append([]gpu.ImageBarrier(nil), images...),
	})
}

func (d *Device) CmdCopyBuffer(cmd gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	d.cmd(cmd, "CmdCopyBuffer", gpu.Handle(dst), src)
}

func (d *Device) CmdCopyBufferToImage(cmd gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	d.cmd(cmd, "CmdCopyBufferToImage", gpu.Handle(dst), src)
}

func (d *Device) CmdCopyImage(cmd gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageCopy) {
	d.cmd(cmd, "CmdCopyImage", gpu.Handle(dst), src)
}

func (d *Device) CmdBlitImage(cmd gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageBlit, filter gpu.Filter) {
	d.cmd(cmd, "CmdBlitImage", gpu.Handle(dst), append([]gpu.ImageBlit(nil), regions...))
}

func (d *Device) CmdUpdateBuffer(cmd gpu.CommandBuffer, dst gpu.Buffer, offset uint64, data []byte) {
	d.cmd(cmd, "CmdUpdateBuffer", gpu.Handle(dst), append([]byte(nil), data...))
}

func (d *Device) CmdBeginRenderPass(cmd gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	d.cmd(cmd, "CmdBeginRenderPass", gpu.Handle(begin.RenderPass), begin)
}

func (d *Device) CmdEndRenderPass(cmd gpu.CommandBuffer) {
	d.cmd(cmd, "CmdEndRenderPass", 0, nil)
}

func (d *Device) CmdBindPipeline(cmd gpu.CommandBuffer, point gpu.BindPoint, pipeline gpu.Pipeline) {
	d.cmd(cmd, "CmdBindPipeline", gpu.Handle(pipeline), point)
}

func (d *Device) CmdBindDescriptorSets(cmd gpu.CommandBuffer, point gpu.BindPoint, layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) {
	d.cmd(cmd, "CmdBindDescriptorSets", gpu.Handle(layout), BindSets{
		First:   first,
		Sets:    append([]gpu.DescriptorSet(nil), sets...),
		Offsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (d *Device) CmdPushConstants(cmd gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	d.cmd(cmd, "CmdPushConstants", gpu.Handle(layout), append([]byte(nil), data...))
}

func (d *Device) CmdBindVertexBuffers(cmd gpu.CommandBuffer, first uint32, buffers []gpu.Buffer, offsets []uint64) {
	d.cmd(cmd, "CmdBindVertexBuffers", 0, append([]gpu.Buffer(nil), buffers...))
}

func (d *Device) CmdBindIndexBuffer(cmd gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	d.cmd(cmd, "CmdBindIndexBuffer", gpu.Handle(buffer), indexType)
}

func (d *Device) CmdSetViewport(cmd gpu.CommandBuffer, x, y, width, height, minDepth, maxDepth float32) {
	d.cmd(cmd, "CmdSetViewport", 0, [2]float32{width, height})
}

func (d *Device) CmdSetScissor(cmd gpu.CommandBuffer, x, y int32, extent gpu.Extent2D) {
	d.cmd(cmd, "CmdSetScissor", 0, extent)
}

func (d *Device) CmdDraw(cmd gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.cmd(cmd, "CmdDraw", 0, [2]uint32{vertexCount, instanceCount})
}

func (d *Device) CmdDrawIndexed(cmd gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.cmd(cmd, "CmdDrawIndexed", 0, [2]uint32{indexCount, instanceCount})
}

func (d *Device) CmdDrawIndirect(cmd gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, drawCount, stride uint32) {
	d.cmd(cmd, "CmdDrawIndirect", gpu.Handle(buffer), [2]uint32{drawCount, stride})
}

func (d *Device) CmdDispatch(cmd gpu.CommandBuffer, x, y, z uint32) {
	d.cmd(cmd, "CmdDispatch", 0, [3]uint32{x, y, z})
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.create("Fence")
	d.fences[gpu.Fence(h)] = &fenceState{signaled: signaled}
	return gpu.Fence(h), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
	d.destroy("Fence", gpu.Handle(f))
}

// WaitForFence completes any pending submission on the fence. Waiting on a fence that is neither
// signaled nor pending would block forever on a real device and is reported as an error.
func (d *Device) WaitForFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "WaitForFence", Handle: gpu.Handle(f)})
	st, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", f)
	}
	if st.pending {
		st.pending = false
		st.signaled = true
	}
	if !st.signaled {
		d.violate("fence %d waited with no pending submission", f)
		return fmt.Errorf("fence %d would never signal", f)
	}
	return nil
}

func (d *Device) ResetFence(f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "ResetFence", Handle: gpu.Handle(f)})
	st, ok := d.fences[f]
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", f)
	}
	if st.pending {
		d.violate("fence %d reset while its submission is pending", f)
	}
	st.signaled = false
	return nil
}

// FenceSignaled reports whether the fence is currently signaled.
func (d *Device) FenceSignaled(f gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.fences[f]
	return ok && st.signaled
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore(d.create("Semaphore")), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Semaphore", gpu.Handle(s))
}

func (d *Device) QueueSubmit(queue gpu.QueueKind, submit gpu.SubmitInfo, fence gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cmd := range submit.Commands {
		if d.recording[cmd] {
			d.violate("command buffer %d submitted while recording", cmd)
		}
	}
	if fence != 0 {
		st, ok := d.fences[fence]
		if !ok {
			return fmt.Errorf("submit with unknown fence %d", fence)
		}
		if st.signaled {
			d.violate("fence %d submitted while signaled", fence)
		}
		st.pending = true
	}
	d.record(Call{Op: "QueueSubmit", Handle: gpu.Handle(fence), Args: Submit{Queue: queue, Info: submit, Fence: fence}})
	return nil
}

func (d *Device) QueueWaitIdle(queue gpu.QueueKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeAll()
	d.record(Call{Op: "QueueWaitIdle", Args: queue})
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeAll()
	d.record(Call{Op: "WaitIdle"})
	return nil
}

func (d *Device) completeAll() {
	for _, st := range d.fences {
		if st.pending {
			st.pending = false
			st.signaled = true
		}
	}
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, gpu.SwapchainInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := gpu.Swapchain(d.create("Swapchain"))
	info := gpu.SwapchainInfo{Format: gpu.FormatB8G8R8A8Unorm, Extent: desc.Extent}
	for i := 0; i < d.swapchainImages; i++ {
		d.next++
		info.Images = append(info.Images, gpu.Image(d.next))
	}
	return sc, info, nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy("Swapchain", gpu.Handle(sc))
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, signal gpu.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.acquireErrors) > 0 {
		err := d.acquireErrors[0]
		d.acquireErrors = d.acquireErrors[1:]
		d.record(Call{Op: "AcquireNextImage", Handle: gpu.Handle(signal), Args: err})
		return 0, err
	}
	idx := d.acquireIndex
	d.acquireIndex = (d.acquireIndex + 1) % uint32(d.swapchainImages)
	d.record(Call{Op: "AcquireNextImage", Handle: gpu.Handle(signal), Args: idx})
	return idx, nil
}

func (d *Device) Present(sc gpu.Swapchain, imageIndex uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "Present", Handle: gpu.Handle(wait), Args: imageIndex})
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "DestroyDevice"})
}
