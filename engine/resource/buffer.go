// Package resource implements the GPU memory objects of the engine: buffers in host-visible or
// device-local memory, sampled and attachment images, and the staging protocol used to fill
// device-local objects from the CPU.
package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// MemoryClass selects where a buffer's memory lives.
type MemoryClass int

const (
	// HostVisible memory is HOST_VISIBLE|HOST_COHERENT and can be mapped.
	HostVisible MemoryClass = iota
	// DeviceLocal memory is DEVICE_LOCAL and filled through staging copies.
	DeviceLocal
)

func (m MemoryClass) properties() gpu.MemoryProperty {
	if m == DeviceLocal {
		return gpu.MemoryDeviceLocal
	}
	return gpu.MemoryHostVisible | gpu.MemoryHostCoherent
}

// Buffer is a GPU buffer bound to its own allocation. Host-visible buffers may be persistently
// mapped. The owner destroys it once no recorded command references it.
type Buffer struct {
	Handle gpu.Buffer
	Memory gpu.DeviceMemory
	Size   uint64
	Usage  gpu.BufferUsage
	Class  MemoryClass
	Label  string

	mapped []byte
}

var _ device.Resource = &Buffer{}

// NewBuffer creates an empty buffer. Creation, allocation and binding failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - size: the size in bytes
//   - usage: the buffer usage flags
//   - class: the memory class backing the buffer
//   - label: a debug name
//
// Returns:
//   - *Buffer: the new buffer
func NewBuffer(ctx *device.Context, size uint64, usage gpu.BufferUsage, class MemoryClass, label string) *Buffer {
	dev := ctx.Device()
	handle, req, err := dev.CreateBuffer(gpu.BufferDesc{Size: size, Usage: usage, Label: label})
	if err != nil {
		panic(fmt.Sprintf("resource: failed to create buffer %s: %v", label, err))
	}
	mem := ctx.AllocateMemory(req, class.properties(), label)
	if err := dev.BindBufferMemory(handle, mem, 0); err != nil {
		panic(fmt.Sprintf("resource: failed to bind memory of buffer %s: %v", label, err))
	}
	return &Buffer{
		Handle: handle,
		Memory: mem,
		Size:   size,
		Usage:  usage,
		Class:  class,
		Label:  label,
	}
}

// NewHostVisibleBuffer creates a mapped host-visible buffer holding a copy of data.
//
// Parameters:
//   - ctx: the device Context
//   - usage: the buffer usage flags
//   - data: the initial contents; its length is the buffer size
//   - label: a debug name
//
// Returns:
//   - *Buffer: the new buffer, left mapped
func NewHostVisibleBuffer(ctx *device.Context, usage gpu.BufferUsage, data []byte, label string) *Buffer {
	b := NewBuffer(ctx, uint64(len(data)), usage, HostVisible, label)
	copy(b.Map(ctx), data)
	return b
}

// NewDeviceLocalBuffer creates a device-local buffer filled from data through a staging buffer.
// The copy is recorded into cmd, which must be the open upload command buffer; the staging
// buffer is handed to the Context and released once that upload completes.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording upload command buffer
//   - usage: the buffer usage flags; TRANSFER_DST is added
//   - data: the contents to upload
//   - label: a debug name
//
// Returns:
//   - *Buffer: the new buffer
func NewDeviceLocalBuffer(ctx *device.Context, cmd gpu.CommandBuffer, usage gpu.BufferUsage, data []byte, label string) *Buffer {
	staging := NewHostVisibleBuffer(ctx, gpu.BufferUsageTransferSrc, data, label+" staging")
	b := NewBuffer(ctx, uint64(len(data)), usage|gpu.BufferUsageTransferDst, DeviceLocal, label)
	ctx.Device().CmdCopyBuffer(cmd, staging.Handle, b.Handle, []gpu.BufferCopy{{Size: uint64(len(data))}})
	ctx.PushStagingBuffer(staging)
	return b
}

// Map maps the whole buffer and returns its bytes. Repeated calls return the same mapping.
// Mapping a device-local buffer or a failed map is fatal.
func (b *Buffer) Map(ctx *device.Context) []byte {
	if b.mapped != nil {
		return b.mapped
	}
	if b.Class != HostVisible {
		panic(fmt.Sprintf("resource: buffer %s is not host visible", b.Label))
	}
	data, err := ctx.Device().MapMemory(b.Memory, 0, b.Size)
	if err != nil {
		panic(fmt.Sprintf("resource: failed to map buffer %s: %v", b.Label, err))
	}
	b.mapped = data[:b.Size]
	return b.mapped
}

// Mapped reports whether the buffer currently holds a mapping.
func (b *Buffer) Mapped() bool {
	return b.mapped != nil
}

// Upload copies data into the mapped buffer at offset.
//
// Parameters:
//   - ctx: the device Context
//   - offset: the destination byte offset
//   - data: the bytes to write
//
// Returns:
//   - error: ErrOutOfBounds if the write does not fit
func (b *Buffer) Upload(ctx *device.Context, offset uint64, data []byte) error {
	return b.View(ctx, 0, b.Size).Write(offset, data)
}

// View returns a bounds-checked view over [offset, offset+size) of the mapped buffer.
// The range is clamped to the buffer.
func (b *Buffer) View(ctx *device.Context, offset, size uint64) MappedView {
	data := b.Map(ctx)
	if offset > uint64(len(data)) {
		offset = uint64(len(data))
	}
	end := offset + size
	if size == gpu.WholeSize || end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return MappedView{data: data[offset:end:end], base: offset}
}

// Destroy unmaps the buffer if needed, destroys it and frees its memory.
func (b *Buffer) Destroy(ctx *device.Context) {
	if b.Handle == 0 {
		return
	}
	dev := ctx.Device()
	if b.mapped != nil {
		dev.UnmapMemory(b.Memory)
		b.mapped = nil
	}
	dev.DestroyBuffer(b.Handle)
	dev.FreeMemory(b.Memory)
	b.Handle = 0
	b.Memory = 0
}
