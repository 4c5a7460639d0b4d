package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// CommandList is the graphics command pool with one command buffer per ring slot plus a trailing
// upload buffer.
type CommandList struct {
	pool    gpu.CommandPool
	buffers []gpu.CommandBuffer
}

// NewCommandList creates the pool with RESET_COMMAND_BUFFER|TRANSIENT and allocates frames+1
// primary command buffers. Failure is fatal.
//
// Parameters:
//   - ctx: the device Context
//   - frames: the number of ring slots
//
// Returns:
//   - *CommandList: the new list
func NewCommandList(ctx *device.Context, frames int) *CommandList {
	dev := ctx.Device()
	pool, err := dev.CreateCommandPool(gpu.QueueGraphics, gpu.CommandPoolResetCommandBuffer|gpu.CommandPoolTransient)
	if err != nil {
		panic(fmt.Sprintf("renderer: failed to create command pool: %v", err))
	}
	buffers, err := dev.AllocateCommandBuffers(pool, frames+1)
	if err != nil {
		dev.DestroyCommandPool(pool)
		panic(fmt.Sprintf("renderer: failed to allocate %d command buffers: %v", frames+1, err))
	}
	return &CommandList{pool: pool, buffers: buffers}
}

// Frame returns the command buffer of ring slot i.
func (l *CommandList) Frame(i int) gpu.CommandBuffer {
	return l.buffers[i]
}

// Upload returns the command buffer reserved for upload passes.
func (l *CommandList) Upload() gpu.CommandBuffer {
	return l.buffers[len(l.buffers)-1]
}

// Frames returns the number of ring slot command buffers.
func (l *CommandList) Frames() int {
	return len(l.buffers) - 1
}

// Pool returns the command pool the buffers were allocated from.
func (l *CommandList) Pool() gpu.CommandPool {
	return l.pool
}

// Destroy destroys the pool, which frees every buffer allocated from it.
func (l *CommandList) Destroy(ctx *device.Context) {
	if l.pool == 0 {
		return
	}
	ctx.Device().DestroyCommandPool(l.pool)
	l.pool = 0
	l.buffers = nil
}
