package vulkan

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

func (d *device) CreateFence(signaled bool) (gpu.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := newError("create fence", vk.CreateFence(d.dev, &info, nil, &f)); err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.add(f)), nil
}

func (d *device) DestroyFence(f gpu.Fence) {
	if v, ok := d.fences.take(gpu.Handle(f)); ok {
		vk.DestroyFence(d.dev, v, nil)
	}
}

func (d *device) WaitForFence(f gpu.Fence) error {
	fence, ok := d.fences.get(gpu.Handle(f))
	if !ok {
		return fmt.Errorf("wait for fence: %w", ErrUnknownHandle)
	}
	return newError("wait for fence", vk.WaitForFences(d.dev, 1, []vk.Fence{fence}, vk.True, math.MaxUint64))
}

func (d *device) ResetFence(f gpu.Fence) error {
	fence, ok := d.fences.get(gpu.Handle(f))
	if !ok {
		return fmt.Errorf("reset fence: %w", ErrUnknownHandle)
	}
	return newError("reset fence", vk.ResetFences(d.dev, 1, []vk.Fence{fence}))
}

func (d *device) CreateSemaphore() (gpu.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := newError("create semaphore", vk.CreateSemaphore(d.dev, &info, nil, &s)); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.add(s)), nil
}

func (d *device) DestroySemaphore(s gpu.Semaphore) {
	if v, ok := d.semaphores.take(gpu.Handle(s)); ok {
		vk.DestroySemaphore(d.dev, v, nil)
	}
}

func (d *device) QueueSubmit(queue gpu.QueueKind, submit gpu.SubmitInfo, fence gpu.Fence) error {
	d.checkValidation()

	cmds := make([]vk.CommandBuffer, len(submit.Commands))
	for i, c := range submit.Commands {
		cmds[i] = d.cmdBuffers.must(gpu.Handle(c))
	}
	waits := make([]vk.Semaphore, len(submit.Wait))
	stages := make([]vk.PipelineStageFlags, len(submit.Wait))
	for i, w := range submit.Wait {
		waits[i] = d.semaphores.must(gpu.Handle(w.Semaphore))
		stages[i] = vk.PipelineStageFlags(w.Stage)
	}
	signals := make([]vk.Semaphore, len(submit.Signal))
	for i, s := range submit.Signal {
		signals[i] = d.semaphores.must(gpu.Handle(s))
	}
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	vkFence := vk.NullFence
	if fence != 0 {
		vkFence = d.fences.must(gpu.Handle(fence))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return newError(fmt.Sprintf("submit to %s queue", queue), vk.QueueSubmit(d.queues[queue], 1, []vk.SubmitInfo{info}, vkFence))
}

func (d *device) QueueWaitIdle(queue gpu.QueueKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return newError(fmt.Sprintf("%s queue wait idle", queue), vk.QueueWaitIdle(d.queues[queue]))
}
