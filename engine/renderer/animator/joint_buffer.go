package animator

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxJoints is the joint matrix capacity of one skin slot. Must match the array size in the
// skinned vertex shader.
const MaxJoints = 512

// JointMatrixSize is the byte size of one joint matrix.
const JointMatrixSize = common.Mat4Size

// DefaultSkinSlots is the number of skins the joint buffer holds unless configured otherwise.
const DefaultSkinSlots = 16

// JointBuffer is the persistently mapped uniform buffer holding the joint matrices of every
// skinned instance. Each skin owns one slot of Stride bytes; draws select their slot with a
// dynamic offset into the shared descriptor set.
type JointBuffer struct {
	buffer *resource.Buffer
	layout gpu.DescriptorSetLayout
	set    gpu.DescriptorSet
	stride uint64

	capacity int
	free     []int
	inUse    []bool
}

var _ model.SkinBinding = &JointBuffer{}
var _ device.Resource = &JointBuffer{}

// SlotStride returns the byte distance between skin slots: MaxJoints matrices rounded up to
// the device's minimum uniform offset alignment.
func SlotStride(minAlignment uint64) uint64 {
	return common.Align(MaxJoints*JointMatrixSize, minAlignment)
}

// NewJointBuffer creates the buffer, its dynamic uniform layout and descriptor set and installs
// the result on the Context. Failure is fatal.
//
// Parameters:
//   - ctx: the device Context
//   - slots: the number of skins the buffer can hold
//
// Returns:
//   - *JointBuffer: the installed buffer
func NewJointBuffer(ctx *device.Context, slots int) *JointBuffer {
	slots = max(slots, 1)
	dev := ctx.Device()
	j := &JointBuffer{
		stride:   SlotStride(ctx.MinUniformBufferOffsetAlignment()),
		capacity: slots,
		inUse:    make([]bool, slots),
	}

	layout, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0,
		Type:    gpu.DescriptorUniformBufferDynamic,
		Count:   1,
		Stages:  gpu.ShaderStageVertex,
	}})
	if err != nil {
		panic(fmt.Sprintf("animator: failed to create joint set layout: %v", err))
	}
	j.layout = layout

	j.buffer = resource.NewBuffer(ctx, j.stride*uint64(slots), gpu.BufferUsageUniform, resource.HostVisible, "joint matrices")
	j.buffer.Map(ctx)

	j.set = ctx.AllocateDescriptorSet(layout)
	dev.UpdateDescriptorSet(j.set, []gpu.DescriptorWrite{{
		Binding: 0,
		Type:    gpu.DescriptorUniformBufferDynamic,
		Buffer:  j.buffer.Handle,
		Range:   MaxJoints * JointMatrixSize,
	}})

	for i := slots - 1; i >= 0; i-- {
		j.free = append(j.free, i)
	}

	ctx.InsertResource(device.ResourceJointBuffer, j)
	return j
}

func (j *JointBuffer) Layout() gpu.DescriptorSetLayout {
	return j.layout
}

func (j *JointBuffer) Set() gpu.DescriptorSet {
	return j.set
}

func (j *JointBuffer) Offset(slot int) uint32 {
	return uint32(uint64(slot) * j.stride)
}

// Stride returns the byte distance between slots.
func (j *JointBuffer) Stride() uint64 {
	return j.stride
}

// Capacity returns the number of slots.
func (j *JointBuffer) Capacity() int {
	return j.capacity
}

// Available returns the number of free slots.
func (j *JointBuffer) Available() int {
	return len(j.free)
}

// Acquire reserves a slot and resets its matrices to identity.
//
// Parameters:
//   - ctx: the device Context
//
// Returns:
//   - int: the slot index
//   - bool: false when every slot is taken
func (j *JointBuffer) Acquire(ctx *device.Context) (int, bool) {
	if len(j.free) == 0 {
		return -1, false
	}
	slot := j.free[len(j.free)-1]
	j.free = j.free[:len(j.free)-1]
	j.inUse[slot] = true

	view := j.slotView(ctx, slot)
	ident := mgl32.Ident4()
	for i := range MaxJoints {
		if err := view.WriteMat4(uint64(i)*JointMatrixSize, ident); err != nil {
			panic(fmt.Sprintf("animator: joint slot %d reset: %v", slot, err))
		}
	}
	return slot, true
}

// Release returns slot to the free list. Releasing a free slot is ignored.
func (j *JointBuffer) Release(slot int) {
	if slot < 0 || slot >= j.capacity || !j.inUse[slot] {
		return
	}
	j.inUse[slot] = false
	j.free = append(j.free, slot)
}

func (j *JointBuffer) slotView(ctx *device.Context, slot int) resource.MappedView {
	return j.buffer.View(ctx, uint64(slot)*j.stride, MaxJoints*JointMatrixSize)
}

// WriteJoint stores m as joint of slot, at byte offset slot*Stride + joint*64 of the mapping.
//
// Parameters:
//   - ctx: the device Context
//   - slot: the skin slot
//   - joint: the joint index, below MaxJoints
//   - m: the joint matrix
//
// Returns:
//   - error: if slot is not acquired or the write is out of range
func (j *JointBuffer) WriteJoint(ctx *device.Context, slot, joint int, m mgl32.Mat4) error {
	if slot < 0 || slot >= j.capacity || !j.inUse[slot] {
		return fmt.Errorf("animator: joint slot %d is not acquired", slot)
	}
	if joint < 0 || joint >= MaxJoints {
		return fmt.Errorf("animator: joint %d out of range", joint)
	}
	return j.slotView(ctx, slot).WriteMat4(uint64(joint)*JointMatrixSize, m)
}

// Matrix reads joint of slot back from the mapping.
func (j *JointBuffer) Matrix(ctx *device.Context, slot, joint int) mgl32.Mat4 {
	var m mgl32.Mat4
	b := j.slotView(ctx, slot).Bytes()[joint*JointMatrixSize:]
	copy(common.Mat4Bytes(&m), b[:JointMatrixSize])
	return m
}

// Destroy frees the descriptor set and releases the layout and buffer.
func (j *JointBuffer) Destroy(ctx *device.Context) {
	if j.set != 0 {
		ctx.FreeDescriptorSet(j.set)
		j.set = 0
	}
	if j.layout != 0 {
		ctx.Device().DestroyDescriptorSetLayout(j.layout)
		j.layout = 0
	}
	if j.buffer != nil {
		j.buffer.Destroy(ctx)
		j.buffer = nil
	}
	log.Printf("[Animator] joint buffer released")
}
