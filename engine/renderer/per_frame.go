package renderer

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// PerFrameData is the uniform block every pass reads at set 0, binding 0. The layout matches
// std140: three matrices, three vec4s and two floats padded to 256 bytes.
type PerFrameData struct {
	View        mgl32.Mat4
	Proj        mgl32.Mat4
	LightMatrix mgl32.Mat4
	LightDir    mgl32.Vec4
	CameraPos   mgl32.Vec4
	CameraDir   mgl32.Vec4
	DeltaTime   float32
	TotalTime   float32
	_           [2]float32
}

// PerFrameDataSize is the byte size of PerFrameData.
const PerFrameDataSize = uint64(unsafe.Sizeof(PerFrameData{}))

// PerFrameStages are the shader stages the per-frame uniform is visible to.
const PerFrameStages = gpu.ShaderStageVertex | gpu.ShaderStageFragment | gpu.ShaderStageCompute

// PerFrameUniform owns the host-visible uniform buffer holding one PerFrameData per ring slot,
// the shared descriptor set layout and one descriptor set per slot. A slot's region is written
// only after BeginDraw has waited on that slot's fence, so frames still in flight keep reading
// their own copy.
type PerFrameUniform struct {
	Buffer *resource.Buffer
	Layout gpu.DescriptorSetLayout
	Sets   []gpu.DescriptorSet

	stride  uint64
	current int
	data    PerFrameData
}

var _ device.Resource = &PerFrameUniform{}

// NewPerFrameUniform creates the uniform buffer, layout and per-slot sets and installs the
// result on the Context so it is destroyed after the model table. Failure is fatal.
//
// Parameters:
//   - ctx: the device Context
//   - slots: the number of frames in flight
//
// Returns:
//   - *PerFrameUniform: the installed uniform
func NewPerFrameUniform(ctx *device.Context, slots int) *PerFrameUniform {
	if slots < 1 {
		panic(fmt.Sprintf("renderer: per-frame uniform needs at least one slot, got %d", slots))
	}
	dev := ctx.Device()
	layout, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0,
		Type:    gpu.DescriptorUniformBuffer,
		Count:   1,
		Stages:  PerFrameStages,
	}})
	if err != nil {
		panic(fmt.Sprintf("renderer: failed to create per-frame set layout: %v", err))
	}

	u := &PerFrameUniform{
		Layout: layout,
		stride: common.Align(PerFrameDataSize, ctx.MinUniformBufferOffsetAlignment()),
	}
	u.data.View = mgl32.Ident4()
	u.data.Proj = mgl32.Ident4()
	u.data.LightMatrix = mgl32.Ident4()

	initial := make([]byte, u.stride*uint64(slots))
	for slot := range slots {
		copy(initial[uint64(slot)*u.stride:], common.StructToBytes(&u.data))
	}
	u.Buffer = resource.NewHostVisibleBuffer(ctx, gpu.BufferUsageUniform, initial, "per-frame uniform")

	for slot := range slots {
		set := ctx.AllocateDescriptorSet(layout)
		dev.UpdateDescriptorSet(set, []gpu.DescriptorWrite{{
			Binding: 0,
			Type:    gpu.DescriptorUniformBuffer,
			Buffer:  u.Buffer.Handle,
			Offset:  uint64(slot) * u.stride,
			Range:   PerFrameDataSize,
		}})
		u.Sets = append(u.Sets, set)
	}

	ctx.SetPerFrame(u)
	return u
}

// Data returns the last uploaded PerFrameData.
func (u *PerFrameUniform) Data() PerFrameData {
	return u.data
}

// Set returns the descriptor set of the slot written by the last Upload.
func (u *PerFrameUniform) Set() gpu.DescriptorSet {
	return u.Sets[u.current]
}

// Stride returns the distance in bytes between two slots' regions.
func (u *PerFrameUniform) Stride() uint64 {
	return u.stride
}

// Upload copies data into slot's region of the persistently mapped buffer and makes slot the
// current one. Callers upload after BeginDraw has waited on the slot's fence.
//
// Parameters:
//   - ctx: the device Context
//   - slot: the ring slot of the frame being recorded
//   - data: the values for this frame
func (u *PerFrameUniform) Upload(ctx *device.Context, slot int, data PerFrameData) {
	if slot < 0 || slot >= len(u.Sets) {
		panic(fmt.Sprintf("renderer: per-frame slot %d out of range [0, %d)", slot, len(u.Sets)))
	}
	u.data = data
	u.current = slot
	if err := u.Buffer.Upload(ctx, uint64(slot)*u.stride, common.StructToBytes(&u.data)); err != nil {
		panic(fmt.Sprintf("renderer: failed to upload per-frame data: %v", err))
	}
}

// Destroy frees the descriptor sets and releases the layout and buffer.
func (u *PerFrameUniform) Destroy(ctx *device.Context) {
	dev := ctx.Device()
	for _, set := range u.Sets {
		ctx.FreeDescriptorSet(set)
	}
	u.Sets = nil
	if u.Layout != 0 {
		dev.DestroyDescriptorSetLayout(u.Layout)
		u.Layout = 0
	}
	if u.Buffer != nil {
		u.Buffer.Destroy(ctx)
		u.Buffer = nil
	}
}
