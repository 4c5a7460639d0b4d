package device

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplerResource owns one sampler so its destruction shows up in the device trace.
type samplerResource struct {
	sampler   gpu.Sampler
	destroyed int
}

func newSamplerResource(t *testing.T, ctx *Context) *samplerResource {
	t.Helper()
	s, err := ctx.Device().CreateSampler(gpu.SamplerDesc{})
	require.NoError(t, err)
	return &samplerResource{sampler: s}
}

func (r *samplerResource) Destroy(ctx *Context) {
	r.destroyed++
	ctx.Device().DestroySampler(r.sampler)
}

func newTestContext(t *testing.T, options ...gputest.DeviceOption) (*Context, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice(options...)
	ctx, err := New(dev)
	require.NoError(t, err)
	return ctx, dev
}

func TestNewCreatesDescriptorPool(t *testing.T) {
	ctx, dev := newTestContext(t)

	pools := dev.Calls("CreateDescriptorPool")
	require.Len(t, pools, 1)
	desc := pools[0].Args.(gpu.DescriptorPoolDesc)
	assert.Equal(t, uint32(2000), desc.MaxSets)
	assert.Equal(t, gpu.DescriptorPoolFreeDescriptorSet, desc.Flags)
	assert.Contains(t, desc.Sizes, gpu.DescriptorPoolSize{Type: gpu.DescriptorUniformBuffer, Count: 10})
	assert.Contains(t, desc.Sizes, gpu.DescriptorPoolSize{Type: gpu.DescriptorCombinedImageSampler, Count: 1000})
	assert.Equal(t, gpu.DescriptorPool(pools[0].Handle), ctx.DescriptorPool())
}

func TestDescriptorPoolOptions(t *testing.T) {
	dev := gputest.NewDevice()
	_, err := New(dev,
		WithDescriptorPoolSizes(32, 64, 128),
		WithStorageDescriptors(8),
		WithDynamicUniformDescriptors(2),
	)
	require.NoError(t, err)

	desc := dev.Calls("CreateDescriptorPool")[0].Args.(gpu.DescriptorPoolDesc)
	assert.Equal(t, uint32(128), desc.MaxSets)
	assert.Equal(t, []gpu.DescriptorPoolSize{
		{Type: gpu.DescriptorUniformBuffer, Count: 32},
		{Type: gpu.DescriptorCombinedImageSampler, Count: 64},
		{Type: gpu.DescriptorStorageBuffer, Count: 8},
		{Type: gpu.DescriptorUniformBufferDynamic, Count: 2},
	}, desc.Sizes)
}

func TestDestroyOrder(t *testing.T) {
	ctx, dev := newTestContext(t)

	shaders := newSamplerResource(t, ctx)
	first := newSamplerResource(t, ctx)
	second := newSamplerResource(t, ctx)
	models := newSamplerResource(t, ctx)
	perFrame := newSamplerResource(t, ctx)
	staged := newSamplerResource(t, ctx)

	ctx.SetShaderCache(shaders)
	ctx.InsertResource(ResourceShadowPass, first)
	ctx.InsertResource(ResourceDummy, second)
	ctx.SetModels(models)
	ctx.SetPerFrame(perFrame)
	ctx.PushStagingBuffer(staged)

	ctx.Destroy()

	at := func(r *samplerResource) int {
		return dev.Index("DestroySampler", gpu.Handle(r.sampler))
	}
	waitIdle := -1
	for i, op := range dev.Ops() {
		if op == "WaitIdle" {
			waitIdle = i
		}
	}
	ops := dev.Ops()
	devIdx := len(ops) - 1

	require.NotEqual(t, -1, waitIdle)
	assert.Less(t, waitIdle, at(staged))
	assert.Less(t, at(staged), at(shaders))
	assert.Less(t, at(shaders), at(second), "ad hoc resources follow the shader cache")
	assert.Less(t, at(second), at(first), "ad hoc resources are destroyed in reverse insertion order")
	assert.Less(t, at(first), at(models))
	assert.Less(t, at(models), at(perFrame))
	poolIdx := -1
	for i, op := range ops {
		if op == "DestroyDescriptorPool" {
			poolIdx = i
		}
	}
	assert.Less(t, at(perFrame), poolIdx)
	assert.Equal(t, "DestroyDevice", ops[devIdx])
	assert.Less(t, poolIdx, devIdx)
	assert.Empty(t, dev.Violations())
	assert.Empty(t, dev.Live())
}

func TestDestroyTwiceIsNoop(t *testing.T) {
	ctx, dev := newTestContext(t)
	r := newSamplerResource(t, ctx)
	ctx.InsertResource(ResourceGrass, r)

	ctx.Destroy()
	ctx.Destroy()

	assert.Equal(t, 1, r.destroyed)
	assert.Len(t, dev.Calls("DestroyDevice"), 1)
	assert.True(t, ctx.Destroyed())
}

func TestInsertResourceReplacesPrevious(t *testing.T) {
	ctx, _ := newTestContext(t)
	old := newSamplerResource(t, ctx)
	fresh := newSamplerResource(t, ctx)

	ctx.InsertResource(ResourceDummy, old)
	ctx.InsertResource(ResourceDummy, fresh)

	assert.Equal(t, 1, old.destroyed)
	assert.Same(t, fresh, Get[*samplerResource](ctx, ResourceDummy))

	ctx.Destroy()
	assert.Equal(t, 1, old.destroyed)
	assert.Equal(t, 1, fresh.destroyed)
}

func TestMustResourcePanicsWhenMissing(t *testing.T) {
	ctx, _ := newTestContext(t)

	assert.PanicsWithValue(t, "device: resource ForwardPass was never inserted", func() {
		ctx.MustResource(ResourceForwardPass)
	})
	_, ok := Lookup[*samplerResource](ctx, ResourceForwardPass)
	assert.False(t, ok)
}

func TestStagingReleasedOnlyAfterSubmissionCompletes(t *testing.T) {
	ctx, _ := newTestContext(t)
	a := newSamplerResource(t, ctx)
	b := newSamplerResource(t, ctx)

	ctx.PushStagingBuffer(a)
	assert.Equal(t, 0, ctx.FlushStagingBuffers(), "nothing submitted yet")
	assert.Equal(t, 0, a.destroyed)

	id := ctx.MarkSubmitted()
	ctx.PushStagingBuffer(b)

	assert.Equal(t, 1, ctx.CompleteSubmission(id))
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, 0, b.destroyed, "buffer pushed after the submit belongs to the next one")
	assert.Equal(t, 1, ctx.PendingStagingBuffers())

	assert.Equal(t, 0, ctx.CompleteSubmission(id+5), "unsubmitted IDs are clamped")
	assert.Equal(t, 0, b.destroyed)

	ctx.MarkSubmitted()
	assert.Equal(t, 1, ctx.FlushStagingBuffers())
	assert.Equal(t, 1, b.destroyed)
	assert.Equal(t, 0, ctx.PendingStagingBuffers())
}

func TestFindMemoryTypeIndex(t *testing.T) {
	ctx, _ := newTestContext(t, gputest.WithMemoryTypes(
		gpu.MemoryType{Properties: gpu.MemoryDeviceLocal},
		gpu.MemoryType{Properties: gpu.MemoryHostVisible | gpu.MemoryHostCoherent},
		gpu.MemoryType{Properties: gpu.MemoryDeviceLocal | gpu.MemoryHostVisible | gpu.MemoryHostCoherent},
	))

	tests := []struct {
		name  string
		bits  uint32
		props gpu.MemoryProperty
		want  uint32
		found bool
	}{
		{"device local", 0b111, gpu.MemoryDeviceLocal, 0, true},
		{"host coherent", 0b111, gpu.MemoryHostVisible | gpu.MemoryHostCoherent, 1, true},
		{"masked by type bits", 0b101, gpu.MemoryHostVisible, 2, true},
		{"no match", 0b001, gpu.MemoryHostVisible, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ctx.FindMemoryTypeIndex(gpu.MemoryRequirements{TypeBits: tt.bits}, tt.props)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAllocateMemoryPanicsWithoutMatchingType(t *testing.T) {
	ctx, _ := newTestContext(t, gputest.WithMemoryTypes(gpu.MemoryType{Properties: gpu.MemoryDeviceLocal}))

	assert.Panics(t, func() {
		ctx.AllocateMemory(gpu.MemoryRequirements{Size: 64, TypeBits: 1}, gpu.MemoryHostVisible, "staging")
	})
}

func TestCreatePanicsOnOpenFailure(t *testing.T) {
	assert.Panics(t, func() {
		Create(func() (gpu.Device, error) { return nil, assert.AnError })
	})
}
