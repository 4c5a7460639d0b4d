package device

import "github.com/Carmen-Shannon/oxy-vk/engine/gpu"

// ContextBuilderOption is a functional option applied to a Context during construction via New.
type ContextBuilderOption func(*Context)

// WithDescriptorPoolSizes overrides the descriptor counts of the shared pool.
//
// Parameters:
//   - uniformBuffers: number of uniform buffer descriptors
//   - imageSamplers: number of combined image sampler descriptors
//   - maxSets: maximum number of sets allocated at once
//
// Returns:
//   - ContextBuilderOption: a function that applies the pool sizes to a Context
func WithDescriptorPoolSizes(uniformBuffers, imageSamplers, maxSets uint32) ContextBuilderOption {
	return func(c *Context) {
		c.descriptorPoolDesc = gpu.DescriptorPoolDesc{
			Sizes: []gpu.DescriptorPoolSize{
				{Type: gpu.DescriptorUniformBuffer, Count: uniformBuffers},
				{Type: gpu.DescriptorCombinedImageSampler, Count: imageSamplers},
			},
			MaxSets: maxSets,
			Flags:   gpu.DescriptorPoolFreeDescriptorSet,
		}
	}
}

// WithStorageDescriptors adds storage buffer descriptors to the shared pool, needed when compute
// pipelines bind their buffers through descriptor sets.
//
// Parameters:
//   - count: number of storage buffer descriptors
//
// Returns:
//   - ContextBuilderOption: a function that applies the storage descriptor count to a Context
func WithStorageDescriptors(count uint32) ContextBuilderOption {
	return func(c *Context) {
		c.descriptorPoolDesc.Sizes = append(c.descriptorPoolDesc.Sizes,
			gpu.DescriptorPoolSize{Type: gpu.DescriptorStorageBuffer, Count: count})
	}
}

// WithDynamicUniformDescriptors adds dynamic uniform buffer descriptors to the shared pool,
// needed by sets that select their range with a dynamic offset at bind time.
//
// Parameters:
//   - count: number of dynamic uniform buffer descriptors
//
// Returns:
//   - ContextBuilderOption: a function that applies the dynamic uniform count to a Context
func WithDynamicUniformDescriptors(count uint32) ContextBuilderOption {
	return func(c *Context) {
		c.descriptorPoolDesc.Sizes = append(c.descriptorPoolDesc.Sizes,
			gpu.DescriptorPoolSize{Type: gpu.DescriptorUniformBufferDynamic, Count: count})
	}
}
