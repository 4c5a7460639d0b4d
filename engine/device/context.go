// Package device owns the GPU device for one engine instance together with everything whose
// lifetime is bound to it: the descriptor pool, the engine-wide singleton resources, the staging
// buffer queue and the shader, model and per-frame collaborators. Teardown follows a fixed order
// so no child object outlives the device or the pool it was allocated from.
package device

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// Resource is an engine object holding GPU handles that must be released through the Context.
type Resource interface {
	Destroy(ctx *Context)
}

// Context is the single owner of the GPU device. It is created once at startup and mutated only
// from the render goroutine.
type Context struct {
	device gpu.Device
	info   gpu.DeviceInfo

	descriptorPool     gpu.DescriptorPool
	descriptorPoolDesc gpu.DescriptorPoolDesc

	resources   [resourceKindCount]Resource
	insertOrder []ResourceKind

	shaderCache Resource
	models      Resource
	perFrame    Resource

	staging stagingQueue

	destroyed bool
}

// New builds a Context over an already opened device and creates the shared descriptor pool.
//
// Parameters:
//   - dev: the opened gpu.Device the Context takes ownership of
//   - options: functional options applied before the descriptor pool is created
//
// Returns:
//   - *Context: the new Context
//   - error: error if the descriptor pool could not be created
func New(dev gpu.Device, options ...ContextBuilderOption) (*Context, error) {
	c := &Context{
		device: dev,
		info:   dev.Info(),
		descriptorPoolDesc: gpu.DescriptorPoolDesc{
			Sizes: []gpu.DescriptorPoolSize{
				{Type: gpu.DescriptorUniformBuffer, Count: 10},
				{Type: gpu.DescriptorCombinedImageSampler, Count: 1000},
			},
			MaxSets: 2000,
			Flags:   gpu.DescriptorPoolFreeDescriptorSet,
		},
		staging: newStagingQueue(),
	}

	for _, opt := range options {
		opt(c)
	}

	pool, err := dev.CreateDescriptorPool(c.descriptorPoolDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	c.descriptorPool = pool

	log.Printf("[Device] using %s (graphics family %d, compute family %d, present family %d)",
		c.info.Name, c.info.GraphicsFamily, c.info.ComputeFamily, c.info.PresentFamily)
	return c, nil
}

// Create opens a device through open and wraps it in a Context. Any failure is fatal: there is no
// engine without a device.
//
// Parameters:
//   - open: opens the backend device (physical device selection, queues, validation)
//   - options: functional options forwarded to New
//
// Returns:
//   - *Context: the new Context
func Create(open func() (gpu.Device, error), options ...ContextBuilderOption) *Context {
	dev, err := open()
	if err != nil {
		panic(fmt.Sprintf("device: failed to open GPU device: %v", err))
	}
	c, err := New(dev, options...)
	if err != nil {
		dev.Destroy()
		panic(fmt.Sprintf("device: failed to create context: %v", err))
	}
	return c
}

// Device returns the underlying gpu.Device.
func (c *Context) Device() gpu.Device {
	return c.device
}

// Info returns the properties of the selected physical device.
func (c *Context) Info() gpu.DeviceInfo {
	return c.info
}

// GraphicsFamily returns the queue family index of the graphics queue.
func (c *Context) GraphicsFamily() uint32 {
	return c.info.GraphicsFamily
}

// ComputeFamily returns the queue family index of the compute queue.
func (c *Context) ComputeFamily() uint32 {
	return c.info.ComputeFamily
}

// PresentFamily returns the queue family index of the present queue.
func (c *Context) PresentFamily() uint32 {
	return c.info.PresentFamily
}

// MinUniformBufferOffsetAlignment returns the device limit every dynamic uniform offset must be a
// multiple of.
func (c *Context) MinUniformBufferOffsetAlignment() uint64 {
	return c.info.MinUniformBufferOffsetAlignment
}

// DescriptorPool returns the shared descriptor pool.
func (c *Context) DescriptorPool() gpu.DescriptorPool {
	return c.descriptorPool
}

// AllocateDescriptorSet allocates a set with the given layout from the shared pool.
// Pool exhaustion is fatal.
func (c *Context) AllocateDescriptorSet(layout gpu.DescriptorSetLayout) gpu.DescriptorSet {
	set, err := c.device.AllocateDescriptorSet(c.descriptorPool, layout)
	if err != nil {
		panic(fmt.Sprintf("device: failed to allocate descriptor set: %v", err))
	}
	return set
}

// FreeDescriptorSet returns a set to the shared pool.
func (c *Context) FreeDescriptorSet(set gpu.DescriptorSet) {
	if set == 0 {
		return
	}
	c.device.FreeDescriptorSet(c.descriptorPool, set)
}

// SetShaderCache installs the shader module cache. It is destroyed first during teardown.
func (c *Context) SetShaderCache(r Resource) {
	c.shaderCache = r
}

// ShaderCache returns the installed shader module cache, or nil.
func (c *Context) ShaderCache() Resource {
	return c.shaderCache
}

// SetModels installs the table of GPU-resident models.
func (c *Context) SetModels(r Resource) {
	c.models = r
}

// Models returns the installed model table, or nil.
func (c *Context) Models() Resource {
	return c.models
}

// SetPerFrame installs the per-frame uniform.
func (c *Context) SetPerFrame(r Resource) {
	c.perFrame = r
}

// PerFrame returns the installed per-frame uniform, or nil.
func (c *Context) PerFrame() Resource {
	return c.perFrame
}

// WaitIdle blocks until every queue on the device is idle. Failure is fatal.
func (c *Context) WaitIdle() {
	if err := c.device.WaitIdle(); err != nil {
		panic(fmt.Sprintf("device: wait idle failed: %v", err))
	}
}

// Destroyed reports whether Destroy has run.
func (c *Context) Destroyed() bool {
	return c.destroyed
}

// Destroy waits for the device to go idle and releases everything the Context owns in a fixed
// order: pending staging buffers, the shader cache, ad hoc resources in reverse insertion order,
// the model table, the per-frame uniform, the descriptor pool and finally the device.
// Calling Destroy more than once is a no-op.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true

	if err := c.device.WaitIdle(); err != nil {
		log.Printf("[Device] WARNING: wait idle before destroy failed: %v", err)
	}

	c.staging.releaseAll(c)

	if c.shaderCache != nil {
		c.shaderCache.Destroy(c)
		c.shaderCache = nil
	}

	for i := len(c.insertOrder) - 1; i >= 0; i-- {
		kind := c.insertOrder[i]
		if r := c.resources[kind]; r != nil {
			r.Destroy(c)
			c.resources[kind] = nil
		}
	}
	c.insertOrder = nil

	if c.models != nil {
		c.models.Destroy(c)
		c.models = nil
	}

	if c.perFrame != nil {
		c.perFrame.Destroy(c)
		c.perFrame = nil
	}

	c.device.DestroyDescriptorPool(c.descriptorPool)
	c.descriptorPool = 0

	c.device.Destroy()
}
