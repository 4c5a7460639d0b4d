package device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// FindMemoryTypeIndex returns the first memory type allowed by the requirements' type bits whose
// properties include every flag in props.
//
// Parameters:
//   - req: the memory requirements reported for a buffer or image
//   - props: the property flags the allocation needs
//
// Returns:
//   - uint32: the memory type index
//   - bool: false if no type satisfies both constraints
func (c *Context) FindMemoryTypeIndex(req gpu.MemoryRequirements, props gpu.MemoryProperty) (uint32, bool) {
	for i, t := range c.device.MemoryTypes() {
		if req.TypeBits&(1<<uint(i)) == 0 {
			continue
		}
		if t.Properties&props == props {
			return uint32(i), true
		}
	}
	return 0, false
}

// AllocateMemory allocates memory satisfying req with the given properties. A missing memory type
// or a failed allocation is fatal.
//
// Parameters:
//   - req: the memory requirements of the object being backed
//   - props: the property flags the allocation needs
//   - label: name of the object used in the panic message
//
// Returns:
//   - gpu.DeviceMemory: the allocation
func (c *Context) AllocateMemory(req gpu.MemoryRequirements, props gpu.MemoryProperty, label string) gpu.DeviceMemory {
	index, ok := c.FindMemoryTypeIndex(req, props)
	if !ok {
		panic(fmt.Sprintf("device: no memory type with properties %#x for %s (type bits %#x)", uint32(props), label, req.TypeBits))
	}
	mem, err := c.device.AllocateMemory(req.Size, index)
	if err != nil {
		panic(fmt.Sprintf("device: failed to allocate %d bytes for %s: %v", req.Size, label, err))
	}
	return mem
}
