package device

import (
	"fmt"
	"log"
)

// ResourceKind names one engine-wide singleton resource slot.
type ResourceKind int

const (
	// ResourceDummy holds the placeholder textures bound when a material has none.
	ResourceDummy ResourceKind = iota
	// ResourceShadowPass holds the depth-only shadow render pass and its attachments.
	ResourceShadowPass
	// ResourceForwardPass holds the color+depth forward render pass and its render targets.
	ResourceForwardPass
	// ResourceModelPipelines holds the model shadow and forward pipelines.
	ResourceModelPipelines
	// ResourceJointBuffer holds the mapped joint matrix buffer of every skinned instance.
	ResourceJointBuffer
	// ResourceGrass holds the grass compute and draw pipelines with their buffers.
	ResourceGrass

	resourceKindCount
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceDummy:
		return "Dummy"
	case ResourceShadowPass:
		return "ShadowPass"
	case ResourceForwardPass:
		return "ForwardPass"
	case ResourceModelPipelines:
		return "ModelPipelines"
	case ResourceJointBuffer:
		return "JointBuffer"
	case ResourceGrass:
		return "Grass"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// InsertResource stores r under kind. A previous instance under the same kind is destroyed
// first. Inserting nil removes and destroys the current instance.
//
// Parameters:
//   - kind: the slot to fill
//   - r: the resource to store
func (c *Context) InsertResource(kind ResourceKind, r Resource) {
	if kind < 0 || kind >= resourceKindCount {
		panic(fmt.Sprintf("device: unknown resource kind %d", int(kind)))
	}
	if prev := c.resources[kind]; prev != nil {
		log.Printf("[Device] replacing resource %s", kind)
		prev.Destroy(c)
		c.removeOrder(kind)
	}
	c.resources[kind] = r
	if r != nil {
		c.insertOrder = append(c.insertOrder, kind)
	}
}

// Resource returns the resource stored under kind and whether one was inserted.
func (c *Context) Resource(kind ResourceKind) (Resource, bool) {
	if kind < 0 || kind >= resourceKindCount {
		return nil, false
	}
	r := c.resources[kind]
	return r, r != nil
}

// MustResource returns the resource stored under kind. A missing resource is a programming error
// and panics.
func (c *Context) MustResource(kind ResourceKind) Resource {
	r, ok := c.Resource(kind)
	if !ok {
		panic(fmt.Sprintf("device: resource %s was never inserted", kind))
	}
	return r
}

// Get returns the resource stored under kind as T. It panics when the slot is empty or holds a
// different type.
//
// Parameters:
//   - c: the Context to read from
//   - kind: the slot to read
//
// Returns:
//   - T: the stored resource
func Get[T Resource](c *Context, kind ResourceKind) T {
	r := c.MustResource(kind)
	t, ok := r.(T)
	if !ok {
		panic(fmt.Sprintf("device: resource %s has type %T", kind, r))
	}
	return t
}

// Lookup returns the resource stored under kind as T and whether it exists with that type.
func Lookup[T Resource](c *Context, kind ResourceKind) (T, bool) {
	var zero T
	r, ok := c.Resource(kind)
	if !ok {
		return zero, false
	}
	t, ok := r.(T)
	return t, ok
}

func (c *Context) removeOrder(kind ResourceKind) {
	for i, k := range c.insertOrder {
		if k == kind {
			c.insertOrder = append(c.insertOrder[:i], c.insertOrder[i+1:]...)
			return
		}
	}
}
