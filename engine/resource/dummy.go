package resource

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// DummyResources holds placeholder textures bound in place of missing material maps.
type DummyResources struct {
	White *Texture
}

var _ device.Resource = &DummyResources{}

// NewDummyResources records the upload of a 1x1 opaque white texture into cmd.
func NewDummyResources(ctx *device.Context, cmd gpu.CommandBuffer) *DummyResources {
	return &DummyResources{
		White: NewTexture(ctx, cmd, 1, 1, []byte{0xff, 0xff, 0xff, 0xff}, false, "dummy white"),
	}
}

func (d *DummyResources) Destroy(ctx *device.Context) {
	d.White.Destroy(ctx)
}
