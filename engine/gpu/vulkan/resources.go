package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

func (d *device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, gpu.MemoryRequirements, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := newError(fmt.Sprintf("create buffer %q", desc.Label), vk.CreateBuffer(d.dev, &info, nil, &buf)); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.dev, buf, &req)
	req.Deref()
	return gpu.Buffer(d.buffers.add(buf)), requirements(req), nil
}

func (d *device) DestroyBuffer(buf gpu.Buffer) {
	if b, ok := d.buffers.take(gpu.Handle(buf)); ok {
		vk.DestroyBuffer(d.dev, b, nil)
	}
}

func (d *device) CreateImage(desc gpu.ImageDesc) (gpu.Image, gpu.MemoryRequirements, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     atLeastOne(desc.MipLevels),
		ArrayLayers:   atLeastOne(desc.ArrayLayers),
		Samples:       sampleCount(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := newError(fmt.Sprintf("create image %q", desc.Label), vk.CreateImage(d.dev, &info, nil, &img)); err != nil {
		return 0, gpu.MemoryRequirements{}, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.dev, img, &req)
	req.Deref()
	return gpu.Image(d.images.add(image{img: img})), requirements(req), nil
}

func (d *device) DestroyImage(img gpu.Image) {
	i, ok := d.images.get(gpu.Handle(img))
	if !ok || i.external {
		return
	}
	d.images.take(gpu.Handle(img))
	vk.DestroyImage(d.dev, i.img, nil)
}

func (d *device) AllocateMemory(size uint64, typeIndex uint32) (gpu.DeviceMemory, error) {
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := newError("allocate memory", vk.AllocateMemory(d.dev, &info, nil, &mem)); err != nil {
		return 0, err
	}
	return gpu.DeviceMemory(d.memories.add(memory{mem: mem, size: size})), nil
}

func (d *device) FreeMemory(mem gpu.DeviceMemory) {
	if m, ok := d.memories.take(gpu.Handle(mem)); ok {
		vk.FreeMemory(d.dev, m.mem, nil)
	}
}

func (d *device) BindBufferMemory(buf gpu.Buffer, mem gpu.DeviceMemory, offset uint64) error {
	b, ok := d.buffers.get(gpu.Handle(buf))
	m, mok := d.memories.get(gpu.Handle(mem))
	if !ok || !mok {
		return fmt.Errorf("bind buffer memory: %w", ErrUnknownHandle)
	}
	return newError("bind buffer memory", vk.BindBufferMemory(d.dev, b, m.mem, vk.DeviceSize(offset)))
}

func (d *device) BindImageMemory(img gpu.Image, mem gpu.DeviceMemory, offset uint64) error {
	i, ok := d.images.get(gpu.Handle(img))
	m, mok := d.memories.get(gpu.Handle(mem))
	if !ok || !mok {
		return fmt.Errorf("bind image memory: %w", ErrUnknownHandle)
	}
	return newError("bind image memory", vk.BindImageMemory(d.dev, i.img, m.mem, vk.DeviceSize(offset)))
}

func (d *device) MapMemory(mem gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	m, ok := d.memories.get(gpu.Handle(mem))
	if !ok {
		return nil, fmt.Errorf("map memory: %w", ErrUnknownHandle)
	}
	if size == gpu.WholeSize {
		size = m.size - offset
	}
	if offset+size > m.size {
		return nil, fmt.Errorf("map memory: range %d+%d exceeds allocation of %d bytes", offset, size, m.size)
	}
	var ptr unsafe.Pointer
	if err := newError("map memory", vk.MapMemory(d.dev, m.mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *device) UnmapMemory(mem gpu.DeviceMemory) {
	if m, ok := d.memories.get(gpu.Handle(mem)); ok {
		vk.UnmapMemory(d.dev, m.mem)
	}
}

func (d *device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	img, ok := d.images.get(gpu.Handle(desc.Image))
	if !ok {
		return 0, fmt.Errorf("create image view: %w", ErrUnknownHandle)
	}
	viewType := vk.ImageViewType2d
	if desc.LayerCount > 1 {
		viewType = vk.ImageViewType2dArray
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.img,
		ViewType: viewType,
		Format:   vk.Format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect(desc.Aspect, desc.Format),
			BaseMipLevel:   desc.BaseMip,
			LevelCount:     atLeastOne(desc.MipLevels),
			BaseArrayLayer: 0,
			LayerCount:     atLeastOne(desc.LayerCount),
		},
	}
	var view vk.ImageView
	if err := newError("create image view", vk.CreateImageView(d.dev, &info, nil, &view)); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.views.add(view)), nil
}

func (d *device) DestroyImageView(view gpu.ImageView) {
	if v, ok := d.views.take(gpu.Handle(view)); ok {
		vk.DestroyImageView(d.dev, v, nil)
	}
}

func (d *device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	mode := vk.SamplerAddressMode(desc.AddressMode)
	mipmap := vk.SamplerMipmapModeNearest
	if desc.MipmapFilter == gpu.FilterLinear {
		mipmap = vk.SamplerMipmapModeLinear
	}
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(desc.MagFilter),
		MinFilter:               vk.Filter(desc.MinFilter),
		MipmapMode:              mipmap,
		AddressModeU:            mode,
		AddressModeV:            mode,
		AddressModeW:            mode,
		CompareEnable:           vkBool(desc.CompareEnable),
		CompareOp:               vk.CompareOp(desc.CompareOp),
		MinLod:                  0,
		MaxLod:                  desc.MaxLod,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
	}
	var s vk.Sampler
	if err := newError("create sampler", vk.CreateSampler(d.dev, &info, nil, &s)); err != nil {
		return 0, err
	}
	return gpu.Sampler(d.samplers.add(s)), nil
}

func (d *device) DestroySampler(s gpu.Sampler) {
	if v, ok := d.samplers.take(gpu.Handle(s)); ok {
		vk.DestroySampler(d.dev, v, nil)
	}
}

func requirements(req vk.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

func atLeastOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func sampleCount(s gpu.SampleCount) vk.SampleCountFlagBits {
	if s == 0 {
		return vk.SampleCount1Bit
	}
	return vk.SampleCountFlagBits(s)
}

// aspect defaults an unset aspect from the format.
func aspect(a gpu.ImageAspect, format gpu.Format) vk.ImageAspectFlags {
	if a != 0 {
		return vk.ImageAspectFlags(a)
	}
	if format.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}
