package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

func (d *device) CreateCommandPool(queue gpu.QueueKind, flags gpu.CommandPoolFlags) (gpu.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: d.families[queue],
	}
	var pool vk.CommandPool
	if err := newError(fmt.Sprintf("create %s command pool", queue), vk.CreateCommandPool(d.dev, &info, nil, &pool)); err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.cmdPools.add(commandPool{pool: pool})), nil
}

// DestroyCommandPool frees the pool and every command buffer allocated from it.
func (d *device) DestroyCommandPool(pool gpu.CommandPool) {
	p, ok := d.cmdPools.take(gpu.Handle(pool))
	if !ok {
		return
	}
	for _, cmd := range p.buffers {
		d.cmdBuffers.take(gpu.Handle(cmd))
	}
	vk.DestroyCommandPool(d.dev, p.pool, nil)
}

func (d *device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	p, ok := d.cmdPools.get(gpu.Handle(pool))
	if !ok {
		return nil, fmt.Errorf("allocate command buffers: %w", ErrUnknownHandle)
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	native := make([]vk.CommandBuffer, count)
	if err := newError("allocate command buffers", vk.AllocateCommandBuffers(d.dev, &info, native)); err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, count)
	for i, cmd := range native {
		out[i] = gpu.CommandBuffer(d.cmdBuffers.add(cmd))
	}
	p.buffers = append(p.buffers, out...)
	d.cmdPools.set(gpu.Handle(pool), p)
	return out, nil
}

func (d *device) BeginCommandBuffer(cmd gpu.CommandBuffer, oneTime bool) error {
	var flags vk.CommandBufferUsageFlags
	if oneTime {
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	return newError("begin command buffer", vk.BeginCommandBuffer(d.cmdBuffers.must(gpu.Handle(cmd)), &info))
}

func (d *device) EndCommandBuffer(cmd gpu.CommandBuffer) error {
	return newError("end command buffer", vk.EndCommandBuffer(d.cmdBuffers.must(gpu.Handle(cmd))))
}

func (d *device) ResetCommandBuffer(cmd gpu.CommandBuffer) error {
	return newError("reset command buffer", vk.ResetCommandBuffer(d.cmdBuffers.must(gpu.Handle(cmd)), 0))
}

func (d *device) CmdPipelineBarrier(cmd gpu.CommandBuffer, src, dst gpu.PipelineStage, buffers []gpu.BufferBarrier, images []gpu.ImageBarrier) {
	var bufferBarriers []vk.BufferMemoryBarrier
	for _, b := range buffers {
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: b.SrcQueueFamily,
			DstQueueFamilyIndex: b.DstQueueFamily,
			Buffer:              d.buffers.must(gpu.Handle(b.Buffer)),
			Offset:              vk.DeviceSize(b.Offset),
			Size:                vk.DeviceSize(b.Size),
		})
	}
	var imageBarriers []vk.ImageMemoryBarrier
	for _, b := range images {
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: b.SrcQueueFamily,
			DstQueueFamilyIndex: b.DstQueueFamily,
			Image:               d.images.must(gpu.Handle(b.Image)).img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect(b.Aspect, gpu.FormatUndefined),
				BaseMipLevel:   b.BaseMip,
				LevelCount:     atLeastOne(b.MipCount),
				BaseArrayLayer: 0,
				LayerCount:     atLeastOne(b.LayerCount),
			},
		})
	}
	vk.CmdPipelineBarrier(d.cmdBuffers.must(gpu.Handle(cmd)),
		vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers,
	)
}

func (d *device) CmdCopyBuffer(cmd gpu.CommandBuffer, src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	vkRegions := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(d.cmdBuffers.must(gpu.Handle(cmd)),
		d.buffers.must(gpu.Handle(src)), d.buffers.must(gpu.Handle(dst)),
		uint32(len(vkRegions)), vkRegions)
}

func (d *device) CmdCopyBufferToImage(cmd gpu.CommandBuffer, src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	vkRegions := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     aspect(r.Aspect, gpu.FormatUndefined),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: 0,
				LayerCount:     atLeastOne(r.LayerCount),
			},
			ImageExtent: extent3D(r.Extent),
		}
	}
	vk.CmdCopyBufferToImage(d.cmdBuffers.must(gpu.Handle(cmd)),
		d.buffers.must(gpu.Handle(src)), d.images.must(gpu.Handle(dst)).img,
		vk.ImageLayout(layout), uint32(len(vkRegions)), vkRegions)
}

func (d *device) CmdCopyImage(cmd gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageCopy) {
	vkRegions := make([]vk.ImageCopy, len(regions))
	for i, r := range regions {
		layers := vk.ImageSubresourceLayers{
			AspectMask: aspect(r.Aspect, gpu.FormatUndefined),
			LayerCount: atLeastOne(r.LayerCount),
		}
		vkRegions[i] = vk.ImageCopy{
			SrcSubresource: layers,
			DstSubresource: layers,
			Extent:         extent3D(r.Extent),
		}
	}
	vk.CmdCopyImage(d.cmdBuffers.must(gpu.Handle(cmd)),
		d.images.must(gpu.Handle(src)).img, vk.ImageLayout(srcLayout),
		d.images.must(gpu.Handle(dst)).img, vk.ImageLayout(dstLayout),
		uint32(len(vkRegions)), vkRegions)
}

func (d *device) CmdBlitImage(cmd gpu.CommandBuffer, src gpu.Image, srcLayout gpu.ImageLayout, dst gpu.Image, dstLayout gpu.ImageLayout, regions []gpu.ImageBlit, filter gpu.Filter) {
	vkRegions := make([]vk.ImageBlit, len(regions))
	for i, r := range regions {
		mask := aspect(r.Aspect, gpu.FormatUndefined)
		layers := atLeastOne(r.LayerCount)
		vkRegions[i] = vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: mask, MipLevel: r.SrcMip, LayerCount: layers},
			SrcOffsets:     [2]vk.Offset3D{offset3D(r.SrcOffsets[0]), offset3D(r.SrcOffsets[1])},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: mask, MipLevel: r.DstMip, LayerCount: layers},
			DstOffsets:     [2]vk.Offset3D{offset3D(r.DstOffsets[0]), offset3D(r.DstOffsets[1])},
		}
	}
	vk.CmdBlitImage(d.cmdBuffers.must(gpu.Handle(cmd)),
		d.images.must(gpu.Handle(src)).img, vk.ImageLayout(srcLayout),
		d.images.must(gpu.Handle(dst)).img, vk.ImageLayout(dstLayout),
		uint32(len(vkRegions)), vkRegions, vk.Filter(filter))
}

func (d *device) CmdUpdateBuffer(cmd gpu.CommandBuffer, dst gpu.Buffer, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdUpdateBuffer(d.cmdBuffers.must(gpu.Handle(cmd)), d.buffers.must(gpu.Handle(dst)),
		vk.DeviceSize(offset), vk.DeviceSize(len(data)), unsafe.Pointer(&data[0]))
}

func (d *device) CmdBeginRenderPass(cmd gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	clears := make([]vk.ClearValue, len(begin.Clears))
	for i, c := range begin.Clears {
		if c.Depth {
			clears[i].SetDepthStencil(c.DepthValue, c.Stencil)
		} else {
			clears[i].SetColor(c.Color[:])
		}
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.must(gpu.Handle(begin.RenderPass)),
		Framebuffer: d.framebuffers.must(gpu.Handle(begin.Framebuffer)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(d.cmdBuffers.must(gpu.Handle(cmd)), &info, vk.SubpassContentsInline)
}

func (d *device) CmdEndRenderPass(cmd gpu.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmdBuffers.must(gpu.Handle(cmd)))
}

func (d *device) CmdBindPipeline(cmd gpu.CommandBuffer, point gpu.BindPoint, pipeline gpu.Pipeline) {
	vk.CmdBindPipeline(d.cmdBuffers.must(gpu.Handle(cmd)), vk.PipelineBindPoint(point), d.pipelines.must(gpu.Handle(pipeline)))
}

func (d *device) CmdBindDescriptorSets(cmd gpu.CommandBuffer, point gpu.BindPoint, layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet, dynamicOffsets []uint32) {
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		vkSets[i] = d.descSets.must(gpu.Handle(s))
	}
	vk.CmdBindDescriptorSets(d.cmdBuffers.must(gpu.Handle(cmd)), vk.PipelineBindPoint(point),
		d.layouts.must(gpu.Handle(layout)), first,
		uint32(len(vkSets)), vkSets,
		uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (d *device) CmdPushConstants(cmd gpu.CommandBuffer, layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(d.cmdBuffers.must(gpu.Handle(cmd)), d.layouts.must(gpu.Handle(layout)),
		vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *device) CmdBindVertexBuffers(cmd gpu.CommandBuffer, first uint32, buffers []gpu.Buffer, offsets []uint64) {
	vkBuffers := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		vkBuffers[i] = d.buffers.must(gpu.Handle(b))
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(d.cmdBuffers.must(gpu.Handle(cmd)), first, uint32(len(vkBuffers)), vkBuffers, vkOffsets)
}

func (d *device) CmdBindIndexBuffer(cmd gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	vk.CmdBindIndexBuffer(d.cmdBuffers.must(gpu.Handle(cmd)), d.buffers.must(gpu.Handle(buffer)),
		vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (d *device) CmdSetViewport(cmd gpu.CommandBuffer, x, y, width, height, minDepth, maxDepth float32) {
	vk.CmdSetViewport(d.cmdBuffers.must(gpu.Handle(cmd)), 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: minDepth,
		MaxDepth: maxDepth,
	}})
}

func (d *device) CmdSetScissor(cmd gpu.CommandBuffer, x, y int32, extent gpu.Extent2D) {
	vk.CmdSetScissor(d.cmdBuffers.must(gpu.Handle(cmd)), 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (d *device) CmdDraw(cmd gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.cmdBuffers.must(gpu.Handle(cmd)), vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *device) CmdDrawIndexed(cmd gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(d.cmdBuffers.must(gpu.Handle(cmd)), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *device) CmdDrawIndirect(cmd gpu.CommandBuffer, buffer gpu.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndirect(d.cmdBuffers.must(gpu.Handle(cmd)), d.buffers.must(gpu.Handle(buffer)), vk.DeviceSize(offset), drawCount, stride)
}

func (d *device) CmdDispatch(cmd gpu.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(d.cmdBuffers.must(gpu.Handle(cmd)), x, y, z)
}

func extent3D(e gpu.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: atLeastOne(e.Depth)}
}

func offset3D(o gpu.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}
