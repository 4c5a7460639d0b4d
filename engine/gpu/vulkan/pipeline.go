package vulkan

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

const spirvMagic = 0x07230203

// depth bias applied by pipelines that request it, tuned for the shadow map
const (
	depthBiasConstant = 1.25
	depthBiasSlope    = 1.75
)

func (d *device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        sampleCount(a.Samples),
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		sub := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(s.Color)),
			PColorAttachments:    attachmentRefs(s.Color),
		}
		if len(s.Resolve) > 0 {
			sub.PResolveAttachments = attachmentRefs(s.Resolve)
		}
		if s.Depth != nil {
			sub.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.Depth.Attachment,
				Layout:     vk.ImageLayout(s.Depth.Layout),
			}
		}
		subpasses[i] = sub
	}

	deps := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, dep := range desc.Dependencies {
		var flags vk.DependencyFlags
		if dep.ByRegion {
			flags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
		deps[i] = vk.SubpassDependency{
			SrcSubpass:      dep.SrcSubpass,
			DstSubpass:      dep.DstSubpass,
			SrcStageMask:    vk.PipelineStageFlags(dep.SrcStage),
			DstStageMask:    vk.PipelineStageFlags(dep.DstStage),
			SrcAccessMask:   vk.AccessFlags(dep.SrcAccess),
			DstAccessMask:   vk.AccessFlags(dep.DstAccess),
			DependencyFlags: flags,
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
	var rp vk.RenderPass
	if err := newError(fmt.Sprintf("create render pass %q", desc.Label), vk.CreateRenderPass(d.dev, &info, nil, &rp)); err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.renderPasses.add(rp)), nil
}

func attachmentRefs(refs []gpu.AttachmentRef) []vk.AttachmentReference {
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{
			Attachment: r.Attachment,
			Layout:     vk.ImageLayout(r.Layout),
		}
	}
	return out
}

func (d *device) DestroyRenderPass(rp gpu.RenderPass) {
	if v, ok := d.renderPasses.take(gpu.Handle(rp)); ok {
		vk.DestroyRenderPass(d.dev, v, nil)
	}
}

func (d *device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := d.renderPasses.get(gpu.Handle(desc.RenderPass))
	if !ok {
		return 0, fmt.Errorf("create framebuffer: %w", ErrUnknownHandle)
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, v := range desc.Attachments {
		view, ok := d.views.get(gpu.Handle(v))
		if !ok {
			return 0, fmt.Errorf("create framebuffer attachment %d: %w", i, ErrUnknownHandle)
		}
		views[i] = view
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          atLeastOne(desc.Layers),
	}
	var fb vk.Framebuffer
	if err := newError("create framebuffer", vk.CreateFramebuffer(d.dev, &info, nil, &fb)); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.framebuffers.add(fb)), nil
}

func (d *device) DestroyFramebuffer(fb gpu.Framebuffer) {
	if v, ok := d.framebuffers.take(gpu.Handle(fb)); ok {
		vk.DestroyFramebuffer(d.dev, v, nil)
	}
}

// spirvWords validates a SPIR-V blob and returns it as the word slice the driver consumes.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spir-v blob of %d bytes is not a whole number of words", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("spir-v magic mismatch: %#08x", words[0])
	}
	return words, nil
}

func (d *device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return 0, fmt.Errorf("create shader module: %w", err)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var m vk.ShaderModule
	if err := newError("create shader module", vk.CreateShaderModule(d.dev, &info, nil, &m)); err != nil {
		return 0, err
	}
	return gpu.ShaderModule(d.shaders.add(m)), nil
}

func (d *device) DestroyShaderModule(m gpu.ShaderModule) {
	if v, ok := d.shaders.take(gpu.Handle(m)); ok {
		vk.DestroyShaderModule(d.dev, v, nil)
	}
}

func (d *device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: atLeastOne(b.Count),
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var l vk.DescriptorSetLayout
	if err := newError("create descriptor set layout", vk.CreateDescriptorSetLayout(d.dev, &info, nil, &l)); err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.setLayouts.add(l)), nil
}

func (d *device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	if v, ok := d.setLayouts.take(gpu.Handle(l)); ok {
		vk.DestroyDescriptorSetLayout(d.dev, v, nil)
	}
}

func (d *device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	sets := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, l := range desc.SetLayouts {
		layout, ok := d.setLayouts.get(gpu.Handle(l))
		if !ok {
			return 0, fmt.Errorf("create pipeline layout set %d: %w", i, ErrUnknownHandle)
		}
		sets[i] = layout
	}
	ranges := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, r := range desc.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            sets,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var l vk.PipelineLayout
	if err := newError("create pipeline layout", vk.CreatePipelineLayout(d.dev, &info, nil, &l)); err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.layouts.add(l)), nil
}

func (d *device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	if v, ok := d.layouts.take(gpu.Handle(l)); ok {
		vk.DestroyPipelineLayout(d.dev, v, nil)
	}
}

func (d *device) shaderStage(s gpu.ShaderStageDesc) (vk.PipelineShaderStageCreateInfo, error) {
	m, ok := d.shaders.get(gpu.Handle(s.Module))
	if !ok {
		return vk.PipelineShaderStageCreateInfo{}, fmt.Errorf("shader stage %#x: %w", uint32(s.Stage), ErrUnknownHandle)
	}
	entry := s.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(s.Stage),
		Module: m,
		PName:  cString(entry),
	}, nil
}

func (d *device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	layout, ok := d.layouts.get(gpu.Handle(desc.Layout))
	rp, rok := d.renderPasses.get(gpu.Handle(desc.RenderPass))
	if !ok || !rok {
		return 0, fmt.Errorf("create graphics pipeline %q: %w", desc.Label, ErrUnknownHandle)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		stage, err := d.shaderStage(s)
		if err != nil {
			return 0, fmt.Errorf("create graphics pipeline %q: %w", desc.Label, err)
		}
		stages[i] = stage
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.Bindings))
	for i, b := range desc.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRate(b.Rate),
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	var tessellation *vk.PipelineTessellationStateCreateInfo
	if desc.Topology == gpu.TopologyPatchList {
		tessellation = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: atLeastOne(desc.PatchControlPoints),
		}
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		CullMode:                vk.CullModeFlags(desc.CullMode),
		FrontFace:               vk.FrontFace(desc.FrontFace),
		DepthBiasEnable:         vkBool(desc.DepthBias),
		LineWidth:               1,
	}
	if desc.DepthBias {
		raster.DepthBiasConstantFactor = depthBiasConstant
		raster.DepthBiasSlopeFactor = depthBiasSlope
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: sampleCount(desc.Samples),
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1,
	}

	depthCompare := desc.DepthCompare
	if !desc.DepthTest {
		depthCompare = gpu.CompareAlways
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(desc.DepthTest),
		DepthWriteEnable:      vkBool(desc.DepthWrite),
		DepthCompareOp:        vk.CompareOp(depthCompare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = colorBlend(desc.Blend)
	}
	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PTessellationState:  tessellation,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamic,
		Layout:              layout,
		RenderPass:          rp,
		Subpass:             desc.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := newError(fmt.Sprintf("create graphics pipeline %q", desc.Label), res); err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func colorBlend(enabled bool) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit,
		),
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
	}
	if enabled {
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}
	return state
}

func (d *device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	layout, ok := d.layouts.get(gpu.Handle(desc.Layout))
	if !ok {
		return 0, fmt.Errorf("create compute pipeline %q: %w", desc.Label, ErrUnknownHandle)
	}
	stage, err := d.shaderStage(desc.Stage)
	if err != nil {
		return 0, fmt.Errorf("create compute pipeline %q: %w", desc.Label, err)
	}
	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage,
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(d.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines)
	if err := newError(fmt.Sprintf("create compute pipeline %q", desc.Label), res); err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func (d *device) DestroyPipeline(p gpu.Pipeline) {
	if v, ok := d.pipelines.take(gpu.Handle(p)); ok {
		vk.DestroyPipeline(d.dev, v, nil)
	}
}

func (d *device) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(desc.Flags),
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := newError("create descriptor pool", vk.CreateDescriptorPool(d.dev, &info, nil, &pool)); err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.descPools.add(pool)), nil
}

func (d *device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	if v, ok := d.descPools.take(gpu.Handle(pool)); ok {
		vk.DestroyDescriptorPool(d.dev, v, nil)
	}
}

func (d *device) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	p, ok := d.descPools.get(gpu.Handle(pool))
	l, lok := d.setLayouts.get(gpu.Handle(layout))
	if !ok || !lok {
		return 0, fmt.Errorf("allocate descriptor set: %w", ErrUnknownHandle)
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if err := newError("allocate descriptor set", vk.AllocateDescriptorSets(d.dev, &info, &set)); err != nil {
		return 0, err
	}
	return gpu.DescriptorSet(d.descSets.add(set)), nil
}

func (d *device) FreeDescriptorSet(pool gpu.DescriptorPool, set gpu.DescriptorSet) {
	p, ok := d.descPools.get(gpu.Handle(pool))
	if !ok {
		return
	}
	if s, ok := d.descSets.take(gpu.Handle(set)); ok {
		vk.FreeDescriptorSets(d.dev, p, 1, &s)
	}
}

func (d *device) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	dst := d.descSets.must(gpu.Handle(set))
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dst,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if w.Type == gpu.DescriptorCombinedImageSampler {
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.samplers.must(gpu.Handle(w.Sampler)),
				ImageView:   d.views.must(gpu.Handle(w.ImageView)),
				ImageLayout: vk.ImageLayout(w.Layout),
			}}
		} else {
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers.must(gpu.Handle(w.Buffer)),
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		}
		vkWrites[i] = write
	}
	vk.UpdateDescriptorSets(d.dev, uint32(len(vkWrites)), vkWrites, 0, nil)
}
