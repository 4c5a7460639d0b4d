package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
)

// ErrMissingShader is returned by Build when a stage the pipeline type requires has no shader.
var ErrMissingShader = errors.New("pipeline is missing a required shader")

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// pipeline is the implementation of the Pipeline interface.
// It holds the device pipeline and its layout together with the fixed-function state used to
// build it.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	vertexShader, fragmentShader, computeShader shader.Shader
	tessControlShader, tessEvalShader           shader.Shader

	handle gpu.Pipeline
	layout gpu.PipelineLayout

	setLayouts    []gpu.DescriptorSetLayout
	pushConstants []gpu.PushConstantRange

	// The following properties are only used for render pipelines.

	bindings          []gpu.VertexBinding
	attributes        []gpu.VertexAttribute
	depthTestEnabled  bool
	depthWriteEnabled bool
	depthCompare      gpu.CompareOp
	depthBias         bool
	blendEnabled      bool
	cullMode          gpu.CullMode
	topology          gpu.Topology
	patchPoints       uint32
	frontFace         gpu.FrontFace
	samples           gpu.SampleCount
	colorAttachments  uint32
}

// Pipeline wraps a device graphics or compute pipeline with its pipeline layout. The descriptor
// set layouts it references are owned by the caller.
type Pipeline interface {
	device.Resource

	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Handle returns the device pipeline, or zero before Build.
	//
	// Returns:
	//   - gpu.Pipeline: the pipeline handle
	Handle() gpu.Pipeline

	// Layout returns the pipeline layout, or zero before Build.
	//
	// Returns:
	//   - gpu.PipelineLayout: the pipeline layout handle
	Layout() gpu.PipelineLayout

	// BindPoint returns the bind point matching the pipeline type.
	//
	// Returns:
	//   - gpu.BindPoint: graphics or compute
	BindPoint() gpu.BindPoint

	// Build creates the pipeline layout and the pipeline. Render pipelines are created against
	// subpass 0 of renderPass; compute pipelines ignore it.
	//
	// Parameters:
	//   - ctx: the device Context
	//   - renderPass: the render pass a render pipeline is used in
	//
	// Returns:
	//   - error: error if a required shader is missing or creation fails
	Build(ctx *device.Context, renderPass gpu.RenderPass) error

	// Bind records the pipeline bind into cmd.
	//
	// Parameters:
	//   - dev: the command recorder
	//   - cmd: the recording command buffer
	Bind(dev gpu.Commands, cmd gpu.CommandBuffer)

	// BindSets records a descriptor set bind starting at set index first.
	//
	// Parameters:
	//   - dev: the command recorder
	//   - cmd: the recording command buffer
	//   - first: the first set index
	//   - sets: the sets to bind
	//   - dynamicOffsets: offsets for dynamic uniform buffers in the bound sets
	BindSets(dev gpu.Commands, cmd gpu.CommandBuffer, first uint32, sets []gpu.DescriptorSet, dynamicOffsets ...uint32)

	// PushConstants records a push constant update visible to every stage declared for the layout.
	//
	// Parameters:
	//   - dev: the command recorder
	//   - cmd: the recording command buffer
	//   - data: the bytes to push at offset 0
	PushConstants(dev gpu.Commands, cmd gpu.CommandBuffer, data []byte)
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
// The pipeline is not created on the device until Build is called.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      gpu.CompareLess,
		cullMode:          gpu.CullBack,
		topology:          gpu.TopologyTriangleList,
		frontFace:         gpu.FrontFaceCounterClockwise,
		samples:           gpu.SampleCount1,
		colorAttachments:  1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Handle() gpu.Pipeline {
	return p.handle
}

func (p *pipeline) Layout() gpu.PipelineLayout {
	return p.layout
}

func (p *pipeline) BindPoint() gpu.BindPoint {
	if p.pipelineType == PipelineTypeCompute {
		return gpu.BindPointCompute
	}
	return gpu.BindPointGraphics
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	case shader.ShaderTypeTessControl:
		return p.tessControlShader
	case shader.ShaderTypeTessEval:
		return p.tessEvalShader
	default:
		return nil
	}
}

func (p *pipeline) Build(ctx *device.Context, renderPass gpu.RenderPass) error {
	switch p.pipelineType {
	case PipelineTypeRender:
		if p.vertexShader == nil {
			return fmt.Errorf("%w: %s has no vertex shader", ErrMissingShader, p.pipelineKey)
		}
		if (p.tessControlShader == nil) != (p.tessEvalShader == nil) {
			return fmt.Errorf("%w: %s needs both tessellation stages", ErrMissingShader, p.pipelineKey)
		}
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return fmt.Errorf("%w: %s has no compute shader", ErrMissingShader, p.pipelineKey)
		}
	}

	dev := ctx.Device()
	layout, err := dev.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		SetLayouts:    p.setLayouts,
		PushConstants: p.pushConstants,
	})
	if err != nil {
		return fmt.Errorf("failed to create layout of pipeline %s: %w", p.pipelineKey, err)
	}

	var handle gpu.Pipeline
	if p.pipelineType == PipelineTypeCompute {
		handle, err = dev.CreateComputePipeline(gpu.ComputePipelineDesc{
			Layout: layout,
			Stage:  p.computeShader.StageDesc(),
			Label:  p.pipelineKey,
		})
	} else {
		stages := []gpu.ShaderStageDesc{p.vertexShader.StageDesc()}
		if p.tessControlShader != nil {
			stages = append(stages, p.tessControlShader.StageDesc(), p.tessEvalShader.StageDesc())
		}
		if p.fragmentShader != nil {
			stages = append(stages, p.fragmentShader.StageDesc())
		}
		colorAttachments := p.colorAttachments
		if p.fragmentShader == nil {
			colorAttachments = 0
		}
		handle, err = dev.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
			Layout:             layout,
			RenderPass:         renderPass,
			Stages:             stages,
			Bindings:           p.bindings,
			Attributes:         p.attributes,
			Topology:           p.topology,
			PatchControlPoints: p.patchPoints,
			CullMode:           p.cullMode,
			FrontFace:          p.frontFace,
			Samples:            p.samples,
			DepthTest:          p.depthTestEnabled,
			DepthWrite:         p.depthWriteEnabled,
			DepthCompare:       p.depthCompare,
			DepthBias:          p.depthBias,
			ColorAttachments:   colorAttachments,
			Blend:              p.blendEnabled,
			Label:              p.pipelineKey,
		})
	}
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		return fmt.Errorf("failed to create pipeline %s: %w", p.pipelineKey, err)
	}

	p.layout = layout
	p.handle = handle
	return nil
}

func (p *pipeline) Bind(dev gpu.Commands, cmd gpu.CommandBuffer) {
	dev.CmdBindPipeline(cmd, p.BindPoint(), p.handle)
}

func (p *pipeline) BindSets(dev gpu.Commands, cmd gpu.CommandBuffer, first uint32, sets []gpu.DescriptorSet, dynamicOffsets ...uint32) {
	dev.CmdBindDescriptorSets(cmd, p.BindPoint(), p.layout, first, sets, dynamicOffsets)
}

func (p *pipeline) PushConstants(dev gpu.Commands, cmd gpu.CommandBuffer, data []byte) {
	var stages gpu.ShaderStage
	for _, r := range p.pushConstants {
		stages |= r.Stages
	}
	dev.CmdPushConstants(cmd, p.layout, stages, 0, data)
}

// Destroy destroys the pipeline and its layout.
func (p *pipeline) Destroy(ctx *device.Context) {
	dev := ctx.Device()
	if p.handle != 0 {
		dev.DestroyPipeline(p.handle)
		p.handle = 0
	}
	if p.layout != 0 {
		dev.DestroyPipelineLayout(p.layout)
		p.layout = 0
	}
}
