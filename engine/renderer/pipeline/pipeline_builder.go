package pipeline

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline. Render pipelines without a
// fragment shader are depth-only and write no color attachments.
//
// Parameters:
//   - s: the fragment shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = s
	}
}

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithTessellationShaders sets the tessellation control and evaluation shaders and switches the
// pipeline to patch topology.
//
// Parameters:
//   - control: the tessellation control shader
//   - eval: the tessellation evaluation shader
//   - patchPoints: the number of control points per patch
//
// Returns:
//   - PipelineBuilderOption: a function that sets the tessellation stages for this pipeline
func WithTessellationShaders(control, eval shader.Shader, patchPoints uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.tessControlShader = control
		p.tessEvalShader = eval
		p.topology = gpu.TopologyPatchList
		p.patchPoints = patchPoints
	}
}

// WithSetLayouts sets the descriptor set layouts of the pipeline layout, in set index order.
//
// Parameters:
//   - layouts: the descriptor set layouts
//
// Returns:
//   - PipelineBuilderOption: a function that sets the set layouts for this pipeline
func WithSetLayouts(layouts ...gpu.DescriptorSetLayout) PipelineBuilderOption {
	return func(p *pipeline) {
		p.setLayouts = layouts
	}
}

// WithPushConstants declares a push constant range of size bytes at offset 0 visible to stages.
//
// Parameters:
//   - stages: the shader stages reading the constants
//   - size: the size of the range in bytes
//
// Returns:
//   - PipelineBuilderOption: a function that adds the push constant range to this pipeline
func WithPushConstants(stages gpu.ShaderStage, size uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.pushConstants = append(p.pushConstants, gpu.PushConstantRange{Stages: stages, Size: size})
	}
}

// WithVertexLayout sets the vertex buffer bindings and attributes of a render pipeline.
//
// Parameters:
//   - bindings: the vertex buffer bindings
//   - attributes: the vertex attributes read from those bindings
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex layout for this pipeline
func WithVertexLayout(bindings []gpu.VertexBinding, attributes []gpu.VertexAttribute) PipelineBuilderOption {
	return func(p *pipeline) {
		p.bindings = bindings
		p.attributes = attributes
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithDepthCompare sets the depth comparison operator.
//
// Parameters:
//   - op: the comparison, CompareLess by default
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth compare op for this pipeline
func WithDepthCompare(op gpu.CompareOp) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthCompare = op
	}
}

// WithDepthBias enables dynamic depth bias, used by shadow pipelines to fight acne.
//
// Parameters:
//   - enabled: whether depth bias is applied
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias state for this pipeline
func WithDepthBias(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthBias = enabled
	}
}

// WithBlendEnabled sets whether alpha blending is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend enabled state for this pipeline
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendEnabled = enabled
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (gpu.CullNone, gpu.CullFront, gpu.CullBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode gpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
//
// Parameters:
//   - topology: the primitive topology to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology gpu.Topology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: the front face to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the front face for this pipeline
func WithFrontFace(frontFace gpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}

// WithSamples sets the rasterization sample count, which must match the render pass attachments.
//
// Parameters:
//   - samples: the sample count
//
// Returns:
//   - PipelineBuilderOption: a function that sets the sample count for this pipeline
func WithSamples(samples gpu.SampleCount) PipelineBuilderOption {
	return func(p *pipeline) {
		p.samples = samples
	}
}
