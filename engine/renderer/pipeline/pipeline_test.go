package pipeline

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShaders(t *testing.T) (*device.Context, *gputest.Device, shader.Cache) {
	t.Helper()
	blob := make([]byte, 32)
	binary.LittleEndian.PutUint32(blob, 0x07230203)
	fsys := fstest.MapFS{
		"mesh.vert.spv":  {Data: blob},
		"mesh.frag.spv":  {Data: blob},
		"grass.comp.spv": {Data: blob},
		"grass.tesc.spv": {Data: blob},
		"grass.tese.spv": {Data: blob},
	}
	dev := gputest.NewDevice()
	ctx, err := device.New(dev)
	require.NoError(t, err)
	cache := shader.NewCache(fsys)
	ctx.SetShaderCache(cache)
	return ctx, dev, cache
}

func TestBuildRenderPipeline(t *testing.T) {
	ctx, dev, cache := testShaders(t)

	p := NewPipeline("mesh", PipelineTypeRender,
		WithVertexShader(cache.MustLoad(ctx, "mesh.vert", shader.ShaderTypeVertex, nil)),
		WithFragmentShader(cache.MustLoad(ctx, "mesh.frag", shader.ShaderTypeFragment, nil)),
		WithSamples(gpu.SampleCount4),
		WithCullMode(gpu.CullNone),
		WithPushConstants(gpu.ShaderStageVertex, 64),
	)
	require.NoError(t, p.Build(ctx, gpu.RenderPass(42)))

	created := dev.Calls("CreatePipeline")
	require.Len(t, created, 1)
	desc := created[0].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, gpu.RenderPass(42), desc.RenderPass)
	assert.Len(t, desc.Stages, 2)
	assert.Equal(t, gpu.SampleCount4, desc.Samples)
	assert.Equal(t, gpu.CullNone, desc.CullMode)
	assert.True(t, desc.DepthTest)
	assert.Equal(t, uint32(1), desc.ColorAttachments)
	assert.Equal(t, gpu.BindPointGraphics, p.BindPoint())

	p.Destroy(ctx)
	assert.Len(t, dev.Calls("DestroyPipeline"), 1)
	assert.Len(t, dev.Calls("DestroyPipelineLayout"), 1)
}

func TestDepthOnlyPipelineHasNoColorAttachments(t *testing.T) {
	ctx, dev, cache := testShaders(t)

	p := NewPipeline("shadow", PipelineTypeRender,
		WithVertexShader(cache.MustLoad(ctx, "mesh.vert", shader.ShaderTypeVertex, nil)),
		WithDepthBias(true),
	)
	require.NoError(t, p.Build(ctx, gpu.RenderPass(7)))

	desc := dev.Calls("CreatePipeline")[0].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, uint32(0), desc.ColorAttachments)
	assert.True(t, desc.DepthBias)
}

func TestBuildComputePipeline(t *testing.T) {
	ctx, dev, cache := testShaders(t)

	p := NewPipeline("grass", PipelineTypeCompute,
		WithComputeShader(cache.MustLoad(ctx, "grass.comp", shader.ShaderTypeCompute, nil)),
		WithPushConstants(gpu.ShaderStageCompute, 36),
	)
	require.NoError(t, p.Build(ctx, 0))
	assert.Equal(t, gpu.BindPointCompute, p.BindPoint())

	desc := dev.Calls("CreatePipeline")[0].Args.(gpu.ComputePipelineDesc)
	assert.Equal(t, gpu.ShaderStageCompute, desc.Stage.Stage)

	pool, err := dev.CreateCommandPool(gpu.QueueCompute, 0)
	require.NoError(t, err)
	cmds, err := dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(cmds[0], true))
	p.Bind(dev, cmds[0])
	p.PushConstants(dev, cmds[0], make([]byte, 36))

	recorded := dev.CommandsFor(cmds[0])
	require.Len(t, recorded, 3)
	assert.Equal(t, "CmdBindPipeline", recorded[1].Op)
	assert.Equal(t, gpu.BindPointCompute, recorded[1].Args)
	assert.Equal(t, "CmdPushConstants", recorded[2].Op)
}

func TestBuildWithoutShaderFails(t *testing.T) {
	ctx, dev, _ := testShaders(t)

	err := NewPipeline("broken", PipelineTypeCompute).Build(ctx, 0)
	assert.ErrorIs(t, err, ErrMissingShader)
	err = NewPipeline("broken", PipelineTypeRender).Build(ctx, 0)
	assert.ErrorIs(t, err, ErrMissingShader)
	assert.Empty(t, dev.Calls("CreatePipelineLayout"))
}

func TestTessellationPipelineUsesPatches(t *testing.T) {
	ctx, dev, cache := testShaders(t)

	p := NewPipeline("grass-draw", PipelineTypeRender,
		WithVertexShader(cache.MustLoad(ctx, "mesh.vert", shader.ShaderTypeVertex, nil)),
		WithTessellationShaders(
			cache.MustLoad(ctx, "grass.tesc", shader.ShaderTypeTessControl, nil),
			cache.MustLoad(ctx, "grass.tese", shader.ShaderTypeTessEval, nil),
			1,
		),
		WithFragmentShader(cache.MustLoad(ctx, "mesh.frag", shader.ShaderTypeFragment, nil)),
	)
	require.NoError(t, p.Build(ctx, gpu.RenderPass(3)))

	desc := dev.Calls("CreatePipeline")[0].Args.(gpu.GraphicsPipelineDesc)
	assert.Equal(t, gpu.TopologyPatchList, desc.Topology)
	assert.Equal(t, uint32(1), desc.PatchControlPoints)
	require.Len(t, desc.Stages, 4)
	assert.Equal(t, gpu.ShaderStageTessellationControl, desc.Stages[1].Stage)
	assert.Equal(t, gpu.ShaderStageTessellationEvaluation, desc.Stages[2].Stage)
	assert.NotNil(t, p.Shader(shader.ShaderTypeTessEval))
}
