package grass

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// Shader names loaded from the shader cache.
const (
	GenerateShader       = "grass_generate.comp"
	UpdateShader         = "grass_update.comp"
	VertexShader         = "grass.vert"
	TessControlShader    = "grass.tesc"
	TessEvaluationShader = "grass.tese"
	FragmentShader       = "grass.frag"
)

const (
	defaultGridSize = 100
	defaultSlotSize = 0.15

	// Each blade is one patch of a single control point.
	bladePatchPoints = 1
)

// ConsumerStages are the graphics stages that read compute output. The frame submission waits on
// the semaphore returned by Compute at these stages.
const ConsumerStages = gpu.StageDrawIndirect | gpu.StageVertexInput

// Config holds what the grass field binds besides its own buffers.
type Config struct {
	Shaders        shader.Cache
	PerFrameLayout gpu.DescriptorSetLayout

	// PerFrameSet returns the per-frame set of the frame being recorded.
	PerFrameSet func() gpu.DescriptorSet

	// Forward is the color pass the draw pipeline is built against.
	Forward pass.Pass

	// Shadow is the shadow pass sampled by the blades, or nil when shadows are disabled.
	Shadow *pass.ShadowPass

	// Fallback is bound in place of a disabled shadow map.
	Fallback *resource.Texture
}

// Grass owns the blade buffers, the two compute pipelines, the tessellated draw pipeline and the
// compute queue objects that run the generate and update stages.
type Grass struct {
	gridSize mgl32.Vec2
	slotSize mgl32.Vec2
	grassY   float32
	grid     GridData

	cfg            Config
	computeFamily  uint32
	graphicsFamily uint32

	blades  *resource.Buffer
	visible *resource.Buffer
	args    *resource.Buffer

	generateLayout, updateLayout, drawLayout gpu.DescriptorSetLayout
	generateSet, updateSet, drawSet          gpu.DescriptorSet
	generate, update, draw                   pipeline.Pipeline

	pool                               gpu.CommandPool
	generateCmd, updateCmd             gpu.CommandBuffer
	updateFence                        gpu.Fence
	generateDone, updateDone, drawDone gpu.Semaphore

	generated   bool
	drawPending bool
	updates     uint64
}

var _ device.Resource = &Grass{}

// New creates the blade buffers, records the indirect argument upload into cmd, builds the
// pipelines and installs the field on the Context as ResourceGrass. Buffer and sync object
// failures are fatal; shader and pipeline failures are returned.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the open upload command buffer
//   - cfg: the grass configuration
//   - opts: functional options sizing the field
//
// Returns:
//   - *Grass: the installed grass field
//   - error: if a shader cannot be loaded or a pipeline fails to build
func New(ctx *device.Context, cmd gpu.CommandBuffer, cfg Config, opts ...GrassBuilderOption) (*Grass, error) {
	g := &Grass{
		gridSize:       mgl32.Vec2{defaultGridSize, defaultGridSize},
		slotSize:       mgl32.Vec2{defaultSlotSize, defaultSlotSize},
		cfg:            cfg,
		computeFamily:  ctx.ComputeFamily(),
		graphicsFamily: ctx.GraphicsFamily(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.grid = NewGridData(g.gridSize, g.slotSize, g.grassY)
	if g.grid.GrassCount == 0 {
		return nil, fmt.Errorf("grass grid %v with slot %v holds no blades", g.gridSize, g.slotSize)
	}

	bladeBytes := uint64(g.grid.GrassCount) * BladeSize
	g.blades = resource.NewBuffer(ctx, bladeBytes, gpu.BufferUsageStorage|gpu.BufferUsageVertex, resource.DeviceLocal, "grass blades")
	g.visible = resource.NewBuffer(ctx, bladeBytes, gpu.BufferUsageStorage|gpu.BufferUsageVertex, resource.DeviceLocal, "grass visible blades")
	reset := ResetArgs()
	g.args = resource.NewDeviceLocalBuffer(ctx, cmd, gpu.BufferUsageStorage|gpu.BufferUsageIndirect|gpu.BufferUsageTransferDst,
		common.StructToBytes(&reset), "grass indirect args")

	if err := g.createDescriptors(ctx); err != nil {
		g.Destroy(ctx)
		return nil, err
	}
	if err := g.buildPipelines(ctx); err != nil {
		g.Destroy(ctx)
		return nil, err
	}
	g.createComputeObjects(ctx)

	log.Printf("[Grass] %dx%d slots, %d blades, %d groups", g.grid.SlotCount[0], g.grid.SlotCount[1],
		g.grid.GrassCount, g.grid.DispatchSize)
	ctx.InsertResource(device.ResourceGrass, g)
	return g, nil
}

func (g *Grass) createDescriptors(ctx *device.Context) error {
	dev := ctx.Device()
	storage := func(binding uint32) gpu.DescriptorBinding {
		return gpu.DescriptorBinding{Binding: binding, Type: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.ShaderStageCompute}
	}
	storageWrite := func(binding uint32, buf *resource.Buffer) gpu.DescriptorWrite {
		return gpu.DescriptorWrite{Binding: binding, Type: gpu.DescriptorStorageBuffer, Buffer: buf.Handle, Range: gpu.WholeSize}
	}

	var err error
	if g.generateLayout, err = dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{storage(0)}); err != nil {
		return fmt.Errorf("failed to create grass generate set layout: %w", err)
	}
	if g.updateLayout, err = dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{storage(0), storage(1), storage(2)}); err != nil {
		return fmt.Errorf("failed to create grass update set layout: %w", err)
	}
	if g.drawLayout, err = dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment,
	}}); err != nil {
		return fmt.Errorf("failed to create grass draw set layout: %w", err)
	}

	g.generateSet = ctx.AllocateDescriptorSet(g.generateLayout)
	dev.UpdateDescriptorSet(g.generateSet, []gpu.DescriptorWrite{storageWrite(0, g.blades)})

	g.updateSet = ctx.AllocateDescriptorSet(g.updateLayout)
	dev.UpdateDescriptorSet(g.updateSet, []gpu.DescriptorWrite{
		storageWrite(0, g.blades),
		storageWrite(1, g.visible),
		storageWrite(2, g.args),
	})

	g.drawSet = ctx.AllocateDescriptorSet(g.drawLayout)
	switch {
	case g.cfg.Shadow != nil:
		dev.UpdateDescriptorSet(g.drawSet, []gpu.DescriptorWrite{g.cfg.Shadow.SamplerWrite(0)})
	case g.cfg.Fallback != nil:
		dev.UpdateDescriptorSet(g.drawSet, []gpu.DescriptorWrite{g.cfg.Fallback.Write(0)})
	default:
		log.Printf("[Grass] WARNING: no shadow map or fallback texture, draw set left unwritten")
	}
	return nil
}

func (g *Grass) buildPipelines(ctx *device.Context) error {
	load := func(name string, t shader.ShaderType) (shader.Shader, error) {
		return g.cfg.Shaders.Load(ctx, name, t, nil)
	}

	gen, err := load(GenerateShader, shader.ShaderTypeCompute)
	if err != nil {
		return err
	}
	g.generate = pipeline.NewPipeline("grass-generate", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(gen),
		pipeline.WithSetLayouts(g.generateLayout),
		pipeline.WithPushConstants(gpu.ShaderStageCompute, GridDataSize),
	)
	if err := g.generate.Build(ctx, 0); err != nil {
		return err
	}

	upd, err := load(UpdateShader, shader.ShaderTypeCompute)
	if err != nil {
		return err
	}
	g.update = pipeline.NewPipeline("grass-update", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(upd),
		pipeline.WithSetLayouts(g.cfg.PerFrameLayout, g.updateLayout),
		pipeline.WithPushConstants(gpu.ShaderStageCompute, GridDataSize),
	)
	if err := g.update.Build(ctx, 0); err != nil {
		return err
	}

	stages := make(map[shader.ShaderType]shader.Shader, 4)
	for _, st := range []struct {
		name string
		t    shader.ShaderType
	}{
		{VertexShader, shader.ShaderTypeVertex},
		{TessControlShader, shader.ShaderTypeTessControl},
		{TessEvaluationShader, shader.ShaderTypeTessEval},
		{FragmentShader, shader.ShaderTypeFragment},
	} {
		s, err := load(st.name, st.t)
		if err != nil {
			return err
		}
		stages[st.t] = s
	}
	g.draw = pipeline.NewPipeline("grass-draw", pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(stages[shader.ShaderTypeVertex]),
		pipeline.WithTessellationShaders(stages[shader.ShaderTypeTessControl], stages[shader.ShaderTypeTessEval], bladePatchPoints),
		pipeline.WithFragmentShader(stages[shader.ShaderTypeFragment]),
		pipeline.WithSetLayouts(g.cfg.PerFrameLayout, g.drawLayout),
		pipeline.WithVertexLayout(BladeVertexLayout()),
		pipeline.WithCullMode(gpu.CullNone),
		pipeline.WithSamples(g.cfg.Forward.Samples()),
	)
	return g.draw.Build(ctx, g.cfg.Forward.RenderPass())
}

func (g *Grass) createComputeObjects(ctx *device.Context) {
	dev := ctx.Device()
	var err error
	if g.pool, err = dev.CreateCommandPool(gpu.QueueCompute, gpu.CommandPoolResetCommandBuffer); err != nil {
		panic(fmt.Sprintf("grass: failed to create compute command pool: %v", err))
	}
	cmds, err := dev.AllocateCommandBuffers(g.pool, 2)
	if err != nil {
		panic(fmt.Sprintf("grass: failed to allocate compute command buffers: %v", err))
	}
	g.generateCmd, g.updateCmd = cmds[0], cmds[1]
	if g.updateFence, err = dev.CreateFence(true); err != nil {
		panic(fmt.Sprintf("grass: failed to create update fence: %v", err))
	}
	if g.generateDone, err = dev.CreateSemaphore(); err != nil {
		panic(fmt.Sprintf("grass: failed to create generate semaphore: %v", err))
	}
	if g.updateDone, err = dev.CreateSemaphore(); err != nil {
		panic(fmt.Sprintf("grass: failed to create update semaphore: %v", err))
	}
	if g.drawDone, err = dev.CreateSemaphore(); err != nil {
		panic(fmt.Sprintf("grass: failed to create draw semaphore: %v", err))
	}
}

// BladeVertexLayout returns the draw pipeline's vertex input: one Blade per vertex with its four
// vec4 fields at locations 0 through 3.
func BladeVertexLayout() ([]gpu.VertexBinding, []gpu.VertexAttribute) {
	bindings := []gpu.VertexBinding{{Binding: 0, Stride: uint32(BladeSize), Rate: gpu.InputRateVertex}}
	attributes := make([]gpu.VertexAttribute, 4)
	for i := range attributes {
		attributes[i] = gpu.VertexAttribute{
			Location: uint32(i),
			Binding:  0,
			Format:   gpu.FormatR32G32B32A32Sfloat,
			Offset:   uint32(i) * 16,
		}
	}
	return bindings, attributes
}

// Grid returns the parameter block pushed to the compute stages.
func (g *Grass) Grid() GridData {
	return g.grid
}

// Generated reports whether the generate stage has been submitted.
func (g *Grass) Generated() bool {
	return g.generated
}

// Updates returns how many update dispatches were submitted.
func (g *Grass) Updates() uint64 {
	return g.updates
}

// ArgsBuffer returns the indirect argument buffer.
func (g *Grass) ArgsBuffer() *resource.Buffer {
	return g.args
}

// VisibleBuffer returns the buffer of blades that survived culling this frame.
func (g *Grass) VisibleBuffer() *resource.Buffer {
	return g.visible
}

// Compute submits this frame's compute work to the compute queue. The first call also submits
// the generate stage, and the update waits on it at the compute shader stage. Later updates wait
// on the semaphore returned by Drawn, so the previous frame's draw has finished reading the
// buffers before they are rewritten. Each update resets the indirect arguments, dispatches the
// cull, releases both output buffers to the graphics family and signals the returned semaphore,
// which the frame submission must wait on at ConsumerStages. Command recording and submission
// failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//
// Returns:
//   - gpu.Semaphore: signaled when the update dispatch completes
func (g *Grass) Compute(ctx *device.Context) gpu.Semaphore {
	dev := ctx.Device()
	if err := dev.WaitForFence(g.updateFence); err != nil {
		panic(fmt.Sprintf("grass: failed waiting for update fence: %v", err))
	}
	if err := dev.ResetFence(g.updateFence); err != nil {
		panic(fmt.Sprintf("grass: failed to reset update fence: %v", err))
	}

	var waits []gpu.SemaphoreWait
	if !g.generated {
		g.submitGenerate(dev)
		waits = []gpu.SemaphoreWait{{Semaphore: g.generateDone, Stage: gpu.StageComputeShader}}
		g.generated = true
	}
	if g.drawPending {
		// Both buffers are rewritten below, so nothing is transferred back from graphics.
		waits = append(waits, gpu.SemaphoreWait{Semaphore: g.drawDone, Stage: gpu.StageTransfer | gpu.StageComputeShader})
		g.drawPending = false
	}

	cmd := g.updateCmd
	if err := dev.ResetCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("grass: failed to reset update command buffer: %v", err))
	}
	if err := dev.BeginCommandBuffer(cmd, true); err != nil {
		panic(fmt.Sprintf("grass: failed to begin update command buffer: %v", err))
	}
	reset := ResetArgs()
	dev.CmdUpdateBuffer(cmd, g.args.Handle, 0, common.StructToBytes(&reset))
	dev.CmdPipelineBarrier(cmd, gpu.StageTransfer, gpu.StageComputeShader, []gpu.BufferBarrier{{
		Buffer:         g.args.Handle,
		Size:           gpu.WholeSize,
		SrcAccess:      gpu.AccessTransferWrite,
		DstAccess:      gpu.AccessShaderRead | gpu.AccessShaderWrite,
		SrcQueueFamily: gpu.QueueFamilyIgnored,
		DstQueueFamily: gpu.QueueFamilyIgnored,
	}}, nil)
	g.update.Bind(dev, cmd)
	g.update.BindSets(dev, cmd, 0, []gpu.DescriptorSet{g.cfg.PerFrameSet(), g.updateSet})
	g.update.PushConstants(dev, cmd, g.grid.Bytes())
	dev.CmdDispatch(cmd, g.grid.DispatchSize, 1, 1)
	dev.CmdPipelineBarrier(cmd, gpu.StageComputeShader, gpu.StageBottomOfPipe, g.handoff(0, 0), nil)
	if err := dev.EndCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("grass: failed to end update command buffer: %v", err))
	}

	err := dev.QueueSubmit(gpu.QueueCompute, gpu.SubmitInfo{
		Commands: []gpu.CommandBuffer{cmd},
		Wait:     waits,
		Signal:   []gpu.Semaphore{g.updateDone},
	}, g.updateFence)
	if err != nil {
		panic(fmt.Sprintf("grass: failed to submit update: %v", err))
	}
	g.updates++
	return g.updateDone
}

func (g *Grass) submitGenerate(dev gpu.Device) {
	cmd := g.generateCmd
	if err := dev.BeginCommandBuffer(cmd, true); err != nil {
		panic(fmt.Sprintf("grass: failed to begin generate command buffer: %v", err))
	}
	g.generate.Bind(dev, cmd)
	g.generate.BindSets(dev, cmd, 0, []gpu.DescriptorSet{g.generateSet})
	g.generate.PushConstants(dev, cmd, g.grid.Bytes())
	dev.CmdDispatch(cmd, g.grid.DispatchSize, 1, 1)
	if err := dev.EndCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("grass: failed to end generate command buffer: %v", err))
	}
	err := dev.QueueSubmit(gpu.QueueCompute, gpu.SubmitInfo{
		Commands: []gpu.CommandBuffer{cmd},
		Signal:   []gpu.Semaphore{g.generateDone},
	}, 0)
	if err != nil {
		panic(fmt.Sprintf("grass: failed to submit generate: %v", err))
	}
}

// RecordBarrier records the graphics half of the compute to graphics ownership transfer of the
// indirect arguments and the visible blades into the frame command buffer. The compute half is
// recorded by Compute after the dispatch. It must be recorded outside any render pass, after
// Compute and before Draw.
//
// Parameters:
//   - dev: the command recorder
//   - cmd: the recording frame command buffer
func (g *Grass) RecordBarrier(dev gpu.Commands, cmd gpu.CommandBuffer) {
	dev.CmdPipelineBarrier(cmd, gpu.StageComputeShader, ConsumerStages,
		g.handoff(gpu.AccessIndirectCommandRead, gpu.AccessVertexAttributeRead), nil)
}

// handoff returns the compute to graphics barriers for the args and visible buffers. The release
// side passes zero destination accesses.
func (g *Grass) handoff(argsAccess, visibleAccess gpu.Access) []gpu.BufferBarrier {
	return []gpu.BufferBarrier{
		{
			Buffer:         g.args.Handle,
			Size:           gpu.WholeSize,
			SrcAccess:      gpu.AccessShaderWrite,
			DstAccess:      argsAccess,
			SrcQueueFamily: g.computeFamily,
			DstQueueFamily: g.graphicsFamily,
		},
		{
			Buffer:         g.visible.Handle,
			Size:           gpu.WholeSize,
			SrcAccess:      gpu.AccessShaderWrite,
			DstAccess:      visibleAccess,
			SrcQueueFamily: g.computeFamily,
			DstQueueFamily: g.graphicsFamily,
		},
	}
}

// Drawn returns the semaphore the frame submission must signal once it has read this frame's
// compute output. The next Compute waits on it. Call it once per Compute, in the same frame.
//
// Returns:
//   - gpu.Semaphore: the semaphore to add to the frame submission's signal list
func (g *Grass) Drawn() gpu.Semaphore {
	g.drawPending = true
	return g.drawDone
}

// Draw records the visible blades as one indirect draw. It must be recorded inside the forward
// pass.
//
// Parameters:
//   - dev: the command recorder
//   - cmd: the recording frame command buffer
func (g *Grass) Draw(dev gpu.Commands, cmd gpu.CommandBuffer) {
	g.draw.Bind(dev, cmd)
	dev.CmdBindVertexBuffers(cmd, 0, []gpu.Buffer{g.visible.Handle}, []uint64{0})
	g.draw.BindSets(dev, cmd, 0, []gpu.DescriptorSet{g.cfg.PerFrameSet(), g.drawSet})
	dev.CmdDrawIndirect(cmd, g.args.Handle, 0, 1, IndirectArgsSize)
}

// Destroy releases every object the field owns. The caller guarantees the device is idle.
func (g *Grass) Destroy(ctx *device.Context) {
	dev := ctx.Device()
	for _, p := range []pipeline.Pipeline{g.generate, g.update, g.draw} {
		if p != nil {
			p.Destroy(ctx)
		}
	}
	g.generate, g.update, g.draw = nil, nil, nil

	for _, set := range []*gpu.DescriptorSet{&g.generateSet, &g.updateSet, &g.drawSet} {
		if *set != 0 {
			ctx.FreeDescriptorSet(*set)
			*set = 0
		}
	}
	for _, layout := range []*gpu.DescriptorSetLayout{&g.generateLayout, &g.updateLayout, &g.drawLayout} {
		if *layout != 0 {
			dev.DestroyDescriptorSetLayout(*layout)
			*layout = 0
		}
	}
	for _, buf := range []**resource.Buffer{&g.blades, &g.visible, &g.args} {
		if *buf != nil {
			(*buf).Destroy(ctx)
			*buf = nil
		}
	}

	if g.pool != 0 {
		dev.DestroyCommandPool(g.pool)
		g.pool = 0
	}
	if g.updateFence != 0 {
		dev.DestroyFence(g.updateFence)
		g.updateFence = 0
	}
	for _, sem := range []*gpu.Semaphore{&g.generateDone, &g.updateDone, &g.drawDone} {
		if *sem != 0 {
			dev.DestroySemaphore(*sem)
			*sem = 0
		}
	}
}
