package model

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

// Shader names loaded from the shader cache. Skinned variants are compiled with SKINNED=1.
const (
	ModelVertexShader   = "model.vert"
	ModelFragmentShader = "model.frag"
	ShadowVertexShader  = "shadow.vert"
)

var skinnedDefines = map[string]string{"SKINNED": "1"}

// SkinBinding exposes the joint matrix descriptor set skinned draws bind at their last set index.
type SkinBinding interface {
	// Layout returns the set layout: one dynamic uniform buffer at binding 0.
	Layout() gpu.DescriptorSetLayout

	// Set returns the descriptor set shared by every skin.
	Set() gpu.DescriptorSet

	// Offset returns the dynamic offset of the joint matrices of a skin slot.
	Offset(slot int) uint32
}

// Instance is one placement of a model in the world.
type Instance struct {
	Handle Handle
	World  mgl32.Mat4

	// SkinSlot is the joint buffer slot written by the animator, or -1 for the bind pose.
	SkinSlot int
}

// RendererConfig holds what the model renderer binds besides its own materials.
type RendererConfig struct {
	Shaders        shader.Cache
	PerFrameLayout gpu.DescriptorSetLayout

	// PerFrameSet returns the per-frame set of the frame being recorded.
	PerFrameSet func() gpu.DescriptorSet

	// Forward is the color pass the forward pipelines are built against.
	Forward pass.Pass

	// Shadow is the shadow pass, or nil when shadows are disabled.
	Shadow *pass.ShadowPass

	// Skinning is the joint matrix binding, or nil when no skinned model is drawn.
	Skinning SkinBinding

	// Fallback is bound for materials without a texture and in place of a disabled shadow map.
	Fallback *resource.Texture
}

// Renderer draws the models of a Table into the shadow and forward passes. Instances whose
// bounding sphere falls outside the view frustum are skipped in the forward pass.
type Renderer struct {
	table *Table
	cfg   RendererConfig

	materialLayout gpu.DescriptorSetLayout
	shadowMapSet   gpu.DescriptorSet

	forward, forwardSkinned pipeline.Pipeline
	shadow, shadowSkinned   pipeline.Pipeline

	warned map[Handle]struct{}
	drawn  int
	culled int
}

var _ device.Resource = &Renderer{}

// NewRenderer creates the material and shadow-map set layouts and builds the model pipelines.
//
// Parameters:
//   - ctx: the device Context
//   - table: the model table instances are resolved against
//   - cfg: the renderer configuration
//
// Returns:
//   - *Renderer: the new renderer
//   - error: if a shader cannot be loaded or a pipeline fails to build
func NewRenderer(ctx *device.Context, table *Table, cfg RendererConfig) (*Renderer, error) {
	dev := ctx.Device()
	r := &Renderer{table: table, cfg: cfg, warned: make(map[Handle]struct{})}

	var err error
	r.materialLayout, err = dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create material set layout: %w", err)
	}
	shadowMapLayout, err := dev.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment,
	}})
	if err != nil {
		r.Destroy(ctx)
		return nil, fmt.Errorf("failed to create shadow map set layout: %w", err)
	}
	defer dev.DestroyDescriptorSetLayout(shadowMapLayout)

	r.shadowMapSet = ctx.AllocateDescriptorSet(shadowMapLayout)
	switch {
	case cfg.Shadow != nil:
		dev.UpdateDescriptorSet(r.shadowMapSet, []gpu.DescriptorWrite{cfg.Shadow.SamplerWrite(0)})
	case cfg.Fallback != nil:
		dev.UpdateDescriptorSet(r.shadowMapSet, []gpu.DescriptorWrite{cfg.Fallback.Write(0)})
	}

	if err := r.buildPipelines(ctx, shadowMapLayout); err != nil {
		r.Destroy(ctx)
		return nil, err
	}
	return r, nil
}

func (r *Renderer) buildPipelines(ctx *device.Context, shadowMapLayout gpu.DescriptorSetLayout) error {
	load := func(name string, t shader.ShaderType, skinned bool) (shader.Shader, error) {
		var defines map[string]string
		if skinned {
			defines = skinnedDefines
		}
		return r.cfg.Shaders.Load(ctx, name, t, defines)
	}

	variants := []bool{false}
	if r.cfg.Skinning != nil {
		variants = append(variants, true)
	}

	for _, skinned := range variants {
		sets := []gpu.DescriptorSetLayout{r.cfg.PerFrameLayout, r.materialLayout, shadowMapLayout}
		shadowSets := []gpu.DescriptorSetLayout{r.cfg.PerFrameLayout}
		key := "model"
		if skinned {
			sets = append(sets, r.cfg.Skinning.Layout())
			shadowSets = append(shadowSets, r.cfg.Skinning.Layout())
			key = "model_skinned"
		}
		bindings, attrs := VertexLayout(skinned)

		vs, err := load(ModelVertexShader, shader.ShaderTypeVertex, skinned)
		if err != nil {
			return err
		}
		fs, err := load(ModelFragmentShader, shader.ShaderTypeFragment, skinned)
		if err != nil {
			return err
		}
		fwd := pipeline.NewPipeline(key, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
			pipeline.WithVertexLayout(bindings, attrs),
			pipeline.WithSetLayouts(sets...),
			pipeline.WithPushConstants(gpu.ShaderStageVertex|gpu.ShaderStageFragment, InstanceDataSize),
			pipeline.WithSamples(r.cfg.Forward.Samples()),
		)
		if err := fwd.Build(ctx, r.cfg.Forward.RenderPass()); err != nil {
			return err
		}
		if skinned {
			r.forwardSkinned = fwd
		} else {
			r.forward = fwd
		}

		if r.cfg.Shadow == nil {
			continue
		}
		svs, err := load(ShadowVertexShader, shader.ShaderTypeVertex, skinned)
		if err != nil {
			return err
		}
		shd := pipeline.NewPipeline(key+"_shadow", pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(svs),
			pipeline.WithVertexLayout(bindings, attrs),
			pipeline.WithSetLayouts(shadowSets...),
			pipeline.WithPushConstants(gpu.ShaderStageVertex, InstanceDataSize),
			pipeline.WithDepthBias(true),
			pipeline.WithCullMode(gpu.CullNone),
		)
		if err := shd.Build(ctx, r.cfg.Shadow.RenderPass()); err != nil {
			return err
		}
		if skinned {
			r.shadowSkinned = shd
		} else {
			r.shadow = shd
		}
	}
	return nil
}

// MaterialLayout returns the set layout model materials are allocated with.
func (r *Renderer) MaterialLayout() gpu.DescriptorSetLayout {
	return r.materialLayout
}

// Upload records the upload of asset into cmd and stores the resulting model in the table.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording upload command buffer
//   - handle: the handle to store the model under
//   - asset: the asset to upload
//
// Returns:
//   - Model: the uploaded model
//   - error: if the handle is already in use
func (r *Renderer) Upload(ctx *device.Context, cmd gpu.CommandBuffer, handle Handle, asset *Asset) (Model, error) {
	if _, exists := r.table.Get(handle); exists {
		return nil, fmt.Errorf("model %s already loaded as %s", asset.Name, handle)
	}
	opts := []ModelBuilderOption{WithMaterialLayout(r.materialLayout)}
	if r.cfg.Fallback != nil {
		opts = append(opts, WithFallbackTexture(r.cfg.Fallback))
	}
	m := NewModel(ctx, cmd, handle, asset, opts...)
	if err := r.table.Insert(m); err != nil {
		m.Destroy(ctx)
		return nil, err
	}
	return m, nil
}

// DrawShadow records every instance into the open shadow pass. It is a no-op when shadows are
// disabled.
//
// Parameters:
//   - dev: the command recorder
//   - cmd: the recording command buffer
//   - instances: the instances to draw
func (r *Renderer) DrawShadow(dev gpu.Commands, cmd gpu.CommandBuffer, instances []Instance) {
	if r.shadow == nil {
		return
	}
	var bound pipeline.Pipeline
	for _, inst := range instances {
		m, ok := r.lookup(inst.Handle)
		if !ok {
			continue
		}
		for _, prim := range m.Primitives() {
			p := r.shadow
			if prim.Skinned {
				if !r.canSkin(inst) {
					continue
				}
				p = r.shadowSkinned
			}
			if p != bound {
				p.Bind(dev, cmd)
				p.BindSets(dev, cmd, 0, []gpu.DescriptorSet{r.cfg.PerFrameSet()})
				bound = p
			}
			if prim.Skinned {
				p.BindSets(dev, cmd, 1, []gpu.DescriptorSet{r.cfg.Skinning.Set()}, r.cfg.Skinning.Offset(inst.SkinSlot))
			}
			r.drawPrimitive(dev, cmd, p, prim, InstanceData{Model: inst.World.Mul4(prim.Transform)})
		}
	}
}

// DrawForward records every instance that intersects the view frustum into the open forward
// pass.
//
// Parameters:
//   - dev: the command recorder
//   - cmd: the recording command buffer
//   - instances: the instances to draw
//   - viewProj: the camera Proj * View matrix used for culling
func (r *Renderer) DrawForward(dev gpu.Commands, cmd gpu.CommandBuffer, instances []Instance, viewProj mgl32.Mat4) {
	frustum := common.ExtractFrustumFromMatrix(viewProj)
	r.drawn, r.culled = 0, 0

	var bound pipeline.Pipeline
	for _, inst := range instances {
		m, ok := r.lookup(inst.Handle)
		if !ok {
			continue
		}
		if !frustum.IntersectsSphere(inst.World.Col(3).Vec3(), m.BoundingRadius()*maxScale(inst.World)) {
			r.culled++
			continue
		}
		r.drawn++
		for _, prim := range m.Primitives() {
			p := r.forward
			if prim.Skinned {
				if !r.canSkin(inst) {
					continue
				}
				p = r.forwardSkinned
			}
			if p != bound {
				p.Bind(dev, cmd)
				p.BindSets(dev, cmd, 0, []gpu.DescriptorSet{r.cfg.PerFrameSet()})
				p.BindSets(dev, cmd, 2, []gpu.DescriptorSet{r.shadowMapSet})
				bound = p
			}
			mat := m.Material(prim.Material)
			if mat.Set != 0 {
				p.BindSets(dev, cmd, 1, []gpu.DescriptorSet{mat.Set})
			}
			if prim.Skinned {
				p.BindSets(dev, cmd, 3, []gpu.DescriptorSet{r.cfg.Skinning.Set()}, r.cfg.Skinning.Offset(inst.SkinSlot))
			}
			r.drawPrimitive(dev, cmd, p, prim, InstanceData{
				Model:     inst.World.Mul4(prim.Transform),
				BaseColor: mat.BaseColor,
			})
		}
	}
}

func (r *Renderer) drawPrimitive(dev gpu.Commands, cmd gpu.CommandBuffer, p pipeline.Pipeline, prim GPUPrimitive, data InstanceData) {
	p.PushConstants(dev, cmd, common.StructToBytes(&data))
	dev.CmdBindVertexBuffers(cmd, 0, []gpu.Buffer{prim.Vertices.Handle}, []uint64{0})
	dev.CmdBindIndexBuffer(cmd, prim.Indices.Handle, 0, gpu.IndexUint32)
	dev.CmdDrawIndexed(cmd, prim.IndexCount, 1, 0, 0, 0)
}

func (r *Renderer) lookup(h Handle) (Model, bool) {
	m, ok := r.table.Get(h)
	if !ok {
		if _, seen := r.warned[h]; !seen {
			log.Printf("[Renderer] WARNING: instance references unloaded model %s", h)
			r.warned[h] = struct{}{}
		}
	}
	return m, ok
}

func (r *Renderer) canSkin(inst Instance) bool {
	return r.cfg.Skinning != nil && inst.SkinSlot >= 0
}

// Stats returns the instances drawn and culled by the last DrawForward.
func (r *Renderer) Stats() (drawn, culled int) {
	return r.drawn, r.culled
}

// maxScale returns the largest axis scale of m, used to grow the bounding sphere.
func maxScale(m mgl32.Mat4) float32 {
	return max(m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len())
}

// Destroy releases the pipelines, the shadow map set and the material layout. Models stay in the
// table.
func (r *Renderer) Destroy(ctx *device.Context) {
	for _, p := range []pipeline.Pipeline{r.forward, r.forwardSkinned, r.shadow, r.shadowSkinned} {
		if p != nil {
			p.Destroy(ctx)
		}
	}
	r.forward, r.forwardSkinned, r.shadow, r.shadowSkinned = nil, nil, nil, nil
	if r.shadowMapSet != 0 {
		ctx.FreeDescriptorSet(r.shadowMapSet)
		r.shadowMapSet = 0
	}
	if r.materialLayout != 0 {
		ctx.Device().DestroyDescriptorSetLayout(r.materialLayout)
		r.materialLayout = 0
	}
}
