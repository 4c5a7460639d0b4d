package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUPrimitive is one uploaded primitive: its vertex and index buffers plus the node whose
// bind-pose global transform places it in model space.
type GPUPrimitive struct {
	Vertices   *resource.Buffer
	Indices    *resource.Buffer
	IndexCount uint32
	Material   int
	Skinned    bool
	Node       int
	Transform  mgl32.Mat4
}

// GPUMaterial is one uploaded material with its descriptor set. Texture is nil when the set binds
// the fallback texture.
type GPUMaterial struct {
	Texture   *resource.Texture
	Set       gpu.DescriptorSet
	BaseColor [4]float32
}

// model is the implementation of the Model interface.
type model struct {
	handle Handle
	asset  *Asset
	label  string

	materialLayout gpu.DescriptorSetLayout
	fallback       *resource.Texture
	mipmaps        bool

	primitives     []GPUPrimitive
	materials      []GPUMaterial
	defaultMat     GPUMaterial
	boundingRadius float32
	skinned        bool
}

// Model defines the interface for a GPU-resident model.
// A Model holds the uploaded vertex and index buffers, material textures and descriptor sets of
// an Asset. It is produced from an Asset inside an upload pass and lives in the model Table.
type Model interface {
	device.Resource

	// Handle retrieves the handle the model is stored under.
	//
	// Returns:
	//   - Handle: the model handle
	Handle() Handle

	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Asset retrieves the immutable asset the model was uploaded from.
	//
	// Returns:
	//   - *Asset: the source asset
	Asset() *Asset

	// Skinned reports whether any primitive uses joint skinning.
	//
	// Returns:
	//   - bool: true if the model has skinned primitives
	Skinned() bool

	// Primitives retrieves the uploaded primitives in asset order.
	//
	// Returns:
	//   - []GPUPrimitive: the primitives
	Primitives() []GPUPrimitive

	// Material retrieves the material at index i, or the default material for -1 or an
	// out-of-range index.
	//
	// Parameters:
	//   - i: the material index
	//
	// Returns:
	//   - GPUMaterial: the material
	Material(i int) GPUMaterial

	// BoundingRadius returns the bounding sphere radius for this model, measured from the origin.
	// Used by frustum culling.
	//
	// Returns:
	//   - float32: the bounding radius
	BoundingRadius() float32
}

var _ Model = &model{}

// NewModel uploads asset into GPU memory by recording staging copies and image uploads into cmd,
// which must be an open upload command buffer. Staging buffers are handed to the Context.
// Allocation failures are fatal.
//
// Parameters:
//   - ctx: the device Context
//   - cmd: the recording upload command buffer
//   - handle: the handle the model is stored under
//   - asset: the asset to upload
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: the uploaded model
func NewModel(ctx *device.Context, cmd gpu.CommandBuffer, handle Handle, asset *Asset, options ...ModelBuilderOption) Model {
	m := &model{
		handle:  handle,
		asset:   asset,
		label:   asset.Name,
		mipmaps: true,
	}
	for _, opt := range options {
		opt(m)
	}

	m.uploadMaterials(ctx, cmd)
	m.uploadPrimitives(ctx, cmd)
	m.boundingRadius = asset.BoundingRadius()
	return m
}

func (m *model) uploadMaterials(ctx *device.Context, cmd gpu.CommandBuffer) {
	m.defaultMat = m.newMaterial(ctx, nil, [4]float32{1, 1, 1, 1})
	for i, mat := range m.asset.Materials {
		var tex *resource.Texture
		if data := mat.BaseColorTexture; data != nil && len(data.Pixels) > 0 {
			tex = m.newTexture(ctx, cmd, data, fmt.Sprintf("%s material %d", m.label, i))
		}
		m.materials = append(m.materials, m.newMaterial(ctx, tex, mat.BaseColor))
	}
}

func (m *model) newTexture(ctx *device.Context, cmd gpu.CommandBuffer, data *TextureData, label string) *resource.Texture {
	if m.mipmaps {
		return resource.NewTexture(ctx, cmd, data.Width, data.Height, data.Pixels, data.SRGB, label)
	}
	format := gpu.FormatR8G8B8A8Unorm
	if data.SRGB {
		format = gpu.FormatR8G8B8A8Srgb
	}
	img := resource.NewTextureFromPixels(ctx, cmd, data.Width, data.Height, format, data.Pixels, false, label)
	return &resource.Texture{Image: img, Sampler: resource.NewSampler(ctx, 1)}
}

func (m *model) newMaterial(ctx *device.Context, tex *resource.Texture, baseColor [4]float32) GPUMaterial {
	mat := GPUMaterial{Texture: tex, BaseColor: baseColor}
	if m.materialLayout == 0 {
		return mat
	}
	bound := tex
	if bound == nil {
		bound = m.fallback
	}
	if bound == nil {
		return mat
	}
	mat.Set = ctx.AllocateDescriptorSet(m.materialLayout)
	ctx.Device().UpdateDescriptorSet(mat.Set, []gpu.DescriptorWrite{bound.Write(0)})
	return mat
}

func (m *model) uploadPrimitives(ctx *device.Context, cmd gpu.CommandBuffer) {
	globals := bindPoseGlobals(m.asset)
	for ni, node := range m.asset.Nodes {
		if node.Mesh < 0 || node.Mesh >= len(m.asset.Meshes) {
			continue
		}
		mesh := m.asset.Meshes[node.Mesh]
		for pi, prim := range mesh.Primitives {
			if len(prim.Indices) == 0 {
				continue
			}
			var vertexData []byte
			if prim.Skinned() {
				vertexData = common.SliceToBytes(prim.SkinnedVertices)
				m.skinned = true
			} else {
				vertexData = common.SliceToBytes(prim.Vertices)
			}
			label := fmt.Sprintf("%s/%s/%d", m.label, mesh.Name, pi)
			m.primitives = append(m.primitives, GPUPrimitive{
				Vertices:   resource.NewDeviceLocalBuffer(ctx, cmd, gpu.BufferUsageVertex, vertexData, label+" vertices"),
				Indices:    resource.NewDeviceLocalBuffer(ctx, cmd, gpu.BufferUsageIndex, common.SliceToBytes(prim.Indices), label+" indices"),
				IndexCount: uint32(len(prim.Indices)),
				Material:   prim.Material,
				Skinned:    prim.Skinned(),
				Node:       ni,
				Transform:  globals[ni],
			})
		}
	}
}

// bindPoseGlobals computes the global transform of every node from the asset's local transforms,
// parents before children.
func bindPoseGlobals(a *Asset) []mgl32.Mat4 {
	globals := make([]mgl32.Mat4, len(a.Nodes))
	for i := range globals {
		globals[i] = mgl32.Ident4()
	}
	var visit func(i int, parent mgl32.Mat4)
	visit = func(i int, parent mgl32.Mat4) {
		globals[i] = parent.Mul4(a.Nodes[i].Local())
		for _, c := range a.Nodes[i].Children {
			visit(c, globals[i])
		}
	}
	for _, r := range a.Roots {
		visit(r, mgl32.Ident4())
	}
	return globals
}

func (m *model) Handle() Handle {
	return m.handle
}

func (m *model) Name() string {
	return m.asset.Name
}

func (m *model) Asset() *Asset {
	return m.asset
}

func (m *model) Skinned() bool {
	return m.skinned
}

func (m *model) Primitives() []GPUPrimitive {
	return m.primitives
}

func (m *model) Material(i int) GPUMaterial {
	if i < 0 || i >= len(m.materials) {
		return m.defaultMat
	}
	return m.materials[i]
}

func (m *model) BoundingRadius() float32 {
	return m.boundingRadius
}

// Destroy releases every buffer, texture and descriptor set of the model.
func (m *model) Destroy(ctx *device.Context) {
	for _, p := range m.primitives {
		p.Vertices.Destroy(ctx)
		p.Indices.Destroy(ctx)
	}
	m.primitives = nil
	for _, mat := range append(m.materials, m.defaultMat) {
		if mat.Set != 0 {
			ctx.FreeDescriptorSet(mat.Set)
		}
		if mat.Texture != nil {
			mat.Texture.Destroy(ctx)
		}
	}
	m.materials = nil
	m.defaultMat = GPUMaterial{}
}
