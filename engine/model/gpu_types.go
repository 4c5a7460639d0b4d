package model

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the GPU-aligned representation of a single mesh vertex for static (non-skinned) models.
// Size: 64 bytes, bound at binding 0 with locations 0-4.
type Vertex struct {
	Position [3]float32 // offset  0: vertex position in model space (12 bytes)
	Normal   [3]float32 // offset 12: vertex normal for lighting (12 bytes)
	TexCoord [2]float32 // offset 24: UV texture coordinate (8 bytes)
	Color    [4]float32 // offset 32: per-vertex RGBA color (16 bytes)
	Tangent  [4]float32 // offset 48: tangent vector (xyz) + handedness (w) for normal mapping (16 bytes)
}

// Size returns the size of the Vertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (v *Vertex) Size() int {
	return int(unsafe.Sizeof(*v))
}

// SkinnedVertex extends Vertex with per-vertex joint skinning data.
// Size: 96 bytes (64 base vertex + 32 skinning data), locations 5 and 6 carry the skin.
type SkinnedVertex struct {
	Vertex             // offset  0: base vertex data (64 bytes)
	Joints  [4]uint32  // offset 64: indices of up to 4 influencing joints (16 bytes)
	Weights [4]float32 // offset 80: blend weights for each joint (must sum to 1.0) (16 bytes)
}

// Size returns the size of the SkinnedVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (v *SkinnedVertex) Size() int {
	return int(unsafe.Sizeof(*v))
}

// VertexLayout returns the vertex input description for Vertex or, when skinned, SkinnedVertex.
//
// Parameters:
//   - skinned: whether the joint and weight attributes are included
//
// Returns:
//   - []gpu.VertexBinding: the single per-vertex binding
//   - []gpu.VertexAttribute: the attribute locations
func VertexLayout(skinned bool) ([]gpu.VertexBinding, []gpu.VertexAttribute) {
	stride := uint32(unsafe.Sizeof(Vertex{}))
	if skinned {
		stride = uint32(unsafe.Sizeof(SkinnedVertex{}))
	}
	attrs := []gpu.VertexAttribute{
		{Location: 0, Binding: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: gpu.FormatR32G32B32Sfloat, Offset: 12},
		{Location: 2, Binding: 0, Format: gpu.FormatR32G32Sfloat, Offset: 24},
		{Location: 3, Binding: 0, Format: gpu.FormatR32G32B32A32Sfloat, Offset: 32},
		{Location: 4, Binding: 0, Format: gpu.FormatR32G32B32A32Sfloat, Offset: 48},
	}
	if skinned {
		attrs = append(attrs,
			gpu.VertexAttribute{Location: 5, Binding: 0, Format: gpu.FormatR32G32B32A32Uint, Offset: 64},
			gpu.VertexAttribute{Location: 6, Binding: 0, Format: gpu.FormatR32G32B32A32Sfloat, Offset: 80},
		)
	}
	return []gpu.VertexBinding{{Binding: 0, Stride: stride, Rate: gpu.InputRateVertex}}, attrs
}

// InstanceData is the push constant block of every model draw.
// Size: 80 bytes (model matrix + base color).
type InstanceData struct {
	Model     mgl32.Mat4 // offset  0: model-to-world transform (64 bytes)
	BaseColor [4]float32 // offset 64: material base color factor (16 bytes)
}

// InstanceDataSize is the byte size of InstanceData.
const InstanceDataSize = uint32(unsafe.Sizeof(InstanceData{}))

// ComputeBounds returns the axis-aligned bounding box of the given positions.
//
// Parameters:
//   - positions: the vertex positions
//
// Returns:
//   - mgl32.Vec3: the minimum corner
//   - mgl32.Vec3: the maximum corner
func ComputeBounds(positions [][3]float32) (mgl32.Vec3, mgl32.Vec3) {
	if len(positions) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	lo := mgl32.Vec3(positions[0])
	hi := lo
	for _, p := range positions[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return lo, hi
}
