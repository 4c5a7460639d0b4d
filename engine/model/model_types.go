package model

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Handle identifies an Asset in the model table. Handles are opaque and stable for the life of
// the engine.
type Handle uuid.UUID

// NewHandle returns a fresh random Handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h == Handle(uuid.Nil)
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// --- Node Graph ---

// Node is one node of an asset's node graph with its local transform decomposed.
type Node struct {
	// Name is the node identifier from the source file.
	Name string

	// Translation, Rotation and Scale make up the local transform as T * R * S.
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3

	// Mesh is the index into Asset.Meshes, or -1.
	Mesh int

	// Skin is the index into Asset.Skins, or -1.
	Skin int

	// Children are indices into Asset.Nodes.
	Children []int
}

// NewNode returns a node with an identity transform and no mesh or skin.
func NewNode(name string) Node {
	return Node{
		Name:     name,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		Mesh:     -1,
		Skin:     -1,
	}
}

// Local returns the node's local transform matrix.
func (n Node) Local() mgl32.Mat4 {
	return common.TRS(n.Translation, n.Rotation, n.Scale)
}

// --- Skins ---

// Joint binds one node of the graph to a skin.
type Joint struct {
	// Node is the index into Asset.Nodes of the node driving this joint.
	Node int

	// InverseBind transforms from model space to joint space at bind pose.
	InverseBind mgl32.Mat4
}

// Skin is an ordered joint list. The order matches the joint indices stored in skinned vertices.
type Skin struct {
	Name   string
	Joints []Joint
}

// --- Animation Types ---

// Path is the node property an animation channel drives.
type Path int

const (
	PathTranslation Path = iota
	PathRotation
	PathScale
)

// Interpolation selects how a channel is sampled between keyframes.
type Interpolation int

const (
	InterpolationLinear Interpolation = iota
	InterpolationStep
)

// Channel is the keyframe track of one node property. Values holds three floats per key for
// translation and scale and four (x, y, z, w) for rotation.
type Channel struct {
	Node          int
	Path          Path
	Interpolation Interpolation
	Times         []float32
	Values        []float32
}

// Animation is a named clip made of channels. Duration is the last keyframe time over all
// channels.
type Animation struct {
	Name     string
	Duration float32
	Channels []Channel
}

// --- Meshes & Materials ---

// TextureData is decoded RGBA8 pixel data awaiting upload.
type TextureData struct {
	Pixels []byte
	Width  uint32
	Height uint32
	SRGB   bool
}

// Material holds the properties the forward pipeline consumes.
type Material struct {
	// Name is the material identifier.
	Name string

	// BaseColor is the albedo color (RGBA).
	BaseColor [4]float32

	// Metallic factor (0.0 = dielectric, 1.0 = metal).
	Metallic float32

	// Roughness factor (0.0 = smooth, 1.0 = rough).
	Roughness float32

	// BaseColorTexture is the albedo texture, or nil when the material has none.
	BaseColorTexture *TextureData
}

// Primitive is an indexed triangle list with a single material. Exactly one of Vertices and
// SkinnedVertices is set.
type Primitive struct {
	Vertices        []Vertex
	SkinnedVertices []SkinnedVertex
	Indices         []uint32

	// Material is the index into Asset.Materials, or -1 for the default material.
	Material int

	// BoundsMin and BoundsMax are the corners of the axis-aligned bounding box.
	BoundsMin mgl32.Vec3
	BoundsMax mgl32.Vec3
}

// Skinned reports whether the primitive carries joint indices and weights.
func (p Primitive) Skinned() bool {
	return len(p.SkinnedVertices) > 0
}

// Mesh is a named list of primitives.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// Asset is an immutable bundle produced by the loader: node graph, meshes, materials, skins and
// animations. Runtime state derived from it is cloned per instance.
type Asset struct {
	Name       string
	Nodes      []Node
	Roots      []int
	Meshes     []Mesh
	Materials  []Material
	Skins      []Skin
	Animations []Animation
}

// HasSkin reports whether the asset carries skin data.
func (a *Asset) HasSkin() bool {
	return len(a.Skins) > 0
}

// AnimationIndex returns the index of the animation named name, or -1 if not found.
func (a *Asset) AnimationIndex(name string) int {
	for i, anim := range a.Animations {
		if anim.Name == name {
			return i
		}
	}
	return -1
}

// AnimationNames returns the names of all animations.
func (a *Asset) AnimationNames() []string {
	names := make([]string, len(a.Animations))
	for i, anim := range a.Animations {
		names[i] = anim.Name
	}
	return names
}

// BoundingRadius returns the largest distance of any primitive bound corner from the origin.
// Used by frustum culling.
func (a *Asset) BoundingRadius() float32 {
	var r float32
	for _, m := range a.Meshes {
		for _, p := range m.Primitives {
			r = max(r, p.BoundsMin.Len(), p.BoundsMax.Len())
		}
	}
	return r
}
