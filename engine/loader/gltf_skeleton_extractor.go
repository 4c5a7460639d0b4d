package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// extractNodes converts the node hierarchy and returns the root node indices of the default
// scene. Without scenes every parentless node is a root.
func (p *gltfParser) extractNodes() ([]model.Node, []int, error) {
	nodes := make([]model.Node, len(p.doc.Nodes))
	hasParent := make([]bool, len(nodes))
	for i := range p.doc.Nodes {
		src := &p.doc.Nodes[i]
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("node_%d", i)
		}
		n := model.NewNode(name)
		n.Translation, n.Rotation, n.Scale = nodeTransform(src)
		if src.Mesh != nil {
			if *src.Mesh < 0 || *src.Mesh >= len(p.doc.Meshes) {
				return nil, nil, fmt.Errorf("node %d: mesh %d out of range", i, *src.Mesh)
			}
			n.Mesh = *src.Mesh
		}
		if src.Skin != nil {
			if *src.Skin < 0 || *src.Skin >= len(p.doc.Skins) {
				return nil, nil, fmt.Errorf("node %d: skin %d out of range", i, *src.Skin)
			}
			n.Skin = *src.Skin
		}
		for _, c := range src.Children {
			if c < 0 || c >= len(nodes) || c == i {
				return nil, nil, fmt.Errorf("node %d: child %d out of range", i, c)
			}
			if hasParent[c] {
				return nil, nil, fmt.Errorf("node %d has more than one parent", c)
			}
			hasParent[c] = true
			n.Children = append(n.Children, c)
		}
		nodes[i] = n
	}

	if scene := p.defaultScene(); scene != nil {
		for _, r := range scene.Nodes {
			if r < 0 || r >= len(nodes) {
				return nil, nil, fmt.Errorf("scene root %d out of range", r)
			}
		}
		return nodes, scene.Nodes, nil
	}
	var roots []int
	for i, parented := range hasParent {
		if !parented {
			roots = append(roots, i)
		}
	}
	return nodes, roots, nil
}

func (p *gltfParser) defaultScene() *gltfScene {
	if len(p.doc.Scenes) == 0 {
		return nil
	}
	i := 0
	if p.doc.Scene != nil && *p.doc.Scene >= 0 && *p.doc.Scene < len(p.doc.Scenes) {
		i = *p.doc.Scene
	}
	return &p.doc.Scenes[i]
}

// extractSkins reads joint lists and inverse bind matrices. A skin without inverse bind matrices
// uses identity for every joint.
func (p *gltfParser) extractSkins() ([]model.Skin, error) {
	skins := make([]model.Skin, len(p.doc.Skins))
	for si := range p.doc.Skins {
		src := &p.doc.Skins[si]
		var ibm []float32
		if src.InverseBindMatrices != nil {
			var err error
			if ibm, err = p.readFloats(*src.InverseBindMatrices, 16); err != nil {
				return nil, fmt.Errorf("skin %d inverse bind matrices: %w", si, err)
			}
			if len(ibm) < len(src.Joints)*16 {
				return nil, fmt.Errorf("skin %d: %d inverse bind matrices for %d joints", si, len(ibm)/16, len(src.Joints))
			}
		}

		skins[si].Name = src.Name
		skins[si].Joints = make([]model.Joint, len(src.Joints))
		for j, node := range src.Joints {
			if node < 0 || node >= len(p.doc.Nodes) {
				return nil, fmt.Errorf("skin %d joint %d: node %d out of range", si, j, node)
			}
			joint := model.Joint{Node: node, InverseBind: mgl32.Ident4()}
			if ibm != nil {
				joint.InverseBind = mgl32.Mat4(ibm[j*16 : j*16+16])
			}
			skins[si].Joints[j] = joint
		}
	}
	return skins, nil
}

// nodeTransform returns a node's local transform as translation, rotation and scale, decomposing
// the matrix form when present.
func nodeTransform(n *gltfNode) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3) {
	if n.Matrix != nil {
		return decompose(mgl32.Mat4(*n.Matrix))
	}
	t := mgl32.Vec3{}
	r := mgl32.QuatIdent()
	s := mgl32.Vec3{1, 1, 1}
	if n.Translation != nil {
		t = *n.Translation
	}
	if n.Rotation != nil {
		r = mgl32.Quat{W: n.Rotation[3], V: mgl32.Vec3{n.Rotation[0], n.Rotation[1], n.Rotation[2]}}.Normalize()
	}
	if n.Scale != nil {
		s = *n.Scale
	}
	return t, r, s
}

// decompose splits an affine column-major matrix into T * R * S. Shear is discarded.
func decompose(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3) {
	t := m.Col(3).Vec3()
	s := mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}
	if m.Mat3().Det() < 0 {
		s[0] = -s[0]
	}
	var rot mgl32.Mat4
	for c := range 3 {
		if s[c] == 0 {
			return t, mgl32.QuatIdent(), s
		}
		rot.SetCol(c, m.Col(c).Vec3().Mul(1/s[c]).Vec4(0))
	}
	rot.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	return t, mgl32.Mat4ToQuat(rot).Normalize(), s
}
