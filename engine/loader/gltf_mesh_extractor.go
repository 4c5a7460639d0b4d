package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// extractMeshes converts every glTF mesh into a model.Mesh, one Primitive per glTF primitive.
func (p *gltfParser) extractMeshes() ([]model.Mesh, error) {
	meshes := make([]model.Mesh, len(p.doc.Meshes))
	for mi := range p.doc.Meshes {
		src := &p.doc.Meshes[mi]
		meshes[mi].Name = src.Name
		if meshes[mi].Name == "" {
			meshes[mi].Name = fmt.Sprintf("mesh_%d", mi)
		}
		for pi := range src.Primitives {
			prim, err := p.extractPrimitive(&src.Primitives[pi])
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			meshes[mi].Primitives = append(meshes[mi].Primitives, prim)
		}
	}
	return meshes, nil
}

// extractPrimitive reads one triangle-list primitive. Missing normals and tangents are generated
// from the geometry. The primitive is skinned when it carries both JOINTS_0 and WEIGHTS_0.
func (p *gltfParser) extractPrimitive(src *gltfPrimitive) (model.Primitive, error) {
	prim := model.Primitive{Material: -1}
	if src.Mode != nil && *src.Mode != gltfModeTriangles {
		return prim, fmt.Errorf("unsupported primitive mode %d (only triangles)", *src.Mode)
	}
	if src.Material != nil {
		prim.Material = *src.Material
	}

	posIndex, ok := src.Attributes["POSITION"]
	if !ok {
		return prim, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := p.readFloats(posIndex, 3)
	if err != nil {
		return prim, fmt.Errorf("positions: %w", err)
	}
	n := len(positions) / 3
	vertices := make([]model.Vertex, n)
	for i := range vertices {
		vertices[i].Position = [3]float32{positions[i*3], positions[i*3+1], positions[i*3+2]}
		vertices[i].Color = [4]float32{1, 1, 1, 1}
	}

	normals, err := p.optionalFloats(src, "NORMAL", 3)
	if err != nil {
		return prim, err
	}
	for i := range min(n, len(normals)/3) {
		vertices[i].Normal = [3]float32{normals[i*3], normals[i*3+1], normals[i*3+2]}
	}
	uvs, err := p.optionalFloats(src, "TEXCOORD_0", 2)
	if err != nil {
		return prim, err
	}
	for i := range min(n, len(uvs)/2) {
		vertices[i].TexCoord = [2]float32{uvs[i*2], uvs[i*2+1]}
	}
	tangents, err := p.optionalFloats(src, "TANGENT", 4)
	if err != nil {
		return prim, err
	}
	for i := range min(n, len(tangents)/4) {
		vertices[i].Tangent = [4]float32(tangents[i*4 : i*4+4])
	}
	if err := p.readColors(src, vertices); err != nil {
		return prim, err
	}

	if src.Indices != nil {
		if prim.Indices, err = p.readUints(*src.Indices, 1); err != nil {
			return prim, fmt.Errorf("indices: %w", err)
		}
		for _, idx := range prim.Indices {
			if int(idx) >= n {
				return prim, fmt.Errorf("index %d out of range for %d vertices", idx, n)
			}
		}
	} else {
		prim.Indices = make([]uint32, n)
		for i := range prim.Indices {
			prim.Indices[i] = uint32(i)
		}
	}

	if len(normals) == 0 {
		generateNormals(vertices, prim.Indices)
	}
	if len(tangents) == 0 {
		generateTangents(vertices, prim.Indices)
	}
	prim.BoundsMin, prim.BoundsMax = bounds(vertices)

	jointIndex, hasJoints := src.Attributes["JOINTS_0"]
	weightIndex, hasWeights := src.Attributes["WEIGHTS_0"]
	if !hasJoints || !hasWeights {
		prim.Vertices = vertices
		return prim, nil
	}
	joints, err := p.readUints(jointIndex, 4)
	if err != nil {
		return prim, fmt.Errorf("joints: %w", err)
	}
	weights, err := p.readFloats(weightIndex, 4)
	if err != nil {
		return prim, fmt.Errorf("weights: %w", err)
	}
	prim.SkinnedVertices = make([]model.SkinnedVertex, n)
	for i := range prim.SkinnedVertices {
		sv := &prim.SkinnedVertices[i]
		sv.Vertex = vertices[i]
		if i*4+4 <= len(joints) {
			sv.Joints = [4]uint32(joints[i*4 : i*4+4])
		}
		if i*4+4 <= len(weights) {
			sv.Weights = normalizeWeights([4]float32(weights[i*4 : i*4+4]))
		}
	}
	return prim, nil
}

func (p *gltfParser) optionalFloats(src *gltfPrimitive, attribute string, components int) ([]float32, error) {
	index, ok := src.Attributes[attribute]
	if !ok {
		return nil, nil
	}
	values, err := p.readFloats(index, components)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", attribute, err)
	}
	return values, nil
}

// readColors applies COLOR_0, which may be RGB or RGBA.
func (p *gltfParser) readColors(src *gltfPrimitive, vertices []model.Vertex) error {
	index, ok := src.Attributes["COLOR_0"]
	if !ok {
		return nil
	}
	if index < 0 || index >= len(p.doc.Accessors) {
		return fmt.Errorf("COLOR_0: accessor %d: %w", index, errAccessorRange)
	}
	components := accessorComponents(p.doc.Accessors[index].Type)
	if components != 3 && components != 4 {
		return fmt.Errorf("COLOR_0: type %s", p.doc.Accessors[index].Type)
	}
	colors, err := p.readFloats(index, components)
	if err != nil {
		return fmt.Errorf("COLOR_0: %w", err)
	}
	for i := range min(len(vertices), len(colors)/components) {
		c := [4]float32{1, 1, 1, 1}
		copy(c[:], colors[i*components:(i+1)*components])
		vertices[i].Color = c
	}
	return nil
}

// normalizeWeights rescales joint weights to sum to one. All-zero weights bind fully to the
// first joint.
func normalizeWeights(w [4]float32) [4]float32 {
	sum := w[0] + w[1] + w[2] + w[3]
	if sum <= 1e-6 {
		return [4]float32{1, 0, 0, 0}
	}
	return [4]float32{w[0] / sum, w[1] / sum, w[2] / sum, w[3] / sum}
}

func bounds(vertices []model.Vertex) (lo, hi mgl32.Vec3) {
	if len(vertices) == 0 {
		return lo, hi
	}
	lo, hi = vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		for c := range 3 {
			lo[c] = min(lo[c], v.Position[c])
			hi[c] = max(hi[c], v.Position[c])
		}
	}
	return lo, hi
}

// generateNormals computes smooth area-weighted vertex normals from the triangle list.
// Vertices touched by no triangle point up.
func generateNormals(vertices []model.Vertex, indices []uint32) {
	accum := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := mgl32.Vec3(vertices[i0].Position)
		face := mgl32.Vec3(vertices[i1].Position).Sub(p0).Cross(mgl32.Vec3(vertices[i2].Position).Sub(p0))
		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}
	for i, n := range accum {
		if n.Len() < 1e-6 {
			vertices[i].Normal = [3]float32{0, 1, 0}
			continue
		}
		vertices[i].Normal = n.Normalize()
	}
}

// generateTangents derives per-vertex tangents from UV gradients, orthonormalized against the
// normal with handedness in w.
func generateTangents(vertices []model.Vertex, indices []uint32) {
	tan := make([]mgl32.Vec3, len(vertices))
	bitan := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := mgl32.Vec3(vertices[i0].Position)
		e1 := mgl32.Vec3(vertices[i1].Position).Sub(p0)
		e2 := mgl32.Vec3(vertices[i2].Position).Sub(p0)
		uv0 := mgl32.Vec2(vertices[i0].TexCoord)
		d1 := mgl32.Vec2(vertices[i1].TexCoord).Sub(uv0)
		d2 := mgl32.Vec2(vertices[i2].TexCoord).Sub(uv0)

		det := d1[0]*d2[1] - d1[1]*d2[0]
		if det == 0 {
			continue
		}
		r := 1 / det
		t := e1.Mul(d2[1] * r).Sub(e2.Mul(d1[1] * r))
		b := e2.Mul(d1[0] * r).Sub(e1.Mul(d2[0] * r))
		for _, idx := range [3]uint32{i0, i1, i2} {
			tan[idx] = tan[idx].Add(t)
			bitan[idx] = bitan[idx].Add(b)
		}
	}
	for i := range vertices {
		n := mgl32.Vec3(vertices[i].Normal)
		ortho := tan[i].Sub(n.Mul(n.Dot(tan[i])))
		if ortho.Len() < 1e-6 {
			vertices[i].Tangent = [4]float32{1, 0, 0, 1}
			continue
		}
		ortho = ortho.Normalize()
		w := float32(1)
		if n.Cross(ortho).Dot(bitan[i]) < 0 {
			w = -1
		}
		vertices[i].Tangent = ortho.Vec4(w)
	}
}
