package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustumFromMatrix extracts frustum planes from a view-projection matrix using the
// Gribb/Hartmann method. Clip space depth is [0, 1], so the near plane is row 2 alone.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the combined Proj * View matrix
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	var f Frustum
	row := func(i int) mgl32.Vec4 {
		return viewProj.Row(i)
	}
	set := func(idx int, v mgl32.Vec4) {
		f.Planes[idx] = Plane{Normal: v.Vec3(), Distance: v[3]}
	}

	set(FrustumLeft, row(3).Add(row(0)))
	set(FrustumRight, row(3).Sub(row(0)))
	set(FrustumBottom, row(3).Add(row(1)))
	set(FrustumTop, row(3).Sub(row(1)))
	set(FrustumNear, row(2))
	set(FrustumFar, row(3).Sub(row(2)))

	for i := range f.Planes {
		f.normalizePlane(i)
	}
	return f
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	if length := p.Normal.Len(); length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
}

// DistanceTo returns the signed distance from the plane to point.
func (p Plane) DistanceTo(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

// IntersectsSphere reports whether a sphere is at least partially inside the frustum.
//
// Parameters:
//   - center: the sphere center in world space
//   - radius: the sphere radius
//
// Returns:
//   - bool: false only when the sphere lies fully outside one of the planes
func (f Frustum) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.DistanceTo(center) < -radius {
			return false
		}
	}
	return true
}
