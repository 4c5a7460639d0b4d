package light

import (
	"math"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ShadowMapResolution is the default width and height in texels of the shadow depth target.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// of the directional light shadow frustum.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for the directional light's
// orthographic shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for the directional light's
// orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// ShadowSettings sizes the orthographic frustum the sun renders the shadow map through.
type ShadowSettings struct {
	HalfExtent float32
	Near       float32
	Far        float32
}

// DefaultShadowSettings returns the default half-extent and near/far planes.
func DefaultShadowSettings() ShadowSettings {
	return ShadowSettings{
		HalfExtent: DefaultShadowHalfExtent,
		Near:       DefaultShadowNear,
		Far:        DefaultShadowFar,
	}
}

// DirectionalMatrix builds the Vulkan clip-space view-projection a directional light renders
// the shadow map with. The eye sits half the far distance behind center, looking along dir.
//
// Parameters:
//   - dir: the direction the light travels; need not be normalized
//   - center: world-space center of the shadow frustum, usually the camera position
//   - s: the frustum size
//
// Returns:
//   - mgl32.Mat4: proj * view in Vulkan clip space
func DirectionalMatrix(dir, center mgl32.Vec3, s ShadowSettings) mgl32.Mat4 {
	dir = normalizeOr(dir, mgl32.Vec3{0, -1, 0})
	eye := center.Sub(dir.Mul(s.Far * 0.5))

	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Y())) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}

	view := mgl32.LookAtV(eye, center, up)
	proj := mgl32.Ortho(-s.HalfExtent, s.HalfExtent, -s.HalfExtent, s.HalfExtent, s.Near, s.Far)
	return common.VulkanClip.Mul4(proj).Mul4(view)
}
