package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestProjectionTargetsVulkanClipSpace(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10), WithElevation(0), WithAzimuth(0))
	cam := NewCamera(WithController(ctrl), WithNearFar(0.1, 100), WithAspect(16.0/9.0))

	assert.True(t, cam.Position().ApproxEqualThreshold(mgl32.Vec3{0, 0, 10}, 1e-4))
	assert.True(t, cam.Forward().ApproxEqualThreshold(mgl32.Vec3{0, 0, -1}, 1e-4))

	vp := cam.ViewProjectionMatrix()
	near := vp.Mul4x1(mgl32.Vec4{0, 0, 10 - 0.1, 1})
	far := vp.Mul4x1(mgl32.Vec4{0, 0, 10 - 100, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-3)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-3)

	above := vp.Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.Less(t, above.Y()/above.W(), float32(0), "world up maps to negative clip Y")
}

func TestUpdateFollowsController(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10), WithElevation(0))
	cam := NewCamera(WithController(ctrl))
	before := cam.ViewMatrix()

	ctrl.SetTarget(5, 0, 0)
	assert.Equal(t, before, cam.ViewMatrix(), "view changes only on Update")

	cam.Update()
	assert.NotEqual(t, before, cam.ViewMatrix())
	assert.True(t, cam.Position().ApproxEqualThreshold(mgl32.Vec3{5, 0, 10}, 1e-4))
}

func TestSetAspectIgnoresNonPositive(t *testing.T) {
	cam := NewCamera(WithAspect(2))
	cam.SetAspect(0)
	assert.Equal(t, float32(2), cam.Aspect())
}

func TestControllerClampsRadiusAndElevation(t *testing.T) {
	ctrl := NewCameraController(WithRadiusBounds(2, 20), WithElevationBounds(-1, 1), WithZoomSpeed(1))

	ctrl.SetRadius(100)
	assert.Equal(t, float32(20), ctrl.Radius())
	ctrl.Zoom(50)
	assert.Equal(t, float32(2), ctrl.Radius())

	ctrl.SetElevation(math.Pi)
	assert.Equal(t, float32(1), ctrl.Elevation())
	ctrl.Drag(0, -1e6)
	assert.Equal(t, float32(-1), ctrl.Elevation())
}

func TestPanPreservesOrbit(t *testing.T) {
	ctrl := NewCameraController(WithRadius(10), WithElevation(0), WithPanSpeed(2))
	offset := ctrl.Position().Sub(ctrl.Target())

	ctrl.PanRight(1)
	assert.True(t, ctrl.Target().ApproxEqualThreshold(mgl32.Vec3{2, 0, 0}, 1e-4))
	assert.True(t, ctrl.Position().Sub(ctrl.Target()).ApproxEqualThreshold(offset, 1e-4))

	ctrl.PanForward(1)
	assert.True(t, ctrl.Target().ApproxEqualThreshold(mgl32.Vec3{2, 0, -2}, 1e-4))
}

func TestControllerDefaults(t *testing.T) {
	ctrl := NewCameraController()
	assert.Equal(t, float32(25), ctrl.Radius())
	assert.InDelta(t, math.Pi/6, ctrl.Elevation(), 1e-6)
	assert.Zero(t, ctrl.Azimuth())
	assert.Equal(t, mgl32.Vec3{}, ctrl.Target())

	ctrl.Drag(100, 0)
	assert.InDelta(t, -0.5, ctrl.Azimuth(), 1e-6, "0.005 radians per pixel")
}

func TestControllerOptionsClampStartAndSwapBounds(t *testing.T) {
	ctrl := NewCameraController(WithRadius(1000), WithElevation(3))
	assert.Equal(t, float32(500), ctrl.Radius())
	assert.InDelta(t, math.Pi/2-0.1, ctrl.Elevation(), 1e-6)

	ctrl = NewCameraController(WithRadiusBounds(20, 2), WithElevationBounds(0.5, -0.5), WithRadius(1))
	assert.Equal(t, float32(2), ctrl.Radius())
	ctrl.SetRadius(50)
	assert.Equal(t, float32(20), ctrl.Radius())
	ctrl.SetElevation(-2)
	assert.Equal(t, float32(-0.5), ctrl.Elevation())
}
