package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption is a functional option for configuring a CameraController.
// Options run before the controller clamps its starting radius and elevation, so a start value
// outside the bounds is pulled onto the nearest bound.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the starting distance between the eye and the pivot, in world units.
//
// Parameters:
//   - radius: eye to pivot distance (default 25, clamped to the radius bounds)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the starting heading of the eye around the pivot's vertical axis.
//
// Parameters:
//   - azimuth: heading in radians, 0 puts the eye on the pivot's +Z side (default 0)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the starting pitch of the eye above the ground plane through the pivot.
//
// Parameters:
//   - elevation: pitch in radians, positive looks down on the pivot (default π/6, clamped to
//     the elevation bounds)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.elevation = elevation
	}
}

// WithTarget sets the world-space pivot the eye orbits and looks at.
//
// Parameters:
//   - x, y, z: pivot position in world units (default origin)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = mgl32.Vec3{x, y, z}
	}
}

// WithRadiusBounds limits how close and how far Zoom and SetRadius may move the eye. Reversed
// bounds are swapped.
//
// Parameters:
//   - min: closest eye to pivot distance in world units (default 1)
//   - max: farthest eye to pivot distance in world units (default 500)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadiusBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		if min > max {
			min, max = max, min
		}
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithElevationBounds limits the pitch reachable by dragging and the orbit keys. Keeping both
// bounds inside ±π/2 stops the view from flipping at the poles. Reversed bounds are swapped.
//
// Parameters:
//   - min: lowest pitch in radians (default -(π/2 - 0.1))
//   - max: highest pitch in radians (default π/2 - 0.1)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithElevationBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		if min > max {
			min, max = max, min
		}
		cc.minElevation = min
		cc.maxElevation = max
	}
}

// WithOrbitSpeed sets the step taken by each OrbitLeft, OrbitRight, OrbitUp and OrbitDown call.
//
// Parameters:
//   - speed: radians per call (default 0.03)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.orbitSpeed = speed
	}
}

// WithMouseSensitivity sets how far a Drag of one pixel turns the eye.
//
// Parameters:
//   - sensitivity: radians per pixel of cursor travel (default 0.005)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithMouseSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.mouseSensitivity = sensitivity
	}
}

// WithZoomSpeed scales scroll input before it changes the radius.
//
// Parameters:
//   - speed: world units per scroll step (default 1)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithPanSpeed scales the Pan* deltas. The engine pans once per tick for each held WASDQE key.
//
// Parameters:
//   - speed: world units per unit of pan delta (default 1)
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithPanSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.panSpeed = speed
	}
}
