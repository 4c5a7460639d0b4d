package grass

import "github.com/go-gl/mathgl/mgl32"

// GrassBuilderOption is a functional option for sizing the grass field.
type GrassBuilderOption func(*Grass)

// WithGridSize sets the world-space extent of the field. Default is 100x100.
//
// Parameters:
//   - x: the extent along x
//   - z: the extent along z
//
// Returns:
//   - GrassBuilderOption: option function to apply
func WithGridSize(x, z float32) GrassBuilderOption {
	return func(g *Grass) {
		g.gridSize = mgl32.Vec2{x, z}
	}
}

// WithSlotSize sets the world-space extent of one blade slot. Default is 0.15x0.15.
//
// Parameters:
//   - x: the slot extent along x
//   - z: the slot extent along z
//
// Returns:
//   - GrassBuilderOption: option function to apply
func WithSlotSize(x, z float32) GrassBuilderOption {
	return func(g *Grass) {
		g.slotSize = mgl32.Vec2{x, z}
	}
}

// WithGroundHeight sets the y coordinate blades are rooted on. Default is 0.
//
// Parameters:
//   - y: the ground height
//
// Returns:
//   - GrassBuilderOption: option function to apply
func WithGroundHeight(y float32) GrassBuilderOption {
	return func(g *Grass) {
		g.grassY = y
	}
}
