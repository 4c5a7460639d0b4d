// Package grass implements the procedural grass field: a compute stage that generates every
// blade once, a compute stage that culls blades every frame into an indirect draw, and the
// tessellated draw that renders the visible blades inside the forward pass.
package grass

import (
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/go-gl/mathgl/mgl32"
)

// LocalGroupSize is the local_size_x of both grass compute shaders.
const LocalGroupSize = 32

// GridData is pushed as constants to both compute stages. The layout matches the std430 block
// declared by the shaders.
type GridData struct {
	GridSize     mgl32.Vec2
	SlotSize     mgl32.Vec2
	SlotCount    [2]uint32
	GrassY       float32
	GrassCount   uint32
	DispatchSize uint32
}

// GridDataSize is the push constant range size of GridData.
const GridDataSize = uint32(unsafe.Sizeof(GridData{}))

// NewGridData derives the slot count, blade count and dispatch size of a grid. Each axis holds
// floor(gridSize / slotSize) slots and the dispatch covers every blade with groups of
// LocalGroupSize.
//
// Parameters:
//   - gridSize: the world-space extent of the field on x and z
//   - slotSize: the world-space extent of one blade slot
//   - grassY: the height of the ground plane blades are rooted on
//
// Returns:
//   - GridData: the filled parameter block
func NewGridData(gridSize, slotSize mgl32.Vec2, grassY float32) GridData {
	g := GridData{GridSize: gridSize, SlotSize: slotSize, GrassY: grassY}
	for i := 0; i < 2; i++ {
		if slotSize[i] > 0 {
			g.SlotCount[i] = uint32(math.Floor(float64(gridSize[i] / slotSize[i])))
		}
	}
	g.GrassCount = g.SlotCount[0] * g.SlotCount[1]
	g.DispatchSize = common.DivCeil(g.GrassCount, uint32(LocalGroupSize))
	return g
}

// Bytes returns the push constant payload.
func (g GridData) Bytes() []byte {
	return common.StructToBytes(&g)
}

// Blade is one grass blade as written by the generate stage and read as a vertex by the draw.
type Blade struct {
	// V0 is the root position, w the orientation angle around y.
	V0 mgl32.Vec4
	// V1 is the bezier control point, w the height.
	V1 mgl32.Vec4
	// V2 is the physical model guide, w the width.
	V2 mgl32.Vec4
	// Up is the update vector, w the stiffness.
	Up mgl32.Vec4
}

// BladeSize is the byte size of one Blade.
const BladeSize = uint64(unsafe.Sizeof(Blade{}))

// IndirectArgs is the VkDrawIndirectCommand the update stage fills.
type IndirectArgs struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// IndirectArgsSize is the byte size and draw stride of IndirectArgs.
const IndirectArgsSize = uint32(unsafe.Sizeof(IndirectArgs{}))

// ResetArgs returns the arguments the update stage starts counting from: no vertices and one
// instance.
func ResetArgs() IndirectArgs {
	return IndirectArgs{InstanceCount: 1}
}
