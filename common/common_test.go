package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(32768), Align(512*Mat4Size, 256))
	assert.Equal(t, uint64(128), Align(100, 64))
	assert.Equal(t, uint64(64), Align(64, 64))
	assert.Equal(t, uint64(5), Align(5, 0))
}

func TestDivCeil(t *testing.T) {
	assert.Equal(t, uint32(13862), DivCeil(uint32(443556), 32))
	assert.Equal(t, 2, DivCeil(64, 32))
	assert.Equal(t, uint64(3), DivCeil(uint64(65), 32))
}

func TestMipLevels(t *testing.T) {
	assert.Equal(t, uint32(11), MipLevels(1024, 512))
	assert.Equal(t, uint32(10), MipLevels(1000, 3))
	assert.Equal(t, uint32(1), MipLevels(1, 1))
	assert.Equal(t, uint32(1), MipLevels(0, 0))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, uint32(4), Coalesce(uint32(0), 4, 8))
	assert.Equal(t, "", Coalesce("", ""))
}

func TestTransformMatrix(t *testing.T) {
	assert.True(t, ApproxEqualMat4(mgl32.Ident4(), IdentityTransform().Matrix(), 1e-6))

	tr := Transform{
		Translation: mgl32.Vec3{1, 2, 3},
		Rotation:    mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}),
		Scale:       mgl32.Vec3{2, 2, 2},
	}
	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, 2, p.Y(), 1e-5)
	assert.InDelta(t, 1, p.Z(), 1e-5)
}

func TestStructToBytes(t *testing.T) {
	v := struct{ A, B uint32 }{1, 2}
	b := StructToBytes(&v)
	assert.Len(t, b, 8)
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(2), b[4])
	assert.Nil(t, SliceToBytes([]uint32{}))
	assert.Len(t, SliceToBytes([]uint32{1, 2, 3}), 12)
}

func TestFrustumCullsSpheres(t *testing.T) {
	proj := VulkanClip.Mul4(mgl32.Perspective(mgl32.DegToRad(45), 1, 0.1, 100))
	f := ExtractFrustumFromMatrix(proj)

	assert.True(t, f.IntersectsSphere(mgl32.Vec3{0, 0, -10}, 1))
	assert.False(t, f.IntersectsSphere(mgl32.Vec3{0, 0, 10}, 1), "behind the camera")
	assert.False(t, f.IntersectsSphere(mgl32.Vec3{100, 0, -10}, 1), "outside the right plane")
	assert.True(t, f.IntersectsSphere(mgl32.Vec3{5, 0, -10}, 2), "straddles the right plane")
}
