package light

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestNewLightDefaults(t *testing.T) {
	sun := NewLight(LightTypeDirectional)
	assert.True(t, sun.Enabled())
	assert.True(t, sun.CastsShadows())
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, sun.Direction())

	bulb := NewLight(LightTypePoint, WithPosition(1, 2, 3), WithColor(1, 0.5, 0))
	assert.False(t, bulb.CastsShadows())
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, bulb.Position())
	assert.Equal(t, mgl32.Vec3{1, 0.5, 0}, bulb.Color())
}

func TestDirectionIsNormalized(t *testing.T) {
	l := NewLight(LightTypeDirectional, WithDirection(0, -10, 0))
	assert.InDelta(t, 1.0, l.Direction().Len(), 1e-6)

	l.SetDirection(3, 0, 4)
	assert.True(t, l.Direction().ApproxEqual(mgl32.Vec3{0.6, 0, 0.8}))

	l.SetDirection(0, 0, 0)
	assert.True(t, l.Direction().ApproxEqual(mgl32.Vec3{0.6, 0, 0.8}), "zero vector keeps the previous direction")
}

func TestDirectionalMatrixMapsCenterIntoClipVolume(t *testing.T) {
	s := DefaultShadowSettings()
	center := mgl32.Vec3{5, 0, -3}
	m := DirectionalMatrix(mgl32.Vec3{-0.3, -1, -0.2}, center, s)

	clip := m.Mul4x1(center.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip.W())
	assert.InDelta(t, 0, ndc.X(), 1e-4)
	assert.InDelta(t, 0, ndc.Y(), 1e-4)
	assert.Greater(t, ndc.Z(), float32(0))
	assert.Less(t, ndc.Z(), float32(1))
}

func TestDirectionalMatrixStraightDown(t *testing.T) {
	m := DirectionalMatrix(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{}, DefaultShadowSettings())
	for _, v := range m {
		assert.False(t, math.IsNaN(float64(v)), "matrix must not contain NaN")
	}
}
