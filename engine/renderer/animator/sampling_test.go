package animator

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translationChannel(interp model.Interpolation) model.Channel {
	return model.Channel{
		Path:          model.PathTranslation,
		Interpolation: interp,
		Times:         []float32{0, 1, 3},
		Values:        []float32{0, 0, 0, 2, 0, 0, 2, 4, 0},
	}
}

func TestSampleVec3Linear(t *testing.T) {
	ch := translationChannel(model.InterpolationLinear)
	cases := []struct {
		t    float32
		want mgl32.Vec3
	}{
		{-1, mgl32.Vec3{0, 0, 0}},
		{0.5, mgl32.Vec3{1, 0, 0}},
		{2, mgl32.Vec3{2, 2, 0}},
		{10, mgl32.Vec3{2, 4, 0}},
	}
	for _, c := range cases {
		got, ok := SampleVec3(&ch, c.t)
		require.True(t, ok)
		assert.True(t, got.ApproxEqual(c.want), "t=%v got %v", c.t, got)
	}
}

func TestSampleVec3Step(t *testing.T) {
	ch := translationChannel(model.InterpolationStep)
	got, ok := SampleVec3(&ch, 0.99)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, got)
	got, _ = SampleVec3(&ch, 1.5)
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, got)
}

func TestSampleSingleKeyClamps(t *testing.T) {
	ch := model.Channel{Path: model.PathScale, Times: []float32{0.5}, Values: []float32{3, 3, 3}}
	for _, tm := range []float32{0, 0.5, 7} {
		got, ok := SampleVec3(&ch, tm)
		require.True(t, ok)
		assert.Equal(t, mgl32.Vec3{3, 3, 3}, got)
	}

	empty := model.Channel{Path: model.PathScale}
	_, ok := SampleVec3(&empty, 0)
	assert.False(t, ok)
}

func TestSampleQuatSlerp(t *testing.T) {
	q90 := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	ch := model.Channel{
		Path:   model.PathRotation,
		Times:  []float32{0, 1},
		Values: []float32{0, 0, 0, 1, q90.V.X(), q90.V.Y(), q90.V.Z(), q90.W},
	}
	got, ok := SampleQuat(&ch, 0.5)
	require.True(t, ok)
	want := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	assert.True(t, got.ApproxEqualThreshold(want, 1e-5), "got %v", got)
}

func TestSampleAnimationWritesLocals(t *testing.T) {
	anim := chainAsset().Animations[0]
	locals := []common.Transform{common.IdentityTransform(), common.IdentityTransform(), common.IdentityTransform()}
	SampleAnimation(&anim, 0.25, locals)
	assert.True(t, locals[1].Translation.ApproxEqual(mgl32.Vec3{0.5, 0, 0}))
	assert.Equal(t, common.IdentityTransform(), locals[0])

	anim.Channels[0].Node = 9
	SampleAnimation(&anim, 0.5, locals)
	assert.True(t, locals[1].Translation.ApproxEqual(mgl32.Vec3{0.5, 0, 0}), "out-of-range channel is ignored")
}

func TestPlaybackLoops(t *testing.T) {
	p := Playback{Playing: true}
	p.Advance(0.75, 1)
	assert.InDelta(t, 0.75, p.Time, 1e-6)
	p.Advance(0.5, 1)
	assert.InDelta(t, 0.25, p.Time, 1e-6)

	p.Advance(1, 0)
	assert.Zero(t, p.Time)

	stopped := Playback{Time: 0.3}
	stopped.Advance(1, 1)
	assert.InDelta(t, 0.3, stopped.Time, 1e-6)
}
