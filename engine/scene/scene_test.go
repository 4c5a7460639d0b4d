package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/game_object"
	"github.com/Carmen-Shannon/oxy-vk/engine/light"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScene(options ...SceneBuilderOption) Scene {
	return NewScene("test", camera.NewCamera(), options...)
}

func TestNewScenePanicsWithoutCamera(t *testing.T) {
	assert.Panics(t, func() { NewScene("broken", nil) })
}

func TestAddAssignsIDs(t *testing.T) {
	s := newTestScene()
	a := s.Add(game_object.NewGameObject())
	b := s.Add(game_object.NewGameObject(game_object.WithID(10)))
	c := s.Add(game_object.NewGameObject())
	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(10), b)
	assert.Equal(t, uint64(11), c)
	assert.Equal(t, 3, s.Count())

	s.Add(game_object.NewGameObject(game_object.WithEphemeral(true)))
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 1, s.CountEphemeral())

	s.Remove(b)
	assert.Nil(t, s.Get(b))
	s.Clear()
	assert.Zero(t, s.Count())
	assert.Zero(t, s.CountEphemeral())
}

func TestRenderablesAndSkinnedFilter(t *testing.T) {
	static := model.NewHandle()
	skinned := model.NewHandle()
	s := newTestScene(WithObjects(
		game_object.NewGameObject(game_object.WithID(3), game_object.WithAsset(skinned, true)),
		game_object.NewGameObject(game_object.WithID(1), game_object.WithAsset(static, false)),
		game_object.NewGameObject(game_object.WithID(2)),
		game_object.NewGameObject(game_object.WithID(4), game_object.WithAsset(static, false), game_object.WithEnabled(false)),
	))

	rs := s.Renderables()
	require.Len(t, rs, 2)
	assert.Equal(t, uint64(1), rs[0].ID)
	assert.Equal(t, uint64(3), rs[1].ID)
	assert.Equal(t, static, rs[0].Asset)

	sk := s.Skinned()
	require.Len(t, sk, 1)
	assert.Equal(t, uint64(3), sk[0].ID)
	assert.NotNil(t, sk[0].Commands)
}

func TestWorldTransformAndPose(t *testing.T) {
	s := newTestScene()
	id := s.Add(game_object.NewGameObject())

	tr := common.IdentityTransform()
	tr.Translation = mgl32.Vec3{4, 5, 6}
	assert.True(t, s.SetTransform(id, tr))
	got, ok := s.Transform(id)
	require.True(t, ok)
	assert.Equal(t, tr, got)

	assert.True(t, s.SetPose(id, []common.Transform{tr}))
	assert.Equal(t, []common.Transform{tr}, s.Pose(id))

	_, ok = s.Transform(999)
	assert.False(t, ok)
	assert.False(t, s.SetPose(999, nil))
	assert.Nil(t, s.Pose(999))
}

func TestTickAppliesRotationSpeed(t *testing.T) {
	s := newTestScene()
	id := s.Add(game_object.NewGameObject(game_object.WithRotationSpeed(0, mgl32.DegToRad(90), 0)))

	s.Tick(1)
	tr, _ := s.Transform(id)
	forward := tr.Rotation.Rotate(mgl32.Vec3{0, 0, 1})
	assert.True(t, forward.ApproxEqualThreshold(mgl32.Vec3{1, 0, 0}, 1e-4))
}

func TestSunIsFirstEnabledDirectional(t *testing.T) {
	off := light.NewLight(light.LightTypeDirectional, light.WithEnabled(false))
	bulb := light.NewLight(light.LightTypePoint)
	sun := light.NewLight(light.LightTypeDirectional)
	s := newTestScene(WithLights(off, bulb, sun))

	assert.Same(t, sun, s.Sun())
	s.RemoveLight(sun)
	assert.Nil(t, s.Sun())
	assert.Len(t, s.Lights(), 2)
}

func TestShadowSettingsOptions(t *testing.T) {
	s := newTestScene()
	assert.Equal(t, light.DefaultShadowSettings(), s.ShadowSettings())

	s = newTestScene(WithShadowHalfExtent(10), WithShadowNearFar(1, 50))
	assert.Equal(t, light.ShadowSettings{HalfExtent: 10, Near: 1, Far: 50}, s.ShadowSettings())
}
