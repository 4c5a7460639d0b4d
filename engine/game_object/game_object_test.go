package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameObjectDefaults(t *testing.T) {
	obj := NewGameObject()
	assert.True(t, obj.Enabled())
	assert.True(t, obj.Asset().IsZero())
	assert.Equal(t, mgl32.Ident4(), obj.World())
	assert.Nil(t, obj.Pose())
}

func TestBuilderOptions(t *testing.T) {
	h := model.NewHandle()
	obj := NewGameObject(
		WithID(7),
		WithAsset(h, true),
		WithPosition(1, 2, 3),
		WithScale(2, 2, 2),
		WithAnimation(1),
	)
	assert.Equal(t, uint64(7), obj.ID())
	assert.Equal(t, h, obj.Asset())
	assert.True(t, obj.Skinned())

	world := obj.World()
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, world.Col(3).Vec3())
	assert.InDelta(t, 2, world.Col(0).Vec3().Len(), 1e-6)

	cmds := obj.Commands().Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, AnimCommand{Kind: AnimPlay, Index: 1}, cmds[0])
}

func TestCommandQueueDrainsInOrder(t *testing.T) {
	obj := NewGameObject()
	obj.Play(2)
	obj.Stop()
	obj.Play(0)
	assert.Equal(t, 3, obj.Commands().Len())

	cmds := obj.Commands().Drain()
	assert.Equal(t, []AnimCommand{
		{Kind: AnimPlay, Index: 2},
		{Kind: AnimStop},
		{Kind: AnimPlay, Index: 0},
	}, cmds)
	assert.Zero(t, obj.Commands().Len())
	assert.Equal(t, "Stop", cmds[1].Kind.String())
}

func TestPoseIsCopied(t *testing.T) {
	obj := NewGameObject()
	pose := []common.Transform{common.IdentityTransform(), common.IdentityTransform()}
	obj.SetPose(pose)

	pose[0].Translation = mgl32.Vec3{9, 9, 9}
	got := obj.Pose()
	require.Len(t, got, 2)
	assert.Equal(t, mgl32.Vec3{}, got[0].Translation)

	got[1].Translation = mgl32.Vec3{1, 1, 1}
	assert.Equal(t, mgl32.Vec3{}, obj.Pose()[1].Translation)
}

func TestSettersPreserveOtherComponents(t *testing.T) {
	obj := NewGameObject(WithScale(3, 3, 3))
	obj.SetPosition(1, 0, 0)
	obj.SetRotation(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}))

	tr := obj.Transform()
	assert.Equal(t, mgl32.Vec3{3, 3, 3}, tr.Scale)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, tr.Translation)
}
