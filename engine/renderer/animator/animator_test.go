package animator

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/game_object"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// residentModel stands in for an uploaded model; the animator only reads the asset.
type residentModel struct {
	handle model.Handle
	asset  *model.Asset
}

func (m *residentModel) Destroy(*device.Context) {}
func (m *residentModel) Handle() model.Handle { return m.handle }
func (m *residentModel) Name() string { return m.asset.Name }
func (m *residentModel) Asset() *model.Asset { return m.asset }
func (m *residentModel) Skinned() bool { return true }
func (m *residentModel) Primitives() []model.GPUPrimitive { return nil }
func (m *residentModel) Material(int) model.GPUMaterial { return model.GPUMaterial{} }
func (m *residentModel) BoundingRadius() float32 { return 1 }

type animatorFixture struct {
	ctx    *device.Context
	anim   *Animator
	table  *model.Table
	world  scene.Scene
	handle model.Handle
}

func newAnimatorFixture(t *testing.T, slots int) *animatorFixture {
	t.Helper()
	ctx, _ := newTestContext(t)
	a := NewAnimator(ctx, WithWorkers(2), WithSkinSlots(slots))
	t.Cleanup(a.Close)
	return &animatorFixture{
		ctx:    ctx,
		anim:   a,
		table:  model.NewTable(ctx),
		world:  scene.NewScene("anim", camera.NewCamera()),
		handle: model.NewHandle(),
	}
}

func (f *animatorFixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.table.Insert(&residentModel{handle: f.handle, asset: chainAsset()}))
}

func (f *animatorFixture) update(dt float32) {
	f.anim.Update(f.ctx, f.world, f.table, dt)
}

func TestInstanceWaitsForAsset(t *testing.T) {
	f := newAnimatorFixture(t, 2)
	id := f.world.Add(game_object.NewGameObject(game_object.WithAsset(f.handle, true), game_object.WithAnimation(0)))

	f.update(0.1)
	inst, ok := f.anim.Instance(id)
	require.True(t, ok)
	assert.Equal(t, StateUnloaded, inst.State())
	assert.Equal(t, -1, f.anim.SkinSlot(id))
	assert.Equal(t, 1, f.world.Get(id).Commands().Len(), "commands stay queued until the runtime exists")

	f.load(t)
	f.update(0)
	assert.Equal(t, StateUpdating, inst.State())
	assert.Equal(t, 0, f.anim.SkinSlot(id))
	assert.Zero(t, f.world.Get(id).Commands().Len())
}

func TestUpdateWritesJointMatrices(t *testing.T) {
	f := newAnimatorFixture(t, 2)
	f.load(t)
	obj := game_object.NewGameObject(game_object.WithAsset(f.handle, true))
	id := f.world.Add(obj)

	f.update(0)
	slot := f.anim.SkinSlot(id)
	require.GreaterOrEqual(t, slot, 0)
	joints := f.anim.Joints()
	assert.True(t, common.ApproxEqualMat4(mgl32.Ident4(), joints.Matrix(f.ctx, slot, 0), 1e-6), "bind pose cancels the skin root")
	assert.Equal(t, 2, f.anim.Stats().Written)

	f.update(0)
	assert.Zero(t, f.anim.Stats().Written, "nothing moved")

	obj.Play(0)
	f.update(0.5)
	assert.True(t, common.ApproxEqualMat4(mgl32.Translate3D(1, 0, 0), joints.Matrix(f.ctx, slot, 0), 1e-5))
	assert.True(t, common.ApproxEqualMat4(mgl32.Translate3D(1, 0, 0), joints.Matrix(f.ctx, slot, 1), 1e-5))

	pose := f.world.Pose(id)
	require.Len(t, pose, 3)
	assert.True(t, pose[1].Translation.ApproxEqual(mgl32.Vec3{1, 0, 0}))

	obj.Stop()
	f.update(0.25)
	assert.True(t, common.ApproxEqualMat4(mgl32.Translate3D(1, 0, 0), joints.Matrix(f.ctx, slot, 0), 1e-5))
	assert.False(t, f.anim.instances[id].Playback().Playing)
}

func TestInvalidPlayIndexIsIgnored(t *testing.T) {
	f := newAnimatorFixture(t, 1)
	f.load(t)
	id := f.world.Add(game_object.NewGameObject(game_object.WithAsset(f.handle, true), game_object.WithAnimation(5)))

	f.update(0.1)
	inst, _ := f.anim.Instance(id)
	assert.False(t, inst.Playback().Playing)
	assert.Equal(t, StateUpdating, inst.State())
}

func TestRemovedEntityReleasesSlot(t *testing.T) {
	f := newAnimatorFixture(t, 1)
	f.load(t)
	a := f.world.Add(game_object.NewGameObject(game_object.WithAsset(f.handle, true)))
	b := f.world.Add(game_object.NewGameObject(game_object.WithAsset(f.handle, true)))

	f.update(0)
	assert.Equal(t, 0, f.anim.Joints().Available())
	assert.Equal(t, 0, f.anim.SkinSlot(a))
	assert.Equal(t, -1, f.anim.SkinSlot(b), "second skin finds the buffer full")

	f.world.Remove(a)
	f.update(0)
	_, ok := f.anim.Instance(a)
	assert.False(t, ok)
	assert.Equal(t, 1, f.anim.Joints().Available())

	f.update(0)
	assert.Equal(t, 0, f.anim.SkinSlot(b), "freed slot is picked up on the next update")
}

func TestModelRemovalResetsInstance(t *testing.T) {
	f := newAnimatorFixture(t, 1)
	f.load(t)
	id := f.world.Add(game_object.NewGameObject(game_object.WithAsset(f.handle, true)))
	f.update(0)

	require.True(t, f.table.Remove(f.ctx, f.handle))
	f.update(0)
	inst, _ := f.anim.Instance(id)
	assert.Equal(t, StateUnloaded, inst.State())
	assert.Equal(t, 1, f.anim.Joints().Available())
}

func TestTransitionRejectsSkips(t *testing.T) {
	inst := NewInstance(1, model.NewHandle())
	assert.ErrorIs(t, inst.Transition(StateUpdating), ErrInvalidTransition)
	require.NoError(t, inst.Transition(StateLoaded))
	require.NoError(t, inst.Transition(StateRuntimeInitialized))
	require.NoError(t, inst.Transition(StateUnloaded))
	assert.Equal(t, "Unloaded", inst.State().String())
}

func TestSkinOverflowTruncates(t *testing.T) {
	asset := chainAsset()
	joints := make([]model.Joint, MaxJoints+10)
	for i := range joints {
		joints[i] = model.Joint{Node: 1, InverseBind: mgl32.Ident4()}
	}
	asset.Skins[0].Joints = joints

	inst := NewInstance(1, model.NewHandle())
	require.NoError(t, inst.Transition(StateLoaded))
	require.NoError(t, inst.initRuntime(asset))
	inst.slots = []int{0}
	inst.tick(0, nil)

	maxJoint := -1
	n := inst.writeJoints(func(_, joint int, _ mgl32.Mat4) error {
		maxJoint = max(maxJoint, joint)
		return nil
	})
	assert.Equal(t, MaxJoints, n)
	assert.Equal(t, MaxJoints-1, maxJoint)
	assert.True(t, inst.truncated)
}
