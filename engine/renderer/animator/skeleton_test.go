package animator

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainAsset returns root(skin 0) -> bone -> tip with one joint per non-root node and a
// one-second animation sliding the bone from x=0 to x=2.
func chainAsset() *model.Asset {
	root := model.NewNode("root")
	root.Translation = mgl32.Vec3{0, 5, 0}
	root.Skin = 0
	root.Children = []int{1}
	bone := model.NewNode("bone")
	bone.Children = []int{2}
	tip := model.NewNode("tip")
	tip.Translation = mgl32.Vec3{0, 1, 0}

	return &model.Asset{
		Name:  "chain",
		Nodes: []model.Node{root, bone, tip},
		Roots: []int{0},
		Skins: []model.Skin{{Name: "chain", Joints: []model.Joint{
			{Node: 1, InverseBind: mgl32.Ident4()},
			{Node: 2, InverseBind: mgl32.Translate3D(0, -1, 0)},
		}}},
		Animations: []model.Animation{{
			Name:     "slide",
			Duration: 1,
			Channels: []model.Channel{{
				Node:   1,
				Path:   model.PathTranslation,
				Times:  []float32{0, 1},
				Values: []float32{0, 0, 0, 2, 0, 0},
			}},
		}},
	}
}

func TestTraversalVisitsParentsFirst(t *testing.T) {
	asset := chainAsset()
	// Out-of-order storage with an unreachable node.
	asset.Nodes = append(asset.Nodes, model.NewNode("orphan"))
	s := NewSkeleton(asset)

	order := s.Traversal()
	require.Len(t, order, 4)
	pos := map[int]int{}
	for i, e := range order {
		pos[e.Node] = i
		if e.Parent >= 0 {
			assert.Less(t, pos[e.Parent], i, "parent %d must precede node %d", e.Parent, e.Node)
		}
	}
	assert.Equal(t, TraversalEntry{Node: 3, Parent: -1}, order[3])
}

func TestTraversalInfersRoots(t *testing.T) {
	asset := chainAsset()
	asset.Roots = nil
	s := NewSkeleton(asset)
	assert.Equal(t, TraversalEntry{Node: 0, Parent: -1}, s.Traversal()[0])
}

func TestPropagateIsIdempotent(t *testing.T) {
	s := NewSkeleton(chainAsset())
	assert.Equal(t, 3, s.Propagate())
	globals := []mgl32.Mat4{s.Global(0), s.Global(1), s.Global(2)}

	assert.Zero(t, s.Propagate())
	for i, g := range globals {
		assert.Equal(t, g, s.Global(i))
		assert.False(t, s.Changed(i))
	}
	assert.True(t, common.ApproxEqualMat4(mgl32.Translate3D(0, 6, 0), s.Global(2), 1e-6))
}

func TestPropagateMarksDescendants(t *testing.T) {
	s := NewSkeleton(chainAsset())
	s.Propagate()

	moved := s.Local(1)
	moved.Translation = mgl32.Vec3{1, 0, 0}
	s.SetLocal(1, moved)
	assert.Equal(t, 2, s.Propagate())
	assert.False(t, s.Changed(0))
	assert.True(t, s.Changed(1))
	assert.True(t, s.Changed(2))

	s.SetLocal(1, moved)
	assert.Zero(t, s.Propagate(), "writing an equal local is not a change")
}

func TestJointMatrix(t *testing.T) {
	ident := mgl32.Ident4()
	assert.Equal(t, ident, JointMatrix(ident, ident, ident))

	g := mgl32.Translate3D(1, 0, 0)
	assert.True(t, common.ApproxEqualMat4(mgl32.Translate3D(-1, 0, 0), JointMatrix(g, ident, ident), 1e-6))
}

func TestSkinRootDefaultsToIdentity(t *testing.T) {
	asset := chainAsset()
	asset.Nodes[0].Skin = -1
	s := NewSkeleton(asset)
	s.Propagate()
	assert.Equal(t, mgl32.Ident4(), s.SkinRoot(0))
}
