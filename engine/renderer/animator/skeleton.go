package animator

import (
	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// TraversalEntry is one step of the precomputed depth-first walk. Parent is -1 for roots.
type TraversalEntry struct {
	Node   int
	Parent int
}

// Skeleton is the per-instance runtime copy of an asset's node graph. Locals are written by
// animation sampling; globals are derived by Propagate in one linear pass over the traversal.
type Skeleton struct {
	local   []common.Transform
	global  []mgl32.Mat4
	dirty   []bool
	changed []bool

	order []TraversalEntry

	skins []model.Skin
	// skinNodes holds the node referencing each skin, or -1.
	skinNodes []int
}

// NewSkeleton clones the node graph and skins of asset. Nodes unreachable from the roots are
// appended as extra roots so every node is propagated.
//
// Parameters:
//   - asset: the immutable source bundle
//
// Returns:
//   - *Skeleton: the runtime graph with every node marked dirty
func NewSkeleton(asset *model.Asset) *Skeleton {
	n := len(asset.Nodes)
	s := &Skeleton{
		local:     make([]common.Transform, n),
		global:    make([]mgl32.Mat4, n),
		dirty:     make([]bool, n),
		changed:   make([]bool, n),
		skins:     make([]model.Skin, len(asset.Skins)),
		skinNodes: make([]int, len(asset.Skins)),
	}
	for i, node := range asset.Nodes {
		s.local[i] = common.Transform{Translation: node.Translation, Rotation: node.Rotation, Scale: node.Scale}
		s.dirty[i] = true
	}
	for i, skin := range asset.Skins {
		joints := make([]model.Joint, len(skin.Joints))
		copy(joints, skin.Joints)
		s.skins[i] = model.Skin{Name: skin.Name, Joints: joints}
		s.skinNodes[i] = -1
	}
	for i, node := range asset.Nodes {
		if node.Skin >= 0 && node.Skin < len(s.skinNodes) && s.skinNodes[node.Skin] < 0 {
			s.skinNodes[node.Skin] = i
		}
	}
	s.order = buildTraversal(asset)
	return s
}

// buildTraversal walks the graph depth-first from the roots so a parent always precedes its
// children. Revisited nodes are skipped, which also breaks cycles.
func buildTraversal(asset *model.Asset) []TraversalEntry {
	n := len(asset.Nodes)
	visited := make([]bool, n)
	order := make([]TraversalEntry, 0, n)

	var walk func(node, parent int)
	walk = func(node, parent int) {
		if node < 0 || node >= n || visited[node] {
			return
		}
		visited[node] = true
		order = append(order, TraversalEntry{Node: node, Parent: parent})
		for _, child := range asset.Nodes[node].Children {
			walk(child, node)
		}
	}

	roots := asset.Roots
	if len(roots) == 0 {
		roots = inferRoots(asset)
	}
	for _, r := range roots {
		walk(r, -1)
	}
	for i := range asset.Nodes {
		walk(i, -1)
	}
	return order
}

func inferRoots(asset *model.Asset) []int {
	isChild := make([]bool, len(asset.Nodes))
	for _, node := range asset.Nodes {
		for _, c := range node.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

// Traversal returns the depth-first (node, parent) list.
func (s *Skeleton) Traversal() []TraversalEntry {
	return s.order
}

// NodeCount returns the number of nodes.
func (s *Skeleton) NodeCount() int {
	return len(s.local)
}

// Local returns the local transform of node i.
func (s *Skeleton) Local(i int) common.Transform {
	return s.local[i]
}

// Locals returns a copy of every local transform.
func (s *Skeleton) Locals() []common.Transform {
	out := make([]common.Transform, len(s.local))
	copy(out, s.local)
	return out
}

// SetLocal replaces the local transform of node i. Equal values leave the node clean.
func (s *Skeleton) SetLocal(i int, t common.Transform) {
	if i < 0 || i >= len(s.local) || s.local[i] == t {
		return
	}
	s.local[i] = t
	s.dirty[i] = true
}

// Global returns the global matrix of node i as of the last Propagate.
func (s *Skeleton) Global(i int) mgl32.Mat4 {
	return s.global[i]
}

// Changed reports whether the global matrix of node i changed in the last Propagate.
func (s *Skeleton) Changed(i int) bool {
	return s.changed[i]
}

// Propagate recomputes globals for dirty nodes and their descendants in one pass over the
// traversal. Running it again without local changes recomputes nothing.
//
// Returns:
//   - int: the number of nodes whose global matrix changed
func (s *Skeleton) Propagate() int {
	count := 0
	for _, e := range s.order {
		parentChanged := e.Parent >= 0 && s.changed[e.Parent]
		if !s.dirty[e.Node] && !parentChanged {
			s.changed[e.Node] = false
			continue
		}
		g := s.local[e.Node].Matrix()
		if e.Parent >= 0 {
			g = s.global[e.Parent].Mul4(g)
		}
		s.changed[e.Node] = g != s.global[e.Node]
		s.global[e.Node] = g
		s.dirty[e.Node] = false
		if s.changed[e.Node] {
			count++
		}
	}
	return count
}

// Skins returns the skins of the graph.
func (s *Skeleton) Skins() []model.Skin {
	return s.skins
}

// SkinRoot returns the global matrix of the node that references skin, or identity when no
// node does.
func (s *Skeleton) SkinRoot(skin int) mgl32.Mat4 {
	if n := s.skinNodes[skin]; n >= 0 {
		return s.global[n]
	}
	return mgl32.Ident4()
}

// skinRootChanged reports whether the skin's root node moved in the last Propagate.
func (s *Skeleton) skinRootChanged(skin int) bool {
	n := s.skinNodes[skin]
	return n >= 0 && s.changed[n]
}

// JointMatrix computes the skinning matrix of one joint: inverse(skinRoot) * node * inverseBind.
//
// Parameters:
//   - skinRoot: global matrix of the node the skin is attached to
//   - node: global matrix of the joint node
//   - inverseBind: the joint's inverse bind matrix
//
// Returns:
//   - mgl32.Mat4: the matrix the vertex shader blends with
func JointMatrix(skinRoot, node, inverseBind mgl32.Mat4) mgl32.Mat4 {
	return skinRoot.Inv().Mul4(node).Mul4(inverseBind)
}
