package animator

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/game_object"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// State is the lifecycle stage of one animated entity.
type State int

const (
	// StateUnloaded means the entity's asset is not in the model table yet.
	StateUnloaded State = iota
	// StateLoaded means the asset is resident but no runtime exists.
	StateLoaded
	// StateRuntimeInitialized means the node graph is cloned and joint slots are reserved.
	StateRuntimeInitialized
	// StateUpdating means the instance has been ticked at least once.
	StateUpdating
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoaded:
		return "Loaded"
	case StateRuntimeInitialized:
		return "RuntimeInitialized"
	case StateUpdating:
		return "Updating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when an instance is moved to a state it cannot reach from
// its current one.
var ErrInvalidTransition = errors.New("invalid animation state transition")

// Instance is the per-entity animation runtime: a cloned skeleton, playback position and the
// joint buffer slots of its skins.
type Instance struct {
	entity uint64
	asset  model.Handle
	state  State

	skeleton   *Skeleton
	animations []model.Animation
	playback   Playback
	locals     []common.Transform

	slots     []int
	truncated bool
	starved   bool
	// forceWrite makes the next joint write cover every joint regardless of change flags.
	forceWrite bool
}

// NewInstance returns an Unloaded instance for entity drawing asset.
func NewInstance(entity uint64, asset model.Handle) *Instance {
	return &Instance{entity: entity, asset: asset, state: StateUnloaded}
}

// Entity returns the scene entity ID.
func (i *Instance) Entity() uint64 {
	return i.entity
}

// Asset returns the asset handle.
func (i *Instance) Asset() model.Handle {
	return i.asset
}

// State returns the lifecycle stage.
func (i *Instance) State() State {
	return i.state
}

// Skeleton returns the runtime graph, nil before RuntimeInitialized.
func (i *Instance) Skeleton() *Skeleton {
	return i.skeleton
}

// Playback returns the playback position.
func (i *Instance) Playback() Playback {
	return i.playback
}

// Slots returns the joint buffer slot of each skin.
func (i *Instance) Slots() []int {
	return i.slots
}

// Transition moves the instance to the next state. Only single forward steps are allowed, plus a
// reset to Unloaded from any state.
//
// Parameters:
//   - to: the target state
//
// Returns:
//   - error: ErrInvalidTransition if to is not reachable
func (i *Instance) Transition(to State) error {
	if to == StateUnloaded || to == i.state+1 {
		i.state = to
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.state, to)
}

// initRuntime clones the asset graph. Joint slots are attached by the caller.
func (i *Instance) initRuntime(asset *model.Asset) error {
	if err := i.Transition(StateRuntimeInitialized); err != nil {
		return err
	}
	i.skeleton = NewSkeleton(asset)
	i.animations = asset.Animations
	i.locals = i.skeleton.Locals()
	i.forceWrite = true
	return nil
}

// apply executes queued commands in order.
func (i *Instance) apply(cmds []game_object.AnimCommand) {
	for _, cmd := range cmds {
		switch cmd.Kind {
		case game_object.AnimPlay:
			if cmd.Index < 0 || cmd.Index >= len(i.animations) {
				log.Printf("[Animator] WARNING: entity %d has no animation %d", i.entity, cmd.Index)
				continue
			}
			i.playback = Playback{Index: cmd.Index, Playing: true}
		case game_object.AnimStop:
			i.playback.Playing = false
		}
	}
}

// tick applies commands, samples the active animation into the skeleton and propagates globals.
// It touches only instance-owned state so ticks of different instances may run in parallel.
//
// Returns:
//   - bool: whether any local transform was sampled
func (i *Instance) tick(dt float32, cmds []game_object.AnimCommand) bool {
	i.apply(cmds)
	if !i.playback.Playing {
		i.skeleton.Propagate()
		return false
	}
	anim := &i.animations[i.playback.Index]
	i.playback.Advance(dt, anim.Duration)
	SampleAnimation(anim, i.playback.Time, i.locals)
	for n, t := range i.locals {
		i.skeleton.SetLocal(n, t)
	}
	i.skeleton.Propagate()
	return true
}

// writeJoints stores the joint matrices of changed joints into the mapped buffer. Skins larger
// than MaxJoints are truncated with a one-time warning.
//
// Returns:
//   - int: the number of matrices written
func (i *Instance) writeJoints(write func(slot, joint int, m mgl32.Mat4) error) int {
	written := 0
	for s, skin := range i.skeleton.Skins() {
		if s >= len(i.slots) {
			break
		}
		joints := skin.Joints
		if len(joints) > MaxJoints {
			if !i.truncated {
				log.Printf("[Animator] WARNING: skin %q of entity %d has %d joints, writing the first %d",
					skin.Name, i.entity, len(joints), MaxJoints)
				i.truncated = true
			}
			joints = joints[:MaxJoints]
		}
		rootChanged := i.skeleton.skinRootChanged(s)
		root := i.skeleton.SkinRoot(s)
		for j, joint := range joints {
			if joint.Node < 0 || joint.Node >= i.skeleton.NodeCount() {
				continue
			}
			if !i.forceWrite && !rootChanged && !i.skeleton.Changed(joint.Node) {
				continue
			}
			m := JointMatrix(root, i.skeleton.Global(joint.Node), joint.InverseBind)
			if err := write(i.slots[s], j, m); err != nil {
				log.Printf("[Animator] WARNING: joint write failed for entity %d: %v", i.entity, err)
				continue
			}
			written++
		}
	}
	i.forceWrite = false
	return written
}
