package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

type gameObject struct {
	mu *sync.RWMutex

	id        uint64
	enabled   atomic.Bool
	ephemeral bool
	asset     model.Handle
	skinned   bool

	transform     common.Transform
	rotationSpeed mgl32.Vec3

	// pose holds the per-node local transforms last written by the animator.
	pose     []common.Transform
	commands *CommandQueue
}

// GameObject defines the interface for a scene entity placing one model asset in the world.
// Transform state is guarded so the tick goroutine can write it while the render goroutine
// reads it.
type GameObject interface {
	// ID returns the object's unique identifier.
	//
	// Returns:
	//   - uint64: the object ID
	ID() uint64

	// SetID sets the object's unique identifier.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint64)

	// Enabled returns whether this object is enabled for rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the object is enabled for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// Ephemeral returns whether this object is ephemeral.
	// Ephemeral objects are not persisted in the scene's registry when added.
	//
	// Returns:
	//   - bool: true if ephemeral
	Ephemeral() bool

	// Asset returns the handle of the model asset this object draws, or the zero Handle.
	//
	// Returns:
	//   - model.Handle: the asset handle
	Asset() model.Handle

	// Skinned reports whether the object's asset carries skin data and is driven by the animator.
	//
	// Returns:
	//   - bool: true if skinned
	Skinned() bool

	// Transform returns the object's world transform.
	//
	// Returns:
	//   - common.Transform: the decomposed transform
	Transform() common.Transform

	// SetTransform replaces the object's world transform.
	//
	// Parameters:
	//   - t: the new transform
	SetTransform(t common.Transform)

	// SetPosition updates the translation, preserving rotation and scale.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// SetRotation updates the rotation, preserving translation and scale.
	//
	// Parameters:
	//   - q: the new rotation
	SetRotation(q mgl32.Quat)

	// SetScale updates the scale, preserving translation and rotation.
	//
	// Parameters:
	//   - sx, sy, sz: new scale factors
	SetScale(sx, sy, sz float32)

	// RotationSpeed returns the Euler rotation rate in radians per second applied on every tick.
	//
	// Returns:
	//   - mgl32.Vec3: the rotation rate around x, y and z
	RotationSpeed() mgl32.Vec3

	// SetRotationSpeed sets the Euler rotation rate in radians per second.
	//
	// Parameters:
	//   - speed: the rotation rate around x, y and z
	SetRotationSpeed(speed mgl32.Vec3)

	// World composes the world transform matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the model-to-world matrix
	World() mgl32.Mat4

	// Pose returns a copy of the per-node local transforms written by the animator, or nil before
	// the first write.
	//
	// Returns:
	//   - []common.Transform: the node transforms indexed like the asset's nodes
	Pose() []common.Transform

	// SetPose replaces the per-node local transforms.
	//
	// Parameters:
	//   - pose: the node transforms indexed like the asset's nodes
	SetPose(pose []common.Transform)

	// Commands returns the animation command queue the animator drains every tick.
	//
	// Returns:
	//   - *CommandQueue: the queue
	Commands() *CommandQueue

	// Play queues a command starting the animation at index.
	//
	// Parameters:
	//   - index: the index into the asset's animations
	Play(index int)

	// Stop queues a command stopping the active animation.
	Stop()
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new GameObject configured with the given options. Objects start
// enabled with an identity transform.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		mu:        &sync.RWMutex{},
		transform: common.IdentityTransform(),
		commands:  NewCommandQueue(),
	}
	obj.enabled.Store(true)
	for _, option := range options {
		option(obj)
	}
	return obj
}

func (g *gameObject) ID() uint64 {
	return g.id
}

func (g *gameObject) SetID(id uint64) {
	g.id = id
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) Ephemeral() bool {
	return g.ephemeral
}

func (g *gameObject) Asset() model.Handle {
	return g.asset
}

func (g *gameObject) Skinned() bool {
	return g.skinned
}

func (g *gameObject) Transform() common.Transform {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transform
}

func (g *gameObject) SetTransform(t common.Transform) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform = t
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform.Translation = mgl32.Vec3{x, y, z}
}

func (g *gameObject) SetRotation(q mgl32.Quat) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform.Rotation = q
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transform.Scale = mgl32.Vec3{sx, sy, sz}
}

func (g *gameObject) RotationSpeed() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rotationSpeed
}

func (g *gameObject) SetRotationSpeed(speed mgl32.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = speed
}

func (g *gameObject) World() mgl32.Mat4 {
	return g.Transform().Matrix()
}

func (g *gameObject) Pose() []common.Transform {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.pose == nil {
		return nil
	}
	out := make([]common.Transform, len(g.pose))
	copy(out, g.pose)
	return out
}

func (g *gameObject) SetPose(pose []common.Transform) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pose = append(g.pose[:0], pose...)
}

func (g *gameObject) Commands() *CommandQueue {
	return g.commands
}

func (g *gameObject) Play(index int) {
	g.commands.Push(AnimCommand{Kind: AnimPlay, Index: index})
}

func (g *gameObject) Stop() {
	g.commands.Push(AnimCommand{Kind: AnimStop})
}
