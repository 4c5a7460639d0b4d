package scene

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/camera"
	"github.com/Carmen-Shannon/oxy-vk/engine/game_object"
	"github.com/Carmen-Shannon/oxy-vk/engine/light"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// Renderable is one enabled object with an asset, as seen by the renderer.
type Renderable struct {
	ID     uint64
	Asset  model.Handle
	World  mgl32.Mat4
	Object game_object.GameObject
}

// SkinnedEntity is one enabled object whose asset is driven by the animator.
type SkinnedEntity struct {
	ID       uint64
	Asset    model.Handle
	Commands *game_object.CommandQueue
	Object   game_object.GameObject
}

// World is the query surface the engine reads entities through and the animator writes poses
// back into. Implementations are safe for concurrent use.
type World interface {
	// Renderables lists every enabled object that draws an asset, ordered by ID.
	//
	// Returns:
	//   - []Renderable: the renderable objects
	Renderables() []Renderable

	// Skinned lists every enabled object whose asset is skinned, ordered by ID.
	//
	// Returns:
	//   - []SkinnedEntity: the skinned objects
	Skinned() []SkinnedEntity

	// Transform reads the world transform of the object with the given ID.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - common.Transform: the transform
	//   - bool: false if no such object exists
	Transform(id uint64) (common.Transform, bool)

	// SetTransform writes the world transform of the object with the given ID.
	//
	// Parameters:
	//   - id: the object ID
	//   - t: the new transform
	//
	// Returns:
	//   - bool: false if no such object exists
	SetTransform(id uint64, t common.Transform) bool

	// Pose reads the per-node transforms last written for the object with the given ID.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - []common.Transform: the node transforms, nil if never written or no such object
	Pose(id uint64) []common.Transform

	// SetPose writes the per-node transforms of the object with the given ID.
	//
	// Parameters:
	//   - id: the object ID
	//   - pose: the node transforms indexed like the asset's nodes
	//
	// Returns:
	//   - bool: false if no such object exists
	SetPose(id uint64, pose []common.Transform) bool
}

// Scene manages a collection of GameObjects, a Camera and the scene lights. Non-ephemeral
// objects are kept in a registry for lookup and removal by ID; ephemeral objects are rendered
// until Clear. Scenes can be hot-swapped via the Active flag.
// Thread-safe for concurrent access.
type Scene interface {
	World

	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Count returns the number of persisted GameObjects in the scene's registry. Does not include ephemeral objects.
	//
	// Returns:
	//   - int: count of non-ephemeral GameObjects in the registry
	Count() int

	// CountEphemeral returns the number of ephemeral GameObjects currently held by the scene.
	//
	// Returns:
	//   - int: count of ephemeral GameObjects
	CountEphemeral() int

	// Add adds a GameObject to the scene, assigning an ID when it has none. Non-ephemeral
	// objects are persisted in the registry for later lookup or removal by ID.
	//
	// Parameters:
	//   - obj: the GameObject to add
	//
	// Returns:
	//   - uint64: the assigned object ID
	Add(obj game_object.GameObject) uint64

	// Get retrieves a non-ephemeral GameObject by its ID.
	// Returns nil if not found.
	//
	// Parameters:
	//   - id: the object's unique ID
	//
	// Returns:
	//   - game_object.GameObject: the object or nil
	Get(id uint64) game_object.GameObject

	// Remove removes a non-ephemeral GameObject from the registry by ID.
	//
	// Parameters:
	//   - id: the object's unique ID
	Remove(id uint64)

	// Clear removes all objects from the scene.
	Clear()

	// Tick advances object rotation by each object's rotation speed and updates the camera.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the last tick in seconds
	Tick(deltaTime float32)

	// AddLight adds a light source to the scene.
	//
	// Parameters:
	//   - l: the Light to add
	AddLight(l light.Light)

	// RemoveLight removes a light source from the scene by reference.
	//
	// Parameters:
	//   - l: the Light to remove
	RemoveLight(l light.Light)

	// Lights returns all lights currently registered in the scene.
	//
	// Returns:
	//   - []light.Light: the scene's light list
	Lights() []light.Light

	// Sun returns the first enabled directional light, which drives the shadow pass.
	//
	// Returns:
	//   - light.Light: the directional light or nil
	Sun() light.Light

	// ShadowSettings returns the orthographic volume the sun's shadow map covers.
	//
	// Returns:
	//   - light.ShadowSettings: the shadow projection settings
	ShadowSettings() light.ShadowSettings

	// AmbientColor returns the scene's ambient light color.
	//
	// Returns:
	//   - [3]float32: the ambient RGB color
	AmbientColor() [3]float32

	// SetAmbientColor sets the scene's ambient light color.
	//
	// Parameters:
	//   - color: the ambient RGB color
	SetAmbientColor(color [3]float32)
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool

	registry  map[uint64]game_object.GameObject // non-ephemeral objects by ID
	ephemeral []game_object.GameObject
	nextID    uint64

	cam          camera.Camera
	lights       []light.Light
	ambientColor [3]float32
	shadow       light.ShadowSettings
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates a new Scene with the given camera. NewScene panics if cam is nil.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera to attach (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}

	s := &scene{
		mu:           &sync.RWMutex{},
		name:         name,
		cam:          cam,
		registry:     make(map[uint64]game_object.GameObject),
		nextID:       1,
		ambientColor: [3]float32{0.1, 0.1, 0.1},
		shadow:       light.DefaultShadowSettings(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) CountEphemeral() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ephemeral)
}

func (s *scene) Add(obj game_object.GameObject) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(obj)
}

func (s *scene) addLocked(obj game_object.GameObject) uint64 {
	if obj.ID() == 0 {
		obj.SetID(s.nextID)
		s.nextID++
	} else if obj.ID() >= s.nextID {
		s.nextID = obj.ID() + 1
	}
	if obj.Ephemeral() {
		s.ephemeral = append(s.ephemeral, obj)
	} else {
		s.registry[obj.ID()] = obj
	}
	return obj.ID()
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, id)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = make(map[uint64]game_object.GameObject)
	s.ephemeral = nil
}

// objects returns every object ordered by ID. Callers hold at least the read lock.
func (s *scene) objects() []game_object.GameObject {
	out := make([]game_object.GameObject, 0, len(s.registry)+len(s.ephemeral))
	for _, obj := range s.registry {
		out = append(out, obj)
	}
	out = append(out, s.ephemeral...)
	slices.SortFunc(out, func(a, b game_object.GameObject) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

func (s *scene) lookup(id uint64) game_object.GameObject {
	if obj, ok := s.registry[id]; ok {
		return obj
	}
	for _, obj := range s.ephemeral {
		if obj.ID() == id {
			return obj
		}
	}
	return nil
}

func (s *scene) Renderables() []Renderable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Renderable
	for _, obj := range s.objects() {
		if !obj.Enabled() || obj.Asset().IsZero() {
			continue
		}
		out = append(out, Renderable{ID: obj.ID(), Asset: obj.Asset(), World: obj.World(), Object: obj})
	}
	return out
}

func (s *scene) Skinned() []SkinnedEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SkinnedEntity
	for _, obj := range s.objects() {
		if !obj.Enabled() || !obj.Skinned() || obj.Asset().IsZero() {
			continue
		}
		out = append(out, SkinnedEntity{ID: obj.ID(), Asset: obj.Asset(), Commands: obj.Commands(), Object: obj})
	}
	return out
}

func (s *scene) Transform(id uint64) (common.Transform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := s.lookup(id)
	if obj == nil {
		return common.Transform{}, false
	}
	return obj.Transform(), true
}

func (s *scene) SetTransform(id uint64, t common.Transform) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := s.lookup(id)
	if obj == nil {
		return false
	}
	obj.SetTransform(t)
	return true
}

func (s *scene) Pose(id uint64) []common.Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := s.lookup(id)
	if obj == nil {
		return nil
	}
	return obj.Pose()
}

func (s *scene) SetPose(id uint64, pose []common.Transform) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := s.lookup(id)
	if obj == nil {
		return false
	}
	obj.SetPose(pose)
	return true
}

func (s *scene) Tick(deltaTime float32) {
	s.mu.RLock()
	objs := s.objects()
	cam := s.cam
	s.mu.RUnlock()

	for _, obj := range objs {
		speed := obj.RotationSpeed()
		if speed == (mgl32.Vec3{}) {
			continue
		}
		t := obj.Transform()
		step := mgl32.AnglesToQuat(speed.X()*deltaTime, speed.Y()*deltaTime, speed.Z()*deltaTime, mgl32.XYZ)
		t.Rotation = step.Mul(t.Rotation).Normalize()
		obj.SetTransform(t)
	}
	if cam != nil {
		cam.Update()
	}
}

func (s *scene) AddLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.lights {
		if existing == l {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return
		}
	}
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]light.Light, len(s.lights))
	copy(out, s.lights)
	return out
}

func (s *scene) Sun() light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lights {
		if l.Type() == light.LightTypeDirectional && l.Enabled() {
			return l
		}
	}
	return nil
}

func (s *scene) ShadowSettings() light.ShadowSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shadow
}

func (s *scene) AmbientColor() [3]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ambientColor
}

func (s *scene) SetAmbientColor(color [3]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambientColor = color
}
