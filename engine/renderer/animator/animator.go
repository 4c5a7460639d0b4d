package animator

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// Stats summarizes the last Update.
type Stats struct {
	Instances int
	Updating  int
	Written   int
}

// Animator drives every skinned entity of a scene.World. Keyframe sampling and global
// propagation of each entity run in parallel on a worker pool; joint matrix writes into the
// mapped GPU buffer happen afterwards on the calling goroutine.
type Animator struct {
	workers int
	slots   int

	joints    *JointBuffer
	pool      worker.DynamicWorkerPool
	instances map[uint64]*Instance
	stats     Stats
}

// NewAnimator creates the joint buffer, installs it on the Context and starts the sampling
// worker pool.
//
// Parameters:
//   - ctx: the device Context
//   - options: functional options to configure the animator
//
// Returns:
//   - *Animator: the new animator
func NewAnimator(ctx *device.Context, options ...AnimatorBuilderOption) *Animator {
	a := &Animator{
		workers:   runtime.NumCPU(),
		slots:     DefaultSkinSlots,
		instances: make(map[uint64]*Instance),
	}
	for _, option := range options {
		option(a)
	}
	a.joints = NewJointBuffer(ctx, a.slots)
	a.pool = worker.NewDynamicWorkerPool(a.workers, 256, 1*time.Second)
	return a
}

// Joints returns the joint buffer skinned draws bind.
func (a *Animator) Joints() *JointBuffer {
	return a.joints
}

// Instance returns the runtime of entity.
func (a *Animator) Instance(entity uint64) (*Instance, bool) {
	inst, ok := a.instances[entity]
	return inst, ok
}

// SkinSlot returns the joint buffer slot of entity's first skin, or -1 while the entity has no
// runtime.
func (a *Animator) SkinSlot(entity uint64) int {
	inst, ok := a.instances[entity]
	if !ok || inst.state < StateRuntimeInitialized || len(inst.slots) == 0 {
		return -1
	}
	return inst.slots[0]
}

// Stats returns the counters of the last Update.
func (a *Animator) Stats() Stats {
	return a.stats
}

// Update advances every skinned entity of world by dt seconds: state transitions, queued
// commands, keyframe sampling, pose write-back into world, global propagation and joint matrix
// writes for joints whose global changed.
//
// Parameters:
//   - ctx: the device Context owning the joint buffer
//   - world: the entity query surface
//   - models: the resident model table
//   - dt: elapsed seconds since the last Update
func (a *Animator) Update(ctx *device.Context, world scene.World, models *model.Table, dt float32) {
	entities := world.Skinned()
	seen := make(map[uint64]struct{}, len(entities))
	for _, e := range entities {
		inst, ok := a.instances[e.ID]
		if ok && inst.asset != e.Asset {
			a.release(inst)
			ok = false
		}
		if !ok {
			inst = NewInstance(e.ID, e.Asset)
			a.instances[e.ID] = inst
		}
		seen[e.ID] = struct{}{}
		a.advance(ctx, inst, models)
	}
	for id, inst := range a.instances {
		if _, ok := seen[id]; !ok {
			a.release(inst)
			delete(a.instances, id)
		}
	}

	var wg sync.WaitGroup
	active := make([]*Instance, 0, len(entities))
	for idx, e := range entities {
		inst := a.instances[e.ID]
		if inst.state < StateRuntimeInitialized {
			continue
		}
		active = append(active, inst)
		cmds := e.Commands.Drain()
		wg.Add(1)
		a.pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (result any, err error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("animator: entity %d: %v", inst.entity, r)
						log.Printf("[Animator] WARNING: %v", err)
					}
				}()
				if inst.tick(dt, cmds) {
					world.SetPose(inst.entity, inst.locals)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	written := 0
	write := func(slot, joint int, m mgl32.Mat4) error {
		return a.joints.WriteJoint(ctx, slot, joint, m)
	}
	for _, inst := range active {
		written += inst.writeJoints(write)
		if inst.state == StateRuntimeInitialized {
			_ = inst.Transition(StateUpdating)
		}
	}

	a.stats = Stats{Instances: len(a.instances), Updating: len(active), Written: written}
}

// advance moves inst through Unloaded -> Loaded -> RuntimeInitialized as its asset becomes
// resident, and back to Unloaded when the asset is removed.
func (a *Animator) advance(ctx *device.Context, inst *Instance, models *model.Table) {
	m, ok := models.Get(inst.asset)
	if !ok {
		if inst.state != StateUnloaded {
			a.release(inst)
		}
		return
	}
	if inst.state == StateUnloaded {
		_ = inst.Transition(StateLoaded)
	}
	if inst.state >= StateRuntimeInitialized {
		a.acquireSlots(ctx, inst)
		return
	}

	asset := m.Asset()
	if !asset.HasSkin() {
		return
	}
	if err := inst.initRuntime(asset); err != nil {
		log.Printf("[Animator] WARNING: entity %d: %v", inst.entity, err)
		return
	}
	a.acquireSlots(ctx, inst)
}

// acquireSlots reserves a joint buffer slot for every skin of inst that has none yet. A full
// buffer is retried on later updates.
func (a *Animator) acquireSlots(ctx *device.Context, inst *Instance) {
	skins := len(inst.skeleton.Skins())
	for len(inst.slots) < skins {
		slot, ok := a.joints.Acquire(ctx)
		if !ok {
			if !inst.starved {
				log.Printf("[Animator] WARNING: joint buffer full, entity %d animates %d of %d skins",
					inst.entity, len(inst.slots), skins)
				inst.starved = true
			}
			return
		}
		inst.slots = append(inst.slots, slot)
		inst.forceWrite = true
	}
	inst.starved = false
}

// release frees the joint slots of inst and resets it to Unloaded.
func (a *Animator) release(inst *Instance) {
	for _, slot := range inst.slots {
		a.joints.Release(slot)
	}
	inst.slots = nil
	inst.skeleton = nil
	inst.locals = nil
	_ = inst.Transition(StateUnloaded)
}

// Close stops the worker pool. The joint buffer is owned by the Context and released there.
func (a *Animator) Close() {
	a.pool.Stop()
}
