package vulkan

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// registry maps the opaque handles handed to the engine onto native objects. All registries of
// one device draw from a shared counter so a handle is unique across object kinds.
type registry[T any] struct {
	mu    *sync.Mutex
	next  *atomic.Uint64
	items map[gpu.Handle]T
}

func newRegistry[T any](next *atomic.Uint64) *registry[T] {
	return &registry[T]{
		mu:    &sync.Mutex{},
		next:  next,
		items: make(map[gpu.Handle]T),
	}
}

func (r *registry[T]) add(v T) gpu.Handle {
	h := gpu.Handle(r.next.Add(1))
	r.mu.Lock()
	r.items[h] = v
	r.mu.Unlock()
	return h
}

func (r *registry[T]) get(h gpu.Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	return v, ok
}

// must returns the object behind h, or the zero value when h is unknown. Command recording uses
// it so an unknown handle records a null object and surfaces through the validation layer.
func (r *registry[T]) must(h gpu.Handle) T {
	v, _ := r.get(h)
	return v
}

func (r *registry[T]) set(h gpu.Handle, v T) {
	r.mu.Lock()
	r.items[h] = v
	r.mu.Unlock()
}

func (r *registry[T]) take(h gpu.Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	if ok {
		delete(r.items, h)
	}
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
