package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
)

// Table is the Context-owned set of GPU-resident models keyed by Handle. It is mutated only from
// the render goroutine.
type Table struct {
	models map[Handle]Model
	order  []Handle
}

var _ device.Resource = &Table{}

// NewTable creates an empty table and installs it as the Context's model table, which is
// destroyed after the ad hoc resources and before the per-frame uniform.
//
// Parameters:
//   - ctx: the device Context
//
// Returns:
//   - *Table: the installed table
func NewTable(ctx *device.Context) *Table {
	t := &Table{models: make(map[Handle]Model)}
	ctx.SetModels(t)
	return t
}

// Insert adds m under its handle.
//
// Returns:
//   - error: if a model is already stored under the same handle
func (t *Table) Insert(m Model) error {
	h := m.Handle()
	if _, exists := t.models[h]; exists {
		return fmt.Errorf("model %s already loaded as %s", m.Name(), h)
	}
	t.models[h] = m
	t.order = append(t.order, h)
	return nil
}

// Get looks up the model stored under h.
func (t *Table) Get(h Handle) (Model, bool) {
	m, ok := t.models[h]
	return m, ok
}

// Len returns the number of stored models.
func (t *Table) Len() int {
	return len(t.models)
}

// Handles returns the stored handles in insertion order.
func (t *Table) Handles() []Handle {
	out := make([]Handle, len(t.order))
	copy(out, t.order)
	return out
}

// Remove waits for the device to go idle, then destroys and removes the model stored under h.
// Nothing is waited on when h is unknown.
//
// Returns:
//   - bool: false if nothing was stored under h
func (t *Table) Remove(ctx *device.Context, h Handle) bool {
	m, ok := t.models[h]
	if !ok {
		return false
	}
	ctx.WaitIdle()
	m.Destroy(ctx)
	delete(t.models, h)
	for i, o := range t.order {
		if o == h {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Destroy releases every model in reverse insertion order.
func (t *Table) Destroy(ctx *device.Context) {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.models[t.order[i]].Destroy(ctx)
	}
	t.models = make(map[Handle]Model)
	t.order = nil
}
