// Package pass implements the render pass topology of a frame: the depth-only shadow pass and
// the forward color pass, each owning its attachments and framebuffer, plus the tracker that
// keeps begin/end balanced per command buffer.
package pass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

var (
	// ErrPassNested is returned when a pass begins while another pass is open on the same command buffer.
	ErrPassNested = errors.New("render pass begun inside an open render pass")
	// ErrPassNotBegun is returned when a pass ends without a matching begin.
	ErrPassNotBegun = errors.New("render pass ended without being begun")
	// ErrPassOpen is returned when a command buffer is finalized with a pass still open.
	ErrPassOpen = errors.New("command buffer finalized with an open render pass")
)

// Tracker records which pass is open on each command buffer. It is used from the render
// goroutine only.
type Tracker struct {
	open map[gpu.CommandBuffer]string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{open: make(map[gpu.CommandBuffer]string)}
}

// Begin marks name as open on cmd.
func (t *Tracker) Begin(cmd gpu.CommandBuffer, name string) error {
	if cur, ok := t.open[cmd]; ok {
		return fmt.Errorf("%w: %s inside %s", ErrPassNested, name, cur)
	}
	t.open[cmd] = name
	return nil
}

// End closes name on cmd.
func (t *Tracker) End(cmd gpu.CommandBuffer, name string) error {
	cur, ok := t.open[cmd]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPassNotBegun, name)
	}
	if cur != name {
		return fmt.Errorf("%w: %s while %s is open", ErrPassNotBegun, name, cur)
	}
	delete(t.open, cmd)
	return nil
}

// Open returns the name of the pass open on cmd, if any.
func (t *Tracker) Open(cmd gpu.CommandBuffer) (string, bool) {
	name, ok := t.open[cmd]
	return name, ok
}

// Finalize checks that no pass is open on cmd before it is ended. The open pass, if any, is
// forgotten so the command buffer can be reused after the error is handled.
func (t *Tracker) Finalize(cmd gpu.CommandBuffer) error {
	if name, ok := t.open[cmd]; ok {
		delete(t.open, cmd)
		return fmt.Errorf("%w: %s", ErrPassOpen, name)
	}
	return nil
}
