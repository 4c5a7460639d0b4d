package resource

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrOutOfBounds is returned when a write falls outside a MappedView.
var ErrOutOfBounds = errors.New("write outside mapped range")

// MappedView is a window into a persistently mapped buffer. It never unmaps the memory it views.
type MappedView struct {
	data []byte
	base uint64
}

// Len returns the number of bytes in the view.
func (v MappedView) Len() uint64 {
	return uint64(len(v.data))
}

// Base returns the view's offset within its buffer.
func (v MappedView) Base() uint64 {
	return v.base
}

// Bytes returns the viewed bytes.
func (v MappedView) Bytes() []byte {
	return v.data
}

// Write copies p into the view at offset.
func (v MappedView) Write(offset uint64, p []byte) error {
	if offset > v.Len() || uint64(len(p)) > v.Len()-offset {
		return fmt.Errorf("%w: %d bytes at %d in view of %d", ErrOutOfBounds, len(p), offset, v.Len())
	}
	copy(v.data[offset:], p)
	return nil
}

// WriteMat4 writes m in column-major order at offset.
func (v MappedView) WriteMat4(offset uint64, m mgl32.Mat4) error {
	return v.Write(offset, common.Mat4Bytes(&m))
}

// Sub returns the view over [offset, offset+size) of v.
func (v MappedView) Sub(offset, size uint64) (MappedView, error) {
	if offset > v.Len() || size > v.Len()-offset {
		return MappedView{}, fmt.Errorf("%w: range %d+%d in view of %d", ErrOutOfBounds, offset, size, v.Len())
	}
	end := offset + size
	return MappedView{data: v.data[offset:end:end], base: v.base + offset}, nil
}
