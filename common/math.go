package common

import (
	"math/bits"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Mat4Size is the size in bytes of a column-major 4x4 float32 matrix.
const Mat4Size = 64

// Align rounds size up to the next multiple of alignment. An alignment of zero returns size.
//
// Parameters:
//   - size: the value to round up
//   - alignment: the required multiple
//
// Returns:
//   - uint64: alignment * ceil(size / alignment)
func Align(size, alignment uint64) uint64 {
	if alignment == 0 {
		return size
	}
	return alignment * DivCeil(size, alignment)
}

// DivCeil returns the ceiling of n / d.
func DivCeil[T ~uint32 | ~uint64 | ~int](n, d T) T {
	return (n + d - 1) / d
}

// MipLevels returns the number of levels in a full mip chain for an image of the given size:
// floor(log2(max(width, height))) + 1.
func MipLevels(width, height uint32) uint32 {
	m := max(width, height)
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// Mat4Bytes returns the column-major bytes of m.
func Mat4Bytes(m *mgl32.Mat4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&m[0])), Mat4Size)
}

// TRS composes a transform from translation, rotation and scale as T * R * S.
func TRS(t mgl32.Vec3, r mgl32.Quat, s mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(t.X(), t.Y(), t.Z()).
		Mul4(r.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(s.X(), s.Y(), s.Z()))
}

// ApproxEqualMat4 reports whether every element of a and b differs by at most eps.
func ApproxEqualMat4(a, b mgl32.Mat4, eps float32) bool {
	for i := range a {
		d := a[i] - b[i]
		if d > eps || d < -eps {
			return false
		}
	}
	return true
}

// VulkanClip converts an OpenGL-style projection (Y up, depth in [-1, 1]) to Vulkan clip space
// (Y down, depth in [0, 1]).
var VulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}
