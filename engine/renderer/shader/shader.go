package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidSPIRV is returned when a loaded blob is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("invalid SPIR-V module")

// ShaderType identifies the pipeline stage a shader module is written for.
type ShaderType int

const (
	// ShaderTypeCompute indicates a module with a compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment

	// ShaderTypeTessControl and ShaderTypeTessEval are the tessellation stages of a patch pipeline.
	ShaderTypeTessControl
	ShaderTypeTessEval
)

// Stage returns the gpu.ShaderStage matching the shader type.
func (t ShaderType) Stage() gpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return gpu.ShaderStageVertex
	case ShaderTypeFragment:
		return gpu.ShaderStageFragment
	case ShaderTypeTessControl:
		return gpu.ShaderStageTessellationControl
	case ShaderTypeTessEval:
		return gpu.ShaderStageTessellationEvaluation
	default:
		return gpu.ShaderStageCompute
	}
}

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeTessControl:
		return "tess-control"
	case ShaderTypeTessEval:
		return "tess-eval"
	}
	return "unknown"
}

// shader is the implementation of the Shader interface.
type shader struct {
	key        string
	name       string
	shaderType ShaderType
	entryPoint string
	module     gpu.ShaderModule
}

// Shader is a compiled SPIR-V module loaded onto the device, ready to be referenced by pipelines.
type Shader interface {
	// Key retrieves the cache key of this shader: the hex hash of its name and defines.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Name returns the logical shader name the module was loaded by.
	//
	// Returns:
	//   - string: the shader name
	Name() string

	// ShaderType returns the type of the shader (vertex, fragment, or compute).
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute
	ShaderType() ShaderType

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// Module returns the device shader module.
	//
	// Returns:
	//   - gpu.ShaderModule: the shader module handle
	Module() gpu.ShaderModule

	// StageDesc returns the pipeline stage description referencing this module.
	//
	// Returns:
	//   - gpu.ShaderStageDesc: stage, module and entry point
	StageDesc() gpu.ShaderStageDesc
}

var _ Shader = &shader{}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Name() string {
	return s.name
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Module() gpu.ShaderModule {
	return s.module
}

func (s *shader) StageDesc() gpu.ShaderStageDesc {
	return gpu.ShaderStageDesc{
		Stage:  s.shaderType.Stage(),
		Module: s.module,
		Entry:  s.entryPoint,
	}
}

// validateSPIRV checks the size and magic number of a SPIR-V blob.
func validateSPIRV(name string, code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %s has %d bytes", ErrInvalidSPIRV, name, len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != spirvMagic {
		return fmt.Errorf("%w: %s starts with %#08x", ErrInvalidSPIRV, name, magic)
	}
	return nil
}
