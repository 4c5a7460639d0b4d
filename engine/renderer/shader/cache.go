package shader

import (
	"fmt"
	"hash/fnv"
	"io/fs"
	"log"
	"path"
	"sort"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
)

// cache is the implementation of the Cache interface.
type cache struct {
	fsys       fs.FS
	dir        string
	entryPoint string
	modules    map[string]*shader
}

// Cache loads precompiled SPIR-V modules by name and keeps one device module per (name, defines)
// pair for the lifetime of the device Context.
type Cache interface {
	device.Resource

	// Load returns the module for name compiled with defines, creating it on first use.
	// Modules without defines are read from "<dir>/<name>.spv"; with defines, from
	// "<dir>/<name>.<key>.spv" where key is the value returned by Key.
	//
	// Parameters:
	//   - ctx: the device Context the module is created on
	//   - name: the logical shader name, e.g. "grass_update.comp"
	//   - shaderType: the stage the module is written for
	//   - defines: preprocessor defines the module was compiled with, may be nil
	//
	// Returns:
	//   - Shader: the loaded shader
	//   - error: error if the file is missing, is not SPIR-V or module creation fails
	Load(ctx *device.Context, name string, shaderType ShaderType, defines map[string]string) (Shader, error)

	// MustLoad is Load that panics on failure.
	MustLoad(ctx *device.Context, name string, shaderType ShaderType, defines map[string]string) Shader

	// Len returns the number of cached modules.
	//
	// Returns:
	//   - int: the module count
	Len() int
}

var _ Cache = &cache{}

// NewCache creates an empty Cache reading SPIR-V files from fsys.
//
// Parameters:
//   - fsys: the file system holding compiled shaders
//   - opts: functional options configuring the cache
//
// Returns:
//   - Cache: the new cache
func NewCache(fsys fs.FS, opts ...CacheBuilderOption) Cache {
	c := &cache{
		fsys:       fsys,
		dir:        ".",
		entryPoint: "main",
		modules:    make(map[string]*shader),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key hashes a shader name and its defines into the cache key. Defines are hashed in sorted
// order so map iteration order does not matter.
//
// Parameters:
//   - name: the logical shader name
//   - defines: the preprocessor defines
//
// Returns:
//   - string: 16 lowercase hex digits
func Key(name string, defines map[string]string) string {
	h := fnv.New64a()
	h.Write([]byte(name))
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(defines[k]))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (c *cache) Load(ctx *device.Context, name string, shaderType ShaderType, defines map[string]string) (Shader, error) {
	key := Key(name, defines)
	if s, ok := c.modules[key]; ok {
		return s, nil
	}

	file := name + ".spv"
	if len(defines) > 0 {
		file = name + "." + key + ".spv"
	}
	file = path.Join(c.dir, file)

	code, err := fs.ReadFile(c.fsys, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader %s: %w", file, err)
	}
	if err := validateSPIRV(file, code); err != nil {
		return nil, err
	}

	module, err := ctx.Device().CreateShaderModule(code)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module %s: %w", file, err)
	}

	s := &shader{
		key:        key,
		name:       name,
		shaderType: shaderType,
		entryPoint: c.entryPoint,
		module:     module,
	}
	c.modules[key] = s
	log.Printf("[Renderer] loaded %s shader %s (%d bytes)", shaderType, file, len(code))
	return s, nil
}

func (c *cache) MustLoad(ctx *device.Context, name string, shaderType ShaderType, defines map[string]string) Shader {
	s, err := c.Load(ctx, name, shaderType, defines)
	if err != nil {
		panic(fmt.Sprintf("shader: %v", err))
	}
	return s
}

func (c *cache) Len() int {
	return len(c.modules)
}

// Destroy destroys every cached module.
func (c *cache) Destroy(ctx *device.Context) {
	for key, s := range c.modules {
		ctx.Device().DestroyShaderModule(s.module)
		delete(c.modules, key)
	}
}
