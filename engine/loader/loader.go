package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	cache map[string]*model.Asset

	backends    map[string]loaderBackend
	decodeLimit int
}

// Loader imports model files into immutable asset bundles and caches them by name.
// The loader is a pure data transform: it never touches the GPU. Assets are handed to the
// renderer's model table for upload.
type Loader interface {
	// Load imports a file from the host file system. External buffers and images resolve
	// relative to the file's directory. Cached results are returned on repeat calls.
	//
	// Parameters:
	//   - path: the file path (.gltf or .glb)
	//
	// Returns:
	//   - *model.Asset: the asset bundle
	//   - error: error if loading fails
	Load(path string) (*model.Asset, error)

	// LoadFS imports a file from fsys, for embedded or in-memory assets.
	//
	// Parameters:
	//   - fsys: the file system
	//   - name: the slash-separated path inside fsys, also used as the cache key
	//
	// Returns:
	//   - *model.Asset: the asset bundle
	//   - error: error if loading fails
	LoadFS(fsys fs.FS, name string) (*model.Asset, error)

	// LoadReader imports a self-contained file (GLB or glTF with data URIs) from a stream.
	//
	// Parameters:
	//   - name: the cache key; its extension selects the format
	//   - r: the file contents
	//
	// Returns:
	//   - *model.Asset: the asset bundle
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (*model.Asset, error)

	// Get retrieves a cached asset by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key
	//
	// Returns:
	//   - *model.Asset: the cached asset or nil
	Get(name string) *model.Asset

	// Assets returns a copy of the cache.
	//
	// Returns:
	//   - map[string]*model.Asset: all cached assets keyed by name
	Assets() map[string]*model.Asset
}

var _ Loader = &loader{}

// NewLoader creates a Loader with the glTF backend registered.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: the configured loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		cache:    make(map[string]*model.Asset),
		backends: make(map[string]loaderBackend),
	}
	for _, option := range options {
		option(l)
	}
	l.register(newGLTFImporter(l.decodeLimit))
	return l
}

func (l *loader) register(b loaderBackend) {
	for _, ext := range b.Extensions() {
		l.backends[ext] = b
	}
}

func (l *loader) Load(p string) (*model.Asset, error) {
	if a := l.Get(p); a != nil {
		return a, nil
	}
	backend, err := l.resolveBackend(p)
	if err != nil {
		return nil, err
	}
	a, err := backend.Import(context.Background(), os.DirFS(filepath.Dir(p)), filepath.Base(p))
	if err != nil {
		return nil, err
	}
	return l.store(p, a), nil
}

func (l *loader) LoadFS(fsys fs.FS, name string) (*model.Asset, error) {
	if a := l.Get(name); a != nil {
		return a, nil
	}
	backend, err := l.resolveBackend(name)
	if err != nil {
		return nil, err
	}
	a, err := backend.Import(context.Background(), fsys, name)
	if err != nil {
		return nil, err
	}
	return l.store(name, a), nil
}

func (l *loader) LoadReader(name string, r io.Reader) (*model.Asset, error) {
	if a := l.Get(name); a != nil {
		return a, nil
	}
	backend, err := l.resolveBackend(name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	a, err := backend.ImportBytes(context.Background(), nil, name, data)
	if err != nil {
		return nil, err
	}
	return l.store(name, a), nil
}

func (l *loader) Get(name string) *model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[name]
}

func (l *loader) Assets() map[string]*model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*model.Asset, len(l.cache))
	for k, v := range l.cache {
		result[k] = v
	}
	return result
}

// store caches a under key unless a concurrent load got there first, and returns the cached asset.
func (l *loader) store(key string, a *model.Asset) *model.Asset {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.cache[key]; ok {
		return cached
	}
	l.cache[key] = a
	return a
}

// resolveBackend selects a backend by file extension.
func (l *loader) resolveBackend(name string) (loaderBackend, error) {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(name)))
	if b, ok := l.backends[ext]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("unsupported model format: %q", ext)
}
