package loader

import (
	"context"
	"io/fs"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
)

// loaderBackend imports one family of model file formats into asset bundles.
type loaderBackend interface {
	// Extensions lists the lowercase file extensions the backend handles, including the dot.
	//
	// Returns:
	//   - []string: the extensions
	Extensions() []string

	// Import reads name from fsys and builds an asset. External resources resolve relative to
	// name inside fsys.
	//
	// Parameters:
	//   - ctx: cancels concurrent decoding
	//   - fsys: the file system holding the file and its resources
	//   - name: the slash-separated path of the file inside fsys
	//
	// Returns:
	//   - *model.Asset: the asset bundle
	//   - error: error if reading or parsing fails
	Import(ctx context.Context, fsys fs.FS, name string) (*model.Asset, error)

	// ImportBytes builds an asset from file contents already in memory.
	//
	// Parameters:
	//   - ctx: cancels concurrent decoding
	//   - fsys: the file system for external resources, may be nil
	//   - name: the file name, used for naming and resolving resources
	//   - data: the file contents
	//
	// Returns:
	//   - *model.Asset: the asset bundle
	//   - error: error if parsing fails
	ImportBytes(ctx context.Context, fsys fs.FS, name string, data []byte) (*model.Asset, error)
}
