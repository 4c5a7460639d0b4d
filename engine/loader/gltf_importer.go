package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
)

// gltfImporter turns glTF 2.0 (.gltf and .glb) files into asset bundles.
type gltfImporter struct {
	decodeLimit int
}

var _ loaderBackend = &gltfImporter{}

func newGLTFImporter(decodeLimit int) *gltfImporter {
	return &gltfImporter{decodeLimit: decodeLimit}
}

func (imp *gltfImporter) Extensions() []string {
	return []string{".gltf", ".glb"}
}

func (imp *gltfImporter) Import(ctx context.Context, fsys fs.FS, name string) (*model.Asset, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return imp.ImportBytes(ctx, fsys, name, data)
}

func (imp *gltfImporter) ImportBytes(ctx context.Context, fsys fs.FS, name string, data []byte) (*model.Asset, error) {
	p, err := parseGLTF(fsys, path.Dir(name), data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	asset, err := imp.build(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", name, err)
	}
	asset.Name = assetName(p.doc, name)
	return asset, nil
}

// build runs the extractors in dependency order: nodes reference meshes and skins, primitives
// reference materials.
func (imp *gltfImporter) build(ctx context.Context, p *gltfParser) (*model.Asset, error) {
	asset := &model.Asset{}
	var err error

	if asset.Meshes, err = p.extractMeshes(); err != nil {
		return nil, fmt.Errorf("mesh extraction failed: %w", err)
	}
	if asset.Skins, err = p.extractSkins(); err != nil {
		return nil, fmt.Errorf("skin extraction failed: %w", err)
	}
	if asset.Nodes, asset.Roots, err = p.extractNodes(); err != nil {
		return nil, fmt.Errorf("node extraction failed: %w", err)
	}
	if asset.Animations, err = p.extractAnimations(); err != nil {
		return nil, fmt.Errorf("animation extraction failed: %w", err)
	}
	if asset.Materials, err = p.extractMaterials(ctx, imp.decodeLimit); err != nil {
		return nil, fmt.Errorf("material extraction failed: %w", err)
	}

	for mi, mesh := range asset.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Material >= len(asset.Materials) {
				return nil, fmt.Errorf("mesh %d primitive %d: material %d out of range", mi, pi, prim.Material)
			}
		}
	}
	return asset, nil
}

// assetName prefers the default scene's name, then the file name without extension.
func assetName(doc *gltfDocument, name string) string {
	if scene := (&gltfParser{doc: doc}).defaultScene(); scene != nil && scene.Name != "" {
		return scene.Name
	}
	if base := strings.TrimSuffix(path.Base(name), path.Ext(name)); base != "" && base != "." {
		return base
	}
	return "unnamed"
}
