package loader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"golang.org/x/sync/errgroup"
)

// extractMaterials converts materials and decodes every referenced base color image once,
// decoding images concurrently with at most limit goroutines (limit <= 0 is unbounded).
func (p *gltfParser) extractMaterials(ctx context.Context, limit int) ([]model.Material, error) {
	materials := make([]model.Material, len(p.doc.Materials))
	images := make(map[int]*model.TextureData)
	users := make(map[int][]int)

	for mi := range p.doc.Materials {
		src := &p.doc.Materials[mi]
		mat := model.Material{
			Name:      src.Name,
			BaseColor: [4]float32{1, 1, 1, 1},
			Metallic:  1,
			Roughness: 1,
		}
		if pbr := src.PbrMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				mat.BaseColor = *pbr.BaseColorFactor
			}
			if pbr.MetallicFactor != nil {
				mat.Metallic = *pbr.MetallicFactor
			}
			if pbr.RoughnessFactor != nil {
				mat.Roughness = *pbr.RoughnessFactor
			}
			if pbr.BaseColorTexture != nil {
				img, err := p.textureImage(pbr.BaseColorTexture.Index)
				if err != nil {
					return nil, fmt.Errorf("material %d: %w", mi, err)
				}
				if img >= 0 {
					images[img] = nil
					users[img] = append(users[img], mi)
				}
			}
		}
		materials[mi] = mat
	}

	decoded, err := p.decodeImages(ctx, images, limit)
	if err != nil {
		return nil, err
	}
	for img, mats := range users {
		for _, mi := range mats {
			materials[mi].BaseColorTexture = decoded[img]
		}
	}
	return materials, nil
}

// textureImage resolves a texture index to its image index, or -1 when the texture has no source.
func (p *gltfParser) textureImage(texture int) (int, error) {
	if texture < 0 || texture >= len(p.doc.Textures) {
		return -1, fmt.Errorf("texture %d out of range", texture)
	}
	src := p.doc.Textures[texture].Source
	if src == nil {
		return -1, nil
	}
	if *src < 0 || *src >= len(p.doc.Images) {
		return -1, fmt.Errorf("image %d out of range", *src)
	}
	return *src, nil
}

// decodeImages decodes the keyed images into sRGB RGBA8 texture data.
func (p *gltfParser) decodeImages(ctx context.Context, wanted map[int]*model.TextureData, limit int) (map[int]*model.TextureData, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	results := make([]*model.TextureData, len(p.doc.Images))
	for img := range wanted {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := p.imageBytes(img)
			if err != nil {
				return fmt.Errorf("image %d: %w", img, err)
			}
			pix, w, h, err := common.DecodeRGBA(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("image %d: failed to decode: %w", img, err)
			}
			results[img] = &model.TextureData{Pixels: pix, Width: w, Height: h, SRGB: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for img := range wanted {
		wanted[img] = results[img]
	}
	return wanted, nil
}

// imageBytes returns the encoded image from a buffer view, a data URI or an external file.
func (p *gltfParser) imageBytes(index int) ([]byte, error) {
	img := &p.doc.Images[index]
	if img.BufferView != nil {
		return p.bufferView(*img.BufferView)
	}
	if img.URI == "" {
		return nil, fmt.Errorf("image %q has no source", img.Name)
	}
	data, _, err := p.readURI(img.URI)
	return data, err
}
