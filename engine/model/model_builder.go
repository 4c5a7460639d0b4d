package model

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
)

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithLabel is an option builder that sets the debug label prefix of the Model's GPU objects.
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - ModelBuilderOption: a function that applies the label option to a model
func WithLabel(label string) ModelBuilderOption {
	return func(m *model) {
		m.label = label
	}
}

// WithMaterialLayout is an option builder that sets the descriptor set layout material sets are
// allocated with. Without it no material descriptor sets are created.
//
// Parameters:
//   - layout: the material set layout, a combined image sampler at binding 0
//
// Returns:
//   - ModelBuilderOption: a function that applies the material layout option to a model
func WithMaterialLayout(layout gpu.DescriptorSetLayout) ModelBuilderOption {
	return func(m *model) {
		m.materialLayout = layout
	}
}

// WithFallbackTexture is an option builder that sets the texture bound by materials without one.
//
// Parameters:
//   - tex: the fallback texture, typically the 1x1 white dummy
//
// Returns:
//   - ModelBuilderOption: a function that applies the fallback texture option to a model
func WithFallbackTexture(tex *resource.Texture) ModelBuilderOption {
	return func(m *model) {
		m.fallback = tex
	}
}

// WithMipmaps is an option builder that controls whether material textures get a mip chain.
//
// Parameters:
//   - enabled: true to generate mipmaps (default)
//
// Returns:
//   - ModelBuilderOption: a function that applies the mipmaps option to a model
func WithMipmaps(enabled bool) ModelBuilderOption {
	return func(m *model) {
		m.mipmaps = enabled
	}
}
