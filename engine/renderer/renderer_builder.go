package renderer

import (
	"io/fs"

	"github.com/Carmen-Shannon/oxy-vk/engine/plugin"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/grass"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithConfig replaces the whole RenderConfig. Options applied after it still override single
// fields.
//
// Parameters:
//   - cfg: the settings to start from
//
// Returns:
//   - RendererBuilderOption: a function that applies the config option to a renderer
func WithConfig(cfg RenderConfig) RendererBuilderOption {
	return func(r *renderer) {
		r.cfg = cfg
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync, Uncapped or Mailbox)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.cfg.PresentMode = mode
	}
}

// WithMSAA sets the MSAA sample count of the forward pass. Counts above what the device supports
// are clamped with a warning.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.cfg.MSAA = count
	}
}

// WithShadows enables or disables the shadow pass. Disabled shadows bind the placeholder texture
// where the shadow map would be sampled.
//
// Parameters:
//   - enabled: whether the shadow pass runs
//
// Returns:
//   - RendererBuilderOption: a function that applies the shadow option to a renderer
func WithShadows(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.cfg.ApplyShadow = enabled
	}
}

// WithShadowMapDim sets the width and height of the square shadow map.
//
// Parameters:
//   - dim: the shadow map size in texels
//
// Returns:
//   - RendererBuilderOption: a function that applies the shadow map size option to a renderer
func WithShadowMapDim(dim uint32) RendererBuilderOption {
	return func(r *renderer) {
		if dim > 0 {
			r.cfg.ShadowMapDim = dim
		}
	}
}

// WithClearColor sets the color the forward pass clears to.
//
// Parameters:
//   - color: RGBA clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option to a renderer
func WithClearColor(color [4]float32) RendererBuilderOption {
	return func(r *renderer) {
		r.cfg.ClearColor = color
	}
}

// WithShaders sets the file system SPIR-V blobs are loaded from. The default is the
// DefaultShaderDir directory relative to the working directory.
//
// Parameters:
//   - fsys: the shader source
//
// Returns:
//   - RendererBuilderOption: a function that applies the shader source option to a renderer
func WithShaders(fsys fs.FS) RendererBuilderOption {
	return func(r *renderer) {
		r.shaderFS = fsys
	}
}

// WithGrass enables the procedural grass field.
//
// Parameters:
//   - opts: options sizing the field
//
// Returns:
//   - RendererBuilderOption: a function that applies the grass option to a renderer
func WithGrass(opts ...grass.GrassBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.grassEnabled = true
		r.grassOptions = opts
	}
}

// WithAnimatorWorkers sets how many goroutines sample skinned animations in parallel.
//
// Parameters:
//   - workers: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count option to a renderer
func WithAnimatorWorkers(workers int) RendererBuilderOption {
	return func(r *renderer) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// WithSkinSlots sets how many skins the joint matrix buffer holds at once.
//
// Parameters:
//   - slots: the slot count
//
// Returns:
//   - RendererBuilderOption: a function that applies the skin slot option to a renderer
func WithSkinSlots(slots int) RendererBuilderOption {
	return func(r *renderer) {
		if slots > 0 {
			r.skinSlots = slots
		}
	}
}

// WithEffects attaches a post-processing plugin. It runs only while ApplyPostEffect is set.
//
// Parameters:
//   - effects: the plugin
//
// Returns:
//   - RendererBuilderOption: a function that applies the effects option to a renderer
func WithEffects(effects plugin.Effects) RendererBuilderOption {
	return func(r *renderer) {
		r.effects = effects
		r.cfg.ApplyPostEffect = true
	}
}

// WithOverlay attaches a UI overlay drawn after every other pass.
//
// Parameters:
//   - overlay: the overlay
//
// Returns:
//   - RendererBuilderOption: a function that applies the overlay option to a renderer
func WithOverlay(overlay plugin.Overlay) RendererBuilderOption {
	return func(r *renderer) {
		r.overlay = overlay
	}
}
