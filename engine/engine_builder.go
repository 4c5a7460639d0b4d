package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/loader"
	"github.com/Carmen-Shannon/oxy-vk/engine/profiler"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer"
	"github.com/Carmen-Shannon/oxy-vk/engine/scene"
	"github.com/Carmen-Shannon/oxy-vk/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithName sets the application name reported to the Vulkan instance and used as the default
// window title.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithName(name string) EngineBuilderOption {
	return func(e *engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfilerInterval sets how often the profiler logs its statistics.
//
// Parameters:
//   - interval: the reporting interval (default 1s)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfilerInterval(interval time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = profiler.NewProfiler(interval)
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for game logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = frameInterval(fps)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. The window doubles as the Vulkan surface source.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithScene sets the scene the engine ticks and renders. Without it the engine creates an empty
// scene with an orbit camera.
//
// Parameters:
//   - s: the Scene to render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithLoader replaces the default model loader used by LoadModel.
//
// Parameters:
//   - l: the loader
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLoader(l loader.Loader) EngineBuilderOption {
	return func(e *engine) {
		e.loader = l
	}
}

// WithValidation enables the Vulkan validation layer and debug report callback.
//
// Parameters:
//   - enabled: if true, validation is requested when the device is opened
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithValidation(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.validation = enabled
	}
}

// WithRendererOptions forwards options to the renderer created by NewEngine.
//
// Parameters:
//   - options: renderer options (MSAA, shadows, grass, plugins, shader source)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithContextOptions forwards options to the device Context created by NewEngine.
//
// Parameters:
//   - options: Context options such as descriptor pool sizes
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithContextOptions(options ...device.ContextBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.contextOptions = append(e.contextOptions, options...)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameLimit(fps)
	}
}
