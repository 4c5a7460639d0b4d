package renderer

import (
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped

	// PresentModeMailbox replaces the queued image with the newest one without tearing.
	PresentModeMailbox
)

// Mode returns the device present mode for p.
func (p PresentMode) Mode() gpu.PresentMode {
	switch p {
	case PresentModeUncapped:
		return gpu.PresentModeImmediate
	case PresentModeMailbox:
		return gpu.PresentModeMailbox
	default:
		return gpu.PresentModeFifo
	}
}

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only power-of-two values up to the device's MaxSamples are valid.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1). This is the default.
	MSAAOff MSAASampleCount = 1

	// MSAA2x enables 2× multisample anti-aliasing.
	MSAA2x MSAASampleCount = 2

	// MSAA4x enables 4× multisample anti-aliasing.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8× multisample anti-aliasing. Not all hardware supports this.
	MSAA8x MSAASampleCount = 8
)

// Samples returns the sample count clamped to what the device supports.
func (m MSAASampleCount) Samples(maxSamples gpu.SampleCount) gpu.SampleCount {
	s := gpu.SampleCount(m)
	if s == 0 {
		s = gpu.SampleCount1
	}
	if maxSamples != 0 && s > maxSamples {
		s = maxSamples
	}
	return s
}

// RenderConfig holds the settings a Renderer is created with.
type RenderConfig struct {
	MSAA            MSAASampleCount
	ApplyShadow     bool
	ApplyPostEffect bool
	ColorFormat     gpu.Format
	DepthFormat     gpu.Format
	ShadowMapDim    uint32
	PresentMode     PresentMode
	ClearColor      [4]float32
}

// DefaultRenderConfig returns the settings used when no option overrides them.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		MSAA:         MSAAOff,
		ApplyShadow:  true,
		ColorFormat:  gpu.FormatB8G8R8A8Unorm,
		DepthFormat:  gpu.FormatD32Sfloat,
		ShadowMapDim: pass.DefaultShadowMapDim,
		PresentMode:  PresentModeVSync,
		ClearColor:   [4]float32{0.1, 0.1, 0.12, 1},
	}
}
