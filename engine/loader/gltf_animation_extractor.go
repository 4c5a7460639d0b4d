package loader

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/engine/model"
)

// extractAnimations converts animation clips. Morph target weight channels are skipped, and
// cubic spline samplers are reduced to their value keys with linear interpolation.
func (p *gltfParser) extractAnimations() ([]model.Animation, error) {
	anims := make([]model.Animation, 0, len(p.doc.Animations))
	for ai := range p.doc.Animations {
		src := &p.doc.Animations[ai]
		anim := model.Animation{Name: src.Name}
		if anim.Name == "" {
			anim.Name = fmt.Sprintf("animation_%d", ai)
		}

		for ci, ch := range src.Channels {
			if ch.Target.Node == nil {
				continue
			}
			node := *ch.Target.Node
			if node < 0 || node >= len(p.doc.Nodes) {
				return nil, fmt.Errorf("animation %q channel %d: node %d out of range", anim.Name, ci, node)
			}
			path, ok := channelPath(ch.Target.Path)
			if !ok {
				continue
			}
			if ch.Sampler < 0 || ch.Sampler >= len(src.Samplers) {
				return nil, fmt.Errorf("animation %q channel %d: sampler %d out of range", anim.Name, ci, ch.Sampler)
			}
			sampler := src.Samplers[ch.Sampler]

			times, err := p.readFloats(sampler.Input, 1)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d times: %w", anim.Name, ci, err)
			}
			width := 3
			if path == model.PathRotation {
				width = 4
			}
			values, err := p.readFloats(sampler.Output, width)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d values: %w", anim.Name, ci, err)
			}

			out := model.Channel{Node: node, Path: path, Times: times}
			switch sampler.Interpolation {
			case "STEP":
				out.Interpolation = model.InterpolationStep
			case "CUBICSPLINE":
				// Keys are (in-tangent, value, out-tangent) triples.
				values = splineValues(values, width)
				log.Printf("[Loader] WARNING: animation %q channel %d: cubic spline sampled linearly", anim.Name, ci)
			}
			keys := min(len(times), len(values)/width)
			out.Times = times[:keys]
			out.Values = values[:keys*width]
			if keys > 0 {
				anim.Duration = max(anim.Duration, out.Times[keys-1])
			}
			anim.Channels = append(anim.Channels, out)
		}
		anims = append(anims, anim)
	}
	return anims, nil
}

func channelPath(path string) (model.Path, bool) {
	switch path {
	case "translation":
		return model.PathTranslation, true
	case "rotation":
		return model.PathRotation, true
	case "scale":
		return model.PathScale, true
	}
	return 0, false
}

func splineValues(values []float32, width int) []float32 {
	out := make([]float32, 0, len(values)/3)
	for i := width; i+width <= len(values); i += 3 * width {
		out = append(out, values[i:i+width]...)
	}
	return out
}
