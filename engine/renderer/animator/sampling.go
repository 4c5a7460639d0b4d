package animator

import (
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-vk/common"
	"github.com/Carmen-Shannon/oxy-vk/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// Playback is the position of an instance within its active animation.
type Playback struct {
	Index   int
	Time    float32
	Playing bool
}

// Advance moves the playback time forward by dt and wraps it into [0, duration). A zero
// duration pins the time at zero.
//
// Parameters:
//   - dt: elapsed seconds
//   - duration: length of the active animation in seconds
func (p *Playback) Advance(dt, duration float32) {
	if !p.Playing {
		return
	}
	if duration <= 0 {
		p.Time = 0
		return
	}
	p.Time = float32(math.Mod(float64(p.Time+dt), float64(duration)))
	if p.Time < 0 {
		p.Time += duration
	}
}

// keyframe locates t between two keys. Before the first key and for single-key tracks it
// returns the first key; past the last key it returns the last.
//
// Returns:
//   - i0, i1: the surrounding key indices
//   - f: the blend factor in [0, 1] from i0 toward i1
func keyframe(times []float32, t float32) (i0, i1 int, f float32) {
	n := len(times)
	if n == 1 || t <= times[0] {
		return 0, 0, 0
	}
	if t >= times[n-1] {
		return n - 1, n - 1, 0
	}
	i1 = sort.Search(n, func(i int) bool { return times[i] > t })
	i0 = i1 - 1
	span := times[i1] - times[i0]
	if span <= 0 {
		return i0, i0, 0
	}
	return i0, i1, (t - times[i0]) / span
}

func vec3At(values []float32, i int) mgl32.Vec3 {
	return mgl32.Vec3{values[i*3], values[i*3+1], values[i*3+2]}
}

// quatAt reads the (x, y, z, w) key i.
func quatAt(values []float32, i int) mgl32.Quat {
	return mgl32.Quat{W: values[i*4+3], V: mgl32.Vec3{values[i*4], values[i*4+1], values[i*4+2]}}
}

// SampleVec3 samples a translation or scale channel at t.
//
// Parameters:
//   - ch: the channel; Values holds three floats per key
//   - t: the time in seconds
//
// Returns:
//   - mgl32.Vec3: the sampled value
//   - bool: false when the channel has no usable keys
func SampleVec3(ch *model.Channel, t float32) (mgl32.Vec3, bool) {
	if len(ch.Times) == 0 || len(ch.Values) < len(ch.Times)*3 {
		return mgl32.Vec3{}, false
	}
	i0, i1, f := keyframe(ch.Times, t)
	a := vec3At(ch.Values, i0)
	if ch.Interpolation == model.InterpolationStep || i0 == i1 {
		return a, true
	}
	b := vec3At(ch.Values, i1)
	return a.Add(b.Sub(a).Mul(f)), true
}

// SampleQuat samples a rotation channel at t with spherical linear interpolation.
//
// Parameters:
//   - ch: the channel; Values holds four floats (x, y, z, w) per key
//   - t: the time in seconds
//
// Returns:
//   - mgl32.Quat: the sampled, normalized rotation
//   - bool: false when the channel has no usable keys
func SampleQuat(ch *model.Channel, t float32) (mgl32.Quat, bool) {
	if len(ch.Times) == 0 || len(ch.Values) < len(ch.Times)*4 {
		return mgl32.QuatIdent(), false
	}
	i0, i1, f := keyframe(ch.Times, t)
	a := quatAt(ch.Values, i0)
	if ch.Interpolation == model.InterpolationStep || i0 == i1 {
		return a.Normalize(), true
	}
	b := quatAt(ch.Values, i1)
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, f).Normalize(), true
}

// SampleAnimation evaluates every channel of anim at t and writes the results into locals.
// Channels targeting nodes outside locals are ignored.
//
// Parameters:
//   - anim: the animation clip
//   - t: the time in seconds
//   - locals: per-node transforms, updated in place
func SampleAnimation(anim *model.Animation, t float32, locals []common.Transform) {
	for i := range anim.Channels {
		ch := &anim.Channels[i]
		if ch.Node < 0 || ch.Node >= len(locals) {
			continue
		}
		switch ch.Path {
		case model.PathTranslation:
			if v, ok := SampleVec3(ch, t); ok {
				locals[ch.Node].Translation = v
			}
		case model.PathScale:
			if v, ok := SampleVec3(ch, t); ok {
				locals[ch.Node].Scale = v
			}
		case model.PathRotation:
			if q, ok := SampleQuat(ch, t); ok {
				locals[ch.Node].Rotation = q
			}
		}
	}
}
