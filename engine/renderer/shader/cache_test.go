package shader

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirv(words int) []byte {
	b := make([]byte, words*4)
	binary.LittleEndian.PutUint32(b, spirvMagic)
	return b
}

func TestKeyIgnoresDefineOrder(t *testing.T) {
	a := Key("grass.comp", map[string]string{"A": "1", "B": "2"})
	b := Key("grass.comp", map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, Key("grass.comp", nil))
	assert.NotEqual(t, Key("grass.comp", map[string]string{"AB": ""}), Key("grass.comp", map[string]string{"A": "B"}))
}

func TestLoadCachesModules(t *testing.T) {
	dev := gputest.NewDevice()
	ctx, err := device.New(dev)
	require.NoError(t, err)

	defines := map[string]string{"MSAA": "4"}
	fsys := fstest.MapFS{
		"shaders/model.vert.spv": {Data: spirv(8)},
		"shaders/model.frag." + Key("model.frag", defines) + ".spv": {Data: spirv(8)},
	}
	c := NewCache(fsys, WithDirectory("shaders"))
	ctx.SetShaderCache(c)

	vert, err := c.Load(ctx, "model.vert", ShaderTypeVertex, nil)
	require.NoError(t, err)
	again, err := c.Load(ctx, "model.vert", ShaderTypeVertex, nil)
	require.NoError(t, err)
	assert.Same(t, vert, again)

	frag, err := c.Load(ctx, "model.frag", ShaderTypeFragment, defines)
	require.NoError(t, err)
	assert.Equal(t, gpu.ShaderStageFragment, frag.StageDesc().Stage)
	assert.Equal(t, "main", frag.EntryPoint())
	assert.Equal(t, 2, c.Len())
	assert.Len(t, dev.Calls("CreateShaderModule"), 2)

	ctx.Destroy()
	assert.Len(t, dev.Calls("DestroyShaderModule"), 2)
	assert.Equal(t, 0, c.Len())
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dev := gputest.NewDevice()
	ctx, err := device.New(dev)
	require.NoError(t, err)

	c := NewCache(fstest.MapFS{
		"bad.comp.spv":   {Data: make([]byte, 32)},
		"short.comp.spv": {Data: []byte{3, 2, 0x23, 7}},
	})

	_, err = c.Load(ctx, "bad.comp", ShaderTypeCompute, nil)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)
	_, err = c.Load(ctx, "short.comp", ShaderTypeCompute, nil)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)
	_, err = c.Load(ctx, "missing.comp", ShaderTypeCompute, nil)
	assert.Error(t, err)
	assert.Panics(t, func() { c.MustLoad(ctx, "missing.comp", ShaderTypeCompute, nil) })
	assert.Equal(t, 0, c.Len())
}
