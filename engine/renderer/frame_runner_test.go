package renderer

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExtent = gpu.Extent2D{Width: 320, Height: 240}

type runnerFixture struct {
	ctx       *device.Context
	dev       *gputest.Device
	swapchain *Swapchain
	commands  *CommandList
	tracker   *pass.Tracker
	runner    *FrameRunner
	output    *resource.Image
}

func newRunnerFixture(t *testing.T, options ...gputest.DeviceOption) *runnerFixture {
	t.Helper()
	dev := gputest.NewDevice(options...)
	ctx, err := device.New(dev)
	require.NoError(t, err)

	sc := NewSwapchain(ctx, testExtent, gpu.PresentModeFifo)
	commands := NewCommandList(ctx, sc.ImageCount())
	tracker := pass.NewTracker()
	return &runnerFixture{
		ctx:       ctx,
		dev:       dev,
		swapchain: sc,
		commands:  commands,
		tracker:   tracker,
		runner:    NewFrameRunner(ctx, sc, commands, tracker),
		output:    resource.NewRenderTarget(ctx, testExtent, gpu.FormatB8G8R8A8Unorm, gpu.SampleCount1, "output"),
	}
}

func (f *runnerFixture) frame(t *testing.T) gpu.CommandBuffer {
	t.Helper()
	cmd, ok, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.runner.EndDraw(cmd, f.output))
	return cmd
}

func TestCommandListReservesUploadBuffer(t *testing.T) {
	f := newRunnerFixture(t, gputest.WithSwapchainImages(2))

	assert.Equal(t, 2, f.commands.Frames())
	assert.NotEqual(t, f.commands.Frame(0), f.commands.Upload())
	assert.NotEqual(t, f.commands.Frame(1), f.commands.Upload())

	pools := f.dev.Calls("CreateCommandPool")
	require.Len(t, pools, 1)
	assert.Equal(t, gpu.CommandPoolResetCommandBuffer|gpu.CommandPoolTransient, pools[0].Args)
}

func TestFenceWaitedBeforeResetPerSlot(t *testing.T) {
	f := newRunnerFixture(t)
	f.dev.ClearTrace()

	var used []gpu.CommandBuffer
	for range 2 * f.swapchain.ImageCount() {
		used = append(used, f.frame(t))
	}
	assert.Equal(t, uint64(6), f.runner.PresentedFrames())
	assert.Equal(t, used[:3], used[3:], "slots are reused in ring order")
	assert.Empty(t, f.dev.Violations())

	trace := f.dev.Trace()
	for slot := range f.swapchain.ImageCount() {
		fence := gpu.Handle(f.swapchain.Fence(slot))
		var seq []string
		for _, c := range trace {
			if c.Handle == fence && (c.Op == "WaitForFence" || c.Op == "ResetFence" || c.Op == "QueueSubmit") {
				seq = append(seq, c.Op)
			}
		}
		assert.Equal(t, []string{
			"WaitForFence", "ResetFence", "QueueSubmit",
			"WaitForFence", "ResetFence", "QueueSubmit",
		}, seq, "slot %d", slot)
	}
}

func TestBeginDrawWaitsOnFenceBeforeAcquire(t *testing.T) {
	f := newRunnerFixture(t)
	f.dev.ClearTrace()

	_, ok, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateRecording, f.runner.State())
	assert.Equal(t, 0, f.runner.PresentIndex())

	ops := f.dev.Ops()
	require.GreaterOrEqual(t, len(ops), 3)
	assert.Equal(t, []string{"WaitForFence", "AcquireNextImage", "ResetFence"}, ops[:3])

	acquire := f.dev.Calls("AcquireNextImage")
	require.Len(t, acquire, 1)
	assert.Equal(t, gpu.Handle(f.swapchain.imageAvailable[0]), acquire[0].Handle)
	assert.Equal(t, gpu.Handle(f.swapchain.Fence(0)), f.dev.Calls("WaitForFence")[0].Handle)
}

func TestOutOfDateAcquireSkipsFrame(t *testing.T) {
	f := newRunnerFixture(t)
	f.dev.FailNextAcquire(gpu.ErrOutOfDate)
	f.dev.ClearTrace()

	cmd, ok, err := f.runner.BeginDraw()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, cmd)
	assert.Equal(t, StateIdle, f.runner.State())
	assert.Equal(t, -1, f.runner.PresentIndex())
	assert.Equal(t, 0, f.runner.Slot(), "a skipped frame does not consume the slot")
	assert.Equal(t, uint64(1), f.runner.SkippedFrames())
	assert.Empty(t, f.dev.Calls("ResetFence"))
	assert.True(t, f.dev.FenceSignaled(f.swapchain.Fence(0)), "a skipped frame leaves the fence signaled")

	f.frame(t)
	assert.Equal(t, uint64(1), f.runner.PresentedFrames())
	assert.Empty(t, f.dev.Violations())
}

func TestIllegalTransitions(t *testing.T) {
	f := newRunnerFixture(t)

	assert.ErrorIs(t, f.runner.EndDraw(f.commands.Frame(0), f.output), ErrIllegalTransition)
	assert.ErrorIs(t, f.runner.EndUpload(), ErrIllegalTransition)
	assert.ErrorIs(t, f.runner.WaitSemaphore(1, gpu.StageVertexInput), ErrIllegalTransition)
	assert.ErrorIs(t, f.runner.SignalSemaphore(1), ErrIllegalTransition)

	cmd, ok, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = f.runner.BeginDraw()
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = f.runner.BeginUpload()
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, f.runner.EndDraw(f.commands.Upload(), f.output), ErrWrongCommandBuffer)
	require.NoError(t, f.runner.EndDraw(cmd, f.output))
	assert.Equal(t, StateIdle, f.runner.State())
}

func TestEndDrawCopiesIntoSwapchainImage(t *testing.T) {
	f := newRunnerFixture(t)
	f.dev.ClearTrace()
	cmd := f.frame(t)

	var recorded []gputest.Call
	var ops []string
	for _, c := range f.dev.CommandsFor(cmd) {
		if strings.HasPrefix(c.Op, "Cmd") {
			recorded = append(recorded, c)
			ops = append(ops, c.Op)
		}
	}
	assert.Equal(t, []string{"CmdPipelineBarrier", "CmdCopyImage", "CmdPipelineBarrier"}, ops)

	before := recorded[0].Args.(gputest.Barrier)
	require.Len(t, before.Images, 2)
	assert.Equal(t, gpu.ImageLayoutColorAttachmentOptimal, before.Images[0].OldLayout)
	assert.Equal(t, gpu.ImageLayoutTransferSrcOptimal, before.Images[0].NewLayout)
	assert.Equal(t, f.swapchain.Image(0), before.Images[1].Image)
	assert.Equal(t, gpu.ImageLayoutUndefined, before.Images[1].OldLayout)
	assert.Equal(t, gpu.ImageLayoutTransferDstOptimal, before.Images[1].NewLayout)

	after := recorded[2].Args.(gputest.Barrier)
	require.Len(t, after.Images, 1)
	assert.Equal(t, gpu.ImageLayoutPresentSrc, after.Images[0].NewLayout)

	submits := f.dev.Calls("QueueSubmit")
	require.Len(t, submits, 1)
	s := submits[0].Args.(gputest.Submit)
	assert.Equal(t, gpu.QueueGraphics, s.Queue)
	require.Len(t, s.Info.Wait, 1)
	assert.Equal(t, gpu.StageColorAttachmentOutput, s.Info.Wait[0].Stage)
	assert.Equal(t, f.swapchain.Fence(0), s.Fence)
	require.Len(t, s.Info.Signal, 1)

	presents := f.dev.Calls("Present")
	require.Len(t, presents, 1)
	assert.Equal(t, gpu.Handle(s.Info.Signal[0]), presents[0].Handle, "present waits on render-finished")
}

func TestWaitSemaphoreAddsToSubmission(t *testing.T) {
	f := newRunnerFixture(t)
	sem, err := f.dev.CreateSemaphore()
	require.NoError(t, err)
	f.dev.ClearTrace()

	cmd, _, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.NoError(t, f.runner.WaitSemaphore(sem, gpu.StageDrawIndirect))
	require.NoError(t, f.runner.EndDraw(cmd, f.output))

	s := f.dev.Calls("QueueSubmit")[0].Args.(gputest.Submit)
	require.Len(t, s.Info.Wait, 2)
	assert.Equal(t, gpu.SemaphoreWait{Semaphore: sem, Stage: gpu.StageDrawIndirect}, s.Info.Wait[1])

	f.dev.ClearTrace()
	f.frame(t)
	s = f.dev.Calls("QueueSubmit")[0].Args.(gputest.Submit)
	assert.Len(t, s.Info.Wait, 1, "extra waits apply to one frame only")
}

func TestSignalSemaphoreAddsToSubmission(t *testing.T) {
	f := newRunnerFixture(t)
	sem, err := f.dev.CreateSemaphore()
	require.NoError(t, err)
	f.dev.ClearTrace()

	cmd, _, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.NoError(t, f.runner.SignalSemaphore(sem))
	require.NoError(t, f.runner.EndDraw(cmd, f.output))

	s := f.dev.Calls("QueueSubmit")[0].Args.(gputest.Submit)
	require.Len(t, s.Info.Signal, 2)
	assert.Equal(t, sem, s.Info.Signal[1])
	presents := f.dev.Calls("Present")
	require.Len(t, presents, 1)
	assert.Equal(t, gpu.Handle(s.Info.Signal[0]), presents[0].Handle, "present still waits on render-finished only")

	f.dev.ClearTrace()
	f.frame(t)
	s = f.dev.Calls("QueueSubmit")[0].Args.(gputest.Submit)
	assert.Len(t, s.Info.Signal, 1, "extra signals apply to one frame only")
}

func TestEndDrawWithOpenPassStillPresents(t *testing.T) {
	f := newRunnerFixture(t)
	forward := pass.NewForwardPass(f.ctx, f.tracker, pass.ForwardConfig{
		Extent:      testExtent,
		ColorFormat: gpu.FormatB8G8R8A8Unorm,
		DepthFormat: gpu.FormatD32Sfloat,
	})

	cmd, _, err := f.runner.BeginDraw()
	require.NoError(t, err)
	require.NoError(t, forward.Begin(f.dev, cmd))
	err = f.runner.EndDraw(cmd, forward.Output())
	assert.ErrorIs(t, err, pass.ErrPassOpen)
	assert.Equal(t, StateIdle, f.runner.State())
	assert.Equal(t, uint64(1), f.runner.PresentedFrames())
	assert.Len(t, f.dev.Calls("CmdEndRenderPass"), 1)
	assert.Empty(t, f.dev.Violations())

	f.frame(t)
}

func TestUploadReleasesStagingAfterIdleWait(t *testing.T) {
	f := newRunnerFixture(t)

	cmd, err := f.runner.BeginUpload()
	require.NoError(t, err)
	assert.Equal(t, f.commands.Upload(), cmd)
	_, _, err = f.runner.BeginDraw()
	assert.ErrorIs(t, err, ErrIllegalTransition, "no frame while an upload is open")

	buf := resource.NewDeviceLocalBuffer(f.ctx, cmd, gpu.BufferUsageVertex, make([]byte, 64), "vertices")
	assert.Equal(t, 1, f.ctx.PendingStagingBuffers())
	f.dev.ClearTrace()

	require.NoError(t, f.runner.EndUpload())
	assert.Zero(t, f.ctx.PendingStagingBuffers())

	ops := f.dev.Ops()
	submitAt, idleAt, freeAt := -1, -1, -1
	for i, op := range ops {
		switch {
		case op == "QueueSubmit" && submitAt < 0:
			submitAt = i
		case op == "WaitIdle" && idleAt < 0:
			idleAt = i
		case op == "DestroyBuffer" && freeAt < 0:
			freeAt = i
		}
	}
	assert.Less(t, submitAt, idleAt)
	assert.Less(t, idleAt, freeAt)
	buf.Destroy(f.ctx)
}
