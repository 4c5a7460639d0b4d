package renderer

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-vk/engine/device"
	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-vk/engine/resource"
)

var (
	// ErrIllegalTransition is returned when a FrameRunner call does not match its current state.
	ErrIllegalTransition = errors.New("illegal frame state transition")
	// ErrWrongCommandBuffer is returned when EndDraw receives a command buffer other than the one
	// BeginDraw returned.
	ErrWrongCommandBuffer = errors.New("command buffer does not belong to the current frame")
)

// FrameState is the position of the FrameRunner in its per-frame cycle.
type FrameState int

const (
	StateIdle FrameState = iota
	StateImageAcquired
	StateRecording
	StateSubmitted
	StatePresented
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateImageAcquired:
		return "ImageAcquired"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StatePresented:
		return "Presented"
	}
	return "Unknown"
}

// FrameRunner drives the swapchain ring. A slot's command buffer is re-recorded only after the
// slot's fence has been observed signaled. It is used from the render goroutine only.
type FrameRunner struct {
	ctx       *device.Context
	swapchain *Swapchain
	commands  *CommandList
	tracker   *pass.Tracker

	state        FrameState
	uploading    bool
	slot         int
	imageIndex   uint32
	presentIndex int
	waits        []gpu.SemaphoreWait
	signals      []gpu.Semaphore

	presented uint64
	skipped   uint64
}

// NewFrameRunner creates a FrameRunner over an existing swapchain ring and command list. The
// command list must hold one frame buffer per swapchain image.
//
// Parameters:
//   - ctx: the device Context
//   - swapchain: the presentation ring
//   - commands: the command buffers, one per ring slot plus the upload buffer
//   - tracker: the pass tracker used to validate frames before submission
//
// Returns:
//   - *FrameRunner: the new runner in StateIdle
func NewFrameRunner(ctx *device.Context, swapchain *Swapchain, commands *CommandList, tracker *pass.Tracker) *FrameRunner {
	if commands.Frames() != swapchain.ImageCount() {
		panic(fmt.Sprintf("renderer: %d frame command buffers for %d swapchain images", commands.Frames(), swapchain.ImageCount()))
	}
	return &FrameRunner{
		ctx:          ctx,
		swapchain:    swapchain,
		commands:     commands,
		tracker:      tracker,
		presentIndex: -1,
	}
}

// State returns the current frame state.
func (r *FrameRunner) State() FrameState {
	return r.state
}

// Slot returns the ring slot the next or current frame uses.
func (r *FrameRunner) Slot() int {
	return r.slot
}

// PresentIndex returns the acquired swapchain image index, or -1 when no frame is in flight.
func (r *FrameRunner) PresentIndex() int {
	return r.presentIndex
}

// SkippedFrames returns how many frames were skipped because the swapchain was out of date.
func (r *FrameRunner) SkippedFrames() uint64 {
	return r.skipped
}

// PresentedFrames returns how many frames were presented.
func (r *FrameRunner) PresentedFrames() uint64 {
	return r.presented
}

// CurrentCommandBuffer returns the command buffer being recorded for the current frame.
func (r *FrameRunner) CurrentCommandBuffer() (gpu.CommandBuffer, bool) {
	if r.state != StateRecording {
		return 0, false
	}
	return r.commands.Frame(r.slot), true
}

// UploadCommandBuffer returns the command buffer reserved for upload passes.
func (r *FrameRunner) UploadCommandBuffer() gpu.CommandBuffer {
	return r.commands.Upload()
}

// BeginUpload begins the upload command buffer for one-time submission. Uploads happen between
// frames only.
//
// Returns:
//   - gpu.CommandBuffer: the recording upload command buffer
//   - error: ErrIllegalTransition if a frame or another upload is in progress
func (r *FrameRunner) BeginUpload() (gpu.CommandBuffer, error) {
	if r.state != StateIdle || r.uploading {
		return 0, fmt.Errorf("%w: begin upload in state %s", ErrIllegalTransition, r.state)
	}
	cmd := r.commands.Upload()
	if err := r.ctx.Device().BeginCommandBuffer(cmd, true); err != nil {
		panic(fmt.Sprintf("renderer: failed to begin upload command buffer: %v", err))
	}
	r.uploading = true
	return cmd, nil
}

// EndUpload ends and submits the upload command buffer, waits for the device to go idle and then
// releases the staging buffers belonging to that submission.
//
// Returns:
//   - error: ErrIllegalTransition if no upload is in progress, or ErrPassOpen if a render pass
//     was left open on the upload buffer
func (r *FrameRunner) EndUpload() error {
	if !r.uploading {
		return fmt.Errorf("%w: end upload without begin", ErrIllegalTransition)
	}
	r.uploading = false

	dev := r.ctx.Device()
	cmd := r.commands.Upload()
	passErr := r.tracker.Finalize(cmd)
	if passErr != nil {
		dev.CmdEndRenderPass(cmd)
	}
	if err := dev.EndCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("renderer: failed to end upload command buffer: %v", err))
	}

	id := r.ctx.MarkSubmitted()
	if err := dev.QueueSubmit(gpu.QueueGraphics, gpu.SubmitInfo{Commands: []gpu.CommandBuffer{cmd}}, 0); err != nil {
		panic(fmt.Sprintf("renderer: failed to submit upload: %v", err))
	}
	r.ctx.WaitIdle()
	r.ctx.CompleteSubmission(id)
	return passErr
}

// BeginDraw waits for the slot's fence, acquires the next swapchain image with the slot's
// image-available semaphore, resets the fence and begins the slot's command buffer. The fence
// wait comes first because the semaphore's previous wait belongs to the submission the fence
// guards. An out-of-date swapchain skips the frame: ok is false, the runner stays Idle, the fence
// stays signaled and the slot is not consumed.
//
// Returns:
//   - gpu.CommandBuffer: the recording frame command buffer
//   - bool: false when the frame was skipped
//   - error: ErrIllegalTransition if a frame is already in progress or an upload is open
func (r *FrameRunner) BeginDraw() (gpu.CommandBuffer, bool, error) {
	if r.state != StateIdle || r.uploading {
		return 0, false, fmt.Errorf("%w: begin draw in state %s", ErrIllegalTransition, r.state)
	}
	dev := r.ctx.Device()

	fence := r.swapchain.fences[r.slot]
	if err := dev.WaitForFence(fence); err != nil {
		panic(fmt.Sprintf("renderer: failed waiting for frame fence %d: %v", r.slot, err))
	}

	idx, err := dev.AcquireNextImage(r.swapchain.handle, r.swapchain.imageAvailable[r.slot])
	if err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) {
			r.presentIndex = -1
			r.skipped++
			return 0, false, nil
		}
		panic(fmt.Sprintf("renderer: failed to acquire swapchain image: %v", err))
	}
	r.imageIndex = idx
	r.presentIndex = int(idx)
	r.state = StateImageAcquired

	if err := dev.ResetFence(fence); err != nil {
		panic(fmt.Sprintf("renderer: failed to reset frame fence %d: %v", r.slot, err))
	}

	cmd := r.commands.Frame(r.slot)
	if err := dev.ResetCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("renderer: failed to reset frame command buffer: %v", err))
	}
	if err := dev.BeginCommandBuffer(cmd, true); err != nil {
		panic(fmt.Sprintf("renderer: failed to begin frame command buffer: %v", err))
	}
	r.waits = r.waits[:0]
	r.signals = r.signals[:0]
	r.state = StateRecording
	return cmd, true, nil
}

// WaitSemaphore adds a semaphore the current frame's submission waits on at stage, in addition
// to the image-available semaphore.
//
// Parameters:
//   - sem: the semaphore to wait on
//   - stage: the pipeline stage the wait applies to
//
// Returns:
//   - error: ErrIllegalTransition outside StateRecording
func (r *FrameRunner) WaitSemaphore(sem gpu.Semaphore, stage gpu.PipelineStage) error {
	if r.state != StateRecording {
		return fmt.Errorf("%w: semaphore wait in state %s", ErrIllegalTransition, r.state)
	}
	r.waits = append(r.waits, gpu.SemaphoreWait{Semaphore: sem, Stage: stage})
	return nil
}

// SignalSemaphore adds a semaphore the current frame's submission signals, in addition to the
// render-finished semaphore.
//
// Parameters:
//   - sem: the semaphore to signal
//
// Returns:
//   - error: ErrIllegalTransition outside StateRecording
func (r *FrameRunner) SignalSemaphore(sem gpu.Semaphore) error {
	if r.state != StateRecording {
		return fmt.Errorf("%w: semaphore signal in state %s", ErrIllegalTransition, r.state)
	}
	r.signals = append(r.signals, sem)
	return nil
}

// EndDraw copies output into the acquired swapchain image between layout barriers, ends and
// submits the frame command buffer and presents. The submission waits for image-available at
// COLOR_ATTACHMENT_OUTPUT and signals render-finished and the slot fence; presentation waits for
// render-finished. A frame finalized with an open render pass is closed, submitted and presented
// so the ring stays consistent, and ErrPassOpen is returned.
//
// Parameters:
//   - cmd: the command buffer returned by BeginDraw
//   - output: the color image holding the finished frame, in COLOR_ATTACHMENT_OPTIMAL
//
// Returns:
//   - error: ErrIllegalTransition, ErrWrongCommandBuffer or ErrPassOpen
func (r *FrameRunner) EndDraw(cmd gpu.CommandBuffer, output *resource.Image) error {
	if r.state != StateRecording {
		return fmt.Errorf("%w: end draw in state %s", ErrIllegalTransition, r.state)
	}
	if cmd != r.commands.Frame(r.slot) {
		return fmt.Errorf("%w: got %d", ErrWrongCommandBuffer, cmd)
	}
	dev := r.ctx.Device()

	passErr := r.tracker.Finalize(cmd)
	if passErr != nil {
		dev.CmdEndRenderPass(cmd)
	}

	target := r.swapchain.Image(r.imageIndex)
	extent := r.swapchain.Extent()
	dev.CmdPipelineBarrier(cmd, gpu.StageColorAttachmentOutput, gpu.StageTransfer, nil, []gpu.ImageBarrier{
		output.Barrier(gpu.ImageLayoutColorAttachmentOptimal, gpu.ImageLayoutTransferSrcOptimal,
			gpu.AccessColorAttachmentWrite, gpu.AccessTransferRead),
		swapchainBarrier(target, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDstOptimal, 0, gpu.AccessTransferWrite),
	})
	dev.CmdCopyImage(cmd, output.Handle, gpu.ImageLayoutTransferSrcOptimal, target, gpu.ImageLayoutTransferDstOptimal, []gpu.ImageCopy{{
		Aspect:     gpu.AspectColor,
		LayerCount: 1,
		Extent:     gpu.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}})
	dev.CmdPipelineBarrier(cmd, gpu.StageTransfer, gpu.StageBottomOfPipe, nil, []gpu.ImageBarrier{
		swapchainBarrier(target, gpu.ImageLayoutTransferDstOptimal, gpu.ImageLayoutPresentSrc, gpu.AccessTransferWrite, gpu.AccessMemoryRead),
	})
	if err := dev.EndCommandBuffer(cmd); err != nil {
		panic(fmt.Sprintf("renderer: failed to end frame command buffer: %v", err))
	}

	waits := append([]gpu.SemaphoreWait{{
		Semaphore: r.swapchain.imageAvailable[r.slot],
		Stage:     gpu.StageColorAttachmentOutput,
	}}, r.waits...)
	err := dev.QueueSubmit(gpu.QueueGraphics, gpu.SubmitInfo{
		Commands: []gpu.CommandBuffer{cmd},
		Wait:     waits,
		Signal:   append([]gpu.Semaphore{r.swapchain.renderFinished[r.slot]}, r.signals...),
	}, r.swapchain.fences[r.slot])
	if err != nil {
		panic(fmt.Sprintf("renderer: failed to submit frame: %v", err))
	}
	r.state = StateSubmitted

	if err := dev.Present(r.swapchain.handle, r.imageIndex, r.swapchain.renderFinished[r.slot]); err != nil {
		if !errors.Is(err, gpu.ErrOutOfDate) {
			panic(fmt.Sprintf("renderer: failed to present: %v", err))
		}
		log.Printf("[Renderer] WARNING: swapchain out of date at present, frame %d dropped", r.presented)
		r.skipped++
	} else {
		r.presented++
	}
	r.state = StatePresented

	r.slot = (r.slot + 1) % r.swapchain.ImageCount()
	r.presentIndex = -1
	r.waits = r.waits[:0]
	r.signals = r.signals[:0]
	r.state = StateIdle
	return passErr
}

func swapchainBarrier(img gpu.Image, oldLayout, newLayout gpu.ImageLayout, src, dst gpu.Access) gpu.ImageBarrier {
	return gpu.ImageBarrier{
		Image:          img,
		OldLayout:      oldLayout,
		NewLayout:      newLayout,
		SrcAccess:      src,
		DstAccess:      dst,
		SrcQueueFamily: gpu.QueueFamilyIgnored,
		DstQueueFamily: gpu.QueueFamilyIgnored,
		Aspect:         gpu.AspectColor,
		MipCount:       1,
		LayerCount:     1,
	}
}
