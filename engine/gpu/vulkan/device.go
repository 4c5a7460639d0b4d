// Package vulkan implements gpu.Device on top of vulkan-go.
package vulkan

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-vk/engine/gpu"
	vk "github.com/vulkan-go/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var requiredDeviceExtensions = []string{
	"VK_KHR_swapchain",
	"VK_KHR_maintenance1",
}

var (
	loaderMu    sync.Mutex
	loaderReady bool
)

type memory struct {
	mem  vk.DeviceMemory
	size uint64
}

type image struct {
	img vk.Image
	// swapchain images are owned by their swapchain and never destroyed directly
	external bool
}

type commandPool struct {
	pool    vk.CommandPool
	buffers []gpu.CommandBuffer
}

type swapchain struct {
	sc     vk.Swapchain
	images []gpu.Image
}

type device struct {
	mu *sync.Mutex

	source     SurfaceSource
	validation bool
	appName    string

	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	physical vk.PhysicalDevice
	dev      vk.Device
	queues   [3]vk.Queue
	families [3]uint32

	info        gpu.DeviceInfo
	memoryTypes []gpu.MemoryType

	// validationErr holds the first error-severity debug report until a submit surfaces it
	validationErr atomic.Pointer[string]

	next           *atomic.Uint64
	buffers        *registry[vk.Buffer]
	images         *registry[image]
	memories       *registry[memory]
	views          *registry[vk.ImageView]
	samplers       *registry[vk.Sampler]
	renderPasses   *registry[vk.RenderPass]
	framebuffers   *registry[vk.Framebuffer]
	shaders        *registry[vk.ShaderModule]
	setLayouts     *registry[vk.DescriptorSetLayout]
	layouts        *registry[vk.PipelineLayout]
	pipelines      *registry[vk.Pipeline]
	descPools      *registry[vk.DescriptorPool]
	descSets       *registry[vk.DescriptorSet]
	cmdPools       *registry[commandPool]
	cmdBuffers     *registry[vk.CommandBuffer]
	fences         *registry[vk.Fence]
	semaphores     *registry[vk.Semaphore]
	swapchains     *registry[swapchain]
	destroyed      bool
}

var _ gpu.Device = &device{}

// Open creates a Vulkan instance, selects a physical device and creates the logical device with
// its graphics, compute and present queues.
//
// Parameters:
//   - options: functional options configuring the surface, validation and application name
//
// Returns:
//   - gpu.Device: the opened device
//   - error: if any step of instance or device creation fails
func Open(options ...DeviceBuilderOption) (gpu.Device, error) {
	next := &atomic.Uint64{}
	d := &device{
		mu:           &sync.Mutex{},
		appName:      "oxy",
		next:         next,
		buffers:      newRegistry[vk.Buffer](next),
		images:       newRegistry[image](next),
		memories:     newRegistry[memory](next),
		views:        newRegistry[vk.ImageView](next),
		samplers:     newRegistry[vk.Sampler](next),
		renderPasses: newRegistry[vk.RenderPass](next),
		framebuffers: newRegistry[vk.Framebuffer](next),
		shaders:      newRegistry[vk.ShaderModule](next),
		setLayouts:   newRegistry[vk.DescriptorSetLayout](next),
		layouts:      newRegistry[vk.PipelineLayout](next),
		pipelines:    newRegistry[vk.Pipeline](next),
		descPools:    newRegistry[vk.DescriptorPool](next),
		descSets:     newRegistry[vk.DescriptorSet](next),
		cmdPools:     newRegistry[commandPool](next),
		cmdBuffers:   newRegistry[vk.CommandBuffer](next),
		fences:       newRegistry[vk.Fence](next),
		semaphores:   newRegistry[vk.Semaphore](next),
		swapchains:   newRegistry[swapchain](next),
	}
	for _, opt := range options {
		opt(d)
	}

	if err := d.initLoader(); err != nil {
		return nil, err
	}
	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if d.validation {
		d.createDebugCallback()
	}
	if d.source != nil {
		ptr, err := d.source.CreateSurface(d.instance)
		if err != nil {
			d.destroyInstance()
			return nil, fmt.Errorf("create surface: %w", err)
		}
		d.surface = vk.SurfaceFromPointer(ptr)
	}
	if err := d.pickPhysicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.destroyInstance()
		return nil, err
	}

	log.Printf("[Device] selected %s (graphics family %d, compute family %d, present family %d, max samples %d)",
		d.info.Name, d.info.GraphicsFamily, d.info.ComputeFamily, d.info.PresentFamily, d.info.MaxSamples)
	return d, nil
}

func (d *device) initLoader() error {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loaderReady {
		return nil
	}
	if d.source != nil {
		vk.SetGetInstanceProcAddr(d.source.InstanceProcAddr())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("load vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("init vulkan: %w", err)
	}
	loaderReady = true
	return nil
}

func (d *device) createInstance() error {
	var extensions []string
	if d.source != nil {
		extensions = append(extensions, d.source.RequiredInstanceExtensions()...)
	}

	var layers []string
	if d.validation {
		if hasInstanceLayer(validationLayer) {
			layers = append(layers, validationLayer)
			extensions = append(extensions, "VK_EXT_debug_report")
		} else {
			log.Printf("[Vulkan] WARNING: %s requested but not installed, continuing without validation", validationLayer)
			d.validation = false
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cString(d.appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        cString("oxy"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	extensions = cStrings(extensions)
	layers = cStrings(layers)
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := newError("create instance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return err
	}
	vk.InitInstance(instance)
	d.instance = instance
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	props := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, props)
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *device) createDebugCallback() {
	info := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint,
			messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {
			switch {
			case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
				log.Printf("[Vulkan] ERROR: [%s] %s", layerPrefix, message)
				msg := fmt.Sprintf("[%s] %s", layerPrefix, message)
				d.validationErr.CompareAndSwap(nil, &msg)
			case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
				log.Printf("[Vulkan] WARNING: [%s] %s", layerPrefix, message)
			default:
				log.Printf("[Vulkan] [%s] %s", layerPrefix, message)
			}
			return vk.False
		},
	}
	var cb vk.DebugReportCallback
	if err := newError("create debug report callback", vk.CreateDebugReportCallback(d.instance, &info, nil, &cb)); err != nil {
		log.Printf("[Vulkan] WARNING: %v", err)
		return
	}
	d.debug = cb
}

// checkValidation panics with the first error-severity validation report, if any.
func (d *device) checkValidation() {
	if msg := d.validationErr.Load(); msg != nil {
		panic(fmt.Sprintf("vulkan validation error: %s", *msg))
	}
}

type candidate struct {
	physical vk.PhysicalDevice
	name     string
	discrete bool
	families [3]uint32
	limits   vk.PhysicalDeviceLimits
	features vk.PhysicalDeviceFeatures
}

func (d *device) pickPhysicalDevice() error {
	var count uint32
	if err := newError("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	physical := make([]vk.PhysicalDevice, count)
	if err := newError("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, physical)); err != nil {
		return err
	}

	var best *candidate
	var rejected []string
	for _, pd := range physical {
		c, reason := d.evaluate(pd)
		if c == nil {
			rejected = append(rejected, reason)
			continue
		}
		if best == nil || (c.discrete && !best.discrete) {
			best = c
		}
	}
	if best == nil {
		return fmt.Errorf("%w among %d devices: %s", ErrNoSuitableDevice, count, strings.Join(rejected, "; "))
	}

	d.physical = best.physical
	d.families = best.families

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &memProps)
	memProps.Deref()
	d.memoryTypes = make([]gpu.MemoryType, memProps.MemoryTypeCount)
	for i := range d.memoryTypes {
		mt := memProps.MemoryTypes[i]
		mt.Deref()
		d.memoryTypes[i] = gpu.MemoryType{
			Properties: gpu.MemoryProperty(mt.PropertyFlags),
			HeapIndex:  mt.HeapIndex,
		}
	}

	d.info = gpu.DeviceInfo{
		Name:                            best.name,
		GraphicsFamily:                  best.families[gpu.QueueGraphics],
		ComputeFamily:                   best.families[gpu.QueueCompute],
		PresentFamily:                   best.families[gpu.QueuePresent],
		MinUniformBufferOffsetAlignment: uint64(best.limits.MinUniformBufferOffsetAlignment),
		MaxSamples:                      maxSampleCount(uint32(best.limits.FramebufferColorSampleCounts & best.limits.FramebufferDepthSampleCounts)),
	}
	if best.features.TessellationShader != vk.True {
		log.Printf("[Device] WARNING: %s does not support tessellation shaders", best.name)
	}
	return nil
}

// evaluate returns the queue families of pd, or a reason it cannot run the engine.
func (d *device) evaluate(pd vk.PhysicalDevice) (*candidate, string) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	props.Limits.Deref()
	c := &candidate{
		physical: pd,
		name:     vk.ToString(props.DeviceName[:]),
		discrete: props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		limits:   props.Limits,
	}
	vk.GetPhysicalDeviceFeatures(pd, &c.features)
	c.features.Deref()

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	found := [3]bool{}
	for i, family := range families {
		family.Deref()
		idx := uint32(i)
		if !found[gpu.QueueGraphics] && family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			c.families[gpu.QueueGraphics], found[gpu.QueueGraphics] = idx, true
		}
		if !found[gpu.QueueCompute] && family.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			c.families[gpu.QueueCompute], found[gpu.QueueCompute] = idx, true
		}
		if !found[gpu.QueuePresent] && d.surface != vk.NullSurface {
			var supported vk.Bool32
			if err := newError("query surface support", vk.GetPhysicalDeviceSurfaceSupport(pd, idx, d.surface, &supported)); err == nil && supported.B() {
				c.families[gpu.QueuePresent], found[gpu.QueuePresent] = idx, true
			}
		}
	}
	if d.surface == vk.NullSurface {
		c.families[gpu.QueuePresent], found[gpu.QueuePresent] = c.families[gpu.QueueGraphics], found[gpu.QueueGraphics]
	}

	switch {
	case !found[gpu.QueueGraphics]:
		return nil, c.name + ": no graphics queue"
	case !found[gpu.QueueCompute]:
		return nil, c.name + ": no compute queue"
	case !found[gpu.QueuePresent]:
		return nil, c.name + ": no present queue"
	}

	if missing := missingExtensions(pd, d.requiredExtensions()); len(missing) > 0 {
		return nil, c.name + ": missing " + strings.Join(missing, ", ")
	}

	if d.surface != vk.NullSurface {
		var formats, modes uint32
		vk.GetPhysicalDeviceSurfaceFormats(pd, d.surface, &formats, nil)
		vk.GetPhysicalDeviceSurfacePresentModes(pd, d.surface, &modes, nil)
		if formats == 0 || modes == 0 {
			return nil, c.name + ": no surface formats or present modes"
		}
	}
	return c, ""
}

func (d *device) requiredExtensions() []string {
	if d.surface == vk.NullSurface {
		return requiredDeviceExtensions[1:]
	}
	return requiredDeviceExtensions
}

func missingExtensions(pd vk.PhysicalDevice, required []string) []string {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)
	props := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, props)
	available := make(map[string]bool, count)
	for _, p := range props {
		p.Deref()
		available[vk.ToString(p.ExtensionName[:])] = true
	}
	var missing []string
	for _, name := range required {
		if !available[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// maxSampleCount picks the highest sample count bit set in counts.
func maxSampleCount(counts uint32) gpu.SampleCount {
	for _, s := range []gpu.SampleCount{gpu.SampleCount8, gpu.SampleCount4, gpu.SampleCount2} {
		if counts&uint32(s) != 0 {
			return s
		}
	}
	return gpu.SampleCount1
}

// uniqueFamilies returns the distinct queue families in first-seen order.
func uniqueFamilies(families [3]uint32) []uint32 {
	var out []uint32
	for _, f := range families {
		seen := false
		for _, o := range out {
			if o == f {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, f)
		}
	}
	return out
}

func (d *device) createLogicalDevice() error {
	var queueInfos []vk.DeviceQueueCreateInfo
	for _, family := range uniqueFamilies(d.families) {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var supported vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.physical, &supported)
	supported.Deref()
	features := []vk.PhysicalDeviceFeatures{{
		TessellationShader: supported.TessellationShader,
		SamplerAnisotropy:  supported.SamplerAnisotropy,
	}}

	extensions := cStrings(d.requiredExtensions())
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        features,
	}
	if d.validation {
		layers := cStrings([]string{validationLayer})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var dev vk.Device
	if err := newError("create device", vk.CreateDevice(d.physical, &createInfo, nil, &dev)); err != nil {
		return err
	}
	d.dev = dev
	for kind, family := range d.families {
		var q vk.Queue
		vk.GetDeviceQueue(d.dev, family, 0, &q)
		d.queues[kind] = q
	}
	return nil
}

func (d *device) Info() gpu.DeviceInfo {
	return d.info
}

func (d *device) Native() gpu.NativeHandles {
	return gpu.NativeHandles{
		Instance:       uintptr(unsafe.Pointer(d.instance)),
		PhysicalDevice: uintptr(unsafe.Pointer(d.physical)),
		Device:         uintptr(unsafe.Pointer(d.dev)),
		GraphicsQueue:  uintptr(unsafe.Pointer(d.queues[gpu.QueueGraphics])),
		ComputeQueue:   uintptr(unsafe.Pointer(d.queues[gpu.QueueCompute])),
		GraphicsFamily: d.families[gpu.QueueGraphics],
		ComputeFamily:  d.families[gpu.QueueCompute],
	}
}

func (d *device) NativeImage(img gpu.Image) uintptr {
	return uintptr(unsafe.Pointer(d.images.must(gpu.Handle(img)).img))
}

func (d *device) NativeImageView(view gpu.ImageView) uintptr {
	return uintptr(unsafe.Pointer(d.views.must(gpu.Handle(view))))
}

func (d *device) NativeCommandBuffer(cmd gpu.CommandBuffer) uintptr {
	return uintptr(unsafe.Pointer(d.cmdBuffers.must(gpu.Handle(cmd))))
}

func (d *device) NativeCommandPool(pool gpu.CommandPool) uintptr {
	return uintptr(unsafe.Pointer(d.cmdPools.must(gpu.Handle(pool)).pool))
}

func (d *device) MemoryTypes() []gpu.MemoryType {
	return d.memoryTypes
}

func (d *device) FormatSupportsLinearBlit(format gpu.Format) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physical, vk.Format(format), &props)
	props.Deref()
	return props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit) != 0
}

func (d *device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return newError("device wait idle", vk.DeviceWaitIdle(d.dev))
}

// Destroy waits for the device, logs any objects still alive and releases the device, the
// surface and the instance. It is safe to call more than once.
func (d *device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true

	vk.DeviceWaitIdle(d.dev)
	if leaked := d.liveObjects(); leaked > 0 {
		log.Printf("[Device] WARNING: %d objects still alive at device destruction", leaked)
	}
	vk.DestroyDevice(d.dev, nil)
	d.destroyInstance()
	log.Printf("[Device] destroyed")
}

func (d *device) liveObjects() int {
	return d.buffers.len() + d.memories.len() + d.views.len() + d.samplers.len() +
		d.renderPasses.len() + d.framebuffers.len() + d.shaders.len() + d.setLayouts.len() +
		d.layouts.len() + d.pipelines.len() + d.descPools.len() + d.cmdPools.len() +
		d.fences.len() + d.semaphores.len() + d.swapchains.len()
}

func (d *device) destroyInstance() {
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(d.instance, nil)
}

// cString appends the terminator vulkan-go expects on strings passed to the driver.
func cString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

func cStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = cString(s)
	}
	return out
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
