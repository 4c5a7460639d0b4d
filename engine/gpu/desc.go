package gpu

type Extent2D struct {
	Width, Height uint32
}

type Extent3D struct {
	Width, Height, Depth uint32
}

type Offset3D struct {
	X, Y, Z int32
}

// DeviceInfo describes the selected physical device and the queue families chosen for each
// logical queue.
type DeviceInfo struct {
	Name                            string
	GraphicsFamily                  uint32
	ComputeFamily                   uint32
	PresentFamily                   uint32
	MinUniformBufferOffsetAlignment uint64
	MaxSamples                      SampleCount
}

type BufferDesc struct {
	Size  uint64
	Usage BufferUsage
	Label string
}

// MemoryRequirements is the allocation contract reported for a buffer or image.
// TypeBits has bit i set when memory type i may back the object.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

type ImageDesc struct {
	Extent      Extent2D
	Format      Format
	MipLevels   uint32
	ArrayLayers uint32
	Samples     SampleCount
	Usage       ImageUsage
	Label       string
}

type ImageViewDesc struct {
	Image      Image
	Format     Format
	Aspect     ImageAspect
	BaseMip    uint32
	MipLevels  uint32
	LayerCount uint32
}

type SamplerDesc struct {
	MagFilter     Filter
	MinFilter     Filter
	MipmapFilter  Filter
	AddressMode   AddressMode
	MaxLod        float32
	CompareEnable bool
	CompareOp     CompareOp
}

type AttachmentDesc struct {
	Format        Format
	Samples       SampleCount
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type AttachmentRef struct {
	Attachment uint32
	Layout     ImageLayout
}

type SubpassDesc struct {
	Color   []AttachmentRef
	Depth   *AttachmentRef
	Resolve []AttachmentRef
}

type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
	ByRegion   bool
}

type RenderPassDesc struct {
	Attachments  []AttachmentDesc
	Subpasses    []SubpassDesc
	Dependencies []SubpassDependency
	Label        string
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
	Layers      uint32
}

// ClearValue clears a color attachment unless Depth is set, in which case DepthValue and
// Stencil clear a depth attachment.
type ClearValue struct {
	Color      [4]float32
	Depth      bool
	DepthValue float32
	Stencil    uint32
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	Clears      []ClearValue
}

type BufferBarrier struct {
	Buffer         Buffer
	Offset         uint64
	Size           uint64
	SrcAccess      Access
	DstAccess      Access
	SrcQueueFamily uint32
	DstQueueFamily uint32
}

// TransfersOwnership reports whether the barrier moves the buffer between queue families.
func (b BufferBarrier) TransfersOwnership() bool {
	return b.SrcQueueFamily != b.DstQueueFamily
}

type ImageBarrier struct {
	Image          Image
	OldLayout      ImageLayout
	NewLayout      ImageLayout
	SrcAccess      Access
	DstAccess      Access
	SrcQueueFamily uint32
	DstQueueFamily uint32
	Aspect         ImageAspect
	BaseMip        uint32
	MipCount       uint32
	LayerCount     uint32
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	MipLevel     uint32
	LayerCount   uint32
	Extent       Extent3D
}

type ImageBlit struct {
	Aspect     ImageAspect
	LayerCount uint32
	SrcMip     uint32
	DstMip     uint32
	SrcOffsets [2]Offset3D
	DstOffsets [2]Offset3D
}

type ImageCopy struct {
	Aspect     ImageAspect
	LayerCount uint32
	Extent     Extent3D
}

type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     PipelineStage
}

type SubmitInfo struct {
	Commands []CommandBuffer
	Wait     []SemaphoreWait
	Signal   []Semaphore
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorWrite updates one binding of a descriptor set with either a buffer range or an
// image view and sampler pair, depending on Type.
type DescriptorWrite struct {
	Binding   uint32
	Type      DescriptorType
	Buffer    Buffer
	Offset    uint64
	Range     uint64
	ImageView ImageView
	Sampler   Sampler
	Layout    ImageLayout
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolDesc struct {
	Sizes   []DescriptorPoolSize
	MaxSets uint32
	Flags   DescriptorPoolFlags
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
	Rate    VertexInputRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type ShaderStageDesc struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

type GraphicsPipelineDesc struct {
	Layout             PipelineLayout
	RenderPass         RenderPass
	Subpass            uint32
	Stages             []ShaderStageDesc
	Bindings           []VertexBinding
	Attributes         []VertexAttribute
	Topology           Topology
	PatchControlPoints uint32
	CullMode           CullMode
	FrontFace          FrontFace
	Samples            SampleCount
	DepthTest          bool
	DepthWrite         bool
	DepthCompare       CompareOp
	DepthBias          bool
	ColorAttachments   uint32
	Blend              bool
	Label              string
}

type ComputePipelineDesc struct {
	Layout PipelineLayout
	Stage  ShaderStageDesc
	Label  string
}

type SwapchainDesc struct {
	Extent      Extent2D
	PresentMode PresentMode
	Usage       ImageUsage
}

type SwapchainInfo struct {
	Images []Image
	Format Format
	Extent Extent2D
}
