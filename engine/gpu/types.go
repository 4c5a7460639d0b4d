package gpu

// Format mirrors VkFormat for the formats the engine uses.
type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32Uint            Format = 98
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Uint   Format = 107
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
)

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint
}

// ImageLayout mirrors VkImageLayout.
type ImageLayout uint32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "UNDEFINED"
	case ImageLayoutGeneral:
		return "GENERAL"
	case ImageLayoutColorAttachmentOptimal:
		return "COLOR_ATTACHMENT_OPTIMAL"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "DEPTH_STENCIL_ATTACHMENT_OPTIMAL"
	case ImageLayoutDepthStencilReadOnlyOptimal:
		return "DEPTH_STENCIL_READ_ONLY_OPTIMAL"
	case ImageLayoutShaderReadOnlyOptimal:
		return "SHADER_READ_ONLY_OPTIMAL"
	case ImageLayoutTransferSrcOptimal:
		return "TRANSFER_SRC_OPTIMAL"
	case ImageLayoutTransferDstOptimal:
		return "TRANSFER_DST_OPTIMAL"
	case ImageLayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return "UNKNOWN"
}

// Access mirrors VkAccessFlags.
type Access uint32

const (
	AccessIndirectCommandRead         Access = 0x00000001
	AccessIndexRead                   Access = 0x00000002
	AccessVertexAttributeRead         Access = 0x00000004
	AccessUniformRead                 Access = 0x00000008
	AccessShaderRead                  Access = 0x00000020
	AccessShaderWrite                 Access = 0x00000040
	AccessColorAttachmentRead         Access = 0x00000080
	AccessColorAttachmentWrite        Access = 0x00000100
	AccessDepthStencilAttachmentRead  Access = 0x00000200
	AccessDepthStencilAttachmentWrite Access = 0x00000400
	AccessTransferRead                Access = 0x00000800
	AccessTransferWrite               Access = 0x00001000
	AccessHostWrite                   Access = 0x00004000
	AccessMemoryRead                  Access = 0x00008000
	AccessMemoryWrite                 Access = 0x00010000
)

// PipelineStage mirrors VkPipelineStageFlags.
type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageDrawIndirect          PipelineStage = 0x00000002
	StageVertexInput           PipelineStage = 0x00000004
	StageVertexShader          PipelineStage = 0x00000008
	StageFragmentShader        PipelineStage = 0x00000080
	StageEarlyFragmentTests    PipelineStage = 0x00000100
	StageLateFragmentTests     PipelineStage = 0x00000200
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageComputeShader         PipelineStage = 0x00000800
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageAllCommands           PipelineStage = 0x00010000
)

// BufferUsage mirrors VkBufferUsageFlags.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x00000001
	BufferUsageTransferDst BufferUsage = 0x00000002
	BufferUsageUniform     BufferUsage = 0x00000010
	BufferUsageStorage     BufferUsage = 0x00000020
	BufferUsageIndex       BufferUsage = 0x00000040
	BufferUsageVertex      BufferUsage = 0x00000080
	BufferUsageIndirect    BufferUsage = 0x00000100
)

// ImageUsage mirrors VkImageUsageFlags.
type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x00000001
	ImageUsageTransferDst            ImageUsage = 0x00000002
	ImageUsageSampled                ImageUsage = 0x00000004
	ImageUsageStorage                ImageUsage = 0x00000008
	ImageUsageColorAttachment        ImageUsage = 0x00000010
	ImageUsageDepthStencilAttachment ImageUsage = 0x00000020
)

// MemoryProperty mirrors VkMemoryPropertyFlags.
type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x00000001
	MemoryHostVisible  MemoryProperty = 0x00000002
	MemoryHostCoherent MemoryProperty = 0x00000004
	MemoryHostCached   MemoryProperty = 0x00000008
)

// ImageAspect mirrors VkImageAspectFlags.
type ImageAspect uint32

const (
	AspectColor   ImageAspect = 0x00000001
	AspectDepth   ImageAspect = 0x00000002
	AspectStencil ImageAspect = 0x00000004
)

// SampleCount mirrors VkSampleCountFlagBits.
type SampleCount uint32

const (
	SampleCount1 SampleCount = 1
	SampleCount2 SampleCount = 2
	SampleCount4 SampleCount = 4
	SampleCount8 SampleCount = 8
)

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

// QueueFamilyIgnored marks a barrier that does not transfer queue family ownership.
const QueueFamilyIgnored uint32 = ^uint32(0)

// SubpassExternal refers to commands outside the render pass in a subpass dependency.
const SubpassExternal uint32 = ^uint32(0)

// WholeSize covers the remainder of a buffer from the given offset.
const WholeSize uint64 = ^uint64(0)

// DescriptorType mirrors VkDescriptorType.
type DescriptorType uint32

const (
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorStorageBuffer        DescriptorType = 7
	DescriptorUniformBufferDynamic DescriptorType = 8
)

// ShaderStage mirrors VkShaderStageFlags.
type ShaderStage uint32

const (
	ShaderStageVertex                 ShaderStage = 0x00000001
	ShaderStageTessellationControl    ShaderStage = 0x00000002
	ShaderStageTessellationEvaluation ShaderStage = 0x00000004
	ShaderStageFragment               ShaderStage = 0x00000010
	ShaderStageCompute                ShaderStage = 0x00000020
	ShaderStageGraphics               ShaderStage = 0x0000001F
)

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type AddressMode uint32

const (
	AddressRepeat        AddressMode = 0
	AddressClampToEdge   AddressMode = 2
	AddressClampToBorder AddressMode = 3
)

type CompareOp uint32

const (
	CompareNever       CompareOp = 0
	CompareLess        CompareOp = 1
	CompareLessOrEqual CompareOp = 3
	CompareGreater     CompareOp = 4
	CompareAlways      CompareOp = 7
)

type IndexType uint32

const (
	IndexUint16 IndexType = 0
	IndexUint32 IndexType = 1
)

type BindPoint uint32

const (
	BindPointGraphics BindPoint = 0
	BindPointCompute  BindPoint = 1
)

type CullMode uint32

const (
	CullNone  CullMode = 0
	CullFront CullMode = 1
	CullBack  CullMode = 2
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type Topology uint32

const (
	TopologyPointList     Topology = 0
	TopologyTriangleList  Topology = 3
	TopologyTriangleStrip Topology = 4
	TopologyPatchList     Topology = 10
)

type VertexInputRate uint32

const (
	InputRateVertex   VertexInputRate = 0
	InputRateInstance VertexInputRate = 1
)

// CommandPoolFlags mirrors VkCommandPoolCreateFlags.
type CommandPoolFlags uint32

const (
	CommandPoolTransient          CommandPoolFlags = 0x00000001
	CommandPoolResetCommandBuffer CommandPoolFlags = 0x00000002
)

// DescriptorPoolFlags mirrors VkDescriptorPoolCreateFlags.
type DescriptorPoolFlags uint32

const DescriptorPoolFreeDescriptorSet DescriptorPoolFlags = 0x00000001

// PresentMode mirrors VkPresentModeKHR.
type PresentMode uint32

const (
	PresentModeImmediate PresentMode = 0
	PresentModeMailbox   PresentMode = 1
	PresentModeFifo      PresentMode = 2
)

// QueueKind selects one of the three logical queues a Device exposes. Kinds may alias the
// same hardware queue.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueuePresent
)

func (q QueueKind) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueuePresent:
		return "present"
	}
	return "unknown"
}
