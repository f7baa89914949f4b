// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// The enumerations below share their numeric values with the Vulkan API,
// so a Vulkan backend converts them with a plain cast.

// DeviceType is the kind of a physical device.
type DeviceType int32

// Device types
const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegratedGPU
	DeviceTypeDiscreteGPU
	DeviceTypeVirtualGPU
	DeviceTypeCPU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegratedGPU:
		return "integrated"
	case DeviceTypeDiscreteGPU:
		return "discrete"
	case DeviceTypeVirtualGPU:
		return "virtual"
	case DeviceTypeCPU:
		return "cpu"
	default:
		return "other"
	}
}

// Format is a pixel format.
type Format int32

// Formats the renderer cares about
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8SRGB       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8SRGB       Format = 50
	FormatR32G32SFloat       Format = 103
	FormatR32G32B32SFloat    Format = 106
	FormatR32G32B32A32SFloat Format = 109
)

// ColorSpace is the color space of a surface format.
type ColorSpace int32

// ColorSpaceSRGBNonlinear is the standard nonlinear sRGB color space.
const ColorSpaceSRGBNonlinear ColorSpace = 0

// SurfaceFormat is a format and color space pair supported by a surface.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode is the way presented images are queued for display.
type PresentMode int32

// Present modes
const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFIFO
	PresentModeFIFORelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFIFO:
		return "fifo"
	case PresentModeFIFORelaxed:
		return "fifo-relaxed"
	default:
		return "unknown"
	}
}

// QueueFlags are the capabilities of a queue family.
type QueueFlags uint32

// Queue capabilities
const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
)

// Stage is a pipeline stage a semaphore wait applies to.
type Stage uint32

// Pipeline stages
const (
	StageTopOfPipe             Stage = 0x00000001
	StageVertexInput           Stage = 0x00000004
	StageColorAttachmentOutput Stage = 0x00000400
	StageTransfer              Stage = 0x00001000
)

func (s Stage) String() string {
	switch s {
	case StageTopOfPipe:
		return "top-of-pipe"
	case StageVertexInput:
		return "vertex-input"
	case StageColorAttachmentOutput:
		return "color-attachment-output"
	case StageTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Usage is a set of buffer usage flags.
type Usage uint32

// Buffer usages
const (
	UsageTransferSrc Usage = 0x00000001
	UsageTransferDst Usage = 0x00000002
	UsageUniform     Usage = 0x00000010
	UsageIndex       Usage = 0x00000040
	UsageVertex      Usage = 0x00000080
)

// MemoryPolicy selects the kind of memory a buffer is placed in.
type MemoryPolicy int

// Memory policies
const (
	// DeviceLocal memory is fast for the device and not host accessible.
	DeviceLocal MemoryPolicy = iota

	// HostVisibleCoherent memory can be mapped and written by the host
	// without explicit flushes.
	HostVisibleCoherent
)

func (p MemoryPolicy) String() string {
	if p == HostVisibleCoherent {
		return "host-visible-coherent"
	}
	return "device-local"
}

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width, Height uint32
}

// SurfaceCapabilities describes what a surface supports.
type SurfaceCapabilities struct {
	MinImageCount uint32

	// MaxImageCount of 0 means there is no upper limit.
	MaxImageCount uint32

	CurrentExtent Extent2D
}

// Color is a RGBA clear color.
type Color [4]float32

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size   int
	Usage  Usage
	Memory MemoryPolicy

	// Families lists the queue families that will access the buffer.
	// More than one distinct family makes the buffer concurrently shared.
	Families []uint32
}

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset int
	DstOffset int
	Size      int
}

// SemaphoreWait is a semaphore a submission waits on before Stage.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     Stage
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	Wait     []SemaphoreWait
	Commands []CommandBuffer
	Signal   []Semaphore
}

// PresentInfo describes presentation of one acquired image.
type PresentInfo struct {
	Swapchain Swapchain
	Index     uint32
	Wait      []Semaphore
}

// Surface is an opaque presentation target handed over by the window system.
type Surface interface{}

// SwapchainInfo describes a swapchain to create.
type SwapchainInfo struct {
	Surface     Surface
	ImageCount  uint32
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D

	// Families are the graphics and present queue families,
	// images are shared concurrently when they differ.
	Families []uint32
}

// VertexAttribute is one attribute of the vertex layout.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// PipelineInfo describes the graphics pipeline to create.
type PipelineInfo struct {
	VertexShader   []byte
	FragmentShader []byte

	VertexStride uint32
	Attributes   []VertexAttribute

	Format SurfaceFormat
	Extent Extent2D

	// Uniform is bound to binding 0 of the single descriptor set.
	Uniform     Buffer
	UniformSize int
}
