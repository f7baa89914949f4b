// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device features that rendering backends must implement.
// The frame pipeline in package core is written only against these interfaces,
// a backend (vkr for Vulkan, soft for the in-process device) provides them.
package gfx

import "time"

// Forever is the timeout value that makes waits block until satisfied.
const Forever time.Duration = -1

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Device is a logical device created from a selected physical device.
// Every object it creates must be released before the device itself.
type Device interface {
	Releasable

	// NewBuffer creates a buffer and commits memory for it.
	NewBuffer(info BufferInfo) (Buffer, error)

	// NewSemaphore creates a GPU-side synchronization primitive.
	NewSemaphore() (Semaphore, error)

	// NewFence creates a GPU to CPU synchronization primitive,
	// optionally already in the signaled state.
	NewFence(signaled bool) (Fence, error)

	// NewCommandPool creates a pool for command buffers that will be
	// submitted to queues of the given family. Buffers from a resettable
	// pool can be individually reset and rerecorded.
	NewCommandPool(family uint32, resettable bool) (CommandPool, error)

	// Queue returns the first queue of the given family.
	Queue(family uint32) Queue

	// NewSwapchain creates the presentable image chain for a surface.
	NewSwapchain(info SwapchainInfo) (Swapchain, error)

	// NewImageView creates a color view of a swapchain image.
	NewImageView(image Image, format Format) (ImageView, error)

	// NewFramebuffer creates a framebuffer of a single color attachment.
	NewFramebuffer(pass RenderPass, view ImageView, extent Extent2D) (Framebuffer, error)

	// NewPipeline creates the render pass, the graphics pipeline and its
	// single descriptor set bound to the uniform buffer in info.
	NewPipeline(info PipelineInfo) (Pipeline, error)

	// WaitIdle blocks until all queues of the device have finished.
	WaitIdle() error
}

// Buffer is a region of device memory.
type Buffer interface {
	Releasable

	// Size returns the size of the buffer in bytes.
	Size() int

	// Map maps the whole buffer into host memory. Only host-visible
	// buffers can be mapped and only once; the mapping lives until Release.
	Map() (Mapping, error)
}

// Mapping is a live host mapping of a buffer. Writing through it is
// the only way to touch mapped memory.
type Mapping interface {

	// Write copies p into the mapped memory at offset.
	Write(offset int, p []byte) error

	// Len returns the length of the mapped region.
	Len() int
}

// Semaphore orders queue operations relative to each other.
// The CPU never waits on it.
type Semaphore interface {
	Releasable
}

// Fence is signaled by the device when a submission retires.
type Fence interface {
	Releasable

	// Wait blocks until the fence is signaled or the timeout passes,
	// in which case an error marked ErrSyncTimeout is returned.
	Wait(timeout time.Duration) error

	// Reset returns the fence to the unsignaled state.
	Reset() error

	// Signaled reports the current state without blocking.
	Signaled() (bool, error)
}

// CommandPool allocates command buffers for one queue family.
type CommandPool interface {
	Releasable

	// Allocate returns count primary command buffers.
	Allocate(count int) ([]CommandBuffer, error)
}

// CommandBuffer records commands for later submission.
type CommandBuffer interface {
	Begin() error
	BeginRenderPass(pass RenderPass, fb Framebuffer, extent Extent2D, clear Color)
	BindPipeline(p Pipeline)
	BindVertexBuffer(b Buffer, offset int)
	BindIndexBuffer(b Buffer, offset int)
	BindDescriptorSet(p Pipeline)
	DrawIndexed(count int)
	EndRenderPass()
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	End() error

	// Reset discards everything recorded so far.
	Reset() error
}

// Queue executes submitted command buffers.
type Queue interface {

	// Submit enqueues work; the fence, when not nil, is signaled
	// once every command buffer of the submission has retired.
	Submit(info SubmitInfo, fence Fence) error

	// Present queues an acquired image for display.
	Present(info PresentInfo) error
}

// Swapchain is the ordered set of presentable images of a surface.
type Swapchain interface {
	Releasable

	Images() []Image
	Format() SurfaceFormat
	Extent() Extent2D

	// AcquireNextImage returns the index of the next presentable image
	// and arranges for signal to be signaled once it can be rendered to.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (index uint32, suboptimal bool, err error)
}

// Image is a presentable image owned by a swapchain.
type Image interface{}

// ImageView is a view of an image usable as an attachment.
type ImageView interface {
	Releasable
}

// Framebuffer binds image views to a render pass.
type Framebuffer interface {
	Releasable
}

// RenderPass describes the attachments of a pass.
type RenderPass interface{}

// Pipeline is a graphics pipeline together with its render pass
// and its single descriptor set.
type Pipeline interface {
	Releasable

	RenderPass() RenderPass
}
