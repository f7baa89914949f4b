// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

var _ gfx.Device = (*Device)(nil)

// NewDevice creates the logical device of the selected physical device,
// with one queue of every family the selection uses.
func NewDevice(info device.PhysicalDeviceInfo, extensions []string) (*Device, error) {
	pd, ok := info.Handle.(vk.PhysicalDevice)
	if !ok {
		return nil, errors.Newf("vkr.NewDevice(): %T is not a vulkan physical device", info.Handle)
	}

	var queueInfos []vk.DeviceQueueCreateInfo
	for _, family := range info.Families() {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		})
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var logical vk.Device
	if err := check("vk.CreateDevice()", vk.CreateDevice(pd, &dci, nil, &logical)); err != nil {
		return nil, errors.Mark(err, gfx.ErrDeviceSelectionFailed)
	}

	d := &Device{
		physical: pd,
		device:   logical,
		memory:   NewMemoryAllocator(logical, pd),
		queues:   make(map[uint32]*Queue),
		log:      logging.For("vkr"),
	}
	for _, family := range info.Families() {
		var queue vk.Queue
		vk.GetDeviceQueue(logical, family, 0, &queue)
		d.queues[family] = &Queue{device: d, queue: queue, family: family}
	}
	d.log.WithFields(log.Fields{
		"device":   info.Name,
		"families": info.Families(),
	}).Info("logical device created")
	return d, nil
}

// Device implements gfx.Device on a Vulkan logical device.
type Device struct {
	physical vk.PhysicalDevice
	device   vk.Device
	memory   *MemoryAllocator
	log      *log.Entry

	mu     sync.Mutex
	queues map[uint32]*Queue
}

// Queue implements interface
func (d *Device) Queue(family uint32) gfx.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[family]
	if !ok {
		return nil
	}
	return q
}

// NewSemaphore implements interface
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check("vk.CreateSemaphore()", vk.CreateSemaphore(d.device, &sci, nil, &semaphore)); err != nil {
		return nil, err
	}
	return &Semaphore{device: d.device, semaphore: semaphore}, nil
}

// NewFence implements interface
func (d *Device) NewFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("vk.CreateFence()", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return &Fence{device: d.device, fence: fence}, nil
}

// NewCommandPool implements interface
func (d *Device) NewCommandPool(family uint32, resettable bool) (gfx.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
	}
	if resettable {
		cpci.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}
	var pool vk.CommandPool
	if err := check("vk.CreateCommandPool()", vk.CreateCommandPool(d.device, &cpci, nil, &pool)); err != nil {
		return nil, err
	}
	return &CommandPool{device: d.device, pool: pool}, nil
}

// NewImageView implements interface
func (d *Device) NewImageView(image gfx.Image, format gfx.Format) (gfx.ImageView, error) {
	img, ok := image.(vk.Image)
	if !ok {
		return nil, errors.Newf("vkr.NewImageView(): %T is not a vulkan image", image)
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := check("vk.CreateImageView()", vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return nil, err
	}
	return &ImageView{device: d.device, view: view}, nil
}

// NewFramebuffer implements interface
func (d *Device) NewFramebuffer(pass gfx.RenderPass, view gfx.ImageView, extent gfx.Extent2D) (gfx.Framebuffer, error) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		return nil, errors.Newf("vkr.NewFramebuffer(): %T is not a vulkan render pass", pass)
	}
	v, ok := view.(*ImageView)
	if !ok {
		return nil, errors.Newf("vkr.NewFramebuffer(): %T is not a vulkan image view", view)
	}
	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.pass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{v.view},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := check("vk.CreateFramebuffer()", vk.CreateFramebuffer(d.device, &fci, nil, &framebuffer)); err != nil {
		return nil, err
	}
	return &Framebuffer{device: d.device, framebuffer: framebuffer}, nil
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	return check("vk.DeviceWaitIdle()", vk.DeviceWaitIdle(d.device))
}

// Release destroys the logical device.
func (d *Device) Release() {
	vk.DestroyDevice(d.device, nil)
	d.log.Info("logical device destroyed")
}

// ImageView is a color view of a swapchain image.
type ImageView struct {
	device vk.Device
	view   vk.ImageView
}

// Release implements interface
func (v *ImageView) Release() {
	vk.DestroyImageView(v.device, v.view, nil)
}

// Framebuffer has a single color attachment.
type Framebuffer struct {
	device      vk.Device
	framebuffer vk.Framebuffer
}

// Release implements interface
func (f *Framebuffer) Release() {
	vk.DestroyFramebuffer(f.device, f.framebuffer, nil)
}
