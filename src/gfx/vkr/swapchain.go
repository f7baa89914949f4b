// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

var compositeAlphaFlags = []vk.CompositeAlphaFlagBits{
	vk.CompositeAlphaOpaqueBit,
	vk.CompositeAlphaPreMultipliedBit,
	vk.CompositeAlphaPostMultipliedBit,
	vk.CompositeAlphaInheritBit,
}

// NewSwapchain implements interface
func (d *Device) NewSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	surface, ok := info.Surface.(vk.Surface)
	if !ok {
		return nil, errors.Newf("vkr.NewSwapchain(): %T is not a vulkan surface", info.Surface)
	}

	var caps vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities()",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   info.ImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	if families := distinct(info.Families); len(families) > 1 {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = uint32(len(families))
		scci.PQueueFamilyIndices = families
	}

	var swapchain vk.Swapchain
	if err := check("vk.CreateSwapchain()", vk.CreateSwapchain(d.device, &scci, nil, &swapchain)); err != nil {
		return nil, err
	}

	var count uint32
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(d.device, swapchain, &count, nil)); err != nil {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, err
	}
	images := make([]vk.Image, count)
	if err := check("vk.GetSwapchainImages()", vk.GetSwapchainImages(d.device, swapchain, &count, images)); err != nil {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, err
	}

	d.log.WithField("images", count).Debug("swapchain created")
	return &Swapchain{
		device:    d.device,
		swapchain: swapchain,
		images:    images,
		format:    info.Format,
		extent:    info.Extent,
	}, nil
}

// Swapchain wraps vk.Swapchain. Its images belong to the swapchain
// and are never destroyed on their own.
type Swapchain struct {
	device    vk.Device
	swapchain vk.Swapchain
	images    []vk.Image
	format    gfx.SurfaceFormat
	extent    gfx.Extent2D
}

// Images implements interface
func (s *Swapchain) Images() []gfx.Image {
	out := make([]gfx.Image, len(s.images))
	for idx, img := range s.images {
		out[idx] = img
	}
	return out
}

// Format implements interface
func (s *Swapchain) Format() gfx.SurfaceFormat {
	return s.format
}

// Extent implements interface
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.extent
}

// AcquireNextImage implements interface
func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal gfx.Semaphore) (uint32, bool, error) {
	sem, ok := signal.(*Semaphore)
	if !ok {
		return 0, false, errors.Newf("vkr.AcquireNextImage(): foreign semaphore %T", signal)
	}
	var index uint32
	switch r := vk.AcquireNextImage(s.device, s.swapchain, nanos(timeout), sem.semaphore, vk.NullFence, &index); r {
	case vk.Success:
		return index, false, nil
	case vk.Suboptimal:
		return index, true, nil
	default:
		return 0, false, check("vk.AcquireNextImage()", r)
	}
}

// Release implements interface
func (s *Swapchain) Release() {
	vk.DestroySwapchain(s.device, s.swapchain, nil)
}
