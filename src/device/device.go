// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device scores physical devices and picks the one the renderer runs on.
package device

import "github.com/devblok/framer/src/gfx"

// SwapchainExtension is the device extension required for presentation.
const SwapchainExtension = "VK_KHR_swapchain"

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	Index uint32
	Flags gfx.QueueFlags
	Count uint32

	// Present reports whether the family can present to the target surface.
	Present bool
}

// Candidate describes available physical properties of a rendering device
// as seen against one presentation surface.
type Candidate struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Type          gfx.DeviceType
	Memory        uint64
	Extensions    []string
	Layers        []string

	QueueFamilies  []QueueFamily
	Capabilities   gfx.SurfaceCapabilities
	SurfaceFormats []gfx.SurfaceFormat
	PresentModes   []gfx.PresentMode

	// Handle is the backend's own device handle.
	Handle interface{} `json:"-"`
}

// HasExtension reports whether the candidate exposes the named extension.
func (c Candidate) HasExtension(name string) bool {
	for _, ext := range c.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// PhysicalDeviceInfo is the selected device with everything the
// renderer needs from it. It does not change after selection.
type PhysicalDeviceInfo struct {
	Name   string
	Type   gfx.DeviceType
	Score  int
	Handle interface{} `json:"-"`

	Graphics uint32
	Transfer uint32
	Present  uint32

	Capabilities  gfx.SurfaceCapabilities
	SurfaceFormat gfx.SurfaceFormat
	PresentMode   gfx.PresentMode
}

// Families returns the distinct queue families in use, graphics first.
func (i PhysicalDeviceInfo) Families() []uint32 {
	families := []uint32{i.Graphics}
	for _, f := range []uint32{i.Transfer, i.Present} {
		unique := true
		for _, known := range families {
			if known == f {
				unique = false
				break
			}
		}
		if unique {
			families = append(families, f)
		}
	}
	return families
}

// SeparateTransfer reports whether uploads run on their own queue family.
func (i PhysicalDeviceInfo) SeparateTransfer() bool {
	return i.Transfer != i.Graphics
}
