// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the gfx device features on Vulkan.
package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// ValidationLayer is enabled together with the debug report extension
// when validation is requested.
const ValidationLayer = "VK_LAYER_LUNARG_standard_validation"

// DefaultApplicationInfo describes the application to the driver.
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Framer"),
	PEngineName:        safeString("Framer"),
}

// InstanceConfiguration selects what the instance is created with.
type InstanceConfiguration struct {
	Extensions []string
	Layers     []string
	Validation bool
}

// NewInstance loads Vulkan through procAddr, or the system loader when it
// is nil, and creates an instance.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfiguration) (*Instance, error) {
	if cfg.Validation {
		cfg.Layers = append(cfg.Layers, ValidationLayer)
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        DefaultApplicationInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     safeStrings(cfg.Layers),
	}
	var instance vk.Instance
	if err := check("vk.CreateInstance()", vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	devices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	i := &Instance{
		instance: instance,
		devices:  devices,
		config:   cfg,
		log:      logging.For("vkr"),
	}
	i.log.WithFields(log.Fields{
		"devices":    len(devices),
		"extensions": cfg.Extensions,
		"layers":     cfg.Layers,
	}).Info("vulkan instance created")
	return i, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var count uint32
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vk.EnumeratePhysicalDevices()", vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
		return nil, err
	}
	return devices, nil
}

// Instance is a Vulkan instance together with the surface it presents to.
type Instance struct {
	instance vk.Instance
	surface  vk.Surface
	devices  []vk.PhysicalDevice
	config   InstanceConfiguration
	log      *log.Entry
}

// Handle returns the vk.Instance, for window systems creating surfaces.
func (i *Instance) Handle() vk.Instance {
	return i.instance
}

// SetSurface takes ownership of a surface created by the window system.
func (i *Instance) SetSurface(surface uintptr) {
	i.surface = vk.SurfaceFromPointer(surface)
}

// Surface returns the presentation surface.
func (i *Instance) Surface() gfx.Surface {
	return i.surface
}

// Candidates describes every physical device as seen against the surface.
func (i *Instance) Candidates() ([]device.Candidate, error) {
	if i.surface == vk.NullSurface {
		return nil, errors.New("vkr.Candidates(): no surface set")
	}
	candidates := make([]device.Candidate, 0, len(i.devices))
	for idx, pd := range i.devices {
		c, err := describe(pd, i.surface)
		if err != nil {
			i.log.WithError(err).WithField("device", idx).Warn("skipping device")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func describe(pd vk.PhysicalDevice, surface vk.Surface) (device.Candidate, error) {
	var c device.Candidate

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	c.ID = int(props.DeviceID)
	c.VendorID = int(props.VendorID)
	c.DriverVersion = int(props.DriverVersion)
	c.Name = vk.ToString(props.DeviceName[:])
	c.Type = gfx.DeviceType(props.DeviceType)
	c.Handle = pd

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()
	for idx := uint32(0); idx < memory.MemoryHeapCount; idx++ {
		memory.MemoryHeaps[idx].Deref()
		c.Memory += uint64(memory.MemoryHeaps[idx].Size)
	}

	var extCount uint32
	if err := check("vk.EnumerateDeviceExtensionProperties()", vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, nil)); err != nil {
		return c, err
	}
	extensions := make([]vk.ExtensionProperties, extCount)
	if err := check("vk.EnumerateDeviceExtensionProperties()", vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, extensions)); err != nil {
		return c, err
	}
	for _, ext := range extensions {
		ext.Deref()
		c.Extensions = append(c.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	var layerCount uint32
	if err := check("vk.EnumerateDeviceLayerProperties()", vk.EnumerateDeviceLayerProperties(pd, &layerCount, nil)); err != nil {
		return c, err
	}
	layers := make([]vk.LayerProperties, layerCount)
	if err := check("vk.EnumerateDeviceLayerProperties()", vk.EnumerateDeviceLayerProperties(pd, &layerCount, layers)); err != nil {
		return c, err
	}
	for _, layer := range layers {
		layer.Deref()
		c.Layers = append(c.Layers, vk.ToString(layer.LayerName[:]))
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)
	for idx := uint32(0); idx < familyCount; idx++ {
		families[idx].Deref()
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, idx, surface, &present)
		c.QueueFamilies = append(c.QueueFamilies, device.QueueFamily{
			Index:   idx,
			Flags:   gfx.QueueFlags(families[idx].QueueFlags),
			Count:   families[idx].QueueCount,
			Present: present.B(),
		})
	}

	var caps vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities()", vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &caps)); err != nil {
		return c, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	c.Capabilities = gfx.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: gfx.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
	}

	var formatCount uint32
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil)); err != nil {
		return c, err
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if err := check("vk.GetPhysicalDeviceSurfaceFormats()", vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, formats)); err != nil {
		return c, err
	}
	for _, f := range formats {
		f.Deref()
		c.SurfaceFormats = append(c.SurfaceFormats, gfx.SurfaceFormat{
			Format:     gfx.Format(f.Format),
			ColorSpace: gfx.ColorSpace(f.ColorSpace),
		})
	}

	var modeCount uint32
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes()", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil)); err != nil {
		return c, err
	}
	modes := make([]vk.PresentMode, modeCount)
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes()", vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, modes)); err != nil {
		return c, err
	}
	for _, m := range modes {
		c.PresentModes = append(c.PresentModes, gfx.PresentMode(m))
	}
	return c, nil
}

// Release destroys the surface and the instance. Every device created
// from the instance must be released first.
func (i *Instance) Release() {
	if i.surface != vk.NullSurface {
		vk.DestroySurface(i.instance, i.surface, nil)
		i.surface = vk.NullSurface
	}
	vk.DestroyInstance(i.instance, nil)
	i.devices = nil
}
