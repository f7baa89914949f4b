// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

// Memory defines a usable memory region.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Release frees memory.
func (m *Memory) Release() {
	vk.FreeMemory(m.device, m.memory, nil)
}

// NewMemoryAllocator creates a new memory allocator. Allocates for the logical device,
// reads memory properties of the physical device to influence allocation.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	return &MemoryAllocator{
		device:        device,
		memProperties: memProperties,
	}
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

// Malloc returns a usable memory chunk ready for use.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	memTypeIdx, err := ma.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return Memory{}, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := check("vk.AllocateMemory()", vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, err
	}
	return Memory{
		device: ma.device,
		memory: memory,
	}, nil
}

func (ma *MemoryAllocator) findMemoryType(filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < ma.memProperties.MemoryTypeCount; idx++ {
		ma.memProperties.MemoryTypes[idx].Deref()
		if filter&(1<<idx) != 0 && (ma.memProperties.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, nil
		}
	}
	return 0, errors.Mark(errors.New("vkr.Malloc(): suitable memory type not found"), gfx.ErrOutOfDeviceMemory)
}

func memoryProperties(p gfx.MemoryPolicy) vk.MemoryPropertyFlagBits {
	if p == gfx.HostVisibleCoherent {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

// NewBuffer implements interface. Buffers used by more than one queue
// family are created for concurrent sharing.
func (d *Device) NewBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	if info.Size <= 0 {
		return nil, errors.Newf("vkr.NewBuffer(): invalid size %d", info.Size)
	}
	families := distinct(info.Families)

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if len(families) > 1 {
		createInfo.SharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
	}
	var buffer vk.Buffer
	if err := check("vk.CreateBuffer()", vk.CreateBuffer(d.device, &createInfo, nil, &buffer)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()

	memory, err := d.memory.Malloc(req, memoryProperties(info.Memory))
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, errors.Wrapf(err, "vkr.NewBuffer(%d)", info.Size)
	}
	if err := check("vk.BindBufferMemory()", vk.BindBufferMemory(d.device, buffer, memory.Get(), 0)); err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		memory.Release()
		return nil, err
	}

	return &Buffer{
		device: d.device,
		buffer: buffer,
		memory: memory,
		info:   info,
	}, nil
}

func distinct(families []uint32) []uint32 {
	var out []uint32
	for _, f := range families {
		known := false
		for _, o := range out {
			known = known || o == f
		}
		if !known {
			out = append(out, f)
		}
	}
	return out
}

// Buffer implements a generic vulkan buffer.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory Memory
	info   gfx.BufferInfo

	mapping *Mapping
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Size implements interface
func (b *Buffer) Size() int {
	return b.info.Size
}

// Map implements interface
func (b *Buffer) Map() (gfx.Mapping, error) {
	if b.info.Memory != gfx.HostVisibleCoherent {
		return nil, errors.Wrap(gfx.ErrNotMappable, "vkr.Map()")
	}
	if b.mapping != nil {
		return nil, errors.Wrap(gfx.ErrAlreadyMapped, "vkr.Map()")
	}
	var ptr unsafe.Pointer
	if err := check("vk.MapMemory()", vk.MapMemory(b.device, b.memory.Get(), 0, vk.DeviceSize(b.info.Size), 0, &ptr)); err != nil {
		return nil, err
	}
	b.mapping = &Mapping{ptr: ptr, len: b.info.Size}
	return b.mapping, nil
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	if b.mapping != nil {
		vk.UnmapMemory(b.device, b.memory.Get())
		b.mapping = nil
	}
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// Mapping is host memory mapped onto a coherent buffer.
type Mapping struct {
	ptr unsafe.Pointer
	len int
}

// Write implements interface
func (m *Mapping) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > m.len {
		return errors.Wrapf(gfx.ErrOutOfRange, "vkr.Write(): [%d:%d] of %d", offset, offset+len(p), m.len)
	}
	if len(p) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Pointer(uintptr(m.ptr)+uintptr(offset)), p)
	return nil
}

// Len implements interface
func (m *Mapping) Len() int {
	return m.len
}
