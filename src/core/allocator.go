// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	log "github.com/sirupsen/logrus"
)

// NewResourceAllocator creates an allocator committing memory on dev.
// The device must outlive the allocator.
func NewResourceAllocator(dev gfx.Device) *ResourceAllocator {
	return &ResourceAllocator{
		device: dev,
		live:   make(map[*Buffer]struct{}),
		log:    logging.For("allocator"),
	}
}

// ResourceAllocator creates and destroys buffers and keeps track of the
// ones still alive. It must outlive every buffer it created.
type ResourceAllocator struct {
	device gfx.Device
	log    *log.Entry

	mu       sync.Mutex
	live     map[*Buffer]struct{}
	released bool
}

// Buffer is a buffer created by a ResourceAllocator.
type Buffer struct {
	inner  gfx.Buffer
	usage  gfx.Usage
	policy gfx.MemoryPolicy

	released bool
}

// Handle returns the backend buffer.
func (b *Buffer) Handle() gfx.Buffer {
	return b.inner
}

// Size returns the size in bytes.
func (b *Buffer) Size() int {
	return b.inner.Size()
}

// Policy returns the memory the buffer lives in.
func (b *Buffer) Policy() gfx.MemoryPolicy {
	return b.policy
}

// MappedBuffer is a host-visible buffer mapped once for its whole life.
type MappedBuffer struct {
	*Buffer

	mapping gfx.Mapping
}

// Write copies p into the buffer at offset.
func (m *MappedBuffer) Write(offset int, p []byte) error {
	if m.released {
		return errors.Wrap(ErrBufferReleased, "core.Write()")
	}
	return m.mapping.Write(offset, p)
}

// CreateBuffer creates a buffer of size bytes. Listing more than one
// distinct queue family makes the buffer shared between them.
func (a *ResourceAllocator) CreateBuffer(size int, usage gfx.Usage, policy gfx.MemoryPolicy, families ...uint32) (*Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, errors.Wrap(ErrReleased, "core.CreateBuffer()")
	}

	inner, err := a.device.NewBuffer(gfx.BufferInfo{
		Size:     size,
		Usage:    usage,
		Memory:   policy,
		Families: families,
	})
	if err != nil {
		return nil, gfx.AllocationFailed(errors.Wrapf(err, "core.CreateBuffer(%d, %s)", size, policy))
	}

	b := &Buffer{inner: inner, usage: usage, policy: policy}
	a.live[b] = struct{}{}
	a.log.WithFields(log.Fields{"size": size, "memory": policy}).Debug("buffer created")
	return b, nil
}

// CreateMappedBuffer creates a host-visible, coherent buffer and maps it.
// The mapping stays valid until the buffer is destroyed.
func (a *ResourceAllocator) CreateMappedBuffer(size int, usage gfx.Usage, families ...uint32) (*MappedBuffer, error) {
	b, err := a.CreateBuffer(size, usage, gfx.HostVisibleCoherent, families...)
	if err != nil {
		return nil, err
	}
	mapping, err := b.inner.Map()
	if err != nil {
		a.Destroy(b)
		return nil, gfx.AllocationFailed(errors.Wrapf(err, "core.CreateMappedBuffer(%d)", size))
	}
	return &MappedBuffer{Buffer: b, mapping: mapping}, nil
}

// Destroy releases the buffer and its memory. Destroying a buffer
// twice is an error.
func (a *ResourceAllocator) Destroy(b *Buffer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b == nil || b.released {
		return errors.Wrap(ErrBufferReleased, "core.Destroy()")
	}
	if _, ok := a.live[b]; !ok {
		return errors.New("core.Destroy(): buffer belongs to another allocator")
	}
	b.inner.Release()
	b.released = true
	delete(a.live, b)
	return nil
}

// Live returns the number of buffers not destroyed yet.
func (a *ResourceAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Release shuts the allocator down. It refuses while buffers are alive,
// leaving them untouched.
func (a *ResourceAllocator) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.live); n > 0 {
		return errors.Wrapf(ErrLiveBuffers, "core.Release(): %d buffers", n)
	}
	a.released = true
	return nil
}
