// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// NewBuffer implements interface
func (d *Device) NewBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	if info.Size <= 0 {
		return nil, errors.Newf("soft.NewBuffer(): invalid size %d", info.Size)
	}
	if err := d.fault(OpNewBuffer); err != nil {
		return nil, err
	}
	if err := d.reserve(info.Memory, info.Size); err != nil {
		return nil, err
	}
	return &Buffer{
		device: d,
		name:   d.track("buffer"),
		info:   info,
		data:   make([]byte, info.Size),
	}, nil
}

// Buffer is a buffer backed by a host byte slice, whatever its memory policy.
type Buffer struct {
	device *Device
	name   string
	info   gfx.BufferInfo

	mu       sync.Mutex
	data     []byte
	mapped   bool
	released bool
}

// Size implements interface
func (b *Buffer) Size() int {
	return b.info.Size
}

// Info returns what the buffer was created with.
func (b *Buffer) Info() gfx.BufferInfo {
	return b.info
}

// Name returns the name the buffer appears under in the event log.
func (b *Buffer) Name() string {
	return b.name
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Map implements interface
func (b *Buffer) Map() (gfx.Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info.Memory != gfx.HostVisibleCoherent {
		return nil, errors.Wrapf(gfx.ErrNotMappable, "soft.Map(): %s", b.name)
	}
	if b.mapped {
		return nil, errors.Wrapf(gfx.ErrAlreadyMapped, "soft.Map(): %s", b.name)
	}
	b.mapped = true
	return &Mapping{buffer: b}, nil
}

// Release implements interface
func (b *Buffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.mapped = false
	b.mu.Unlock()

	b.device.unreserve(b.info.Memory, b.info.Size)
	b.device.untrack(b.name)
}

// copyTo copies regions of b into dst after checking all of them.
func (b *Buffer) copyTo(dst *Buffer, regions []gfx.BufferCopy) error {
	for _, r := range regions {
		if r.SrcOffset < 0 || r.Size < 0 || r.SrcOffset+r.Size > b.info.Size {
			return errors.Wrapf(gfx.ErrOutOfRange, "soft.CopyBuffer(): source %s [%d:%d]", b.name, r.SrcOffset, r.SrcOffset+r.Size)
		}
		if r.DstOffset < 0 || r.DstOffset+r.Size > dst.info.Size {
			return errors.Wrapf(gfx.ErrOutOfRange, "soft.CopyBuffer(): destination %s [%d:%d]", dst.name, r.DstOffset, r.DstOffset+r.Size)
		}
	}

	b.mu.Lock()
	src := append([]byte(nil), b.data...)
	b.mu.Unlock()

	dst.mu.Lock()
	for _, r := range regions {
		copy(dst.data[r.DstOffset:r.DstOffset+r.Size], src[r.SrcOffset:r.SrcOffset+r.Size])
	}
	dst.mu.Unlock()
	return nil
}

// Mapping is a live host mapping of a soft buffer.
type Mapping struct {
	buffer *Buffer
}

// Write implements interface
func (m *Mapping) Write(offset int, p []byte) error {
	b := m.buffer
	b.mu.Lock()
	if !b.mapped {
		b.mu.Unlock()
		return errors.Newf("soft.Write(): %s is not mapped", b.name)
	}
	if offset < 0 || offset+len(p) > len(b.data) {
		b.mu.Unlock()
		return errors.Wrapf(gfx.ErrOutOfRange, "soft.Write(): %s [%d:%d] of %d", b.name, offset, offset+len(p), len(b.data))
	}
	copy(b.data[offset:], p)
	b.mu.Unlock()

	b.device.events.add(EventWrite, b.name, uint32(offset), len(p))
	return nil
}

// Len implements interface
func (m *Mapping) Len() int {
	return m.buffer.info.Size
}
