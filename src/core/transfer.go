// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	"github.com/devblok/framer/src/model"
	log "github.com/sirupsen/logrus"
)

// StagingPolicy decides how many staging and device-local buffer pairs
// the transfer stage keeps.
type StagingPolicy string

// Staging policies
const (
	// PerFlight gives every flight its own pair, so uploads of
	// different flights overlap.
	PerFlight StagingPolicy = "per-flight"

	// Shared keeps a single pair. An upload first waits for the frame
	// that used the pair last, which serializes transfers.
	Shared StagingPolicy = "shared"
)

// Capacity is the fixed number of vertices and indices a frame can hold.
type Capacity struct {
	MaxVertices int
	MaxIndices  int
}

// VertexBytes is the size of the vertex region.
func (c Capacity) VertexBytes() int {
	return c.MaxVertices * model.VertexSize
}

// IndexBytes is the size of the index region.
func (c Capacity) IndexBytes() int {
	return c.MaxIndices * model.IndexSize
}

// IndexOffset is where indices start in a staging buffer.
func (c Capacity) IndexOffset() int {
	return c.VertexBytes()
}

// Check returns ErrCapacityExceeded when the counts do not fit.
func (c Capacity) Check(vertices, indices int) error {
	if vertices > c.MaxVertices || indices > c.MaxIndices {
		return errors.Wrapf(ErrCapacityExceeded, "%d vertices and %d indices, capacity is %d and %d",
			vertices, indices, c.MaxVertices, c.MaxIndices)
	}
	return nil
}

type transferSet struct {
	staging  *MappedBuffer
	vertices *Buffer
	indices  *Buffer
	copy     gfx.CommandBuffer

	// last is the flight whose frame used the set most recently.
	last *Flight
}

// TransferStage moves vertices and indices from host-visible staging
// buffers into device-local buffers on the transfer queue.
type TransferStage struct {
	alloc    *ResourceAllocator
	queue    gfx.Queue
	pool     gfx.CommandPool
	capacity Capacity
	policy   StagingPolicy
	timeout  time.Duration
	sets     []*transferSet
	log      *log.Entry
}

// NewTransferStage creates the buffers for the policy and records the
// copy commands once, sized to the full capacity.
func NewTransferStage(alloc *ResourceAllocator, dev gfx.Device, info device.PhysicalDeviceInfo, capacity Capacity, policy StagingPolicy, flights int, timeout time.Duration) (_ *TransferStage, err error) {
	if capacity.MaxVertices < 1 || capacity.MaxIndices < 1 {
		return nil, errors.Newf("core.NewTransferStage(): capacity %+v", capacity)
	}

	sets := flights
	switch policy {
	case PerFlight:
	case Shared:
		sets = 1
	default:
		return nil, errors.Newf("core.NewTransferStage(): unknown staging policy %q", policy)
	}

	t := &TransferStage{
		alloc:    alloc,
		queue:    dev.Queue(info.Transfer),
		capacity: capacity,
		policy:   policy,
		timeout:  timeout,
		log:      logging.For("transfer"),
	}
	defer func() {
		if err != nil {
			t.Release()
		}
	}()

	shared := []uint32{info.Transfer}
	if info.SeparateTransfer() {
		shared = append(shared, info.Graphics)
	}

	for idx := 0; idx < sets; idx++ {
		set := &transferSet{}
		t.sets = append(t.sets, set)

		if set.staging, err = alloc.CreateMappedBuffer(capacity.VertexBytes()+capacity.IndexBytes(), gfx.UsageTransferSrc, info.Transfer); err != nil {
			return nil, err
		}
		if set.vertices, err = alloc.CreateBuffer(capacity.VertexBytes(), gfx.UsageTransferDst|gfx.UsageVertex, gfx.DeviceLocal, shared...); err != nil {
			return nil, err
		}
		if set.indices, err = alloc.CreateBuffer(capacity.IndexBytes(), gfx.UsageTransferDst|gfx.UsageIndex, gfx.DeviceLocal, shared...); err != nil {
			return nil, err
		}
	}

	if t.pool, err = dev.NewCommandPool(info.Transfer, false); err != nil {
		return nil, errors.Wrap(err, "core.NewTransferStage(): command pool")
	}
	cmds, err := t.pool.Allocate(len(t.sets))
	if err != nil {
		return nil, errors.Wrap(err, "core.NewTransferStage(): command buffers")
	}
	for idx, set := range t.sets {
		if err = t.record(set, cmds[idx]); err != nil {
			return nil, err
		}
	}

	t.log.WithFields(log.Fields{
		"policy":   policy,
		"sets":     len(t.sets),
		"vertices": capacity.MaxVertices,
		"indices":  capacity.MaxIndices,
	}).Info("transfer stage created")
	return t, nil
}

func (t *TransferStage) record(set *transferSet, cmd gfx.CommandBuffer) error {
	if err := cmd.Begin(); err != nil {
		return errors.Wrap(err, "core.NewTransferStage(): begin")
	}
	cmd.CopyBuffer(set.staging.Handle(), set.vertices.Handle(), []gfx.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      t.capacity.VertexBytes(),
	}})
	cmd.CopyBuffer(set.staging.Handle(), set.indices.Handle(), []gfx.BufferCopy{{
		SrcOffset: t.capacity.IndexOffset(),
		DstOffset: 0,
		Size:      t.capacity.IndexBytes(),
	}})
	if err := cmd.End(); err != nil {
		return errors.Wrap(err, "core.NewTransferStage(): end")
	}
	set.copy = cmd
	return nil
}

// Capacity returns the fixed capacity.
func (t *TransferStage) Capacity() Capacity {
	return t.capacity
}

// Policy returns the staging policy.
func (t *TransferStage) Policy() StagingPolicy {
	return t.policy
}

func (t *TransferStage) set(f *Flight) *transferSet {
	if t.policy == Shared {
		return t.sets[0]
	}
	return t.sets[f.Index]
}

// VertexBuffer returns the device-local vertex buffer the flight draws from.
func (t *TransferStage) VertexBuffer(f *Flight) *Buffer {
	return t.set(f).vertices
}

// IndexBuffer returns the device-local index buffer the flight draws from.
func (t *TransferStage) IndexBuffer(f *Flight) *Buffer {
	return t.set(f).indices
}

// Upload writes vertices and then indices into the flight's staging
// buffer and submits the copy, signaling the flight's TransferDone.
// Bytes past the written data keep whatever they held before.
func (t *TransferStage) Upload(f *Flight, vertices []model.Vertex, indices []uint32) error {
	if err := t.capacity.Check(len(vertices), len(indices)); err != nil {
		return errors.Wrapf(err, "core.Upload(): flight %d", f.Index)
	}

	set := t.set(f)
	if t.policy == Shared && set.last != nil && set.last != f {
		// The fence of the previous user is left signaled for its own wait.
		if err := set.last.Presented.Wait(t.timeout); err != nil {
			return errors.Wrapf(err, "core.Upload(): flight %d waiting on flight %d", f.Index, set.last.Index)
		}
	}

	if err := set.staging.Write(0, model.VertexBytes(vertices)); err != nil {
		return errors.Wrapf(err, "core.Upload(): flight %d vertices", f.Index)
	}
	if err := set.staging.Write(t.capacity.IndexOffset(), model.IndexBytes(indices)); err != nil {
		return errors.Wrapf(err, "core.Upload(): flight %d indices", f.Index)
	}

	if err := t.queue.Submit(gfx.SubmitInfo{
		Commands: []gfx.CommandBuffer{set.copy},
		Signal:   []gfx.Semaphore{f.TransferDone},
	}, nil); err != nil {
		return errors.Wrapf(err, "core.Upload(): flight %d submit", f.Index)
	}
	set.last = f

	t.log.WithFields(log.Fields{
		"flight":   f.Index,
		"vertices": len(vertices),
		"indices":  len(indices),
	}).Debug("upload submitted")
	return nil
}

// ReleaseCommandPool releases the recorded copy commands.
// The device must be idle.
func (t *TransferStage) ReleaseCommandPool() {
	if t.pool != nil {
		t.pool.Release()
		t.pool = nil
	}
	for _, set := range t.sets {
		set.copy = nil
	}
}

// Release releases the command pool and destroys every buffer.
// The device must be idle.
func (t *TransferStage) Release() {
	t.ReleaseCommandPool()
	for idx := len(t.sets) - 1; idx >= 0; idx-- {
		set := t.sets[idx]
		for _, b := range []*Buffer{set.indices, set.vertices} {
			if b != nil {
				t.alloc.Destroy(b)
			}
		}
		if set.staging != nil {
			t.alloc.Destroy(set.staging.Buffer)
		}
	}
	t.sets = nil
}
