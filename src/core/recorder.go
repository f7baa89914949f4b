// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// NewCommandRecorder allocates one resettable draw command buffer per flight
// on the graphics family.
func NewCommandRecorder(dev gfx.Device, family uint32, flights int, swapchain *SwapchainManager, pipeline gfx.Pipeline, transfer *TransferStage, clear gfx.Color) (*CommandRecorder, error) {
	pool, err := dev.NewCommandPool(family, true)
	if err != nil {
		return nil, errors.Wrap(err, "core.NewCommandRecorder(): command pool")
	}
	cmds, err := pool.Allocate(flights)
	if err != nil {
		pool.Release()
		return nil, errors.Wrap(err, "core.NewCommandRecorder(): command buffers")
	}
	return &CommandRecorder{
		pool:      pool,
		cmds:      cmds,
		swapchain: swapchain,
		pipeline:  pipeline,
		transfer:  transfer,
		clear:     clear,
	}, nil
}

// CommandRecorder rerecords a flight's draw commands every frame.
type CommandRecorder struct {
	pool      gfx.CommandPool
	cmds      []gfx.CommandBuffer
	swapchain *SwapchainManager
	pipeline  gfx.Pipeline
	transfer  *TransferStage
	clear     gfx.Color
}

// RecordDraw records the flight's draw into the framebuffer of the
// acquired image. The whole index capacity is drawn.
func (r *CommandRecorder) RecordDraw(f *Flight, image uint32) (gfx.CommandBuffer, error) {
	fb, err := r.swapchain.Framebuffer(image)
	if err != nil {
		return nil, err
	}

	cmd := r.cmds[f.Index]
	if err := cmd.Reset(); err != nil {
		return nil, errors.Wrapf(err, "core.RecordDraw(): flight %d", f.Index)
	}
	if err := cmd.Begin(); err != nil {
		return nil, errors.Wrapf(err, "core.RecordDraw(): flight %d", f.Index)
	}

	cmd.BeginRenderPass(r.pipeline.RenderPass(), fb, r.swapchain.Extent(), r.clear)
	cmd.BindPipeline(r.pipeline)
	cmd.BindVertexBuffer(r.transfer.VertexBuffer(f).Handle(), 0)
	cmd.BindIndexBuffer(r.transfer.IndexBuffer(f).Handle(), 0)
	cmd.BindDescriptorSet(r.pipeline)
	cmd.DrawIndexed(r.transfer.Capacity().MaxIndices)
	cmd.EndRenderPass()

	if err := cmd.End(); err != nil {
		return nil, errors.Wrapf(err, "core.RecordDraw(): flight %d", f.Index)
	}
	return cmd, nil
}

// Release releases the command pool. The device must be idle.
func (r *CommandRecorder) Release() {
	if r.pool != nil {
		r.pool.Release()
		r.pool = nil
		r.cmds = nil
	}
}
