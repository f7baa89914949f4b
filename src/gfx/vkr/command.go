// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

// CommandPool wraps vk.CommandPool.
type CommandPool struct {
	device vk.Device
	pool   vk.CommandPool
}

// Allocate implements interface
func (p *CommandPool) Allocate(count int) ([]gfx.CommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Newf("vkr.Allocate(): invalid count %d", count)
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	cmds := make([]vk.CommandBuffer, count)
	if err := check("vk.AllocateCommandBuffers()", vk.AllocateCommandBuffers(p.device, &cbai, cmds)); err != nil {
		return nil, err
	}
	out := make([]gfx.CommandBuffer, count)
	for idx, cmd := range cmds {
		out[idx] = &CommandBuffer{cmd: cmd}
	}
	return out, nil
}

// Release destroys the pool together with its command buffers.
func (p *CommandPool) Release() {
	vk.DestroyCommandPool(p.device, p.pool, nil)
}

// CommandBuffer wraps vk.CommandBuffer. Recording calls with foreign
// objects are dropped and reported by End.
type CommandBuffer struct {
	cmd vk.CommandBuffer
	err error
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = errors.Newf("vkr: "+format, args...)
	}
}

// Begin implements interface
func (c *CommandBuffer) Begin() error {
	c.err = nil
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	return check("vk.BeginCommandBuffer()", vk.BeginCommandBuffer(c.cmd, &cbbi))
}

// BeginRenderPass implements interface
func (c *CommandBuffer) BeginRenderPass(pass gfx.RenderPass, fb gfx.Framebuffer, extent gfx.Extent2D, clear gfx.Color) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		c.fail("foreign render pass %T", pass)
		return
	}
	f, ok := fb.(*Framebuffer)
	if !ok {
		c.fail("foreign framebuffer %T", fb)
		return
	}

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(clear[:])

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.pass,
		Framebuffer: f.framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.cmd, &rpbi, vk.SubpassContentsInline)
}

// BindPipeline implements interface
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	pipeline, ok := p.(*Pipeline)
	if !ok {
		c.fail("foreign pipeline %T", p)
		return
	}
	vk.CmdBindPipeline(c.cmd, vk.PipelineBindPointGraphics, pipeline.pipeline)
}

// BindVertexBuffer implements interface
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer, offset int) {
	buf, ok := b.(*Buffer)
	if !ok {
		c.fail("foreign vertex buffer %T", b)
		return
	}
	vk.CmdBindVertexBuffers(c.cmd, 0, 1, []vk.Buffer{buf.buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

// BindIndexBuffer implements interface
func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset int) {
	buf, ok := b.(*Buffer)
	if !ok {
		c.fail("foreign index buffer %T", b)
		return
	}
	vk.CmdBindIndexBuffer(c.cmd, buf.buffer, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

// BindDescriptorSet implements interface
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline) {
	pipeline, ok := p.(*Pipeline)
	if !ok {
		c.fail("foreign pipeline %T", p)
		return
	}
	vk.CmdBindDescriptorSets(c.cmd, vk.PipelineBindPointGraphics, pipeline.layout, 0, 1, []vk.DescriptorSet{pipeline.set}, 0, nil)
}

// DrawIndexed implements interface
func (c *CommandBuffer) DrawIndexed(count int) {
	vk.CmdDrawIndexed(c.cmd, uint32(count), 1, 0, 0, 0)
}

// EndRenderPass implements interface
func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.cmd)
}

// CopyBuffer implements interface
func (c *CommandBuffer) CopyBuffer(src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	s, ok1 := src.(*Buffer)
	d, ok2 := dst.(*Buffer)
	if !ok1 || !ok2 {
		c.fail("foreign buffers in copy")
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for idx, r := range regions {
		copies[idx] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.cmd, s.buffer, d.buffer, uint32(len(copies)), copies)
}

// End implements interface
func (c *CommandBuffer) End() error {
	if err := check("vk.EndCommandBuffer()", vk.EndCommandBuffer(c.cmd)); err != nil {
		return err
	}
	return c.err
}

// Reset implements interface
func (c *CommandBuffer) Reset() error {
	c.err = nil
	return check("vk.ResetCommandBuffer()", vk.ResetCommandBuffer(c.cmd, 0))
}
