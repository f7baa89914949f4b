// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// CommandPool allocates soft command buffers.
type CommandPool struct {
	device     *Device
	name       string
	family     uint32
	resettable bool
	count      int
}

// Allocate implements interface
func (p *CommandPool) Allocate(count int) ([]gfx.CommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Newf("soft.Allocate(): invalid count %d", count)
	}
	buffers := make([]gfx.CommandBuffer, count)
	for idx := range buffers {
		p.count++
		buffers[idx] = &CommandBuffer{
			pool: p,
			name: fmt.Sprintf("%s/cmd#%d", p.name, p.count),
		}
	}
	return buffers, nil
}

// Release implements interface
func (p *CommandPool) Release() {
	p.device.untrack(p.name)
}

type cmdState int

const (
	stateInitial cmdState = iota
	stateRecording
	stateExecutable
)

type opKind int

const (
	opCopy opKind = iota
	opDraw
)

type op struct {
	kind opKind

	src, dst *Buffer
	regions  []gfx.BufferCopy

	framebuffer *Framebuffer
	count       int
}

// CommandBuffer records copies and draws. Recording mistakes are
// collected and reported by End, the way validation layers would.
type CommandBuffer struct {
	pool *CommandPool
	name string

	mu      sync.Mutex
	state   cmdState
	pending int
	ops     []op
	err     error

	inPass      *Framebuffer
	pipeline    *Pipeline
	vertex      *Buffer
	index       *Buffer
	descriptors bool
}

// Name returns the name the command buffer appears under in the event log.
func (c *CommandBuffer) Name() string {
	return c.name
}

// Ops returns how many commands that do work were recorded.
func (c *CommandBuffer) Ops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

// Begin implements interface
func (c *CommandBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pending > 0:
		return errors.Newf("soft.Begin(): %s is in use by the device", c.name)
	case c.state == stateRecording:
		return errors.Newf("soft.Begin(): %s is already recording", c.name)
	case c.state == stateExecutable && !c.pool.resettable:
		return errors.Newf("soft.Begin(): %s comes from a pool without individual reset", c.name)
	}
	c.clear()
	c.state = stateRecording
	return nil
}

func (c *CommandBuffer) clear() {
	c.ops = nil
	c.err = nil
	c.inPass = nil
	c.pipeline = nil
	c.vertex = nil
	c.index = nil
	c.descriptors = false
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = errors.Newf("soft: %s: "+format, append([]interface{}{c.name}, args...)...)
	}
}

func (c *CommandBuffer) recording() bool {
	if c.state != stateRecording {
		c.fail("command recorded outside of Begin/End")
		return false
	}
	return true
}

// BeginRenderPass implements interface
func (c *CommandBuffer) BeginRenderPass(pass gfx.RenderPass, fb gfx.Framebuffer, extent gfx.Extent2D, clear gfx.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	if c.inPass != nil {
		c.fail("render pass begun inside a render pass")
		return
	}
	f, ok := fb.(*Framebuffer)
	if !ok {
		c.fail("foreign framebuffer %T", fb)
		return
	}
	c.inPass = f
}

// BindPipeline implements interface
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	pipeline, ok := p.(*Pipeline)
	if !ok {
		c.fail("foreign pipeline %T", p)
		return
	}
	c.pipeline = pipeline
}

// BindVertexBuffer implements interface
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	buf, ok := b.(*Buffer)
	if !ok || buf.info.Usage&gfx.UsageVertex == 0 {
		c.fail("vertex buffer bound without vertex usage")
		return
	}
	c.vertex = buf
}

// BindIndexBuffer implements interface
func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	buf, ok := b.(*Buffer)
	if !ok || buf.info.Usage&gfx.UsageIndex == 0 {
		c.fail("index buffer bound without index usage")
		return
	}
	c.index = buf
}

// BindDescriptorSet implements interface
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	c.descriptors = true
}

// DrawIndexed implements interface
func (c *CommandBuffer) DrawIndexed(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	switch {
	case c.inPass == nil:
		c.fail("draw outside of a render pass")
	case c.pipeline == nil:
		c.fail("draw without a pipeline")
	case c.vertex == nil || c.index == nil:
		c.fail("draw without vertex and index buffers")
	case !c.descriptors:
		c.fail("draw without a descriptor set")
	default:
		c.ops = append(c.ops, op{kind: opDraw, framebuffer: c.inPass, count: count})
	}
}

// EndRenderPass implements interface
func (c *CommandBuffer) EndRenderPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	if c.inPass == nil {
		c.fail("render pass ended without being begun")
		return
	}
	c.inPass = nil
}

// CopyBuffer implements interface
func (c *CommandBuffer) CopyBuffer(src, dst gfx.Buffer, regions []gfx.BufferCopy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording() {
		return
	}
	s, ok1 := src.(*Buffer)
	d, ok2 := dst.(*Buffer)
	switch {
	case !ok1 || !ok2:
		c.fail("foreign buffers in copy")
	case s.info.Usage&gfx.UsageTransferSrc == 0:
		c.fail("copy source %s lacks transfer source usage", s.name)
	case d.info.Usage&gfx.UsageTransferDst == 0:
		c.fail("copy destination %s lacks transfer destination usage", d.name)
	case c.inPass != nil:
		c.fail("copy inside a render pass")
	default:
		c.ops = append(c.ops, op{
			kind:    opCopy,
			src:     s,
			dst:     d,
			regions: append([]gfx.BufferCopy(nil), regions...),
		})
	}
}

// End implements interface
func (c *CommandBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRecording {
		return errors.Newf("soft.End(): %s is not recording", c.name)
	}
	if c.inPass != nil {
		c.fail("render pass left open")
	}
	if c.err != nil {
		err := c.err
		c.clear()
		c.state = stateInitial
		return err
	}
	c.state = stateExecutable
	return nil
}

// Reset implements interface
func (c *CommandBuffer) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pool.resettable {
		return errors.Newf("soft.Reset(): %s comes from a pool without individual reset", c.name)
	}
	if c.pending > 0 {
		return errors.Newf("soft.Reset(): %s is in use by the device", c.name)
	}
	c.clear()
	c.state = stateInitial
	return nil
}

// submit marks the buffer pending and returns its recorded commands.
func (c *CommandBuffer) submit() ([]op, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateExecutable {
		return nil, errors.Newf("soft.Submit(): %s is not executable", c.name)
	}
	if c.pending > 0 {
		return nil, errors.Newf("soft.Submit(): %s is still in use by the device", c.name)
	}
	c.pending++
	return c.ops, nil
}

func (c *CommandBuffer) retire() {
	c.mu.Lock()
	c.pending--
	c.mu.Unlock()
}
