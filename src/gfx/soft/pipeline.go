// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// SpirvMagic is the first word of every SPIR-V module.
const SpirvMagic uint32 = 0x07230203

// StubShader returns the smallest module header the soft device accepts.
func StubShader() []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, SpirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010000)
	return code
}

func checkShader(stage string, code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return errors.Newf("soft.NewPipeline(): %s shader of %d bytes is not SPIR-V", stage, len(code))
	}
	if binary.LittleEndian.Uint32(code) != SpirvMagic {
		return errors.Newf("soft.NewPipeline(): %s shader has no SPIR-V magic", stage)
	}
	return nil
}

// RenderPass is the single color pass of a pipeline.
type RenderPass struct {
	Format gfx.SurfaceFormat
}

// Pipeline implements gfx.Pipeline.
type Pipeline struct {
	device  *Device
	name    string
	pass    *RenderPass
	info    gfx.PipelineInfo
	uniform *Buffer
}

// NewPipeline implements interface
func (d *Device) NewPipeline(info gfx.PipelineInfo) (gfx.Pipeline, error) {
	if err := d.fault(OpNewPipeline); err != nil {
		return nil, err
	}
	if err := checkShader("vertex", info.VertexShader); err != nil {
		return nil, err
	}
	if err := checkShader("fragment", info.FragmentShader); err != nil {
		return nil, err
	}
	uniform, ok := info.Uniform.(*Buffer)
	if !ok {
		return nil, errors.Newf("soft.NewPipeline(): uniform buffer %T is not a soft buffer", info.Uniform)
	}
	if uniform.info.Usage&gfx.UsageUniform == 0 || uniform.info.Size < info.UniformSize {
		return nil, errors.Newf("soft.NewPipeline(): %s cannot back a uniform of %d bytes", uniform.name, info.UniformSize)
	}
	return &Pipeline{
		device:  d,
		name:    d.track("pipeline"),
		pass:    &RenderPass{Format: info.Format},
		info:    info,
		uniform: uniform,
	}, nil
}

// RenderPass implements interface
func (p *Pipeline) RenderPass() gfx.RenderPass {
	return p.pass
}

// Release implements interface
func (p *Pipeline) Release() {
	p.device.untrack(p.name)
}

// Image is a presentable image of a soft swapchain.
type Image struct {
	Index uint32
}

// ImageView implements gfx.ImageView.
type ImageView struct {
	device *Device
	name   string
	image  *Image
}

// Release implements interface
func (v *ImageView) Release() {
	v.device.untrack(v.name)
}

// Framebuffer implements gfx.Framebuffer.
type Framebuffer struct {
	device *Device
	name   string
	view   *ImageView
	extent gfx.Extent2D
}

// Release implements interface
func (f *Framebuffer) Release() {
	f.device.untrack(f.name)
}
