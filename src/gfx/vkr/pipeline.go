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

// Handles the bindings leave without a Null value.
var (
	nullDescriptorPool      vk.DescriptorPool
	nullDescriptorSetLayout vk.DescriptorSetLayout
	nullPipelineCache       vk.PipelineCache
)

// RenderPass has a single color attachment that ends up presentable.
type RenderPass struct {
	pass vk.RenderPass
}

// Pipeline owns the render pass, the graphics pipeline and everything
// the single descriptor set needs.
type Pipeline struct {
	device vk.Device

	pass      *RenderPass
	setLayout vk.DescriptorSetLayout
	layout    vk.PipelineLayout
	pool      vk.DescriptorPool
	set       vk.DescriptorSet
	pipeline  vk.Pipeline
	shaders   []vk.ShaderModule
}

// RenderPass implements interface
func (p *Pipeline) RenderPass() gfx.RenderPass {
	return p.pass
}

// Release destroys whatever was created, in reverse order.
func (p *Pipeline) Release() {
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.pipeline, nil)
	}
	for _, sm := range p.shaders {
		vk.DestroyShaderModule(p.device, sm, nil)
	}
	if p.pool != nullDescriptorPool {
		vk.DestroyDescriptorPool(p.device, p.pool, nil)
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.layout, nil)
	}
	if p.setLayout != nullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(p.device, p.setLayout, nil)
	}
	if p.pass != nil {
		vk.DestroyRenderPass(p.device, p.pass.pass, nil)
	}
}

// NewPipeline implements interface
func (d *Device) NewPipeline(info gfx.PipelineInfo) (_ gfx.Pipeline, err error) {
	uniform, ok := info.Uniform.(*Buffer)
	if !ok {
		return nil, errors.Newf("vkr.NewPipeline(): foreign uniform buffer %T", info.Uniform)
	}

	p := &Pipeline{device: d.device}
	defer func() {
		if err != nil {
			p.Release()
		}
	}()

	if err := p.createRenderPass(vk.Format(info.Format.Format)); err != nil {
		return nil, err
	}
	if err := p.createLayout(); err != nil {
		return nil, err
	}
	if err := p.createDescriptorSet(uniform, info.UniformSize); err != nil {
		return nil, err
	}
	for _, code := range [][]byte{info.VertexShader, info.FragmentShader} {
		sm, err := p.createShaderModule(code)
		if err != nil {
			return nil, err
		}
		p.shaders = append(p.shaders, sm)
	}
	if err := p.createPipeline(info); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) createRenderPass(format vk.Format) error {
	attachments := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	// Waits on the acquire semaphore happen at color output,
	// the layout transition must not start earlier.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorAttachmentRef)),
			PColorAttachments:    colorAttachmentRef,
		}},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	if err := check("vk.CreateRenderPass()", vk.CreateRenderPass(p.device, &rpci, nil, &pass)); err != nil {
		return err
	}
	p.pass = &RenderPass{pass: pass}
	return nil
}

func (p *Pipeline) createLayout() error {
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := check("vk.CreateDescriptorSetLayout()",
		vk.CreateDescriptorSetLayout(p.device, &dslci, nil, &p.setLayout)); err != nil {
		return err
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.setLayout},
	}
	return check("vk.CreatePipelineLayout()", vk.CreatePipelineLayout(p.device, &plci, nil, &p.layout))
}

func (p *Pipeline) createDescriptorSet(uniform *Buffer, size int) error {
	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
	}}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := check("vk.CreateDescriptorPool()", vk.CreateDescriptorPool(p.device, &dpci, nil, &p.pool)); err != nil {
		return err
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
	}
	if err := check("vk.AllocateDescriptorSets()", vk.AllocateDescriptorSets(p.device, &dsai, &p.set)); err != nil {
		return err
	}

	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          p.set,
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: uniform.buffer,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}},
	}}
	vk.UpdateDescriptorSets(p.device, uint32(len(wds)), wds, 0, nil)
	return nil
}

func (p *Pipeline) createShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.NullShaderModule, errors.Newf("vkr.NewPipeline(): shader code of %d bytes is not SPIR-V", len(code))
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    SliceUint32(code),
	}
	var sm vk.ShaderModule
	if err := check("vk.CreateShaderModule()", vk.CreateShaderModule(p.device, &smci, nil, &sm)); err != nil {
		return vk.NullShaderModule, err
	}
	return sm, nil
}

func (p *Pipeline) createPipeline(info gfx.PipelineInfo) error {
	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: p.shaders[0],
		PName:  safeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: p.shaders[1],
		PName:  safeString("main"),
	}}

	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    info.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.Attributes))
	for idx, a := range info.Attributes {
		attributes[idx] = vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	// The swapchain is never recreated, so the viewport is fixed.
	viewport := vk.Viewport{
		Width:    float32(info.Extent.Width),
		Height:   float32(info.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			PViewports:    []vk.Viewport{viewport},
			ScissorCount:  1,
			PScissors:     []vk.Rect2D{scissor},
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		Layout:     p.layout,
		RenderPass: p.pass.pass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := check("vk.CreateGraphicsPipelines()",
		vk.CreateGraphicsPipelines(p.device, nullPipelineCache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return err
	}
	p.pipeline = pipelines[0]
	return nil
}
