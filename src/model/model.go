// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds what the renderer draws: vertices, meshes, the
// model-view-projection uniform and the camera producing it.
package model

import (
	"encoding/binary"
	"math"

	"github.com/devblok/framer/src/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Sizes of the types as laid out in device memory
const (
	VertexSize  = 2 * 3 * 4
	IndexSize   = 4
	UniformSize = 3 * 16 * 4
)

// Vertex is a model vertex
type Vertex struct {
	Pos   glm.Vec3
	Color glm.Vec3
}

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// Attributes returns the vertex layout the pipeline is built with.
func Attributes() []gfx.VertexAttribute {
	return []gfx.VertexAttribute{
		{Location: 0, Format: gfx.FormatR32G32B32SFloat, Offset: 0},
		{Location: 1, Format: gfx.FormatR32G32B32SFloat, Offset: 3 * 4},
	}
}

func putFloats(b []byte, fs []float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// VertexBytes encodes vertices the way the vertex input stage reads them.
func VertexBytes(vertices []Vertex) []byte {
	b := make([]byte, 0, len(vertices)*VertexSize)
	for _, v := range vertices {
		b = putFloats(b, v.Pos[:])
		b = putFloats(b, v.Color[:])
	}
	return b
}

// IndexBytes encodes 32 bit indices.
func IndexBytes(indices []uint32) []byte {
	b := make([]byte, 0, len(indices)*IndexSize)
	for _, i := range indices {
		b = binary.LittleEndian.AppendUint32(b, i)
	}
	return b
}

// Bytes encodes the uniform in std140 layout, matrices column-major.
func (u Uniform) Bytes() []byte {
	b := make([]byte, 0, UniformSize)
	b = putFloats(b, u.Model[:])
	b = putFloats(b, u.View[:])
	return putFloats(b, u.Projection[:])
}
