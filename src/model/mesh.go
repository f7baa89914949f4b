// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Mesh is anything the renderer can draw.
type Mesh interface {

	// Transform returns the model matrix of the mesh.
	Transform() glm.Mat4

	// Mesh returns vertices and the indices into them,
	// in the layout the pipeline is built with.
	Mesh() ([]Vertex, []uint32)
}

// Object is the placement of a mesh in space.
// It is safe to move an object while a frame is being prepared.
type Object struct {
	mu       sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4
}

// NewObject creates an object at the origin.
func NewObject() *Object {
	o := &Object{}
	o.place()
	return o
}

func (o *Object) place() {
	o.position = glm.Ident4()
	o.rotation = glm.Ident4()
}

// SetPosition sets the object's current position in space.
func (o *Object) SetPosition(m glm.Mat4) {
	o.mu.Lock()
	o.position = m
	o.mu.Unlock()
}

// Position gets the object's current position in space.
func (o *Object) Position() glm.Mat4 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.position
}

// SetRotation sets the object's rotation matrix.
func (o *Object) SetRotation(m glm.Mat4) {
	o.mu.Lock()
	o.rotation = m
	o.mu.Unlock()
}

// Rotation gets the object's rotation matrix.
func (o *Object) Rotation() glm.Mat4 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rotation
}

// Transform rotates first, then moves into position.
func (o *Object) Transform() glm.Mat4 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.position.Mul4(o.rotation)
}

// Pack merges meshes into a single vertex and index range. Each mesh's
// transform is applied to its positions and its indices are rebased onto
// the vertices packed before it.
func Pack(meshes []Mesh) ([]Vertex, []uint32) {
	var (
		vertices []Vertex
		indices  []uint32
	)
	for _, m := range meshes {
		transform := m.Transform()
		vs, is := m.Mesh()

		base := uint32(len(vertices))
		for _, v := range vs {
			v.Pos = transform.Mul4x1(v.Pos.Vec4(1)).Vec3()
			vertices = append(vertices, v)
		}
		for _, i := range is {
			indices = append(indices, base+i)
		}
	}
	return vertices, indices
}
