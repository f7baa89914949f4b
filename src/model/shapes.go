// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import glm "github.com/go-gl/mathgl/mgl32"

// Shape is a fixed mesh placed by an Object.
type Shape struct {
	Object

	Name     string
	vertices []Vertex
	indices  []uint32
}

// Mesh implements interface
func (s *Shape) Mesh() ([]Vertex, []uint32) {
	return s.vertices, s.indices
}

func newShape(name string, vertices []Vertex, indices []uint32) *Shape {
	s := &Shape{
		Name:     name,
		vertices: vertices,
		indices:  indices,
	}
	s.place()
	return s
}

var (
	red   = glm.Vec3{1, 0, 0}
	green = glm.Vec3{0, 1, 0}
	blue  = glm.Vec3{0, 0, 1}
	white = glm.Vec3{1, 1, 1}
)

// Square creates a square of the given side length in the XY plane.
func Square(size float32) *Shape {
	h := size / 2
	return newShape("square", []Vertex{
		{Pos: glm.Vec3{-h, -h, 0}, Color: red},
		{Pos: glm.Vec3{h, -h, 0}, Color: green},
		{Pos: glm.Vec3{h, h, 0}, Color: blue},
		{Pos: glm.Vec3{-h, h, 0}, Color: white},
	}, []uint32{0, 1, 2, 2, 3, 0})
}

// Octahedron creates an octahedron with vertices at the given distance
// along each axis, each colored by its axis.
func Octahedron(size float32) *Shape {
	return newShape("octahedron", []Vertex{
		{Pos: glm.Vec3{size, 0, 0}, Color: red},
		{Pos: glm.Vec3{-size, 0, 0}, Color: red},
		{Pos: glm.Vec3{0, size, 0}, Color: green},
		{Pos: glm.Vec3{0, -size, 0}, Color: green},
		{Pos: glm.Vec3{0, 0, size}, Color: blue},
		{Pos: glm.Vec3{0, 0, -size}, Color: blue},
	}, []uint32{
		0, 2, 4, 0, 4, 3, 0, 3, 5, 0, 5, 2,
		1, 4, 2, 1, 3, 4, 1, 5, 3, 1, 2, 5,
	})
}

// Cube creates a cube of the given side length centered at the origin.
func Cube(size float32) *Shape {
	h := size / 2
	vertices := make([]Vertex, 0, 8)
	for idx := 0; idx < 8; idx++ {
		pos := glm.Vec3{-h, -h, -h}
		color := glm.Vec3{}
		for axis := 0; axis < 3; axis++ {
			if idx&(1<<uint(axis)) != 0 {
				pos[axis] = h
				color[axis] = 1
			}
		}
		vertices = append(vertices, Vertex{Pos: pos, Color: color})
	}
	return newShape("cube", vertices, []uint32{
		0, 2, 1, 1, 2, 3, // -z
		4, 5, 6, 5, 7, 6, // +z
		0, 1, 4, 1, 5, 4, // -y
		2, 6, 3, 3, 6, 7, // +y
		0, 4, 2, 2, 4, 6, // -x
		1, 3, 5, 3, 7, 5, // +x
	})
}
