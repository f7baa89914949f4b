// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"sync"
	"time"

	"github.com/devblok/framer/src/model"
	glm "github.com/go-gl/mathgl/mgl32"
)

// spinningScene turns a few shapes a little further on every frame.
type spinningScene struct {
	mu     sync.Mutex
	angle  float32
	step   float32
	shapes []*model.Shape
	camera model.Camera
}

func newSpinningScene(step float32) *spinningScene {
	cube := model.Cube(0.5)
	cube.SetPosition(glm.Translate3D(-1.2, 0, 0))

	octahedron := model.Octahedron(0.6)
	octahedron.SetPosition(glm.Translate3D(1.2, 0, 0))

	floor := model.Square(4)
	floor.SetPosition(glm.Translate3D(0, 0, -1))

	return &spinningScene{
		step:   step,
		shapes: []*model.Shape{cube, octahedron, floor},
		camera: model.NewCamera(glm.Vec3{0, -5, 2}, glm.Vec3{0, 0, 0}),
	}
}

// Meshes implements interface
func (s *spinningScene) Meshes() []model.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.angle += s.step
	rotation := glm.HomogRotate3D(s.angle, glm.Vec3{0, 0, 1})

	meshes := make([]model.Mesh, len(s.shapes))
	for idx, shape := range s.shapes {
		// the floor stays put
		if idx < len(s.shapes)-1 {
			shape.SetRotation(rotation)
		}
		meshes[idx] = shape
	}
	return meshes
}

// Camera implements interface
func (s *spinningScene) Camera() model.Camera {
	return s.camera
}

// limitTicks forwards at most n ticks and then closes, n <= 0 forwards
// until ctx is done.
func limitTicks(done <-chan struct{}, in <-chan time.Time, n int) <-chan time.Time {
	out := make(chan time.Time)
	go func() {
		defer close(out)
		for count := 0; n <= 0 || count < n; count++ {
			select {
			case <-done:
				return
			case t := <-in:
				select {
				case out <- t:
				case <-done:
					return
				}
			}
		}
	}()
	return out
}
