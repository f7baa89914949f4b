// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"math"

	"github.com/devblok/framer/src/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Camera looks from Eye at Center.
type Camera struct {
	Eye    glm.Vec3
	Center glm.Vec3
	Up     glm.Vec3

	// FovY is the vertical field of view in radians.
	FovY      float32
	Near, Far float32
}

// NewCamera creates a camera with Z up and a quarter-pi field of view.
func NewCamera(eye, center glm.Vec3) Camera {
	return Camera{
		Eye:    eye,
		Center: center,
		Up:     glm.Vec3{0, 0, 1},
		FovY:   math.Pi / 4,
		Near:   0.1,
		Far:    100,
	}
}

// Uniform returns view and projection for a surface of the given extent.
// The model matrix is identity since meshes are packed with their
// transforms applied.
func (c Camera) Uniform(extent gfx.Extent2D) Uniform {
	aspect := float32(1)
	if extent.Height != 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	projection := glm.Perspective(c.FovY, aspect, c.Near, c.Far)
	// Clip space Y points down.
	projection[5] *= -1

	return Uniform{
		Model:      glm.Ident4(),
		View:       glm.LookAtV(c.Eye, c.Center, c.Up),
		Projection: projection,
	}
}
