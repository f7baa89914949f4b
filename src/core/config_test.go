// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/framer/src/gfx"
	qt "github.com/frankban/quicktest"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	c := qt.New(t)
	cfg := DefaultConfiguration()
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Renderer.Timeout(), qt.Equals, gfx.Forever)
	c.Assert(cfg.Renderer.Capacity(), qt.Equals, Capacity{MaxVertices: 1024, MaxIndices: 4096})
	c.Assert(cfg.Renderer.Clear(), qt.Equals, gfx.Color{0, 0, 0, 1})
	c.Assert(cfg.Renderer.Extent(), qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
}

func TestLoadConfiguration(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "framer.yaml")
	c.Assert(os.WriteFile(path, []byte(`
renderer:
  backend: soft
  frames_in_flight: 3
  staging_policy: shared
  max_vertices: 12
  max_indices: 32
  fence_timeout: 250ms
  clear_color: [0.1, 0.2, 0.3, 1]
logging:
  level: debug
`), 0644), qt.IsNil)

	c.Setenv("FRAMER_RENDERER_SCREEN_WIDTH", "1024")

	cfg, err := LoadConfiguration(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.Backend, qt.Equals, BackendSoft)
	c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 3)
	c.Assert(cfg.Renderer.StagingPolicy, qt.Equals, Shared)
	c.Assert(cfg.Renderer.Capacity(), qt.Equals, Capacity{MaxVertices: 12, MaxIndices: 32})
	c.Assert(cfg.Renderer.Timeout(), qt.Equals, 250*time.Millisecond)
	c.Assert(cfg.Renderer.Clear(), qt.Equals, gfx.Color{0.1, 0.2, 0.3, 1})
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1024))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(600))
	c.Assert(cfg.Renderer.Shader, qt.Equals, "triangle")
	c.Assert(cfg.Logging.Level, qt.Equals, "debug")
	c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 60)
}

func TestLoadConfigurationMissingFile(t *testing.T) {
	c := qt.New(t)
	_, err := LoadConfiguration(filepath.Join(c.TempDir(), "missing.yaml"))
	c.Assert(err, qt.IsNotNil)
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	for name, mutate := range map[string]func(*Configuration){
		"backend":  func(cfg *Configuration) { cfg.Renderer.Backend = "opengl" },
		"flights":  func(cfg *Configuration) { cfg.Renderer.FramesInFlight = 0 },
		"policy":   func(cfg *Configuration) { cfg.Renderer.StagingPolicy = "triple" },
		"capacity": func(cfg *Configuration) { cfg.Renderer.MaxIndices = 0 },
		"timeout":  func(cfg *Configuration) { cfg.Renderer.FenceTimeout = -time.Second },
		"clear":    func(cfg *Configuration) { cfg.Renderer.ClearColor = []float32{1} },
		"screen":   func(cfg *Configuration) { cfg.Renderer.ScreenHeight = 0 },
		"fps":      func(cfg *Configuration) { cfg.Time.FramesPerSecond = -1 },
	} {
		cfg := DefaultConfiguration()
		mutate(&cfg)
		c.Assert(cfg.Validate(), qt.IsNotNil, qt.Commentf("%s", name))
	}
}
