// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backends the renderer can run on
const (
	BackendVulkan = "vulkan"
	BackendSoft   = "soft"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration     `mapstructure:"time"`
	Renderer RendererConfiguration `mapstructure:"renderer"`
	Logging  LoggingConfiguration  `mapstructure:"logging"`
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int `mapstructure:"frames_per_second"`

	// EventPollDelay is the window event polling interval in milliseconds.
	EventPollDelay int `mapstructure:"event_poll_delay"`
}

// RendererConfiguration is used to configure the renderer.
// Nothing in it can change once the renderer is built.
type RendererConfiguration struct {
	Backend          string   `mapstructure:"backend"`
	Validation       bool     `mapstructure:"validation"`
	DeviceExtensions []string `mapstructure:"device_extensions"`

	FramesInFlight int           `mapstructure:"frames_in_flight"`
	StagingPolicy  StagingPolicy `mapstructure:"staging_policy"`
	MaxVertices    int           `mapstructure:"max_vertices"`
	MaxIndices     int           `mapstructure:"max_indices"`

	// FenceTimeout bounds every wait of the frame loop, zero waits forever.
	FenceTimeout time.Duration `mapstructure:"fence_timeout"`

	ScreenWidth  uint32 `mapstructure:"screen_width"`
	ScreenHeight uint32 `mapstructure:"screen_height"`

	ShaderDirectory string    `mapstructure:"shader_directory"`
	ShaderArchive   string    `mapstructure:"shader_archive"`
	Shader          string    `mapstructure:"shader"`
	ClearColor      []float32 `mapstructure:"clear_color"`
}

// LoggingConfiguration configures the process logger.
type LoggingConfiguration struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Timeout returns the wait timeout in the form the device expects.
func (r RendererConfiguration) Timeout() time.Duration {
	if r.FenceTimeout <= 0 {
		return gfx.Forever
	}
	return r.FenceTimeout
}

// Capacity returns the fixed vertex and index capacity.
func (r RendererConfiguration) Capacity() Capacity {
	return Capacity{MaxVertices: r.MaxVertices, MaxIndices: r.MaxIndices}
}

// Clear returns the clear color of the render pass.
func (r RendererConfiguration) Clear() gfx.Color {
	var c gfx.Color
	copy(c[:], r.ClearColor)
	return c
}

// Extent returns the configured screen size.
func (r RendererConfiguration) Extent() gfx.Extent2D {
	return gfx.Extent2D{Width: r.ScreenWidth, Height: r.ScreenHeight}
}

// DefaultConfiguration returns configuration with default values
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  16,
		},
		Renderer: RendererConfiguration{
			Backend:          BackendVulkan,
			DeviceExtensions: []string{"VK_KHR_swapchain"},
			FramesInFlight:   2,
			StagingPolicy:    PerFlight,
			MaxVertices:      1024,
			MaxIndices:       4096,
			ScreenWidth:      800,
			ScreenHeight:     600,
			ShaderDirectory:  "shaders",
			Shader:           "triangle",
			ClearColor:       []float32{0, 0, 0, 1},
		},
		Logging: LoggingConfiguration{
			Level:   "info",
			Console: true,
		},
	}
}

// LoadConfiguration reads configuration from path, or from framer.yaml
// in ~/.framer or the working directory when path is empty. Values can be
// overridden with FRAMER_ prefixed environment variables, for example
// FRAMER_RENDERER_FRAMES_IN_FLIGHT.
func LoadConfiguration(path string) (Configuration, error) {
	v := viper.New()
	cfg := DefaultConfiguration()
	setDefaults(v, cfg)

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "core.LoadConfiguration(%s)", path)
		}
		v.SetConfigFile(expanded)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".framer"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("framer")
	}

	v.SetEnvPrefix("FRAMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, errors.Wrap(err, "core.LoadConfiguration(): reading")
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "core.LoadConfiguration(): decoding")
	}

	for _, p := range []*string{&cfg.Renderer.ShaderDirectory, &cfg.Renderer.ShaderArchive, &cfg.Logging.File} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return cfg, errors.Wrapf(err, "core.LoadConfiguration(): expanding %s", *p)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c Configuration) Validate() error {
	r := c.Renderer
	switch {
	case r.Backend != BackendVulkan && r.Backend != BackendSoft:
		return errors.Newf("renderer.backend must be %q or %q, got %q", BackendVulkan, BackendSoft, r.Backend)
	case r.FramesInFlight < 1:
		return errors.Newf("renderer.frames_in_flight must be at least 1, got %d", r.FramesInFlight)
	case r.StagingPolicy != PerFlight && r.StagingPolicy != Shared:
		return errors.Newf("renderer.staging_policy must be %q or %q, got %q", PerFlight, Shared, r.StagingPolicy)
	case r.MaxVertices < 1 || r.MaxIndices < 1:
		return errors.Newf("renderer capacity must be positive, got %d vertices and %d indices", r.MaxVertices, r.MaxIndices)
	case r.FenceTimeout < 0:
		return errors.Newf("renderer.fence_timeout must not be negative, got %v", r.FenceTimeout)
	case len(r.ClearColor) != 4:
		return errors.Newf("renderer.clear_color needs 4 components, got %d", len(r.ClearColor))
	case r.ScreenWidth == 0 || r.ScreenHeight == 0:
		return errors.Newf("renderer screen size must be positive, got %dx%d", r.ScreenWidth, r.ScreenHeight)
	case c.Time.FramesPerSecond < 0:
		return errors.Newf("time.frames_per_second must not be negative, got %d", c.Time.FramesPerSecond)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Configuration) {
	v.SetDefault("time.frames_per_second", cfg.Time.FramesPerSecond)
	v.SetDefault("time.event_poll_delay", cfg.Time.EventPollDelay)

	v.SetDefault("renderer.backend", cfg.Renderer.Backend)
	v.SetDefault("renderer.validation", cfg.Renderer.Validation)
	v.SetDefault("renderer.device_extensions", cfg.Renderer.DeviceExtensions)
	v.SetDefault("renderer.frames_in_flight", cfg.Renderer.FramesInFlight)
	v.SetDefault("renderer.staging_policy", string(cfg.Renderer.StagingPolicy))
	v.SetDefault("renderer.max_vertices", cfg.Renderer.MaxVertices)
	v.SetDefault("renderer.max_indices", cfg.Renderer.MaxIndices)
	v.SetDefault("renderer.fence_timeout", cfg.Renderer.FenceTimeout)
	v.SetDefault("renderer.screen_width", cfg.Renderer.ScreenWidth)
	v.SetDefault("renderer.screen_height", cfg.Renderer.ScreenHeight)
	v.SetDefault("renderer.shader_directory", cfg.Renderer.ShaderDirectory)
	v.SetDefault("renderer.shader_archive", cfg.Renderer.ShaderArchive)
	v.SetDefault("renderer.shader", cfg.Renderer.Shader)
	v.SetDefault("renderer.clear_color", cfg.Renderer.ClearColor)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
