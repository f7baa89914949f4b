// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"runtime/trace"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/core"
	"github.com/devblok/framer/src/gfx/soft"
	"github.com/devblok/framer/src/logging"
	"github.com/devblok/framer/src/utility/kar"
	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Profiling
var (
	cpuProfile   string
	memProfile   string
	traceProfile string
)

var (
	backendName string
	frameLimit  int
	spinStep    float32
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Render the scene until the window closes",
	Long: `Run opens a window and renders a few spinning shapes with the configured
number of frames in flight. With --backend soft nothing is displayed and
frames go to the in-process device, --frames stops after that many.`,
	RunE: runRenderer,
}

func init() {
	runCmd.Flags().StringVar(&cpuProfile, "cpuprof", "", "Profile CPU usage to file")
	runCmd.Flags().StringVar(&memProfile, "memprof", "", "Profile memory usage into a file")
	runCmd.Flags().StringVar(&traceProfile, "trace", "", "Trace output for profiling")
	runCmd.Flags().StringVar(&backendName, "backend", "", "overrides renderer.backend")
	runCmd.Flags().IntVar(&frameLimit, "frames", 0, "stop after this many frames, 0 runs until closed")
	runCmd.Flags().Float32Var(&spinStep, "spin", 0.005, "rotation per frame in radians")
	rootCmd.AddCommand(runCmd)
}

func runRenderer(cmd *cobra.Command, args []string) (err error) {
	cfg := configuration
	if backendName != "" {
		cfg.Renderer.Backend = backendName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := logging.For("framer")

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	if traceProfile != "" {
		f, err := os.Create(traceProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := trace.Start(f); err != nil {
			return err
		}
		defer trace.Stop()
	}

	set, err := loadShaders(cfg.Renderer, logger)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg.Renderer, "Framer", true)
	if err != nil {
		return err
	}
	defer b.Release()
	if err := b.selectDevice(cfg.Renderer); err != nil {
		return err
	}

	orchestrator, err := core.NewFrameOrchestrator(core.Options{
		Device:  b.device,
		Info:    b.info,
		Surface: b.surface,
		Shaders: set,
		Config:  cfg.Renderer,
	})
	if err != nil {
		return err
	}
	defer func() {
		if rerr := orchestrator.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()

	scene := newSpinningScene(spinStep)
	ticks := limitTicks(ctx.Done(), timeService.FpsTicker().C, frameLimit)

	var (
		wg       sync.WaitGroup
		frameErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		frameErr = orchestrator.Run(ctx, scene, ticks)
	}()

	b.pump(ctx, cancel, timeService.EventTicker().C)
	wg.Wait()

	s := orchestrator.Stats()
	logger.WithFields(log.Fields{
		"frames": s.Frames,
		"failed": s.Failed,
		"mean":   s.Mean(),
		"wait":   s.LastWait,
	}).Info("renderer stopped")

	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	return frameErr
}

// loadShaders reads the configured shader set. The soft backend never
// runs shader code, so it gets stub modules when no compiled set is found.
func loadShaders(cfg core.RendererConfiguration, logger *log.Entry) (core.ShaderSet, error) {
	shaders, closeShaders, err := shaderSource(cfg)
	if err != nil {
		return core.ShaderSet{}, err
	}
	defer closeShaders()

	set, err := shaders.Shaders(cfg.Shader)
	if err != nil && cfg.Backend == core.BackendSoft {
		logger.WithError(err).Warn("no compiled shaders, using stubs")
		return core.ShaderSet{Name: cfg.Shader, Vertex: soft.StubShader(), Fragment: soft.StubShader()}, nil
	}
	return set, err
}

// shaderSource prefers an archive, then a shader directory when it
// exists, then the shaders packed into the binary.
func shaderSource(cfg core.RendererConfiguration) (core.ShaderSource, func(), error) {
	if cfg.ShaderArchive != "" {
		f, err := kar.OpenFile(cfg.ShaderArchive)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "opening shader archive %s", cfg.ShaderArchive)
		}
		return core.ArchiveSource{Archive: f.Archive}, func() { f.Close() }, nil
	}
	if cfg.ShaderDirectory != "" {
		if info, err := os.Stat(cfg.ShaderDirectory); err == nil && info.IsDir() {
			return core.DirectorySource{Dir: cfg.ShaderDirectory}, func() {}, nil
		}
	}
	return core.BoxSource{Box: packr.NewBox("../../../shaders")}, func() {}, nil
}
