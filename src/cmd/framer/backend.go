// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/core"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/gfx/soft"
	"github.com/devblok/framer/src/gfx/vkr"
	"github.com/devblok/framer/src/logging"
	"github.com/veandco/go-sdl2/sdl"
)

// backend is a device ready for the orchestrator, plus whatever has
// to be kept alive and torn down with it.
type backend struct {
	device     gfx.Device
	info       device.PhysicalDeviceInfo
	surface    gfx.Surface
	candidates []device.Candidate

	// pump handles window events until ctx is done or the window
	// asks to close, in which case it calls cancel.
	pump    func(ctx context.Context, cancel context.CancelFunc, tick <-chan time.Time)
	release []func()
}

func (b *backend) Release() {
	for idx := len(b.release) - 1; idx >= 0; idx-- {
		b.release[idx]()
	}
	b.release = nil
}

func openBackend(cfg core.RendererConfiguration, title string, visible bool) (*backend, error) {
	switch cfg.Backend {
	case core.BackendSoft:
		return openSoft(cfg), nil
	case core.BackendVulkan:
		return openVulkan(cfg, title, visible)
	default:
		return nil, errors.Newf("unknown backend %q", cfg.Backend)
	}
}

func openSoft(cfg core.RendererConfiguration) *backend {
	surface := &soft.Surface{Extent: cfg.Extent()}
	b := &backend{
		surface:    surface,
		candidates: soft.Candidates(surface),
		pump: func(ctx context.Context, cancel context.CancelFunc, tick <-chan time.Time) {
			<-ctx.Done()
		},
	}
	return b
}

func openVulkan(cfg core.RendererConfiguration, title string, visible bool) (_ *backend, err error) {
	b := &backend{pump: pumpSDL}
	defer func() {
		if err != nil {
			b.Release()
		}
	}()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "sdl.Init()")
	}
	b.release = append(b.release, sdl.Quit)

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	b.release = append(b.release, sdl.VulkanUnloadLibrary)

	flags := uint32(sdl.WINDOW_VULKAN)
	if !visible {
		flags |= sdl.WINDOW_HIDDEN
	}
	window, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		flags)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}
	b.release = append(b.release, func() { window.Destroy() })

	instance, err := vkr.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfiguration{
		Extensions: window.VulkanGetInstanceExtensions(),
		Validation: cfg.Validation,
	})
	if err != nil {
		return nil, err
	}
	b.release = append(b.release, instance.Release)

	surface, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		return nil, errors.Wrap(err, "sdl.VulkanCreateSurface()")
	}
	instance.SetSurface(uintptr(surface))
	b.surface = instance.Surface()

	if b.candidates, err = instance.Candidates(); err != nil {
		return nil, err
	}
	return b, nil
}

// selectDevice picks among the candidates and creates the logical device.
func (b *backend) selectDevice(cfg core.RendererConfiguration) error {
	info, err := device.Select(b.candidates)
	if err != nil {
		return err
	}
	b.info = info

	switch cfg.Backend {
	case core.BackendSoft:
		dev := soft.New(soft.Options{})
		b.device = dev
		b.release = append(b.release, dev.Release)
	default:
		dev, err := vkr.NewDevice(info, cfg.DeviceExtensions)
		if err != nil {
			return err
		}
		b.device = dev
		b.release = append(b.release, dev.Release)
	}

	logging.For("framer").
		WithField("device", info.Name).
		WithField("score", info.Score).
		WithField("format", info.SurfaceFormat.Format).
		WithField("present", info.PresentMode.String()).
		Info("device selected")
	return nil
}

func pumpSDL(ctx context.Context, cancel context.CancelFunc, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						cancel()
					}
				case *sdl.QuitEvent:
					cancel()
				}
			}
		}
	}
}
