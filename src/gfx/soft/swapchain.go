// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// Swapchain hands out its images in round-robin order. An image becomes
// available again once its presentation has executed.
type Swapchain struct {
	device *Device
	name   string
	info   gfx.SwapchainInfo
	images []gfx.Image

	mu       sync.Mutex
	acquired []bool
	next     uint32
	freed    chan struct{}
}

// NewSwapchain implements interface
func (d *Device) NewSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	if err := d.fault(OpNewSwapchain); err != nil {
		return nil, err
	}
	if info.ImageCount == 0 {
		return nil, errors.New("soft.NewSwapchain(): zero images requested")
	}
	if s, ok := info.Surface.(*Surface); ok && s.Extent != info.Extent {
		return nil, errors.Wrapf(gfx.ErrSwapchainOutOfDate, "soft.NewSwapchain(): extent %v, surface is %v", info.Extent, s.Extent)
	}

	images := make([]gfx.Image, info.ImageCount)
	for idx := range images {
		images[idx] = &Image{Index: uint32(idx)}
	}
	return &Swapchain{
		device:   d,
		name:     d.track("swapchain"),
		info:     info,
		images:   images,
		acquired: make([]bool, info.ImageCount),
		freed:    make(chan struct{}, 1),
	}, nil
}

// Images implements interface
func (s *Swapchain) Images() []gfx.Image {
	return s.images
}

// Format implements interface
func (s *Swapchain) Format() gfx.SurfaceFormat {
	return s.info.Format
}

// Extent implements interface
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.info.Extent
}

// Name returns the name the swapchain appears under in the event log.
func (s *Swapchain) Name() string {
	return s.name
}

// AcquireNextImage implements interface
func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal gfx.Semaphore) (uint32, bool, error) {
	if err := s.device.fault(OpAcquire); err != nil {
		return 0, false, err
	}
	sem, ok := signal.(*Semaphore)
	if !ok {
		return 0, false, errors.Newf("soft.AcquireNextImage(): foreign semaphore %T", signal)
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if index, ok := s.take(); ok {
			sem.signal()
			s.device.events.add(EventAcquire, s.name, index, 0)
			return index, false, nil
		}
		select {
		case <-s.freed:
		case <-expired:
			return 0, false, errors.Wrapf(gfx.ErrSyncTimeout, "soft.AcquireNextImage(): %s after %v", s.name, timeout)
		case <-s.device.done:
			return 0, false, errors.Wrapf(gfx.ErrDeviceLost, "soft.AcquireNextImage(): %s", s.name)
		}
	}
}

func (s *Swapchain) take() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := uint32(len(s.images))
	for step := uint32(0); step < count; step++ {
		index := (s.next + step) % count
		if !s.acquired[index] {
			s.acquired[index] = true
			s.next = (index + 1) % count
			return index, true
		}
	}
	return 0, false
}

func (s *Swapchain) isAcquired(index uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(index) < len(s.acquired) && s.acquired[index]
}

func (s *Swapchain) present(index uint32) {
	s.mu.Lock()
	s.acquired[index] = false
	s.mu.Unlock()

	select {
	case s.freed <- struct{}{}:
	default:
	}
}

// Release implements interface
func (s *Swapchain) Release() {
	s.device.untrack(s.name)
}
