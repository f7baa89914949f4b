// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	log "github.com/sirupsen/logrus"
)

// ImageCount returns how many images to ask the surface for: one more
// than the minimum when the surface allows it.
func ImageCount(caps gfx.SurfaceCapabilities) uint32 {
	if caps.MinImageCount == caps.MaxImageCount {
		return caps.MinImageCount
	}
	count := caps.MinImageCount + 1
	if caps.MaxImageCount != 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// NewSwapchainManager creates the swapchain of surface. The surface
// extent is used unless the surface leaves it to the application,
// then fallback is.
func NewSwapchainManager(dev gfx.Device, info device.PhysicalDeviceInfo, surface gfx.Surface, fallback gfx.Extent2D) (*SwapchainManager, error) {
	extent := info.Capabilities.CurrentExtent
	if extent.Width == math.MaxUint32 || extent.Width == 0 || extent.Height == 0 {
		extent = fallback
	}

	families := []uint32{info.Graphics}
	if info.Present != info.Graphics {
		families = append(families, info.Present)
	}

	count := ImageCount(info.Capabilities)
	chain, err := dev.NewSwapchain(gfx.SwapchainInfo{
		Surface:     surface,
		ImageCount:  count,
		Format:      info.SurfaceFormat,
		PresentMode: info.PresentMode,
		Extent:      extent,
		Families:    families,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "core.NewSwapchainManager(%d images)", count)
	}

	m := &SwapchainManager{
		device: dev,
		chain:  chain,
		log:    logging.For("swapchain"),
	}
	m.log.WithFields(log.Fields{
		"images": len(chain.Images()),
		"width":  extent.Width,
		"height": extent.Height,
		"mode":   info.PresentMode,
	}).Info("swapchain created")
	return m, nil
}

// SwapchainManager owns the presentable images, their views and their
// framebuffers. It remembers the index of the last acquired image so
// nothing else can be presented.
type SwapchainManager struct {
	device gfx.Device
	chain  gfx.Swapchain
	log    *log.Entry

	views        []gfx.ImageView
	framebuffers []gfx.Framebuffer

	acquired    uint32
	hasAcquired bool
}

// Images returns the number of swapchain images.
func (m *SwapchainManager) Images() int {
	return len(m.chain.Images())
}

// Extent returns the size of the images.
func (m *SwapchainManager) Extent() gfx.Extent2D {
	return m.chain.Extent()
}

// Format returns the format of the images.
func (m *SwapchainManager) Format() gfx.SurfaceFormat {
	return m.chain.Format()
}

// CreateFramebuffers creates a view and a framebuffer for every image.
func (m *SwapchainManager) CreateFramebuffers(pass gfx.RenderPass) error {
	for idx, img := range m.chain.Images() {
		view, err := m.device.NewImageView(img, m.chain.Format().Format)
		if err != nil {
			m.ReleaseFramebuffers()
			return errors.Wrapf(err, "core.CreateFramebuffers(): view %d", idx)
		}
		m.views = append(m.views, view)

		fb, err := m.device.NewFramebuffer(pass, view, m.chain.Extent())
		if err != nil {
			m.ReleaseFramebuffers()
			return errors.Wrapf(err, "core.CreateFramebuffers(): framebuffer %d", idx)
		}
		m.framebuffers = append(m.framebuffers, fb)
	}
	return nil
}

// Framebuffer returns the framebuffer of an image.
func (m *SwapchainManager) Framebuffer(index uint32) (gfx.Framebuffer, error) {
	if int(index) >= len(m.framebuffers) {
		return nil, errors.Newf("core.Framebuffer(): no framebuffer for image %d of %d", index, len(m.framebuffers))
	}
	return m.framebuffers[index], nil
}

// AcquireNextImage acquires the next image, signal is signaled once it
// can be rendered to. Out of date and lost surfaces are returned as is.
func (m *SwapchainManager) AcquireNextImage(signal gfx.Semaphore, timeout time.Duration) (uint32, bool, error) {
	m.hasAcquired = false
	index, suboptimal, err := m.chain.AcquireNextImage(timeout, signal)
	if err != nil {
		return 0, false, errors.Wrap(err, "core.AcquireNextImage()")
	}
	m.acquired = index
	m.hasAcquired = true
	if suboptimal {
		m.log.WithField("image", index).Warn("swapchain no longer matches the surface")
	}
	return index, suboptimal, nil
}

// Present queues the image for display once wait is signaled. Only the
// image returned by the preceding acquire is accepted, and only once.
func (m *SwapchainManager) Present(queue gfx.Queue, index uint32, wait gfx.Semaphore) error {
	if !m.hasAcquired || index != m.acquired {
		return errors.Wrapf(ErrImageNotAcquired, "core.Present(%d)", index)
	}
	m.hasAcquired = false
	if err := queue.Present(gfx.PresentInfo{
		Swapchain: m.chain,
		Index:     index,
		Wait:      []gfx.Semaphore{wait},
	}); err != nil {
		return errors.Wrapf(err, "core.Present(%d)", index)
	}
	return nil
}

// ReleaseFramebuffers releases framebuffers and then views.
func (m *SwapchainManager) ReleaseFramebuffers() {
	for idx := len(m.framebuffers) - 1; idx >= 0; idx-- {
		m.framebuffers[idx].Release()
	}
	m.framebuffers = nil
	for idx := len(m.views) - 1; idx >= 0; idx-- {
		m.views[idx].Release()
	}
	m.views = nil
}

// Release releases whatever framebuffers are left and the swapchain.
func (m *SwapchainManager) Release() {
	m.ReleaseFramebuffers()
	if m.chain != nil {
		m.chain.Release()
		m.chain = nil
		m.log.Info("swapchain released")
	}
}
