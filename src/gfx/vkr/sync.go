// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

// Semaphore wraps vk.Semaphore.
type Semaphore struct {
	device    vk.Device
	semaphore vk.Semaphore
}

// Release implements interface
func (s *Semaphore) Release() {
	vk.DestroySemaphore(s.device, s.semaphore, nil)
}

// Fence wraps vk.Fence.
type Fence struct {
	device vk.Device
	fence  vk.Fence
}

func nanos(timeout time.Duration) uint64 {
	if timeout < 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// Wait implements interface
func (f *Fence) Wait(timeout time.Duration) error {
	r := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, nanos(timeout))
	if r == vk.Timeout {
		return errors.Wrapf(gfx.ErrSyncTimeout, "vk.WaitForFences(): after %v", timeout)
	}
	return check("vk.WaitForFences()", r)
}

// Reset implements interface
func (f *Fence) Reset() error {
	return check("vk.ResetFences()", vk.ResetFences(f.device, 1, []vk.Fence{f.fence}))
}

// Signaled implements interface
func (f *Fence) Signaled() (bool, error) {
	switch r := vk.GetFenceStatus(f.device, f.fence); r {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("vk.GetFenceStatus()", r)
	}
}

// Release implements interface
func (f *Fence) Release() {
	vk.DestroyFence(f.device, f.fence, nil)
}
