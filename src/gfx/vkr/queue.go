// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

// Queue wraps vk.Queue. Vulkan requires external synchronization of
// queue access, which the lock provides.
type Queue struct {
	device *Device
	queue  vk.Queue
	family uint32

	mu sync.Mutex
}

func semaphores(in []gfx.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(in))
	for idx, s := range in {
		sem, ok := s.(*Semaphore)
		if !ok {
			return nil, errors.Newf("vkr: foreign semaphore %T", s)
		}
		out[idx] = sem.semaphore
	}
	return out, nil
}

// Submit implements interface
func (q *Queue) Submit(info gfx.SubmitInfo, fence gfx.Fence) error {
	submit := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}
	for _, w := range info.Wait {
		sem, ok := w.Semaphore.(*Semaphore)
		if !ok {
			return errors.Newf("vkr.Submit(): foreign semaphore %T", w.Semaphore)
		}
		submit.PWaitSemaphores = append(submit.PWaitSemaphores, sem.semaphore)
		submit.PWaitDstStageMask = append(submit.PWaitDstStageMask, vk.PipelineStageFlags(w.Stage))
	}
	submit.WaitSemaphoreCount = uint32(len(submit.PWaitSemaphores))

	for _, c := range info.Commands {
		cmd, ok := c.(*CommandBuffer)
		if !ok {
			return errors.Newf("vkr.Submit(): foreign command buffer %T", c)
		}
		submit.PCommandBuffers = append(submit.PCommandBuffers, cmd.cmd)
	}
	submit.CommandBufferCount = uint32(len(submit.PCommandBuffers))

	signal, err := semaphores(info.Signal)
	if err != nil {
		return err
	}
	submit.PSignalSemaphores = signal
	submit.SignalSemaphoreCount = uint32(len(signal))

	var vkFence vk.Fence
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("vkr.Submit(): foreign fence %T", fence)
		}
		vkFence = f.fence
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return check("vk.QueueSubmit()", vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{submit}, vkFence))
}

// Present implements interface. A suboptimal swapchain still presents.
func (q *Queue) Present(info gfx.PresentInfo) error {
	sc, ok := info.Swapchain.(*Swapchain)
	if !ok {
		return errors.Newf("vkr.Present(): foreign swapchain %T", info.Swapchain)
	}
	wait, err := semaphores(info.Wait)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.Index},
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	r := vk.QueuePresent(q.queue, &presentInfo)
	if r == vk.Suboptimal {
		return nil
	}
	return check("vk.QueuePresent()", r)
}
