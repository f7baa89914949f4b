// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

const queueDepth = 1024

type job struct {
	wait   []*Semaphore
	cmds   []*CommandBuffer
	ops    [][]op
	signal []*Semaphore
	fence  *Fence
	record Submission

	swapchain *Swapchain
	index     uint32
}

// Queue executes submissions in order on its own goroutine.
type Queue struct {
	device *Device
	family uint32
	name   string
	jobs   chan job

	mu       sync.Mutex
	cond     *sync.Cond
	inflight int
	stopped  bool
	lost     error
}

func newQueue(d *Device, family uint32) *Queue {
	q := &Queue{
		device: d,
		family: family,
		name:   fmt.Sprintf("queue#%d", family),
		jobs:   make(chan job, queueDepth),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Name returns the name the queue appears under in the event log.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) run() {
	defer func() {
		q.mu.Lock()
		q.stopped = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	for {
		select {
		case j := <-q.jobs:
			if !q.execute(j) {
				return
			}
		case <-q.device.done:
			return
		}
	}
}

func (q *Queue) execute(j job) bool {
	for _, s := range j.wait {
		if !s.wait() {
			return false
		}
	}

	if latency := q.device.opts.Latency; latency > 0 {
		select {
		case <-time.After(latency):
		case <-q.device.done:
			return false
		}
	}

	if j.swapchain != nil {
		j.swapchain.present(j.index)
		q.device.events.add(EventPresent, j.swapchain.name, j.index, 0)
	}

	for idx, ops := range j.ops {
		for _, o := range ops {
			q.perform(o)
		}
		j.cmds[idx].retire()
	}

	for _, s := range j.signal {
		s.signal()
	}
	if j.fence != nil {
		j.fence.signal()
	}

	q.mu.Lock()
	q.inflight--
	q.cond.Broadcast()
	q.mu.Unlock()
	return true
}

func (q *Queue) perform(o op) {
	switch o.kind {
	case opCopy:
		if err := o.src.copyTo(o.dst, o.regions); err != nil {
			q.mu.Lock()
			if q.lost == nil {
				q.lost = errors.Mark(err, gfx.ErrDeviceLost)
			}
			q.mu.Unlock()
			return
		}
		size := 0
		for _, r := range o.regions {
			size += r.Size
		}
		q.device.events.add(EventCopy, o.dst.name, 0, size)
	case opDraw:
		q.device.events.add(EventDraw, o.framebuffer.name, o.framebuffer.view.image.Index, o.count)
	}
}

// idle blocks until every accepted submission has executed.
func (q *Queue) idle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.inflight > 0 && !q.stopped {
		q.cond.Wait()
	}
}

// enqueue accepts j for execution. Submissions are logged before the
// worker can observe them.
func (q *Queue) enqueue(j job) error {
	q.mu.Lock()
	if q.lost != nil {
		err := q.lost
		q.mu.Unlock()
		return err
	}
	if q.stopped {
		q.mu.Unlock()
		return errors.Wrapf(gfx.ErrDeviceLost, "soft: %s stopped", q.name)
	}
	q.inflight++
	q.mu.Unlock()

	if j.swapchain == nil {
		j.record.Queue = q.name
		j.record.Commands = len(j.cmds)
		q.device.events.submit(j.record)
	}
	q.jobs <- j
	return nil
}

func semaphores(in []gfx.Semaphore) ([]*Semaphore, error) {
	out := make([]*Semaphore, len(in))
	for idx, s := range in {
		sem, ok := s.(*Semaphore)
		if !ok {
			return nil, errors.Newf("soft: foreign semaphore %T", s)
		}
		out[idx] = sem
	}
	return out, nil
}

// Submit implements interface
func (q *Queue) Submit(info gfx.SubmitInfo, fence gfx.Fence) error {
	if err := q.device.fault(OpSubmit); err != nil {
		return err
	}

	j := job{}
	for _, w := range info.Wait {
		sem, ok := w.Semaphore.(*Semaphore)
		if !ok {
			return errors.Newf("soft.Submit(): foreign semaphore %T", w.Semaphore)
		}
		j.wait = append(j.wait, sem)
		j.record.Wait = append(j.record.Wait, Wait{Semaphore: sem.name, Stage: w.Stage})
	}
	signal, err := semaphores(info.Signal)
	if err != nil {
		return err
	}
	j.signal = signal
	for _, s := range signal {
		j.record.Signal = append(j.record.Signal, s.name)
	}

	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("soft.Submit(): foreign fence %T", fence)
		}
		if signaled, _ := f.Signaled(); signaled {
			return errors.Newf("soft.Submit(): %s is still signaled", f.name)
		}
		j.fence = f
		j.record.Fence = f.name
	}

	for _, c := range info.Commands {
		cmd, ok := c.(*CommandBuffer)
		if !ok {
			j.release()
			return errors.Newf("soft.Submit(): foreign command buffer %T", c)
		}
		ops, err := cmd.submit()
		if err != nil {
			j.release()
			return err
		}
		j.cmds = append(j.cmds, cmd)
		j.ops = append(j.ops, ops)
	}

	if err := q.enqueue(j); err != nil {
		j.release()
		return err
	}
	return nil
}

func (j job) release() {
	for _, c := range j.cmds {
		c.retire()
	}
}

// Present implements interface
func (q *Queue) Present(info gfx.PresentInfo) error {
	if err := q.device.fault(OpPresent); err != nil {
		return err
	}
	sc, ok := info.Swapchain.(*Swapchain)
	if !ok {
		return errors.Newf("soft.Present(): foreign swapchain %T", info.Swapchain)
	}
	if !sc.isAcquired(info.Index) {
		return errors.Newf("soft.Present(): image %d of %s was not acquired", info.Index, sc.name)
	}
	wait, err := semaphores(info.Wait)
	if err != nil {
		return err
	}
	return q.enqueue(job{wait: wait, swapchain: sc, index: info.Index})
}
