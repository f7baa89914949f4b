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

// Semaphore is a binary semaphore. Signaling an already signaled
// semaphore has no effect.
type Semaphore struct {
	device *Device
	name   string
	ch     chan struct{}
}

func (s *Semaphore) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// wait consumes the signal, returns false when the device shut down first.
func (s *Semaphore) wait() bool {
	select {
	case <-s.ch:
		return true
	case <-s.device.done:
		return false
	}
}

// Name returns the name the semaphore appears under in the event log.
func (s *Semaphore) Name() string {
	return s.name
}

// Release implements interface
func (s *Semaphore) Release() {
	s.device.untrack(s.name)
}

// Fence is signaled by a queue worker when a submission retires.
type Fence struct {
	device *Device
	name   string

	mu       sync.Mutex
	done     chan struct{}
	signaled bool
	waits    int
	resets   int
}

func (f *Fence) signal() {
	f.mu.Lock()
	if f.signaled {
		f.mu.Unlock()
		return
	}
	f.signaled = true
	close(f.done)
	f.mu.Unlock()

	f.device.events.add(EventFenceSignal, f.name, 0, 0)
}

// Wait implements interface
func (f *Fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	f.waits++
	done := f.done
	f.mu.Unlock()

	f.device.events.add(EventFenceWait, f.name, 0, 0)
	if err := f.device.fault(OpFenceWait); err != nil {
		return err
	}

	if timeout < 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.Wrapf(gfx.ErrSyncTimeout, "soft.Wait(): %s after %v", f.name, timeout)
	}
}

// Reset implements interface
func (f *Fence) Reset() error {
	f.mu.Lock()
	f.resets++
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
	f.mu.Unlock()

	f.device.events.add(EventFenceReset, f.name, 0, 0)
	return nil
}

// Signaled implements interface
func (f *Fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, nil
}

// Waits returns how many times Wait was called.
func (f *Fence) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// Resets returns how many times Reset was called.
func (f *Fence) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Name returns the name the fence appears under in the event log.
func (f *Fence) Name() string {
	return f.name
}

// Release implements interface
func (f *Fence) Release() {
	f.device.untrack(f.name)
}
