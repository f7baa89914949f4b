// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	log "github.com/sirupsen/logrus"
)

// FlightState is where a flight is within its frame.
type FlightState int

// Flight states, in the order a frame goes through them
const (
	Idle FlightState = iota
	Waiting
	Uploading
	Recording
	Submitted
	Presenting
)

var stateNames = [...]string{"idle", "waiting", "uploading", "recording", "submitted", "presenting"}

func (s FlightState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// next is the only state each state may move to.
var next = map[FlightState]FlightState{
	Idle:       Waiting,
	Waiting:    Uploading,
	Uploading:  Recording,
	Recording:  Submitted,
	Submitted:  Presenting,
	Presenting: Idle,
}

// Flight is one slot of the frames-in-flight ring. Its resources may be
// reused only after Presented has signaled.
type Flight struct {
	Index int

	ImgAvailable  gfx.Semaphore
	TransferDone  gfx.Semaphore
	RenderingDone gfx.Semaphore
	Presented     gfx.Fence

	state FlightState
}

// State returns the state of the flight.
func (f *Flight) State() FlightState {
	return f.state
}

func (f *Flight) release() {
	for _, r := range []gfx.Releasable{f.Presented, f.RenderingDone, f.TransferDone, f.ImgAvailable} {
		if r != nil {
			r.Release()
		}
	}
}

// NewFrameScheduler creates n flights. Fences start signaled so the first
// wait on each flight returns at once.
func NewFrameScheduler(dev gfx.Device, n int) (*FrameScheduler, error) {
	if n < 1 {
		return nil, errors.Newf("core.NewFrameScheduler(): %d frames in flight", n)
	}
	s := &FrameScheduler{log: logging.For("scheduler")}
	for idx := 0; idx < n; idx++ {
		f, err := newFlight(dev, idx)
		if err != nil {
			s.Release()
			return nil, err
		}
		s.flights = append(s.flights, f)
	}
	s.log.WithField("flights", n).Info("frame scheduler created")
	return s, nil
}

func newFlight(dev gfx.Device, idx int) (*Flight, error) {
	f := &Flight{Index: idx}
	var err error
	for _, sem := range []*gfx.Semaphore{&f.ImgAvailable, &f.TransferDone, &f.RenderingDone} {
		if *sem, err = dev.NewSemaphore(); err != nil {
			f.release()
			return nil, errors.Wrapf(err, "core.NewFrameScheduler(): flight %d", idx)
		}
	}
	if f.Presented, err = dev.NewFence(true); err != nil {
		f.release()
		return nil, errors.Wrapf(err, "core.NewFrameScheduler(): flight %d", idx)
	}
	return f, nil
}

// FrameScheduler owns the flights and the cursor of the current one.
type FrameScheduler struct {
	flights []*Flight
	current int
	log     *log.Entry
}

// Flights returns every flight, in ring order.
func (s *FrameScheduler) Flights() []*Flight {
	return s.flights
}

// Current returns the flight the next frame runs on.
func (s *FrameScheduler) Current() *Flight {
	return s.flights[s.current]
}

// Wait blocks until the current flight's previous frame has retired and
// resets its fence. This is the only place the frame loop blocks.
func (s *FrameScheduler) Wait(timeout time.Duration) (*Flight, error) {
	f := s.Current()
	if err := s.Transition(f, Waiting); err != nil {
		return nil, err
	}
	if err := f.Presented.Wait(timeout); err != nil {
		return nil, errors.Wrapf(err, "core.Wait(): flight %d", f.Index)
	}
	if err := f.Presented.Reset(); err != nil {
		return nil, errors.Wrapf(err, "core.Wait(): flight %d", f.Index)
	}
	if err := s.Transition(f, Uploading); err != nil {
		return nil, err
	}
	s.log.WithField("flight", f.Index).Debug("flight retired")
	return f, nil
}

// Transition moves the flight to the given state.
func (s *FrameScheduler) Transition(f *Flight, to FlightState) error {
	if next[f.state] != to {
		return errors.Wrapf(ErrInvalidTransition, "core.Transition(): flight %d from %s to %s", f.Index, f.state, to)
	}
	f.state = to
	return nil
}

// Abort is called when a frame fails. A flight that failed while waiting
// still owns a live fence and goes back to idle. Any later failure left
// the fence reset with nothing to signal it, so the flight stays where it
// is and every further frame on it fails.
func (s *FrameScheduler) Abort(f *Flight) {
	if f.state == Waiting {
		f.state = Idle
		return
	}
	s.log.WithFields(log.Fields{"flight": f.Index, "state": f.state}).Error("flight abandoned mid-frame")
}

// Advance finishes the current flight's frame and moves the cursor on.
func (s *FrameScheduler) Advance() error {
	if err := s.Transition(s.Current(), Idle); err != nil {
		return err
	}
	s.current = (s.current + 1) % len(s.flights)
	return nil
}

// Release releases every flight's fence and semaphores.
// The device must be idle.
func (s *FrameScheduler) Release() {
	for idx := len(s.flights) - 1; idx >= 0; idx-- {
		s.flights[idx].release()
	}
	s.flights = nil
}
