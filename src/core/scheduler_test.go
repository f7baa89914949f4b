// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/gfx/soft"
	qt "github.com/frankban/quicktest"
)

// finish walks the current flight through the rest of a frame.
func finish(c *qt.C, s *FrameScheduler, f *Flight) {
	for _, to := range []FlightState{Recording, Submitted, Presenting} {
		c.Assert(s.Transition(f, to), qt.IsNil)
	}
	c.Assert(s.Advance(), qt.IsNil)
}

func TestSchedulerRing(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{})
	defer dev.Release()

	s, err := NewFrameScheduler(dev, 3)
	c.Assert(err, qt.IsNil)
	defer s.Release()
	c.Assert(s.Flights(), qt.HasLen, 3)

	for frame := 0; frame < 6; frame++ {
		f, err := s.Wait(time.Second)
		c.Assert(err, qt.IsNil)
		c.Assert(f.Index, qt.Equals, frame%3)
		c.Assert(f.State(), qt.Equals, Uploading)

		signaled, _ := f.Presented.Signaled()
		c.Assert(signaled, qt.IsFalse)

		// Stand in for the draw retiring.
		c.Assert(dev.Queue(0).Submit(gfx.SubmitInfo{}, f.Presented), qt.IsNil)
		finish(c, s, f)
	}
}

func TestSchedulerTransitions(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{})
	defer dev.Release()

	s, err := NewFrameScheduler(dev, 1)
	c.Assert(err, qt.IsNil)
	defer s.Release()

	f := s.Current()
	c.Assert(errors.Is(s.Transition(f, Recording), ErrInvalidTransition), qt.IsTrue)
	c.Assert(errors.Is(s.Advance(), ErrInvalidTransition), qt.IsTrue)
	c.Assert(f.State(), qt.Equals, Idle)
	c.Assert(f.State().String(), qt.Equals, "idle")
	c.Assert(FlightState(42).String(), qt.Equals, "unknown")

	_, err = s.Wait(time.Second)
	c.Assert(err, qt.IsNil)
	s.Abort(f)
	c.Assert(f.State(), qt.Equals, Uploading)

	_, err = s.Wait(time.Second)
	c.Assert(errors.Is(err, ErrInvalidTransition), qt.IsTrue)
}

func TestSchedulerWaitTimeout(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{})
	defer dev.Release()

	s, err := NewFrameScheduler(dev, 1)
	c.Assert(err, qt.IsNil)
	defer s.Release()

	f, err := s.Wait(time.Second)
	c.Assert(err, qt.IsNil)
	finish(c, s, f)

	// Nothing was submitted, so the fence stays unsignaled.
	_, err = s.Wait(time.Millisecond)
	c.Assert(errors.Is(err, gfx.ErrSyncTimeout), qt.IsTrue)
	c.Assert(f.State(), qt.Equals, Waiting)
	s.Abort(f)
	c.Assert(f.State(), qt.Equals, Idle)
}

func TestSchedulerCreation(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{})
	defer dev.Release()

	_, err := NewFrameScheduler(dev, 0)
	c.Assert(err, qt.IsNotNil)

	dev.Inject(soft.OpNewFence, gfx.ErrOutOfHostMemory)
	_, err = NewFrameScheduler(dev, 2)
	c.Assert(errors.Is(err, gfx.ErrOutOfHostMemory), qt.IsTrue)
	c.Assert(dev.Live(), qt.HasLen, 0)

	s, err := NewFrameScheduler(dev, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Live(), qt.HasLen, 8)
	s.Release()
	c.Assert(dev.Live(), qt.HasLen, 0)
}
