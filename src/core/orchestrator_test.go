// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/gfx/soft"
	"github.com/devblok/framer/src/model"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
)

var testExtent = gfx.Extent2D{Width: 320, Height: 240}

func testConfig(n int, policy StagingPolicy) RendererConfiguration {
	cfg := DefaultConfiguration().Renderer
	cfg.Backend = BackendSoft
	cfg.FramesInFlight = n
	cfg.StagingPolicy = policy
	cfg.MaxVertices = 64
	cfg.MaxIndices = 128
	cfg.FenceTimeout = 5 * time.Second
	cfg.ScreenWidth = testExtent.Width
	cfg.ScreenHeight = testExtent.Height
	return cfg
}

func testOptions(c *qt.C, dev *soft.Device, cfg RendererConfiguration) Options {
	surface := &soft.Surface{Extent: testExtent}
	info, err := device.Select(soft.Candidates(surface))
	c.Assert(err, qt.IsNil)
	return Options{
		Device:  dev,
		Info:    info,
		Surface: surface,
		Shaders: ShaderSet{Name: "stub", Vertex: soft.StubShader(), Fragment: soft.StubShader()},
		Config:  cfg,
	}
}

func newTestOrchestrator(c *qt.C, cfg RendererConfiguration, opts soft.Options) (*FrameOrchestrator, *soft.Device) {
	dev := soft.New(opts)
	c.Cleanup(dev.Release)

	o, err := NewFrameOrchestrator(testOptions(c, dev, cfg))
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { o.Release() })
	return o, dev
}

var testCamera = model.NewCamera(glm.Vec3{2, 2, 2}, glm.Vec3{0, 0, 0})

func softFence(f *Flight) *soft.Fence {
	return f.Presented.(*soft.Fence)
}

func softBuffer(b *Buffer) *soft.Buffer {
	return b.Handle().(*soft.Buffer)
}

func TestFenceWaitedOncePerUse(t *testing.T) {
	for n := 1; n <= 4; n++ {
		c := qt.New(t)
		o, _ := newTestOrchestrator(c, testConfig(n, PerFlight), soft.Options{})

		mesh := []model.Mesh{model.Cube(1)}
		for frame := 0; frame < 2*n; frame++ {
			c.Assert(o.Frame(mesh, testCamera), qt.IsNil, qt.Commentf("n=%d frame %d", n, frame))
		}

		for _, f := range o.Flights() {
			c.Assert(softFence(f).Waits(), qt.Equals, 2, qt.Commentf("n=%d flight %d", n, f.Index))
			c.Assert(softFence(f).Resets(), qt.Equals, 2, qt.Commentf("n=%d flight %d", n, f.Index))
			c.Assert(f.State(), qt.Equals, Idle)
		}
		c.Assert(o.Stats().Frames, qt.Equals, 2*n)
	}
}

func TestCapacityExceededTouchesNothing(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(2, PerFlight)
	cfg.MaxVertices = 6
	o, dev := newTestOrchestrator(c, cfg, soft.Options{})

	before := len(dev.Events())
	err := o.Frame([]model.Mesh{model.Cube(1)}, testCamera)
	c.Assert(errors.Is(err, ErrCapacityExceeded), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsFalse)

	cfg.MaxVertices = 64
	cfg.MaxIndices = 6
	o2, dev2 := newTestOrchestrator(c, cfg, soft.Options{})
	before2 := len(dev2.Events())
	err = o2.Frame([]model.Mesh{model.Cube(1)}, testCamera)
	c.Assert(errors.Is(err, ErrCapacityExceeded), qt.IsTrue)

	c.Assert(dev.Events()[before:], qt.HasLen, 0)
	c.Assert(dev2.Events()[before2:], qt.HasLen, 0)
	c.Assert(o.Flights()[0].State(), qt.Equals, Idle)

	// The flight is untouched, so a fitting frame still renders on it.
	c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
	c.Assert(o.Stats().Failed, qt.Equals, 1)
}

func TestFrameBlocksOnRetiringFlight(t *testing.T) {
	c := qt.New(t)
	latency := 25 * time.Millisecond
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{Latency: latency})

	mesh := []model.Mesh{model.Square(1)}
	c.Assert(o.Frame(mesh, testCamera), qt.IsNil)

	start := hrtime.Now()
	c.Assert(o.Frame(mesh, testCamera), qt.IsNil)
	c.Assert(hrtime.Since(start) >= latency, qt.IsTrue)
	c.Assert(o.Stats().LastWait >= latency, qt.IsTrue)

	fence := softFence(o.Flights()[0]).Name()
	staging := softBuffer(o.transfer.sets[0].staging.Buffer).Name()

	var signaled = -1
	var writes []soft.Event
	for _, e := range dev.Events() {
		switch {
		case e.Kind == soft.EventFenceSignal && e.Object == fence && signaled < 0:
			signaled = e.Seq
		case e.Kind == soft.EventWrite && e.Object == staging:
			writes = append(writes, e)
		}
	}
	c.Assert(signaled >= 0, qt.IsTrue)
	// Two writes per frame, vertices then indices.
	c.Assert(writes, qt.HasLen, 4)
	c.Assert(writes[1].Seq < signaled, qt.IsTrue)
	for _, w := range writes[2:] {
		c.Assert(w.Seq > signaled, qt.IsTrue, qt.Commentf("%v written before %v signaled", w, fence))
	}
}

func TestUploadRoundTrip(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{})

	cube := model.Cube(2)
	cube.SetPosition(glm.Translate3D(1, 2, 3))
	c.Assert(o.Frame([]model.Mesh{cube}, testCamera), qt.IsNil)

	square := model.Square(1)
	c.Assert(o.Frame([]model.Mesh{square}, testCamera), qt.IsNil)
	c.Assert(dev.WaitIdle(), qt.IsNil)

	flight := o.Flights()[0]
	capacity := o.transfer.Capacity()
	cubeVertices, cubeIndices := model.Pack([]model.Mesh{cube})
	vertices, indices := model.Pack([]model.Mesh{square})

	gotVertices := softBuffer(o.transfer.VertexBuffer(flight)).Bytes()
	gotIndices := softBuffer(o.transfer.IndexBuffer(flight)).Bytes()
	c.Assert(gotVertices, qt.HasLen, capacity.VertexBytes())
	c.Assert(gotIndices, qt.HasLen, capacity.IndexBytes())

	wantVertices := model.VertexBytes(vertices)
	wantIndices := model.IndexBytes(indices)
	c.Assert(gotVertices[:len(wantVertices)], qt.DeepEquals, wantVertices)
	c.Assert(gotIndices[:len(wantIndices)], qt.DeepEquals, wantIndices)

	// Whatever the smaller mesh did not overwrite is left from the cube.
	staleVertices := model.VertexBytes(cubeVertices)
	staleIndices := model.IndexBytes(cubeIndices)
	c.Assert(gotVertices[len(wantVertices):len(staleVertices)], qt.DeepEquals, staleVertices[len(wantVertices):])
	c.Assert(gotIndices[len(wantIndices):len(staleIndices)], qt.DeepEquals, staleIndices[len(wantIndices):])

	uniform := softBuffer(o.uniform.Buffer).Bytes()
	c.Assert(uniform, qt.DeepEquals, testCamera.Uniform(testExtent).Bytes())
}

func TestPresentsAcquiredImage(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(2, PerFlight), soft.Options{})

	for frame := 0; frame < 7; frame++ {
		c.Assert(o.Frame([]model.Mesh{model.Octahedron(1)}, testCamera), qt.IsNil)
	}
	c.Assert(dev.WaitIdle(), qt.IsNil)

	var acquired, presented, drawn []uint32
	for _, e := range soft.Filter(dev.Events(), soft.EventAcquire, soft.EventPresent, soft.EventDraw) {
		switch e.Kind {
		case soft.EventAcquire:
			acquired = append(acquired, e.Index)
		case soft.EventPresent:
			presented = append(presented, e.Index)
		case soft.EventDraw:
			drawn = append(drawn, e.Index)
			c.Assert(e.Size, qt.Equals, o.transfer.Capacity().MaxIndices)
		}
	}
	c.Assert(acquired, qt.HasLen, 7)
	c.Assert(presented, qt.DeepEquals, acquired)
	c.Assert(drawn, qt.DeepEquals, acquired)
}

func TestDrawWaitsOnUploadAndAcquire(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(2, PerFlight), soft.Options{Latency: time.Millisecond})

	const frames = 6
	for frame := 0; frame < frames; frame++ {
		c.Assert(o.Frame([]model.Mesh{model.Cube(1)}, testCamera), qt.IsNil)
	}
	c.Assert(dev.WaitIdle(), qt.IsNil)

	name := func(s gfx.Semaphore) string { return s.(*soft.Semaphore).Name() }
	subs := dev.Submissions()
	for _, f := range o.Flights() {
		var uploads, draws []soft.Submission
		for _, s := range subs {
			switch {
			case len(s.Signal) == 1 && s.Signal[0] == name(f.TransferDone):
				uploads = append(uploads, s)
			case len(s.Signal) == 1 && s.Signal[0] == name(f.RenderingDone):
				draws = append(draws, s)
			}
		}
		c.Assert(uploads, qt.HasLen, frames/2)
		c.Assert(draws, qt.HasLen, frames/2)

		for idx, s := range draws {
			c.Assert(s.Queue, qt.Equals, o.graphics.(*soft.Queue).Name())
			c.Assert(s.Wait, qt.DeepEquals, []soft.Wait{
				{Semaphore: name(f.TransferDone), Stage: gfx.StageVertexInput},
				{Semaphore: name(f.ImgAvailable), Stage: gfx.StageColorAttachmentOutput},
			})
			c.Assert(s.Fence, qt.Equals, softFence(f).Name())
			c.Assert(uploads[idx].Fence, qt.Equals, "")
			c.Assert(uploads[idx].Seq < s.Seq, qt.IsTrue)
		}
	}

	// The n-th draw belongs to flight n % 2 and must come after that
	// frame's copies into the flight's buffers.
	events := dev.Events()
	for n, draw := range soft.Filter(events, soft.EventDraw) {
		f := o.Flights()[n%2]
		vertices := softBuffer(o.transfer.VertexBuffer(f)).Name()
		indices := softBuffer(o.transfer.IndexBuffer(f)).Name()
		var copied int
		for _, e := range soft.Filter(events[:draw.Seq], soft.EventCopy) {
			if e.Object == vertices || e.Object == indices {
				copied++
			}
		}
		c.Assert(copied, qt.Equals, 2*(n/2+1), qt.Commentf("draw %d", n))
	}
}

func TestSharedStaging(t *testing.T) {
	c := qt.New(t)
	o, _ := newTestOrchestrator(c, testConfig(3, Shared), soft.Options{Latency: time.Millisecond})

	// uniform plus one staging, vertex and index buffer
	c.Assert(o.Allocator().Live(), qt.Equals, 4)

	for frame := 0; frame < 6; frame++ {
		c.Assert(o.Frame([]model.Mesh{model.Cube(1)}, testCamera), qt.IsNil)
	}
	for _, f := range o.Flights() {
		c.Assert(o.transfer.VertexBuffer(f), qt.Equals, o.transfer.VertexBuffer(o.Flights()[0]))
		c.Assert(softFence(f).Resets(), qt.Equals, 2)
		// Its own two waits and the upload of the next flight waiting on it.
		c.Assert(softFence(f).Waits() >= 3, qt.IsTrue)
	}
}

func TestReleaseOrder(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{})
	defer dev.Release()

	o, err := NewFrameOrchestrator(testOptions(c, dev, testConfig(2, PerFlight)))
	c.Assert(err, qt.IsNil)
	for frame := 0; frame < 3; frame++ {
		c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
	}
	c.Assert(len(dev.Live()) > 0, qt.IsTrue)
	uniform := softBuffer(o.uniform.Buffer).Name()

	c.Assert(o.Release(), qt.IsNil)
	c.Assert(dev.Live(), qt.HasLen, 0)
	c.Assert(o.Allocator().Live(), qt.Equals, 0)
	c.Assert(o.Release(), qt.IsNil)

	events := dev.Events()
	idle := soft.Filter(events, soft.EventWaitIdle)
	releases := soft.Filter(events, soft.EventRelease)
	c.Assert(idle, qt.HasLen, 1)
	c.Assert(idle[0].Seq < releases[0].Seq, qt.IsTrue)

	prefix := func(e soft.Event) string {
		for idx, r := range e.Object {
			if r == '#' {
				return e.Object[:idx]
			}
		}
		return e.Object
	}
	c.Assert(prefix(releases[0]), qt.Equals, "fence")
	c.Assert(prefix(releases[len(releases)-1]), qt.Equals, "swapchain")

	// Buffers go before framebuffers and views, which go before the pipeline.
	at := func(match func(soft.Event) bool) (first, last int) {
		first, last = -1, -1
		for idx, e := range releases {
			if match(e) {
				if first < 0 {
					first = idx
				}
				last = idx
			}
		}
		return first, last
	}
	_, lastBuffer := at(func(e soft.Event) bool { return prefix(e) == "buffer" })
	_, uniformAt := at(func(e soft.Event) bool { return e.Object == uniform })
	firstView, lastView := at(func(e soft.Event) bool {
		return prefix(e) == "framebuffer" || prefix(e) == "image-view"
	})
	pipelineAt, _ := at(func(e soft.Event) bool { return prefix(e) == "pipeline" })
	c.Assert(uniformAt >= 0, qt.IsTrue)
	c.Assert(lastBuffer < firstView, qt.IsTrue)
	c.Assert(lastView < pipelineAt, qt.IsTrue)

	err = o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, ErrReleased), qt.IsTrue)
}

func TestConstructionFailureUnwinds(t *testing.T) {
	boom := errors.New("boom")
	for _, op := range []soft.Op{
		soft.OpNewSwapchain,
		soft.OpNewBuffer,
		soft.OpNewPipeline,
		soft.OpNewSemaphore,
		soft.OpNewFence,
	} {
		c := qt.New(t)
		dev := soft.New(soft.Options{})
		dev.Inject(op, boom)

		o, err := NewFrameOrchestrator(testOptions(c, dev, testConfig(2, PerFlight)))
		c.Assert(o, qt.IsNil, qt.Commentf("%s", op))
		c.Assert(errors.Is(err, boom), qt.IsTrue, qt.Commentf("%s", op))
		c.Assert(dev.Live(), qt.HasLen, 0, qt.Commentf("%s", op))
		dev.Release()
	}
}

func TestAllocationFailureIsMarked(t *testing.T) {
	c := qt.New(t)
	dev := soft.New(soft.Options{DeviceMemory: 100})
	defer dev.Release()

	_, err := NewFrameOrchestrator(testOptions(c, dev, testConfig(2, PerFlight)))
	c.Assert(errors.Is(err, gfx.ErrOutOfDeviceMemory), qt.IsTrue)
	c.Assert(errors.Is(err, gfx.ErrResourceAllocationFailed), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsTrue)
	c.Assert(dev.Live(), qt.HasLen, 0)
}

func TestFailedFenceWaitRecovers(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{})

	dev.Inject(soft.OpFenceWait, gfx.ErrDeviceLost)
	err := o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, gfx.ErrDeviceLost), qt.IsTrue)
	c.Assert(o.Flights()[0].State(), qt.Equals, Idle)

	c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
}

func TestFailedSubmitPoisonsFlight(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{})

	dev.Inject(soft.OpSubmit, gfx.ErrDeviceLost)
	err := o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, gfx.ErrDeviceLost), qt.IsTrue)
	c.Assert(o.Flights()[0].State(), qt.Equals, Uploading)

	err = o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, ErrInvalidTransition), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsTrue)
}

func TestAcquireFailureIsReturnedUnretried(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{})

	c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
	acquires := dev.Calls(soft.OpAcquire)
	submits := len(dev.Submissions())

	dev.Inject(soft.OpAcquire, gfx.ErrSwapchainOutOfDate)
	err := o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, gfx.ErrSwapchainOutOfDate), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsTrue)
	c.Assert(dev.Calls(soft.OpAcquire), qt.Equals, acquires+1)
	c.Assert(soft.Filter(dev.Events(), soft.EventAcquire), qt.HasLen, 1)
	// The upload went out, the draw did not.
	c.Assert(dev.Submissions(), qt.HasLen, submits+1)
	c.Assert(o.Flights()[0].State(), qt.Equals, Uploading)

	err = o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, ErrInvalidTransition), qt.IsTrue)
	c.Assert(dev.Calls(soft.OpAcquire), qt.Equals, acquires+1)
	c.Assert(o.Flights()[0].State(), qt.Equals, Uploading)
}

func TestPresentFailureIsReturnedUnretried(t *testing.T) {
	c := qt.New(t)
	o, dev := newTestOrchestrator(c, testConfig(1, PerFlight), soft.Options{})

	c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
	presents := dev.Calls(soft.OpPresent)

	dev.Inject(soft.OpPresent, gfx.ErrSurfaceLost)
	err := o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, gfx.ErrSurfaceLost), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsTrue)
	c.Assert(dev.Calls(soft.OpPresent), qt.Equals, presents+1)
	c.Assert(dev.Calls(soft.OpAcquire), qt.Equals, 2)
	c.Assert(o.Flights()[0].State(), qt.Equals, Submitted)

	err = o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, ErrInvalidTransition), qt.IsTrue)
	c.Assert(dev.Calls(soft.OpPresent), qt.Equals, presents+1)
	c.Assert(o.Flights()[0].State(), qt.Equals, Submitted)

	c.Assert(dev.WaitIdle(), qt.IsNil)
	c.Assert(soft.Filter(dev.Events(), soft.EventPresent), qt.HasLen, 1)
}

func TestFenceTimeout(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(1, PerFlight)
	cfg.FenceTimeout = 5 * time.Millisecond
	o, _ := newTestOrchestrator(c, cfg, soft.Options{Latency: 200 * time.Millisecond})

	c.Assert(o.Frame([]model.Mesh{model.Square(1)}, testCamera), qt.IsNil)
	err := o.Frame([]model.Mesh{model.Square(1)}, testCamera)
	c.Assert(errors.Is(err, gfx.ErrSyncTimeout), qt.IsTrue)
	c.Assert(ErrFatal(err), qt.IsTrue)
	c.Assert(o.Flights()[0].State(), qt.Equals, Idle)
}

type testScene struct {
	meshes []model.Mesh
}

func (s testScene) Meshes() []model.Mesh { return s.meshes }

func (s testScene) Camera() model.Camera { return testCamera }

func TestRunSkipsOversizedFrames(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig(2, PerFlight)
	o, _ := newTestOrchestrator(c, cfg, soft.Options{})

	ticks := make(chan time.Time)
	done := make(chan error)
	go func() {
		done <- o.Run(context.Background(), testScene{meshes: []model.Mesh{model.Cube(1)}}, ticks)
	}()
	for idx := 0; idx < 5; idx++ {
		ticks <- time.Now()
	}
	close(ticks)
	c.Assert(<-done, qt.IsNil)
	c.Assert(o.Stats().Frames, qt.Equals, 5)

	huge := make([]model.Mesh, 0, 10)
	for idx := 0; idx < 10; idx++ {
		huge = append(huge, model.Cube(1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticks = make(chan time.Time)
	go func() {
		done <- o.Run(ctx, testScene{meshes: huge}, ticks)
	}()
	ticks <- time.Now()
	ticks <- time.Now()
	cancel()
	c.Assert(<-done, qt.IsNil)
	c.Assert(o.Stats().Frames, qt.Equals, 5)
	c.Assert(o.Stats().Failed, qt.Equals, 2)
}

func BenchmarkFrame(b *testing.B) {
	dev := soft.New(soft.Options{})
	defer dev.Release()

	c := qt.New(b)
	o, err := NewFrameOrchestrator(testOptions(c, dev, testConfig(2, PerFlight)))
	c.Assert(err, qt.IsNil)
	defer o.Release()

	mesh := []model.Mesh{model.Cube(1), model.Octahedron(1)}
	bench := hrtime.NewBenchmark(b.N)
	for bench.Next() {
		if err := o.Frame(mesh, testCamera); err != nil {
			b.Fatal(err)
		}
	}
	b.Log(bench.Histogram(10))
}
