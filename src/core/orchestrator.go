// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/logging"
	"github.com/devblok/framer/src/model"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
)

// Options is everything a FrameOrchestrator is built from.
type Options struct {
	Device  gfx.Device
	Info    device.PhysicalDeviceInfo
	Surface gfx.Surface
	Shaders ShaderSet
	Config  RendererConfiguration
}

// Scene supplies what to draw on every frame.
type Scene interface {
	Meshes() []model.Mesh
	Camera() model.Camera
}

type releaseFunc struct {
	name string
	fn   func()
}

// FrameOrchestrator renders frames with a fixed number of frames in flight.
// It owns every object of the pipeline and releases them in reverse order
// of creation.
type FrameOrchestrator struct {
	device    gfx.Device
	info      device.PhysicalDeviceInfo
	config    RendererConfiguration
	allocator *ResourceAllocator
	swapchain *SwapchainManager
	uniform   *MappedBuffer
	pipeline  gfx.Pipeline
	transfer  *TransferStage
	recorder  *CommandRecorder
	scheduler *FrameScheduler
	graphics  gfx.Queue
	present   gfx.Queue
	log       *log.Entry
	stats     statsRecorder

	mu       sync.Mutex
	releases []releaseFunc
	released bool
}

// NewFrameOrchestrator builds the pipeline. When any step fails whatever
// was already created is released before the error is returned.
func NewFrameOrchestrator(opts Options) (_ *FrameOrchestrator, err error) {
	cfg := opts.Config
	if opts.Device == nil {
		return nil, errors.New("core.NewFrameOrchestrator(): no device")
	}
	if cfg.FramesInFlight < 1 {
		return nil, errors.Newf("core.NewFrameOrchestrator(): %d frames in flight", cfg.FramesInFlight)
	}

	o := &FrameOrchestrator{
		device:   opts.Device,
		info:     opts.Info,
		config:   cfg,
		graphics: opts.Device.Queue(opts.Info.Graphics),
		present:  opts.Device.Queue(opts.Info.Present),
		log:      logging.For("orchestrator"),
	}
	defer func() {
		if err != nil {
			o.unwind()
		}
	}()

	o.allocator = NewResourceAllocator(o.device)
	o.push("allocator", func() {
		if err := o.allocator.Release(); err != nil {
			o.log.WithError(err).Error("allocator released with live buffers")
		}
	})

	if o.swapchain, err = NewSwapchainManager(o.device, o.info, opts.Surface, cfg.Extent()); err != nil {
		return nil, err
	}
	o.push("swapchain", o.swapchain.Release)

	if o.uniform, err = o.allocator.CreateMappedBuffer(model.UniformSize, gfx.UsageUniform, o.info.Graphics); err != nil {
		return nil, errors.Wrap(err, "core.NewFrameOrchestrator(): uniform buffer")
	}
	o.push("uniform", func() { o.allocator.Destroy(o.uniform.Buffer) })

	if o.pipeline, err = o.device.NewPipeline(gfx.PipelineInfo{
		VertexShader:   opts.Shaders.Vertex,
		FragmentShader: opts.Shaders.Fragment,
		VertexStride:   model.VertexSize,
		Attributes:     model.Attributes(),
		Format:         o.swapchain.Format(),
		Extent:         o.swapchain.Extent(),
		Uniform:        o.uniform.Handle(),
		UniformSize:    model.UniformSize,
	}); err != nil {
		return nil, errors.Wrap(err, "core.NewFrameOrchestrator(): pipeline")
	}
	o.push("pipeline", o.pipeline.Release)

	if err = o.swapchain.CreateFramebuffers(o.pipeline.RenderPass()); err != nil {
		return nil, err
	}
	o.push("framebuffers", o.swapchain.ReleaseFramebuffers)
	o.raise("uniform")

	if o.transfer, err = NewTransferStage(o.allocator, o.device, o.info, cfg.Capacity(), cfg.StagingPolicy, cfg.FramesInFlight, cfg.Timeout()); err != nil {
		return nil, err
	}
	o.push("transfer", o.transfer.Release)

	if o.recorder, err = NewCommandRecorder(o.device, o.info.Graphics, cfg.FramesInFlight, o.swapchain, o.pipeline, o.transfer, cfg.Clear()); err != nil {
		return nil, err
	}
	o.push("recorder", o.recorder.Release)

	if o.scheduler, err = NewFrameScheduler(o.device, cfg.FramesInFlight); err != nil {
		return nil, err
	}
	o.push("scheduler", o.scheduler.Release)

	o.log.WithFields(log.Fields{
		"device":  o.info.Name,
		"flights": cfg.FramesInFlight,
		"images":  o.swapchain.Images(),
		"staging": cfg.StagingPolicy,
	}).Info("frame orchestrator ready")
	return o, nil
}

func (o *FrameOrchestrator) push(name string, fn func()) {
	o.releases = append(o.releases, releaseFunc{name: name, fn: fn})
}

// raise moves the named release to the top of the stack, so it runs
// before everything pushed so far.
func (o *FrameOrchestrator) raise(name string) {
	for idx, r := range o.releases {
		if r.name == name {
			o.releases = append(append(o.releases[:idx:idx], o.releases[idx+1:]...), r)
			return
		}
	}
}

func (o *FrameOrchestrator) unwind() {
	for idx := len(o.releases) - 1; idx >= 0; idx-- {
		o.log.WithField("part", o.releases[idx].name).Debug("releasing")
		o.releases[idx].fn()
	}
	o.releases = nil
}

// Flights returns the flights of the ring.
func (o *FrameOrchestrator) Flights() []*Flight {
	return o.scheduler.Flights()
}

// Allocator returns the allocator owning every buffer of the pipeline.
func (o *FrameOrchestrator) Allocator() *ResourceAllocator {
	return o.allocator
}

// Stats returns frame timings so far.
func (o *FrameOrchestrator) Stats() FrameStats {
	return o.stats.snapshot()
}

// Frame renders meshes seen through camera on the current flight, then
// moves on to the next flight. It blocks only while the current flight's
// previous frame is still executing. Meshes over capacity fail the frame
// before anything is waited on or written.
func (o *FrameOrchestrator) Frame(meshes []model.Mesh, camera model.Camera) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return errors.Wrap(ErrReleased, "core.Frame()")
	}

	vertices, indices := model.Pack(meshes)
	if err := o.transfer.Capacity().Check(len(vertices), len(indices)); err != nil {
		o.stats.failed()
		return errors.Wrap(err, "core.Frame()")
	}

	start := hrtime.Now()
	f, err := o.scheduler.Wait(o.config.Timeout())
	if err != nil {
		o.abort(o.scheduler.Current())
		return err
	}
	waited := hrtime.Since(start)

	if err := o.render(f, vertices, indices, camera); err != nil {
		o.abort(f)
		return err
	}
	o.stats.frame(hrtime.Since(start), waited)
	return nil
}

func (o *FrameOrchestrator) abort(f *Flight) {
	o.stats.failed()
	o.scheduler.Abort(f)
}

func (o *FrameOrchestrator) render(f *Flight, vertices []model.Vertex, indices []uint32, camera model.Camera) error {
	// Shared by every flight and not fenced, a flight still drawing may see this write.
	if err := o.uniform.Write(0, camera.Uniform(o.swapchain.Extent()).Bytes()); err != nil {
		return errors.Wrap(err, "core.Frame(): uniform")
	}

	if err := o.transfer.Upload(f, vertices, indices); err != nil {
		return err
	}

	image, _, err := o.swapchain.AcquireNextImage(f.ImgAvailable, o.config.Timeout())
	if err != nil {
		return err
	}
	if err := o.scheduler.Transition(f, Recording); err != nil {
		return err
	}

	cmd, err := o.recorder.RecordDraw(f, image)
	if err != nil {
		return err
	}

	if err := o.graphics.Submit(gfx.SubmitInfo{
		Wait: []gfx.SemaphoreWait{
			{Semaphore: f.TransferDone, Stage: gfx.StageVertexInput},
			{Semaphore: f.ImgAvailable, Stage: gfx.StageColorAttachmentOutput},
		},
		Commands: []gfx.CommandBuffer{cmd},
		Signal:   []gfx.Semaphore{f.RenderingDone},
	}, f.Presented); err != nil {
		return errors.Wrapf(err, "core.Frame(): flight %d draw", f.Index)
	}
	if err := o.scheduler.Transition(f, Submitted); err != nil {
		return err
	}

	if err := o.swapchain.Present(o.present, image, f.RenderingDone); err != nil {
		return err
	}
	if err := o.scheduler.Transition(f, Presenting); err != nil {
		return err
	}

	o.log.WithFields(log.Fields{"flight": f.Index, "image": image}).Debug("frame presented")
	return o.scheduler.Advance()
}

// Run renders a frame of scene on every tick until ctx is done. Frames
// over capacity are skipped, any other failure stops the loop.
func (o *FrameOrchestrator) Run(ctx context.Context, scene Scene, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			err := o.Frame(scene.Meshes(), scene.Camera())
			switch {
			case err == nil:
			case errors.Is(err, ErrCapacityExceeded):
				o.log.WithError(err).Warn("frame skipped")
			default:
				return err
			}
		}
	}
}

// Release waits for the device to finish and releases everything in
// reverse order of creation. Releasing twice does nothing.
func (o *FrameOrchestrator) Release() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return nil
	}
	o.released = true

	err := o.device.WaitIdle()
	if err != nil {
		o.log.WithError(err).Error("device did not go idle, releasing anyway")
		err = errors.Wrap(err, "core.Release()")
	}
	o.unwind()

	s := o.stats.snapshot()
	o.log.WithFields(log.Fields{
		"frames": s.Frames,
		"failed": s.Failed,
		"mean":   s.Mean(),
	}).Info("frame orchestrator released")
	return err
}
