// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package soft implements an in-process device. Buffers live in host memory,
// submissions execute on one goroutine per queue in submission order and
// honour semaphore waits, copies are byte-for-byte and every observable action
// is appended to an event log. It runs the frame pipeline headless and is
// what the pipeline tests are written against.
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/device"
	"github.com/devblok/framer/src/gfx"
)

// Op names a device operation that faults can be injected into.
type Op string

// Operations accepting injected faults
const (
	OpNewBuffer    Op = "new-buffer"
	OpNewSemaphore Op = "new-semaphore"
	OpNewFence     Op = "new-fence"
	OpNewSwapchain Op = "new-swapchain"
	OpNewPipeline  Op = "new-pipeline"
	OpSubmit       Op = "submit"
	OpAcquire      Op = "acquire"
	OpPresent      Op = "present"
	OpFenceWait    Op = "fence-wait"
	OpWaitIdle     Op = "wait-idle"
)

var _ gfx.Device = (*Device)(nil)

// Options configures a Device.
type Options struct {
	// Latency is how long every submission takes to execute.
	Latency time.Duration

	// DeviceMemory and HostMemory are allocation budgets in bytes,
	// zero means unlimited.
	DeviceMemory int
	HostMemory   int
}

// Surface is the presentation target of a soft device.
type Surface struct {
	Extent gfx.Extent2D
}

// New creates a soft device.
func New(opts Options) *Device {
	return &Device{
		opts:   opts,
		queues: make(map[uint32]*Queue),
		faults: make(map[Op]error),
		calls:  make(map[Op]int),
		live:   make(map[string]bool),
		done:   make(chan struct{}),
		events: &eventLog{},
	}
}

// Device implements gfx.Device in host memory.
type Device struct {
	opts Options

	mu         sync.Mutex
	nextID     int
	queues     map[uint32]*Queue
	faults     map[Op]error
	calls      map[Op]int
	live       map[string]bool
	deviceUsed int
	hostUsed   int
	released   bool

	done   chan struct{}
	events *eventLog
}

// Candidates describes the soft device the way a backend enumerates
// physical devices, so it can go through device selection.
func Candidates(surface *Surface) []device.Candidate {
	extent := gfx.Extent2D{Width: 800, Height: 600}
	if surface != nil {
		extent = surface.Extent
	}
	return []device.Candidate{{
		Name:       "soft",
		Type:       gfx.DeviceTypeCPU,
		Extensions: []string{device.SwapchainExtension},
		QueueFamilies: []device.QueueFamily{
			{Index: 0, Flags: gfx.QueueGraphics | gfx.QueueCompute | gfx.QueueTransfer, Count: 1, Present: true},
			{Index: 1, Flags: gfx.QueueTransfer, Count: 1},
		},
		Capabilities: gfx.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 4,
			CurrentExtent: extent,
		},
		SurfaceFormats: []gfx.SurfaceFormat{
			{Format: gfx.FormatB8G8R8A8Unorm, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
			{Format: gfx.FormatB8G8R8A8SRGB, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []gfx.PresentMode{gfx.PresentModeMailbox, gfx.PresentModeFIFO},
	}}
}

// Inject makes the next call of op fail with err.
func (d *Device) Inject(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = err
}

func (d *Device) fault(op Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
	err, ok := d.faults[op]
	if !ok {
		return nil
	}
	delete(d.faults, op)
	return errors.Wrapf(err, "soft.%s()", op)
}

// Calls returns how many times op has been attempted, failed attempts
// included.
func (d *Device) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Submissions returns every accepted command submission in order.
func (d *Device) Submissions() []Submission {
	return d.events.submitted()
}

// Events returns every action recorded so far.
func (d *Device) Events() []Event {
	return d.events.snapshot()
}

// Live returns the names of objects created and not yet released.
func (d *Device) Live() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name := range d.live {
		names = append(names, name)
	}
	return names
}

func (d *Device) track(kind string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	name := fmt.Sprintf("%s#%d", kind, d.nextID)
	d.live[name] = true
	return name
}

func (d *Device) untrack(name string) {
	d.mu.Lock()
	delete(d.live, name)
	d.mu.Unlock()
	d.events.add(EventRelease, name, 0, 0)
}

// Queue implements interface
func (d *Device) Queue(family uint32) gfx.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[family]
	if !ok {
		q = newQueue(d, family)
		d.queues[family] = q
	}
	return q
}

// NewSemaphore implements interface
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	if err := d.fault(OpNewSemaphore); err != nil {
		return nil, err
	}
	return &Semaphore{
		device: d,
		name:   d.track("semaphore"),
		ch:     make(chan struct{}, 1),
	}, nil
}

// NewFence implements interface
func (d *Device) NewFence(signaled bool) (gfx.Fence, error) {
	if err := d.fault(OpNewFence); err != nil {
		return nil, err
	}
	f := &Fence{
		device: d,
		name:   d.track("fence"),
		done:   make(chan struct{}),
	}
	if signaled {
		f.signaled = true
		close(f.done)
	}
	return f, nil
}

// NewCommandPool implements interface
func (d *Device) NewCommandPool(family uint32, resettable bool) (gfx.CommandPool, error) {
	return &CommandPool{
		device:     d,
		name:       d.track("command-pool"),
		family:     family,
		resettable: resettable,
	}, nil
}

// NewImageView implements interface
func (d *Device) NewImageView(image gfx.Image, format gfx.Format) (gfx.ImageView, error) {
	img, ok := image.(*Image)
	if !ok {
		return nil, errors.Newf("soft.NewImageView(): foreign image %T", image)
	}
	return &ImageView{
		device: d,
		name:   d.track("image-view"),
		image:  img,
	}, nil
}

// NewFramebuffer implements interface
func (d *Device) NewFramebuffer(pass gfx.RenderPass, view gfx.ImageView, extent gfx.Extent2D) (gfx.Framebuffer, error) {
	v, ok := view.(*ImageView)
	if !ok {
		return nil, errors.Newf("soft.NewFramebuffer(): foreign image view %T", view)
	}
	if _, ok := pass.(*RenderPass); !ok {
		return nil, errors.Newf("soft.NewFramebuffer(): foreign render pass %T", pass)
	}
	return &Framebuffer{
		device: d,
		name:   d.track("framebuffer"),
		view:   v,
		extent: extent,
	}, nil
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	if err := d.fault(OpWaitIdle); err != nil {
		return err
	}
	d.mu.Lock()
	queues := make([]*Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.Unlock()

	for _, q := range queues {
		q.idle()
	}
	d.events.add(EventWaitIdle, "device", 0, 0)
	return nil
}

// Release stops every queue worker. Work still queued is dropped.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	close(d.done)
}

func (d *Device) reserve(policy gfx.MemoryPolicy, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch policy {
	case gfx.HostVisibleCoherent:
		if d.opts.HostMemory > 0 && d.hostUsed+size > d.opts.HostMemory {
			return errors.Wrapf(gfx.ErrOutOfHostMemory, "soft.NewBuffer(): %d bytes", size)
		}
		d.hostUsed += size
	default:
		if d.opts.DeviceMemory > 0 && d.deviceUsed+size > d.opts.DeviceMemory {
			return errors.Wrapf(gfx.ErrOutOfDeviceMemory, "soft.NewBuffer(): %d bytes", size)
		}
		d.deviceUsed += size
	}
	return nil
}

func (d *Device) unreserve(policy gfx.MemoryPolicy, size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if policy == gfx.HostVisibleCoherent {
		d.hostUsed -= size
	} else {
		d.deviceUsed -= size
	}
}
