// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	"github.com/devblok/framer/src/gfx/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffer(t *testing.T, d *soft.Device, size int, usage gfx.Usage, mem gfx.MemoryPolicy) *soft.Buffer {
	t.Helper()
	b, err := d.NewBuffer(gfx.BufferInfo{Size: size, Usage: usage, Memory: mem})
	require.NoError(t, err)
	return b.(*soft.Buffer)
}

func TestMapping(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	host := newBuffer(t, d, 8, gfx.UsageTransferSrc, gfx.HostVisibleCoherent)
	local := newBuffer(t, d, 8, gfx.UsageTransferDst, gfx.DeviceLocal)

	_, err := local.Map()
	assert.True(t, errors.Is(err, gfx.ErrNotMappable))

	m, err := host.Map()
	require.NoError(t, err)
	_, err = host.Map()
	assert.True(t, errors.Is(err, gfx.ErrAlreadyMapped))

	require.NoError(t, m.Write(2, []byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, host.Bytes())

	err = m.Write(6, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, gfx.ErrOutOfRange))
	assert.Equal(t, 8, m.Len())
}

func TestMemoryBudget(t *testing.T) {
	d := soft.New(soft.Options{DeviceMemory: 16, HostMemory: 8})
	defer d.Release()

	_, err := d.NewBuffer(gfx.BufferInfo{Size: 16, Memory: gfx.DeviceLocal})
	require.NoError(t, err)
	_, err = d.NewBuffer(gfx.BufferInfo{Size: 1, Memory: gfx.DeviceLocal})
	assert.True(t, errors.Is(err, gfx.ErrOutOfDeviceMemory))

	host, err := d.NewBuffer(gfx.BufferInfo{Size: 8, Memory: gfx.HostVisibleCoherent})
	require.NoError(t, err)
	_, err = d.NewBuffer(gfx.BufferInfo{Size: 8, Memory: gfx.HostVisibleCoherent})
	assert.True(t, errors.Is(err, gfx.ErrOutOfHostMemory))

	host.Release()
	_, err = d.NewBuffer(gfx.BufferInfo{Size: 8, Memory: gfx.HostVisibleCoherent})
	assert.NoError(t, err)
}

func recordCopy(t *testing.T, pool gfx.CommandPool, src, dst gfx.Buffer, size int) gfx.CommandBuffer {
	t.Helper()
	cmds, err := pool.Allocate(1)
	require.NoError(t, err)
	require.NoError(t, cmds[0].Begin())
	cmds[0].CopyBuffer(src, dst, []gfx.BufferCopy{{Size: size}})
	require.NoError(t, cmds[0].End())
	return cmds[0]
}

func TestSubmitCopiesAndSignals(t *testing.T) {
	d := soft.New(soft.Options{Latency: 5 * time.Millisecond})
	defer d.Release()

	src := newBuffer(t, d, 4, gfx.UsageTransferSrc, gfx.HostVisibleCoherent)
	dst := newBuffer(t, d, 4, gfx.UsageTransferDst|gfx.UsageVertex, gfx.DeviceLocal)
	m, err := src.Map()
	require.NoError(t, err)
	require.NoError(t, m.Write(0, []byte{9, 8, 7, 6}))

	pool, err := d.NewCommandPool(1, false)
	require.NoError(t, err)
	cmd := recordCopy(t, pool, src, dst, 4)

	fence, err := d.NewFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Queue(1).Submit(gfx.SubmitInfo{Commands: []gfx.CommandBuffer{cmd}}, fence))

	signaled, err := fence.Signaled()
	require.NoError(t, err)
	assert.False(t, signaled, "fence signaled before the latency passed")

	require.NoError(t, fence.Wait(time.Second))
	assert.Equal(t, []byte{9, 8, 7, 6}, dst.Bytes())

	kinds := []soft.Kind{}
	for _, e := range soft.Filter(d.Events(), soft.EventSubmit, soft.EventCopy, soft.EventFenceSignal) {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []soft.Kind{soft.EventSubmit, soft.EventCopy, soft.EventFenceSignal}, kinds)
}

func TestSemaphoreOrdersQueues(t *testing.T) {
	d := soft.New(soft.Options{Latency: 10 * time.Millisecond})
	defer d.Release()

	src := newBuffer(t, d, 4, gfx.UsageTransferSrc, gfx.HostVisibleCoherent)
	mid := newBuffer(t, d, 4, gfx.UsageTransferSrc|gfx.UsageTransferDst, gfx.DeviceLocal)
	dst := newBuffer(t, d, 4, gfx.UsageTransferDst, gfx.DeviceLocal)
	m, err := src.Map()
	require.NoError(t, err)
	require.NoError(t, m.Write(0, []byte{1, 2, 3, 4}))

	pool, err := d.NewCommandPool(0, false)
	require.NoError(t, err)
	first := recordCopy(t, pool, src, mid, 4)
	second := recordCopy(t, pool, mid, dst, 4)

	sem, err := d.NewSemaphore()
	require.NoError(t, err)
	fence, err := d.NewFence(false)
	require.NoError(t, err)

	// The dependent submission goes in first, on another queue.
	require.NoError(t, d.Queue(0).Submit(gfx.SubmitInfo{
		Wait:     []gfx.SemaphoreWait{{Semaphore: sem, Stage: gfx.StageTransfer}},
		Commands: []gfx.CommandBuffer{second},
	}, fence))
	require.NoError(t, d.Queue(1).Submit(gfx.SubmitInfo{
		Commands: []gfx.CommandBuffer{first},
		Signal:   []gfx.Semaphore{sem},
	}, nil))

	require.NoError(t, fence.Wait(time.Second))
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes())

	semName := sem.(*soft.Semaphore).Name()
	subs := d.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, soft.Submission{
		Seq:      subs[0].Seq,
		Queue:    d.Queue(0).(*soft.Queue).Name(),
		Wait:     []soft.Wait{{Semaphore: semName, Stage: gfx.StageTransfer}},
		Fence:    fence.(*soft.Fence).Name(),
		Commands: 1,
	}, subs[0])
	assert.Empty(t, subs[1].Wait)
	assert.Equal(t, []string{semName}, subs[1].Signal)
	assert.Empty(t, subs[1].Fence)
	assert.True(t, subs[0].Seq < subs[1].Seq)
	assert.Equal(t, soft.EventSubmit, d.Events()[subs[1].Seq].Kind)
}

func TestFenceTimeoutAndCounters(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	f, err := d.NewFence(true)
	require.NoError(t, err)
	fence := f.(*soft.Fence)

	require.NoError(t, fence.Wait(gfx.Forever))
	require.NoError(t, fence.Reset())

	err = fence.Wait(time.Millisecond)
	assert.True(t, errors.Is(err, gfx.ErrSyncTimeout))
	assert.Equal(t, 2, fence.Waits())
	assert.Equal(t, 1, fence.Resets())
}

func TestSubmitRejectsSignaledFence(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	fence, err := d.NewFence(true)
	require.NoError(t, err)
	assert.Error(t, d.Queue(0).Submit(gfx.SubmitInfo{}, fence))
}

func TestCommandBufferInUse(t *testing.T) {
	d := soft.New(soft.Options{Latency: 20 * time.Millisecond})
	defer d.Release()

	src := newBuffer(t, d, 4, gfx.UsageTransferSrc, gfx.HostVisibleCoherent)
	dst := newBuffer(t, d, 4, gfx.UsageTransferDst, gfx.DeviceLocal)
	pool, err := d.NewCommandPool(0, true)
	require.NoError(t, err)
	cmd := recordCopy(t, pool, src, dst, 4)

	fence, err := d.NewFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Queue(0).Submit(gfx.SubmitInfo{Commands: []gfx.CommandBuffer{cmd}}, fence))

	assert.Error(t, cmd.Reset())
	require.NoError(t, fence.Wait(time.Second))
	assert.NoError(t, cmd.Reset())
}

func TestRecordingValidation(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	pool, err := d.NewCommandPool(0, false)
	require.NoError(t, err)
	cmds, err := pool.Allocate(1)
	require.NoError(t, err)

	require.NoError(t, cmds[0].Begin())
	cmds[0].DrawIndexed(3)
	assert.Error(t, cmds[0].End())

	require.NoError(t, cmds[0].Begin())
	require.NoError(t, cmds[0].End())
	assert.Error(t, cmds[0].Begin(), "pool without reset rerecorded")
	assert.Error(t, cmds[0].Reset())
}

func TestSwapchainRoundRobin(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	surface := &soft.Surface{Extent: gfx.Extent2D{Width: 64, Height: 64}}
	sc, err := d.NewSwapchain(gfx.SwapchainInfo{Surface: surface, ImageCount: 2, Extent: surface.Extent})
	require.NoError(t, err)
	sem, err := d.NewSemaphore()
	require.NoError(t, err)

	first, _, err := sc.AcquireNextImage(gfx.Forever, sem)
	require.NoError(t, err)
	second, _, err := sc.AcquireNextImage(gfx.Forever, sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(1), second)

	_, _, err = sc.AcquireNextImage(time.Millisecond, sem)
	assert.True(t, errors.Is(err, gfx.ErrSyncTimeout))

	require.NoError(t, d.Queue(0).Present(gfx.PresentInfo{Swapchain: sc, Index: first}))
	again, _, err := sc.AcquireNextImage(time.Second, sem)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestSwapchainExtentMismatch(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	surface := &soft.Surface{Extent: gfx.Extent2D{Width: 64, Height: 64}}
	_, err := d.NewSwapchain(gfx.SwapchainInfo{Surface: surface, ImageCount: 2, Extent: gfx.Extent2D{Width: 1, Height: 1}})
	assert.True(t, errors.Is(err, gfx.ErrSwapchainOutOfDate))
}

func TestInjectedFaultIsOneShot(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	d.Inject(soft.OpNewBuffer, gfx.ErrOutOfDeviceMemory)
	_, err := d.NewBuffer(gfx.BufferInfo{Size: 4})
	assert.True(t, errors.Is(err, gfx.ErrOutOfDeviceMemory))

	_, err = d.NewBuffer(gfx.BufferInfo{Size: 4})
	assert.NoError(t, err)
	assert.Equal(t, 2, d.Calls(soft.OpNewBuffer))
	assert.Equal(t, 0, d.Calls(soft.OpSubmit))
}

func TestLiveObjects(t *testing.T) {
	d := soft.New(soft.Options{})
	defer d.Release()

	b, err := d.NewBuffer(gfx.BufferInfo{Size: 4})
	require.NoError(t, err)
	s, err := d.NewSemaphore()
	require.NoError(t, err)
	assert.Len(t, d.Live(), 2)

	s.Release()
	b.Release()
	b.Release()
	assert.Empty(t, d.Live())
	assert.Len(t, soft.Filter(d.Events(), soft.EventRelease), 2)
}
