// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sync"
	"time"
)

// FrameStats are timings of the frames rendered so far.
type FrameStats struct {
	Frames    int
	Failed    int
	LastFrame time.Duration
	LastWait  time.Duration
	Total     time.Duration
}

// Mean returns the mean frame time.
func (s FrameStats) Mean() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

type statsRecorder struct {
	mu    sync.Mutex
	stats FrameStats
}

func (r *statsRecorder) frame(took, wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Frames++
	r.stats.LastFrame = took
	r.stats.LastWait = wait
	r.stats.Total += took
}

func (r *statsRecorder) failed() {
	r.mu.Lock()
	r.stats.Failed++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
