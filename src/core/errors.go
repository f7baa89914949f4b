// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// Errors raised by the frame pipeline itself. Backend errors are the
// sentinels of package gfx.
var (
	ErrCapacityExceeded  = errors.New("mesh exceeds vertex or index capacity")
	ErrImageNotAcquired  = errors.New("image index was not returned by the preceding acquire")
	ErrBufferReleased    = errors.New("buffer already released")
	ErrLiveBuffers       = errors.New("allocator released with live buffers")
	ErrInvalidTransition = errors.New("invalid flight state transition")
	ErrReleased          = errors.New("frame orchestrator released")
)

// ErrFatal reports whether err leaves the pipeline unusable, in which case
// the caller has to tear it down and build a new one. Timeouts are
// recoverable only when the caller decides so, here they count as fatal.
func ErrFatal(err error) bool {
	return gfx.Fatal(err) || errors.IsAny(err, gfx.ErrSyncTimeout, ErrInvalidTransition, ErrReleased)
}
