// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/cockroachdb/errors"

// Errors a backend reports. Backends wrap them with call details,
// callers match with errors.Is.
var (
	ErrNoSuitableDevice   = errors.New("no suitable device")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrOutOfHostMemory    = errors.New("out of host memory")
	ErrSyncTimeout        = errors.New("synchronization wait timed out")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrSurfaceLost        = errors.New("surface lost")
	ErrDeviceLost         = errors.New("device lost")
	ErrNotMappable        = errors.New("buffer memory is not host visible")
	ErrAlreadyMapped      = errors.New("buffer is already mapped")
	ErrOutOfRange         = errors.New("write outside of mapped range")
)

// Error categories. An error is marked with its category so callers can
// tell a selection failure from an allocation failure without listing causes.
var (
	ErrDeviceSelectionFailed    = errors.New("device selection failed")
	ErrResourceAllocationFailed = errors.New("resource allocation failed")
)

// Fatal reports whether err leaves the device unusable, so the whole
// pipeline has to be torn down and rebuilt.
func Fatal(err error) bool {
	return errors.IsAny(err,
		ErrDeviceLost,
		ErrSurfaceLost,
		ErrSwapchainOutOfDate,
		ErrDeviceSelectionFailed,
		ErrResourceAllocationFailed,
	)
}

// AllocationFailed marks err as an allocation failure.
func AllocationFailed(err error) error {
	return errors.Mark(err, ErrResourceAllocationFailed)
}
