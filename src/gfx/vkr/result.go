// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
)

// check turns a failed result into an error marked with the matching
// gfx sentinel, so callers never see raw Vulkan results.
func check(call string, r vk.Result) error {
	if r == vk.Success {
		return nil
	}
	err := errors.Newf("%s: %v", call, vk.Error(r))
	switch r {
	case vk.ErrorOutOfDate:
		return errors.Mark(err, gfx.ErrSwapchainOutOfDate)
	case vk.ErrorSurfaceLost:
		return errors.Mark(err, gfx.ErrSurfaceLost)
	case vk.ErrorDeviceLost:
		return errors.Mark(err, gfx.ErrDeviceLost)
	case vk.ErrorOutOfDeviceMemory:
		return errors.Mark(err, gfx.ErrOutOfDeviceMemory)
	case vk.ErrorOutOfHostMemory:
		return errors.Mark(err, gfx.ErrOutOfHostMemory)
	case vk.Timeout, vk.NotReady:
		return errors.Mark(err, gfx.ErrSyncTimeout)
	default:
		return err
	}
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}
