// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestCheckMarksResults(t *testing.T) {
	cases := []struct {
		result vk.Result
		mark   error
	}{
		{vk.ErrorOutOfDate, gfx.ErrSwapchainOutOfDate},
		{vk.ErrorSurfaceLost, gfx.ErrSurfaceLost},
		{vk.ErrorDeviceLost, gfx.ErrDeviceLost},
		{vk.ErrorOutOfDeviceMemory, gfx.ErrOutOfDeviceMemory},
		{vk.ErrorOutOfHostMemory, gfx.ErrOutOfHostMemory},
		{vk.Timeout, gfx.ErrSyncTimeout},
		{vk.NotReady, gfx.ErrSyncTimeout},
	}
	for _, c := range cases {
		err := check("vk.Test()", c.result)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, c.mark), "%v", c.result)
	}

	assert.NoError(t, check("vk.Test()", vk.Success))

	err := check("vk.Test()", vk.ErrorInitializationFailed)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, gfx.ErrDeviceLost))
}

func TestSliceUint32(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 0x07230203)
	binary.LittleEndian.PutUint32(data[4:], 1)
	binary.LittleEndian.PutUint32(data[8:], math.MaxUint32)

	words := SliceUint32(data)
	if assert.Len(t, words, 3) && isLittleEndian() {
		assert.Equal(t, []uint32{0x07230203, 1, math.MaxUint32}, words)
	}
	assert.Len(t, SliceUint32(data[:7]), 1)
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b"}))
	assert.Empty(t, safeStrings(nil))
}

func TestNanos(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), nanos(gfx.Forever))
	assert.Equal(t, uint64(2e9), nanos(2*time.Second))
	assert.Equal(t, uint64(0), nanos(0))
}

func isLittleEndian() bool {
	b := []byte{1, 0, 0, 0}
	return SliceUint32(b)[0] == 1
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}
