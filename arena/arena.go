// Package arena provides aligned backing memory for allocators that operate
// on caller-supplied regions.
package arena

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Slab returns a heap-backed region of exactly size bytes. The memory is not
// zeroed: an allocator formats every header it reads, so clearing the region
// up front is wasted work.
func Slab(size int) []byte {
	return dirtmake.Bytes(size, size)
}

// Aligned slices buf forward to its first align-aligned byte. align must be a
// power of two. The result shares memory with buf and may be empty when buf
// holds no aligned byte.
func Aligned(buf []byte, align int) []byte {
	if align <= 0 || align&(align-1) != 0 {
		panic("arena: align must be a power of two")
	}
	if len(buf) == 0 {
		return buf
	}
	off := int(-uintptr(unsafe.Pointer(&buf[0])) & uintptr(align-1))
	if off > len(buf) {
		return buf[len(buf):]
	}
	return buf[off:]
}
