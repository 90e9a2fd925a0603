package tlsf

import "math/bits"

const (
	slIndexCountLog2 = 5
	slIndexCount     = 1 << slIndexCountLog2
)

func alignUp(x, align int) int   { return (x + align - 1) &^ (align - 1) }
func alignDown(x, align int) int { return x &^ (align - 1) }

// ffs returns the index of the least significant set bit, or -1 if x is zero.
func ffs(x uint32) int {
	if x == 0 {
		return -1
	}
	return bits.TrailingZeros32(x)
}

// fls returns the index of the most significant set bit, or -1 if x is zero.
func fls(x uint) int {
	return bits.Len(x) - 1
}

// mappingInsert maps an exact block size to the (fl, sl) class that holds it.
// Sizes below smallBlockSize use linear subdivision under fl 0; larger sizes
// take fl from the leading bit and sl from the five bits below it.
func (a *Allocator) mappingInsert(size int) (fl, sl int) {
	if size < a.smallBlockSize {
		fl = 0
		sl = size / (a.smallBlockSize / slIndexCount)
		return
	}
	b := fls(uint(size))
	sl = (size >> uint(b-slIndexCountLog2)) ^ slIndexCount
	fl = b - a.flIndexShift + 1
	return
}

// mappingSearch maps an allocation request to a class whose every member is
// large enough to satisfy it, by rounding size up to the next second-level
// boundary before classifying.
func (a *Allocator) mappingSearch(size int) (fl, sl int) {
	if size >= a.smallBlockSize {
		size += 1<<uint(fls(uint(size))-slIndexCountLog2) - 1
	}
	return a.mappingInsert(size)
}

// adjustSize aligns size up and clamps it to the allocatable range.
// A zero return means the request exceeds the largest allocatable block.
func (a *Allocator) adjustSize(size int) int {
	aligned := alignUp(size, a.alignSize)
	if aligned < a.minBlockSize {
		return a.minBlockSize
	}
	if aligned <= a.maxBlockSize {
		return aligned
	}
	return 0
}
