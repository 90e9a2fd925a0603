package tlsf

import "unsafe"

const (
	blockFlagFree     uintptr = 1 << 0
	blockFlagPrevFree uintptr = 1 << 1
	blockFlagMask             = blockFlagFree | blockFlagPrevFree
)

// blockHeader precedes every block's payload in pool memory. The two low bits
// of sizeMask are status flags; alignment keeps them clear in the size itself.
// prevFree and nextFree are meaningful only while the block is on a free list;
// they occupy the first bytes of the payload area, which is what sets the
// minimum block size.
//
// Headers live inside []byte pools the garbage collector treats as opaque.
// Every pointer they hold targets pool memory or the allocator's own sentinel,
// both kept reachable by the Allocator itself.
type blockHeader struct {
	prevPhys *blockHeader
	sizeMask uintptr
	prevFree *blockHeader
	nextFree *blockHeader
}

func (b *blockHeader) size() int        { return int(b.sizeMask &^ blockFlagMask) }
func (b *blockHeader) setSize(size int) { b.sizeMask = uintptr(size) | (b.sizeMask & blockFlagMask) }

func (b *blockHeader) isLast() bool     { return b.size() == 0 }
func (b *blockHeader) isFree() bool     { return b.sizeMask&blockFlagFree != 0 }
func (b *blockHeader) isPrevFree() bool { return b.sizeMask&blockFlagPrevFree != 0 }

func (b *blockHeader) setFree()     { b.sizeMask |= blockFlagFree }
func (b *blockHeader) setUsed()     { b.sizeMask &^= blockFlagFree }
func (b *blockHeader) setPrevFree() { b.sizeMask |= blockFlagPrevFree }
func (b *blockHeader) setPrevUsed() { b.sizeMask &^= blockFlagPrevFree }

func offsetToBlock(p unsafe.Pointer, off int) *blockHeader {
	return (*blockHeader)(unsafe.Add(p, off))
}

// blockToPtr returns the payload base of a block; blockFromPtr is its inverse.
func (a *Allocator) blockToPtr(b *blockHeader) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), a.overhead)
}

func (a *Allocator) blockFromPtr(p unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Add(p, -a.overhead))
}

// nextPhys returns the physically following block. Must not be called on the
// trailing sentinel.
func (a *Allocator) nextPhys(b *blockHeader) *blockHeader {
	return offsetToBlock(unsafe.Pointer(b), a.overhead+b.size())
}

// linkNext rewrites the following block's back reference and returns it.
func (a *Allocator) linkNext(b *blockHeader) *blockHeader {
	next := a.nextPhys(b)
	next.prevPhys = b
	return next
}

func (a *Allocator) markUsed(b *blockHeader) {
	a.nextPhys(b).setPrevUsed()
	b.setUsed()
}

func (a *Allocator) markFree(b *blockHeader) {
	a.linkNext(b).setPrevFree()
	b.setFree()
}

// canSplit reports whether a block can be cut at size and still leave a
// remainder of at least minBlockSize behind its own header.
func (a *Allocator) canSplit(b *blockHeader, size int) bool {
	return b.size() >= size+a.overhead+a.minBlockSize
}

// split cuts b down to size and returns the free remainder. The caller fixes
// the remainder's prev-free flag to match b's status.
func (a *Allocator) split(b *blockHeader, size int) *blockHeader {
	remaining := offsetToBlock(unsafe.Pointer(b), a.overhead+size)
	remainSize := b.size() - size - a.overhead
	b.setSize(size)
	a.linkNext(b)
	remaining.sizeMask = uintptr(remainSize)
	a.markFree(remaining)
	return remaining
}

// merge absorbs next, which must physically follow b, into b.
func (a *Allocator) merge(b, next *blockHeader) *blockHeader {
	b.setSize(b.size() + a.overhead + next.size())
	a.linkNext(b)
	return b
}
