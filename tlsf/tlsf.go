// Package tlsf implements a Two-Level Segregated Fit memory allocator over
// caller-supplied memory regions.
//
// Allocation, deallocation and resize run in bounded time: a request maps to
// a (first-level, second-level) size class, a two-level bitmap locates the
// smallest non-empty class, and splitting and eager coalescing keep
// fragmentation low. The allocator never touches memory outside the installed
// pools and never asks the Go runtime for more.
//
// An Allocator is NOT goroutine-safe. Callers needing concurrent access must
// wrap it with their own locking; operations on distinct allocators are
// independent.
package tlsf

import (
	"fmt"
	"unsafe"
)

// Default configuration: 8-byte payload alignment, 1GB largest block.
const (
	DefaultAlignLog2  = 3
	DefaultFLIndexMax = 30
)

// Allocator is a TLSF heap. All block metadata lives inline in the installed
// pools; the Allocator itself holds only the free-list index, references to
// the installed pools and derived configuration.
type Allocator struct {
	// blockNull terminates every free list. Empty lists point at it from
	// both ends and it points at itself.
	blockNull blockHeader

	flBitmap uint32
	slBitmap []uint32
	blocks   [][slIndexCount]*blockHeader

	// pools pins every installed region so blocks stay reachable.
	pools [][]byte

	alignSize      int
	flIndexShift   int
	flIndexCount   int
	smallBlockSize int
	maxBlockSize   int
	overhead       int // bytes between a block's header base and its payload
	minBlockSize   int
}

// New creates an allocator with the default configuration and installs arena
// as its first pool. The arena's base must be 8-byte aligned.
func New(arena []byte) (*Allocator, error) {
	return NewWithConfig(arena, DefaultAlignLog2, DefaultFLIndexMax)
}

// NewWithConfig creates an allocator with a payload alignment of
// 1<<alignLog2 bytes and a largest allocatable block of 1<<flIndexMax bytes,
// then installs arena as its first pool.
func NewWithConfig(arena []byte, alignLog2, flIndexMax int) (*Allocator, error) {
	if alignLog2 < 2 || alignLog2 >= 5 {
		return nil, fmt.Errorf("alignLog2 must be in [2, 5), got %d", alignLog2)
	}
	if flIndexMax < 10 || flIndexMax >= 32 {
		return nil, fmt.Errorf("flIndexMax must be in [10, 32), got %d", flIndexMax)
	}
	if flIndexMax-alignLog2 <= 5 {
		return nil, fmt.Errorf("flIndexMax (%d) must exceed alignLog2 (%d) by more than 5", flIndexMax, alignLog2)
	}

	align := 1 << uint(alignLog2)
	headerSize := int(unsafe.Sizeof(blockHeader{}))
	overhead := alignUp(int(2*unsafe.Sizeof(uintptr(0))), align)

	a := &Allocator{
		alignSize:      align,
		flIndexShift:   slIndexCountLog2 + alignLog2,
		smallBlockSize: 1 << uint(slIndexCountLog2+alignLog2),
		maxBlockSize:   1 << uint(flIndexMax),
		overhead:       overhead,
		minBlockSize:   alignUp(headerSize-overhead, align),
	}
	a.flIndexCount = flIndexMax - a.flIndexShift + 1
	a.slBitmap = make([]uint32, a.flIndexCount)
	a.blocks = make([][slIndexCount]*blockHeader, a.flIndexCount)

	a.blockNull.nextFree = &a.blockNull
	a.blockNull.prevFree = &a.blockNull
	for i := range a.blocks {
		for j := range a.blocks[i] {
			a.blocks[i][j] = &a.blockNull
		}
	}

	if err := a.AddPool(arena); err != nil {
		return nil, err
	}
	return a, nil
}

// AddPool installs mem as an additional contiguous free region. The base must
// be aligned to the configured alignment and the region large enough to hold
// one minimum block plus the leading header and trailing sentinel. mem must
// stay untouched by the caller for the allocator's lifetime.
func (a *Allocator) AddPool(mem []byte) error {
	minLen := 2*a.overhead + a.minBlockSize
	if len(mem) < minLen {
		return fmt.Errorf("pool too small: %d bytes, need at least %d", len(mem), minLen)
	}
	base := unsafe.Pointer(&mem[0])
	if uintptr(base)&uintptr(a.alignSize-1) != 0 {
		return fmt.Errorf("pool base must be %d-byte aligned", a.alignSize)
	}

	// Usable interior: clamp to the largest block, then reserve the leading
	// header and the trailing sentinel before aligning down.
	size := len(mem)
	if size > a.maxBlockSize {
		size = a.maxBlockSize
	}
	size = alignDown(size-2*a.overhead, a.alignSize)

	block := (*blockHeader)(base)
	block.prevPhys = nil
	block.sizeMask = uintptr(size) | blockFlagFree
	a.insertBlock(block)

	// Zero-size used sentinel terminates the physical chain. Only its first
	// two fields exist in the reserved tail; never write past them.
	next := a.linkNext(block)
	next.sizeMask = blockFlagPrevFree

	a.pools = append(a.pools, mem)
	return nil
}

// Alloc allocates a block of at least size bytes. The returned slice has
// len == size and cap equal to the block's usable size, and its base is
// aligned to the configured alignment. Returns nil if size is not positive,
// exceeds the largest allocatable block, or no free block can satisfy it.
func (a *Allocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	adjusted := a.adjustSize(size)
	block := a.locateFreeBlock(adjusted)
	if block == nil {
		return nil
	}
	a.blockTrimFree(block, adjusted)
	a.markUsed(block)
	p := a.blockToPtr(block)
	return unsafe.Slice((*byte)(p), block.size())[:size]
}

// Free returns a block to the allocator, eagerly coalescing it with free
// physical neighbors. block must be a slice returned by Alloc or Realloc,
// not a reslice of its interior; nil is a no-op. Panics on a foreign or
// already-freed block.
func (a *Allocator) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	b := a.blockFromData(block)
	if b.isFree() {
		panic("tlsf: double free or invalid block")
	}
	a.markFree(b)
	b = a.blockMergePrev(b)
	b = a.blockMergeNext(b)
	a.insertBlock(b)
}

// Realloc resizes a block, growing in place into a free successor when
// possible and relocating otherwise. A nil block behaves like Alloc; a size
// of zero or less frees the block and returns nil. On failure Realloc
// returns nil and the original block remains valid. When it returns non-nil,
// the first min(oldSize, size) payload bytes are preserved.
func (a *Allocator) Realloc(block []byte, size int) []byte {
	if cap(block) == 0 {
		return a.Alloc(size)
	}
	if size <= 0 {
		a.Free(block)
		return nil
	}

	b := a.blockFromData(block)
	if b.isFree() {
		panic("tlsf: realloc of freed block")
	}
	adjusted := a.adjustSize(size)
	if adjusted == 0 {
		return nil
	}
	next := a.nextPhys(b)
	current := b.size()
	combined := current + a.overhead + next.size()

	if adjusted > current && (!next.isFree() || adjusted > combined) {
		p := a.Alloc(size)
		if p == nil {
			return nil
		}
		n := current
		if size < n {
			n = size
		}
		copy(p, unsafe.Slice((*byte)(a.blockToPtr(b)), n))
		a.Free(block)
		return p
	}

	if adjusted > current {
		a.blockMergeNext(b)
		a.markUsed(b)
	}
	a.blockTrimUsed(b, adjusted)
	return unsafe.Slice((*byte)(a.blockToPtr(b)), b.size())[:size]
}

// locateFreeBlock finds and removes the smallest free block that satisfies an
// adjusted request size, or returns nil when memory is exhausted.
func (a *Allocator) locateFreeBlock(size int) *blockHeader {
	if size == 0 {
		return nil
	}
	fl, sl := a.mappingSearch(size)
	if fl >= a.flIndexCount {
		return nil
	}
	block, fl, sl := a.searchSuitableBlock(fl, sl)
	if block == nil {
		return nil
	}
	a.removeFreeBlock(block, fl, sl)
	return block
}

// searchSuitableBlock locates the head of the smallest non-empty class at or
// above (fl, sl). Returns nil when every candidate class is empty.
func (a *Allocator) searchSuitableBlock(fl, sl int) (*blockHeader, int, int) {
	slMap := a.slBitmap[fl] & (^uint32(0) << uint(sl))
	if slMap == 0 {
		flMap := a.flBitmap & (^uint32(0) << uint(fl+1))
		if flMap == 0 {
			return nil, 0, 0
		}
		fl = ffs(flMap)
		slMap = a.slBitmap[fl]
	}
	sl = ffs(slMap)
	return a.blocks[fl][sl], fl, sl
}

// insertFreeBlock pushes block at the head of class (fl, sl) and sets the
// class's bits in both bitmap levels.
func (a *Allocator) insertFreeBlock(b *blockHeader, fl, sl int) {
	head := a.blocks[fl][sl]
	b.nextFree = head
	b.prevFree = &a.blockNull
	head.prevFree = b
	a.blocks[fl][sl] = b
	a.flBitmap |= 1 << uint(fl)
	a.slBitmap[fl] |= 1 << uint(sl)
}

// removeFreeBlock splices block out of class (fl, sl), clearing the class's
// bits when its list becomes empty.
func (a *Allocator) removeFreeBlock(b *blockHeader, fl, sl int) {
	prev, next := b.prevFree, b.nextFree
	next.prevFree = prev
	prev.nextFree = next
	if a.blocks[fl][sl] == b {
		a.blocks[fl][sl] = next
		if next == &a.blockNull {
			a.slBitmap[fl] &^= 1 << uint(sl)
			if a.slBitmap[fl] == 0 {
				a.flBitmap &^= 1 << uint(fl)
			}
		}
	}
}

func (a *Allocator) insertBlock(b *blockHeader) {
	fl, sl := a.mappingInsert(b.size())
	a.insertFreeBlock(b, fl, sl)
}

func (a *Allocator) removeBlock(b *blockHeader) {
	fl, sl := a.mappingInsert(b.size())
	a.removeFreeBlock(b, fl, sl)
}

// blockTrimFree splits a free block down to size, returning the remainder to
// the index.
func (a *Allocator) blockTrimFree(b *blockHeader, size int) {
	if a.canSplit(b, size) {
		remaining := a.split(b, size)
		remaining.setPrevFree()
		a.insertBlock(remaining)
	}
}

// blockTrimUsed splits a used block down to size. The remainder coalesces
// with a free successor before insertion, restoring the no-adjacent-free
// invariant a grow-in-place resize may have broken.
func (a *Allocator) blockTrimUsed(b *blockHeader, size int) {
	if a.canSplit(b, size) {
		remaining := a.split(b, size)
		remaining.setPrevUsed()
		remaining = a.blockMergeNext(remaining)
		a.insertBlock(remaining)
	}
}

func (a *Allocator) blockMergePrev(b *blockHeader) *blockHeader {
	if b.isPrevFree() {
		prev := b.prevPhys
		a.removeBlock(prev)
		b = a.merge(prev, b)
	}
	return b
}

func (a *Allocator) blockMergeNext(b *blockHeader) *blockHeader {
	next := a.nextPhys(b)
	if next.isFree() {
		a.removeBlock(next)
		b = a.merge(b, next)
	}
	return b
}

// blockFromData recovers a block header from the slice handed out by Alloc
// or Realloc. Panics when the slice does not point into an installed pool.
func (a *Allocator) blockFromData(block []byte) *blockHeader {
	// Read the data pointer through the slice header so zero-length inputs
	// are handled without bounds checks.
	p := *(*unsafe.Pointer)(unsafe.Pointer(&block))
	if !a.contains(uintptr(p)) {
		panic("tlsf: block not in any pool")
	}
	return a.blockFromPtr(p)
}

func (a *Allocator) contains(p uintptr) bool {
	for _, pool := range a.pools {
		start := uintptr(unsafe.Pointer(&pool[0]))
		if p >= start+uintptr(a.overhead) && p < start+uintptr(len(pool)) {
			return true
		}
	}
	return false
}
