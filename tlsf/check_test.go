package tlsf

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// checkHeap walks every pool's physical chain and the full free-list index,
// verifying the structural invariants that must hold between operations:
// chain termination and size accounting, status-flag consistency, eager
// coalescing, bitmap-list agreement and size-class filing.
func checkHeap(t *testing.T, a *Allocator) {
	t.Helper()

	freeSeen := make(map[*blockHeader]bool)

	for pi, pool := range a.pools {
		usable := poolUsable(a, len(pool))

		b := (*blockHeader)(unsafe.Pointer(&pool[0]))
		require.False(t, b.isPrevFree(), "pool %d: first block claims a free predecessor", pi)

		var prev *blockHeader
		sum := 0
		for !b.isLast() {
			size := b.size()
			require.Zero(t, size&(a.alignSize-1), "pool %d: block size %d not aligned", pi, size)
			require.GreaterOrEqual(t, size, a.minBlockSize, "pool %d: undersized block", pi)
			require.LessOrEqual(t, size, a.maxBlockSize, "pool %d: oversized block", pi)
			if prev != nil {
				require.Same(t, prev, b.prevPhys, "pool %d: broken physical back link", pi)
				require.Equal(t, prev.isFree(), b.isPrevFree(), "pool %d: stale prev-free flag", pi)
				require.False(t, prev.isFree() && b.isFree(), "pool %d: adjacent free blocks", pi)
			}
			if b.isFree() {
				freeSeen[b] = true
			}
			sum += a.overhead + size
			prev = b
			b = a.nextPhys(b)
		}

		require.False(t, b.isFree(), "pool %d: sentinel marked free", pi)
		if prev != nil {
			require.Same(t, prev, b.prevPhys, "pool %d: sentinel back link", pi)
			require.Equal(t, prev.isFree(), b.isPrevFree(), "pool %d: sentinel prev-free flag", pi)
		}
		require.Equal(t, a.overhead+usable, sum, "pool %d: chain does not cover the usable interior", pi)
	}

	indexed := 0
	for f := 0; f < a.flIndexCount; f++ {
		for s := 0; s < slIndexCount; s++ {
			head := a.blocks[f][s]
			bitSet := a.slBitmap[f]&(1<<uint(s)) != 0
			require.Equal(t, head != &a.blockNull, bitSet, "sl bitmap disagrees with list (%d,%d)", f, s)

			prevFree := &a.blockNull
			for b := head; b != &a.blockNull; b = b.nextFree {
				require.True(t, b.isFree(), "used block on free list (%d,%d)", f, s)
				require.Same(t, prevFree, b.prevFree, "broken free-list back link (%d,%d)", f, s)
				bf, bs := a.mappingInsert(b.size())
				require.Equal(t, [2]int{f, s}, [2]int{bf, bs}, "block of size %d filed under wrong class", b.size())
				require.True(t, freeSeen[b], "free-list entry missing from physical chain")
				indexed++
				prevFree = b
			}
		}
		flSet := a.flBitmap&(1<<uint(f)) != 0
		require.Equal(t, a.slBitmap[f] != 0, flSet, "fl bitmap disagrees with sl bitmap at %d", f)
	}
	require.Equal(t, len(freeSeen), indexed, "free blocks on chain vs index")
}

// poolUsable mirrors the usable-interior accounting of AddPool.
func poolUsable(a *Allocator, poolLen int) int {
	size := poolLen
	if size > a.maxBlockSize {
		size = a.maxBlockSize
	}
	return alignDown(size-2*a.overhead, a.alignSize)
}

// freeBlockSizes returns the sizes of all free blocks in physical-chain
// order across every pool.
func freeBlockSizes(a *Allocator) []int {
	var sizes []int
	for _, pool := range a.pools {
		b := (*blockHeader)(unsafe.Pointer(&pool[0]))
		for !b.isLast() {
			if b.isFree() {
				sizes = append(sizes, b.size())
			}
			b = a.nextPhys(b)
		}
	}
	return sizes
}
