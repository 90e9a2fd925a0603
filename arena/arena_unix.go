//go:build unix

package arena

import "golang.org/x/sys/unix"

// Map returns a page-aligned anonymous mapping of size bytes living outside
// the Go heap. Release it with Unmap once no allocator uses it.
func Map(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// Unmap releases a region returned by Map.
func Unmap(mem []byte) error {
	return unix.Munmap(mem)
}
