//go:build !unix

package arena

// Map falls back to a heap-backed slab on platforms without anonymous
// mappings.
func Map(size int) ([]byte, error) {
	return Slab(size), nil
}

// Unmap is a no-op for heap-backed regions.
func Unmap(mem []byte) error { return nil }
