//go:build !arm64

package vtpatch

// x86 keeps instruction and data caches coherent.
func cacheflush(buf []byte) {}
