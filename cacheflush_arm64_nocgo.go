//go:build arm64 && !cgo

package vtpatch

// arm64 requires a C compiler to flush the instruction cache after writing
// stubs into the arena. The shim is built with -buildmode=c-shared, which
// needs cgo anyway.
func cacheflush(buf []byte) {
	arm64_requires_cgo_for_instruction_cache_flushing()
}
