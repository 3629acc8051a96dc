//go:build arm64 && cgo

package vtpatch

import "unsafe"

/*
static void vtpatch_clear_cache(char *start, char *end) {
	__builtin___clear_cache(start, end);
}
*/
import "C"

// cacheflush makes freshly written stubs visible to instruction fetch.
func cacheflush(buf []byte) {
	start := unsafe.Pointer(unsafe.SliceData(buf))
	end := unsafe.Add(start, len(buf))
	C.vtpatch_clear_cache((*C.char)(start), (*C.char)(end))
}
