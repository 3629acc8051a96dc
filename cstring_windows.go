package vtpatch

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// cString copies the NUL-terminated string at p. A null p gives "".
func cString(p uintptr) string {
	return windows.BytePtrToString((*byte)(unsafe.Pointer(p)))
}
