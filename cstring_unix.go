//go:build unix

package vtpatch

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// cString copies the NUL-terminated string at p. A null p gives "".
func cString(p uintptr) string {
	return unix.BytePtrToString((*byte)(unsafe.Pointer(p)))
}
