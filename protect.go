package vtpatch

import (
	"syscall"
)

// Protector relaxes memory protection so a vtable slot can be overwritten.
type Protector interface {
	// Unprotect makes [addr, addr+size) writable and executable. The
	// returned func puts back the protection the range had before and must
	// be called on every path once the write is done.
	Unprotect(addr uintptr, size int) (restore func() error, err error)
}

// pageProtector changes protection on whole pages through the OS.
type pageProtector struct{}

// pageRange expands [addr, addr+size) to the pages containing it.
func pageRange(addr uintptr, size int) (uintptr, int) {
	pageSize := syscall.Getpagesize()

	// Round address down to page boundary.
	// Example: addr=4196 with pageSize=4096 becomes 4096.
	pageStart := addr &^ (uintptr(pageSize) - 1)

	// Round up to cover complete pages.
	regionSize := (int(addr-pageStart) + size + pageSize - 1) &^ (pageSize - 1)

	return pageStart, regionSize
}
