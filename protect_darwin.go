package vtpatch

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	protRX  = unix.PROT_READ | unix.PROT_EXEC
	protRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
)

// Vtables live in __DATA_CONST, which dyld leaves read-only once fixups are
// applied, so that is what the restore puts back.
const vtableProtection = unix.PROT_READ

func (pageProtector) Unprotect(addr uintptr, size int) (func() error, error) {
	start, length := pageRange(addr, size)
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), length)

	if err := unix.Mprotect(region, protRWX); err != nil {
		return nil, errors.Wrapf(err, "mprotect %#x+%d", start, length)
	}

	return func() error {
		return errors.Wrapf(unix.Mprotect(region, vtableProtection), "restore protection on %#x+%d", start, length)
	}, nil
}
