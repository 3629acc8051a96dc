package vtpatch

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	protRX  = windows.PAGE_EXECUTE_READ
	protRWX = windows.PAGE_EXECUTE_READWRITE
)

func (pageProtector) Unprotect(addr uintptr, size int) (func() error, error) {
	start, length := pageRange(addr, size)

	var old uint32
	err := windows.VirtualProtect(start, uintptr(length), protRWX, &old)
	if err != nil {
		return nil, errors.Wrapf(err, "VirtualProtect %#x+%d", start, length)
	}

	return func() error {
		var ignored uint32
		return errors.Wrapf(windows.VirtualProtect(start, uintptr(length), old, &ignored), "restore protection on %#x+%d", start, length)
	}, nil
}
