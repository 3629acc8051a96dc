package steamlib

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func load(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, errors.Wrapf(err, "LoadLibrary %s", path)
	}
	return uintptr(h), nil
}

func lookup(handle uintptr, name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(handle), name)
	if err != nil {
		return 0, errors.Wrapf(err, "GetProcAddress %s", name)
	}
	return addr, nil
}
