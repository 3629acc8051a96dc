//go:build darwin || linux

package steamlib

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

func load(path string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return 0, errors.Wrapf(err, "dlopen %s", path)
	}
	return handle, nil
}

func lookup(handle uintptr, name string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, name)
	if err != nil {
		return 0, errors.Wrapf(err, "dlsym %s", name)
	}
	return addr, nil
}
