// Package steamlib loads the real Steamworks API library that the shim
// forwards to and resolves symbols in it.
package steamlib

import (
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

var (
	// ErrLibraryLoad is returned by Open when no candidate file loads.
	ErrLibraryLoad = errors.New("steam api library not loaded")

	// ErrSymbolNotFound is returned when no spelling of a symbol resolves.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Symbols looks up exported symbols by exact name.
type Symbols interface {
	Lookup(name string) (uintptr, error)
}

// Library is a loaded copy of the real Steamworks API library. It is never
// unloaded.
type Library struct {
	path   string
	handle uintptr
}

// Open loads the first of candidates that loads successfully.
func Open(candidates []string) (*Library, error) {
	if len(candidates) == 0 {
		return nil, errors.Wrap(ErrLibraryLoad, "no candidates")
	}

	var failures []string
	for _, path := range candidates {
		handle, err := load(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("candidate did not load")
			failures = append(failures, err.Error())
			continue
		}
		log.WithField("path", path).Info("loaded steam api")
		return &Library{path: path, handle: handle}, nil
	}
	return nil, errors.Wrap(ErrLibraryLoad, strings.Join(failures, "; "))
}

// Lookup returns the address of the exported symbol name.
func (l *Library) Lookup(name string) (uintptr, error) {
	addr, err := lookup(l.handle, name)
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, errors.Errorf("%s resolved to null in %s", name, l.path)
	}
	return addr, nil
}
