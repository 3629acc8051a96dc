package vtpatch

import (
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
	"github.com/pkg/errors"
)

// CodeAllocator places machine code somewhere it can be executed from.
type CodeAllocator interface {
	// Write copies code into executable memory and returns its address.
	// The memory is never freed.
	Write(code []byte) (uintptr, error)
}

// arena is an executable CodeAllocator backed by an mmap'd malloc arena.
// The pages are writable only while Write is copying into them.
type arena struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
}

const arenaStartSize = 4096

func (a *arena) init() error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(malloc.MmapProt(protRWX))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(arenaStartSize, malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *arena) setMutable(mutable bool) error {
	if a.mutable == mutable {
		return nil
	}

	prot := protRX
	if mutable {
		prot = protRWX
	}
	err := a.mprotect(prot)
	if err == nil {
		a.mutable = mutable
	}
	return err
}

func (a *arena) Write(code []byte) (addr uintptr, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(); err != nil {
		return 0, errors.Wrap(err, "error initializing arena")
	}

	if err := a.setMutable(true); err != nil {
		return 0, errors.Wrap(err, "error unprotecting arena")
	}
	defer func() {
		if perr := a.setMutable(false); perr != nil && err == nil {
			err = errors.Wrap(perr, "error protecting arena")
		}
	}()

	buf, err := malloc.MallocSlice[byte](a.Arena, len(code))
	if err != nil {
		return 0, err
	}
	copy(buf, code)
	cacheflush(buf)

	return uintptr(unsafe.Pointer(unsafe.SliceData(buf))), nil
}
