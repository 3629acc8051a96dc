package vtpatch

import (
	"sync"

	"github.com/apex/log"
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// thiscallConvention adapts MSVC thiscall methods. Go callbacks are stdcall
// with this as the first stack argument; thunks written into the code arena
// move this between ECX and the stack in both directions.
type thiscallConvention struct {
	code CodeAllocator

	// original method address -> call thunk
	thunks sync.Map
}

func newNativeConvention(code CodeAllocator) Convention {
	return &thiscallConvention{code: code}
}

func (c *thiscallConvention) MethodCallback(fn any) (uintptr, error) {
	cb := purego.NewCallback(fn)
	addr, err := c.code.Write(thiscallEntryThunk(uint32(cb)))
	if err != nil {
		return 0, errors.Wrap(err, "write thiscall entry thunk")
	}
	return addr, nil
}

func (c *thiscallConvention) CallMethod(fn, this uintptr, args ...uintptr) uintptr {
	thunk, err := c.callThunk(fn)
	if err != nil {
		log.WithError(err).WithField("method", hex(fn)).Error("cannot call original method")
		return 0
	}
	return c.CallFunc(thunk, append([]uintptr{this}, args...)...)
}

func (c *thiscallConvention) callThunk(fn uintptr) (uintptr, error) {
	if thunk, ok := c.thunks.Load(fn); ok {
		return thunk.(uintptr), nil
	}
	addr, err := c.code.Write(thiscallCallThunk(uint32(fn)))
	if err != nil {
		return 0, errors.Wrap(err, "write thiscall call thunk")
	}
	// A racing caller may have written its own thunk; either works.
	thunk, _ := c.thunks.LoadOrStore(fn, addr)
	return thunk.(uintptr), nil
}

// CallFunc calls stdcall and cdecl functions alike; the syscall trampoline
// restores the stack pointer after the call.
func (c *thiscallConvention) CallFunc(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}
