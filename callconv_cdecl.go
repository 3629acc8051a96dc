//go:build !(windows && 386)

package vtpatch

import (
	"github.com/ebitengine/purego"
)

// cConvention covers every 64-bit target. Methods are plain functions with
// this as their leading argument.
type cConvention struct{}

func newNativeConvention(CodeAllocator) Convention {
	return cConvention{}
}

func (cConvention) MethodCallback(fn any) (uintptr, error) {
	return purego.NewCallback(fn), nil
}

func (c cConvention) CallMethod(fn, this uintptr, args ...uintptr) uintptr {
	return c.CallFunc(fn, append([]uintptr{this}, args...)...)
}

func (cConvention) CallFunc(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}
