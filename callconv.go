package vtpatch

// Convention bridges Go and the native calling convention the host library
// uses for virtual methods and free functions. One implementation exists
// per target and is selected at build time:
//
//   - darwin and linux (SysV), windows amd64/arm64: this is the first
//     argument, passed like any other.
//   - windows/386: virtual methods use thiscall, with this in ECX and
//     the callee popping the stack. Thunks move this between ECX and the
//     stack.
//
// In every variant a Go function handed to MethodCallback takes this as its
// first uintptr parameter followed by the method's own arguments, one
// uintptr per machine word.
type Convention interface {
	// MethodCallback returns a native function pointer that can be stored
	// in a vtable slot and runs fn when called.
	MethodCallback(fn any) (uintptr, error)

	// CallMethod calls the native virtual method fn on this.
	CallMethod(fn, this uintptr, args ...uintptr) uintptr

	// CallFunc calls the native C function fn.
	CallFunc(fn uintptr, args ...uintptr) uintptr
}

// NativeConvention returns the Convention for the build target. code is used
// for any thunks the convention needs.
func NativeConvention(code CodeAllocator) Convention {
	return newNativeConvention(code)
}
