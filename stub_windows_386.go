package vtpatch

// Virtual methods use thiscall: this in ECX, the rest on the stack, popped
// by the callee.
func assembleFixedReturn(info replacementInfo) []byte {
	return fixedReturnX86(info.value, info.stackArgs)
}
