//go:build amd64 || 386

package vtpatch

import (
	"strings"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

const disasmMode = int(unsafe.Sizeof(uintptr(0)) * 8)

// disassemble renders a stub as "MOV EAX, 0x1; RET" for debug logs.
func disassemble(code []byte) string {
	var parts []string
	for i := 0; i < len(code); {
		inst, err := x86asm.Decode(code[i:], disasmMode)
		if err != nil {
			parts = append(parts, "?")
			break
		}
		parts = append(parts, x86asm.IntelSyntax(inst, 0, nil))
		i += inst.Len
	}
	return strings.Join(parts, "; ")
}
