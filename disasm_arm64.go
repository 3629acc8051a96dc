package vtpatch

import (
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// disassemble renders a stub as "MOVZ W0, #0x1; RET" for debug logs.
func disassemble(code []byte) string {
	var parts []string
	for i := 0; i+4 <= len(code); i += 4 {
		inst, err := arm64asm.Decode(code[i:])
		if err != nil {
			parts = append(parts, "?")
			break
		}
		parts = append(parts, inst.String())
	}
	return strings.Join(parts, "; ")
}
