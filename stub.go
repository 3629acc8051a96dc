package vtpatch

import (
	"encoding/binary"
)

const (
	opcodeMOVimmEAX = 0xb8 // MOV EAX, imm32
	opcodeRET       = 0xc3
	opcodeRETimm    = 0xc2 // RET imm16
	opcodeJMPrm     = 0xff // JMP r/m32 with modrm 0xe0 = EAX
	opcodePOPEAX    = 0x58
	opcodePOPECX    = 0x59
	opcodePUSHEAX   = 0x50
	opcodePUSHECX   = 0x51

	modrmEAX = 0xe0

	arm64MOVZW0 = 0x52800000 // MOVZ W0, #imm16
	arm64RET    = 0xd65f03c0
)

// fixedReturnX86 assembles a method body that returns value and ignores its
// arguments. On amd64 (both SysV and Win64) and with cdecl the caller
// cleans up, so stackArgs is 0. A 32-bit thiscall callee must pop its own
// stack arguments.
//
//	mov eax, value
//	ret            ; or ret stackArgs
func fixedReturnX86(value uint32, stackArgs uint16) []byte {
	code := make([]byte, 0, 8)
	code = append(code, opcodeMOVimmEAX)
	code = binary.LittleEndian.AppendUint32(code, value)
	if stackArgs == 0 {
		return append(code, opcodeRET)
	}
	code = append(code, opcodeRETimm)
	return binary.LittleEndian.AppendUint16(code, stackArgs)
}

// fixedReturnARM64 is fixedReturnX86 for AAPCS64. Writing W0 zeroes the top
// of X0, so bool, enum and pointer sized returns all see value.
//
//	movz w0, #value
//	ret
func fixedReturnARM64(value uint16) []byte {
	code := make([]byte, 0, 8)
	code = binary.LittleEndian.AppendUint32(code, arm64MOVZW0|uint32(value)<<5)
	return binary.LittleEndian.AppendUint32(code, arm64RET)
}

// thiscallEntryThunk adapts a stdcall function that takes this as its first
// stack argument so it can sit in a thiscall vtable, where this arrives in
// ECX. The callee pops one extra word, the one pushed here.
//
//	pop  eax       ; return address
//	push ecx       ; this
//	push eax
//	mov  eax, target
//	jmp  eax
func thiscallEntryThunk(target uint32) []byte {
	code := []byte{opcodePOPEAX, opcodePUSHECX, opcodePUSHEAX, opcodeMOVimmEAX}
	code = binary.LittleEndian.AppendUint32(code, target)
	return append(code, opcodeJMPrm, modrmEAX)
}

// thiscallCallThunk is the reverse of thiscallEntryThunk: called as stdcall
// with this as the first stack argument, it moves this into ECX and jumps
// to a thiscall method.
//
//	pop  eax       ; return address
//	pop  ecx       ; this
//	push eax
//	mov  eax, target
//	jmp  eax
func thiscallCallThunk(target uint32) []byte {
	code := []byte{opcodePOPEAX, opcodePOPECX, opcodePUSHEAX, opcodeMOVimmEAX}
	code = binary.LittleEndian.AppendUint32(code, target)
	return append(code, opcodeJMPrm, modrmEAX)
}
