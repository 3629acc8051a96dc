package vtpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

func decodeX86(t *testing.T, code []byte, mode int) []x86asm.Inst {
	t.Helper()
	var insts []x86asm.Inst
	for i := 0; i < len(code); {
		inst, err := x86asm.Decode(code[i:], mode)
		require.NoError(t, err, "offset %d", i)
		insts = append(insts, inst)
		i += inst.Len
	}
	return insts
}

func TestFixedReturnX86(t *testing.T) {
	for _, mode := range []int{32, 64} {
		insts := decodeX86(t, fixedReturnX86(1, 0), mode)
		require.Len(t, insts, 2)
		assert.Equal(t, x86asm.MOV, insts[0].Op)
		assert.Equal(t, x86asm.EAX, insts[0].Args[0])
		assert.Equal(t, x86asm.Imm(1), insts[0].Args[1])
		assert.Equal(t, x86asm.RET, insts[1].Op)
		assert.Nil(t, insts[1].Args[0])
	}
}

func TestFixedReturnThiscall(t *testing.T) {
	insts := decodeX86(t, fixedReturnX86(0, 12), 32)
	require.Len(t, insts, 2)
	assert.Equal(t, x86asm.MOV, insts[0].Op)
	assert.Equal(t, x86asm.Imm(0), insts[0].Args[1])
	assert.Equal(t, x86asm.RET, insts[1].Op)
	assert.Equal(t, x86asm.Imm(12), insts[1].Args[0])
}

func TestFixedReturnARM64(t *testing.T) {
	code := fixedReturnARM64(1)
	require.Len(t, code, 8)

	mov, err := arm64asm.Decode(code[:4])
	require.NoError(t, err)
	assert.Contains(t, mov.String(), "W0")
	assert.Contains(t, mov.String(), "#0x1")

	ret, err := arm64asm.Decode(code[4:])
	require.NoError(t, err)
	assert.Equal(t, arm64asm.RET, ret.Op)
}

func TestThiscallThunks(t *testing.T) {
	const target = 0x12345678

	t.Run("entry", func(t *testing.T) {
		insts := decodeX86(t, thiscallEntryThunk(target), 32)
		require.Len(t, insts, 5)
		assert.Equal(t, x86asm.POP, insts[0].Op)
		assert.Equal(t, x86asm.EAX, insts[0].Args[0])
		assert.Equal(t, x86asm.PUSH, insts[1].Op)
		assert.Equal(t, x86asm.ECX, insts[1].Args[0])
		assert.Equal(t, x86asm.PUSH, insts[2].Op)
		assert.Equal(t, x86asm.EAX, insts[2].Args[0])
		assert.Equal(t, x86asm.MOV, insts[3].Op)
		assert.Equal(t, x86asm.Imm(target), insts[3].Args[1])
		assert.Equal(t, x86asm.JMP, insts[4].Op)
		assert.Equal(t, x86asm.EAX, insts[4].Args[0])
	})

	t.Run("call", func(t *testing.T) {
		insts := decodeX86(t, thiscallCallThunk(target), 32)
		require.Len(t, insts, 5)
		assert.Equal(t, x86asm.POP, insts[0].Op)
		assert.Equal(t, x86asm.EAX, insts[0].Args[0])
		assert.Equal(t, x86asm.POP, insts[1].Op)
		assert.Equal(t, x86asm.ECX, insts[1].Args[0])
		assert.Equal(t, x86asm.PUSH, insts[2].Op)
		assert.Equal(t, x86asm.MOV, insts[3].Op)
		assert.Equal(t, x86asm.Imm(target), insts[3].Args[1])
		assert.Equal(t, x86asm.JMP, insts[4].Op)
	})
}

func TestAssembleFixedReturn(t *testing.T) {
	for r := Replacement(0); r < numReplacements; r++ {
		info := replacements[r]
		if !info.fixed {
			continue
		}
		code := assembleFixedReturn(info)
		assert.NotEmpty(t, code, r.String())
		assert.NotContains(t, disassemble(code), "?", r.String())
	}
}
