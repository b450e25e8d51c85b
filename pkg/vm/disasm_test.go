package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbyte/timidvm/pkg/bytecode"
	"github.com/arcbyte/timidvm/pkg/value"
)

func TestDisassembleSimpleBlock(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(42))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out := Disassemble(b, "example")
	require.True(t, strings.HasPrefix(out, "== example ==\n"))
	require.Contains(t, out, "OP_CONSTANT")
	require.Contains(t, out, "Value: '42'")
	require.Contains(t, out, "OP_PRINT")
	require.Contains(t, out, "OP_RETURN")
}

func TestDisassembleJumpShowsTarget(t *testing.T) {
	b := bytecode.NewBlock()
	b.Write(byte(bytecode.OpJump))
	b.Write(3)
	b.Write(0)
	b.Write(byte(bytecode.OpNop))
	b.Write(byte(bytecode.OpNop))
	b.Write(byte(bytecode.OpNop))
	b.Write(byte(bytecode.OpReturn))

	out := Disassemble(b, "jmp")
	require.Contains(t, out, "OP_JUMP")
	require.Contains(t, out, "-> 6")
}

func TestHexDumpWrapsEveryEightBytes(t *testing.T) {
	b := bytecode.NewBlock()
	for i := 0; i < 9; i++ {
		b.Write(byte(bytecode.OpNop))
	}

	out := HexDump(b, "example")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Equal(t, 3, len(lines)) // header + 8 bytes + 1 byte
}
