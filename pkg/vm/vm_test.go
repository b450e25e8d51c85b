package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbyte/timidvm/pkg/bytecode"
	"github.com/arcbyte/timidvm/pkg/value"
)

func runBlock(t *testing.T, block *bytecode.Block, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts = append(opts, WithStdout(&out))
	machine := New(opts...)
	_, err := machine.Run(block)
	return out.String(), err
}

func TestArithmeticClosureIntPlusInt(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(2))
	b.WriteConstant(value.Int64(3))
	b.Write(byte(bytecode.OpAdd))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "5\n", out)
}

func TestArithmeticPromotesToFloat(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(1))
	b.WriteConstant(value.Float64(0.5))
	b.Write(byte(bytecode.OpAdd))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "1.5\n", out)
}

func TestStringConcatenationViaAdd(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("foo"))))
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("bar"))))
	b.Write(byte(bytecode.OpAdd))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "foobar\n", out)
}

func TestStringMultiplication(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("ab"))))
	b.WriteConstant(value.Int64(3))
	b.Write(byte(bytecode.OpMul))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "ababab\n", out)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(1))
	b.WriteConstant(value.Int64(0))
	b.Write(byte(bytecode.OpDiv))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestZeroToZeroPowerIsRuntimeError(t *testing.T) {
	b := bytecode.NewBlock()
	b.Write(byte(bytecode.OpZero))
	b.Write(byte(bytecode.OpZero))
	b.Write(byte(bytecode.OpPow))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrZeroToZero)
}

func TestFactorialOfNegativeIsRuntimeError(t *testing.T) {
	b := bytecode.NewBlock()
	b.Write(byte(bytecode.OpNegOne))
	b.Write(byte(bytecode.OpFact))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrNegativeFactor)
}

func TestFactorial(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(5))
	b.Write(byte(bytecode.OpFact))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "120\n", out)
}

func TestGlobalDefineGetSet(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	name := value.FromString(in.MakeBorrowed([]byte("x")))

	b.WriteConstant(value.Int64(10))
	nameIdx := b.AddConstant(name)
	b.Write(byte(bytecode.OpDefineGlobal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(byte(nameIdx))

	b.WriteConstant(value.Int64(20))
	b.Write(byte(bytecode.OpSetGlobal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(byte(nameIdx))
	b.Write(byte(bytecode.OpPop))

	b.Write(byte(bytecode.OpGetGlobal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(byte(nameIdx))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "20\n", out)
}

func TestSetUndefinedGlobalIsRuntimeError(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	name := value.FromString(in.MakeBorrowed([]byte("ghost")))
	nameIdx := b.AddConstant(name)

	b.WriteConstant(value.Int64(1))
	b.Write(byte(bytecode.OpSetGlobal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(byte(nameIdx))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrUndefinedGlobal)
}

func TestLocalGetSet(t *testing.T) {
	b := bytecode.NewBlock()
	b.WriteConstant(value.Int64(1)) // slot 0
	b.Write(byte(bytecode.OpConstant))
	b.Write(byte(b.AddConstant(value.Int64(99))))
	b.Write(byte(bytecode.OpSetLocal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(0)
	b.Write(byte(bytecode.OpPop))

	b.Write(byte(bytecode.OpGetLocal))
	b.Write(byte(bytecode.OpConstant))
	b.Write(0)
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "99\n", out)
}

func TestSubscriptWithNegativeIndexWraps(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("hello"))))
	b.WriteConstant(value.Int64(-1))
	b.Write(byte(bytecode.OpSubscript))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "o\n", out)
}

func TestSubscriptOutOfRangeIsRuntimeError(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("hi"))))
	b.WriteConstant(value.Int64(5))
	b.Write(byte(bytecode.OpSubscript))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestGetInputReadsLineAndPrompts(t *testing.T) {
	in := value.NewInterner()
	b := bytecode.NewBlock()
	b.WriteConstant(value.FromString(in.MakeBorrowed([]byte("> "))))
	b.Write(byte(bytecode.OpGetInput))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	var out bytes.Buffer
	machine := New(WithStdout(&out), WithStdin(strings.NewReader("world\n")))
	_, err := machine.Run(b)
	require.NoError(t, err)
	require.Equal(t, "> world\n", out.String())
}

func TestJumpIfFalseSkipsTrueBranch(t *testing.T) {
	b := bytecode.NewBlock()
	b.Write(byte(bytecode.OpFalse))
	b.Write(byte(bytecode.OpJumpIfFalse))
	b.Write(3)
	b.Write(0)
	b.WriteConstant(value.Int64(1))
	b.Write(byte(bytecode.OpPrint))
	b.Write(byte(bytecode.OpReturn))

	out, err := runBlock(t, b)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestStackUnderflowIsRuntimeError(t *testing.T) {
	b := bytecode.NewBlock()
	b.Write(byte(bytecode.OpPop))
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestStackOverflowIsRuntimeError(t *testing.T) {
	b := bytecode.NewBlock()
	for i := 0; i < 10; i++ {
		b.Write(byte(bytecode.OpZero))
	}
	b.Write(byte(bytecode.OpReturn))

	_, err := runBlock(t, b, WithStackSize(4))
	require.ErrorIs(t, err, ErrStackOverflow)
}
