// Package bytecode defines the instruction set, constant pool, and
// on-disk wire format for timidvm, plus the Loader that turns a raw
// byte buffer into an executable Block.
//
// Architecture:
//
// A Block pairs a flat byte stream of instructions with a constant
// pool of literal Values referenced by index from those instructions.
// The VM fetches one opcode byte at a time from the instruction stream,
// decodes any immediate operand bytes that follow it, and dispatches —
// see pkg/vm for the execution side of this contract.
//
// Instruction Format:
//
// Every instruction starts with a one-byte Opcode. Most opcodes carry
// no further bytes; the exceptions are documented per opcode below.
// Jump offsets are little-endian uint16. Constant indices are either a
// single byte (OpConstant) or a 3-byte little-endian value
// (OpConstantLong) — see Block.WriteConstant.
package bytecode

// Opcode is a single instruction-stream byte naming an operation.
type Opcode byte

// The full timidvm instruction set, in the order the wire format's
// front-end compiler (an external collaborator, out of scope here)
// must emit them in, matching the original VM's enum order byte for
// byte — this is an external wire-format contract, not an internal
// detail free to reorder.
const (
	// OpNop performs no operation.
	OpNop Opcode = iota

	// OpConstant reads a 1-byte constant-pool index and pushes that
	// constant.
	OpConstant
	// OpConstantLong reads a 3-byte little-endian constant-pool index
	// and pushes that constant. Used once a Block's constant pool grows
	// past 256 entries (see Block.WriteConstant).
	OpConstantLong

	// OpNegOne, OpZero, OpOne, OpTwo push the small integer literals
	// -1, 0, 1, 2 without a constant-pool round trip.
	OpNegOne
	OpZero
	OpOne
	OpTwo

	// OpTrue, OpFalse, OpNull push their respective literal values.
	OpTrue
	OpFalse
	OpNull

	// OpPrint pops the top value, formats it, and writes it plus a
	// trailing newline to the VM's configured output stream.
	OpPrint

	// OpPop discards the top of the stack.
	OpPop

	// OpNegate replaces the top numeric value with its arithmetic
	// negation.
	OpNegate
	// OpNot replaces the top value with the logical negation of its
	// truthiness.
	OpNot

	// OpFact replaces the top integral value with its factorial.
	OpFact

	// OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow pop two operands and
	// push the result of the named arithmetic operation: integral when
	// both operands are integral, float otherwise, with OpAdd/OpMul
	// additionally handling string operands (concatenation, repeat).
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow

	// OpEq, OpLt, OpGt pop two operands and push the boolean result of
	// comparing them.
	OpEq
	OpLt
	OpGt

	// OpAnd, OpOr pop two operands (both already evaluated — there is
	// no short-circuiting) and push the boolean result of their
	// logical conjunction/disjunction.
	OpAnd
	OpOr

	// OpJumpIfFalse reads a 2-byte little-endian offset. If the top of
	// the stack (not popped) is falsy, the offset is added to the
	// instruction pointer.
	OpJumpIfFalse
	// OpJump reads a 2-byte little-endian offset and adds it to the
	// instruction pointer unconditionally.
	OpJump
	// OpLoop reads a 2-byte little-endian offset and subtracts it from
	// the instruction pointer.
	OpLoop

	// OpDefineGlobal, OpGetGlobal, OpSetGlobal each read a subform byte
	// (OpConstant or OpConstantLong) followed by a 1- or 3-byte
	// constant index naming a global, then define/read/write that
	// global against the value on top of the stack.
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal
	// OpGetLocal, OpSetLocal read the same subform-plus-index operand,
	// but the index names an operand-stack slot rather than a constant.
	OpGetLocal
	OpSetLocal

	// OpGetInput pops a prompt value, prints it without a trailing
	// newline, reads one line from standard input, and pushes it as an
	// owned String with the newline stripped.
	OpGetInput

	// OpSubscript pops a subscript then an iterable and pushes a
	// single-byte String at that (possibly negative, wrapped) index.
	OpSubscript

	// OpReturn terminates execution successfully. There is no call
	// stack to unwind — this is program termination, not a function
	// return, since this language has no user-defined functions.
	OpReturn
)

// String returns the opcode's mnemonic, used by the disassembler and in
// error messages.
func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "OP_NOP"
	case OpConstant:
		return "OP_CONSTANT"
	case OpConstantLong:
		return "OP_CONSTANT_LONG"
	case OpNegOne:
		return "OP_NEG1"
	case OpZero:
		return "OP_0"
	case OpOne:
		return "OP_1"
	case OpTwo:
		return "OP_2"
	case OpTrue:
		return "OP_TRUE"
	case OpFalse:
		return "OP_FALSE"
	case OpNull:
		return "OP_NULL"
	case OpPrint:
		return "OP_PRINT"
	case OpPop:
		return "OP_POP"
	case OpNegate:
		return "OP_NEGATE"
	case OpNot:
		return "OP_NOT"
	case OpFact:
		return "OP_FACT"
	case OpAdd:
		return "OP_ADD"
	case OpSub:
		return "OP_SUB"
	case OpMul:
		return "OP_MUL"
	case OpDiv:
		return "OP_DIV"
	case OpMod:
		return "OP_MOD"
	case OpPow:
		return "OP_POW"
	case OpEq:
		return "OP_EQ"
	case OpLt:
		return "OP_LT"
	case OpGt:
		return "OP_GT"
	case OpAnd:
		return "OP_AND"
	case OpOr:
		return "OP_OR"
	case OpJumpIfFalse:
		return "OP_JUMP_IF_FLS"
	case OpJump:
		return "OP_JUMP"
	case OpLoop:
		return "OP_LOOP"
	case OpDefineGlobal:
		return "OP_DEFINE_GLOBAL"
	case OpGetGlobal:
		return "OP_GET_GLOBAL"
	case OpSetGlobal:
		return "OP_SET_GLOBAL"
	case OpGetLocal:
		return "OP_GET_LOCAL"
	case OpSetLocal:
		return "OP_SET_LOCAL"
	case OpGetInput:
		return "OP_GET_INPUT"
	case OpSubscript:
		return "OP_SUBSCRIPT"
	case OpReturn:
		return "OP_RETURN"
	default:
		return "OP_UNKNOWN"
	}
}

// nameBearing reports whether op is followed by a subform byte plus a
// 1- or 3-byte constant index, as opposed to carrying a raw operand or
// none at all.
func nameBearing(op Opcode) bool {
	switch op {
	case OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpGetLocal, OpSetLocal:
		return true
	default:
		return false
	}
}
