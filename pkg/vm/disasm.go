package vm

import (
	"fmt"
	"strings"

	"github.com/arcbyte/timidvm/pkg/bytecode"
)

// Disassemble renders every instruction in block as one line of offset,
// mnemonic, and resolved operand, the same layout original_source/C's
// debug.c disassembleBlock/disassembleInstruction print, named with
// blockName the way dumpBlock's header line is.
func Disassemble(block *bytecode.Block, blockName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", blockName)

	offset := 0
	for offset < block.Len() {
		offset = disassembleInstruction(&b, block, offset)
	}
	return b.String()
}

// HexDump renders block's raw instruction bytes eight to a line, the
// same layout debug.c's dumpBlock prints before disassembling.
func HexDump(block *bytecode.Block, blockName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s's Hex Dump ==\n", blockName)

	code := block.Code()
	for i, byt := range code {
		fmt.Fprintf(&b, "%02x ", byt)
		if (i+1)%8 == 0 {
			b.WriteByte('\n')
		}
	}
	if len(code)%8 != 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, block *bytecode.Block, offset int) int {
	fmt.Fprintf(b, "%04d ", offset)

	op := bytecode.Opcode(block.At(offset))
	switch op {
	case bytecode.OpConstant:
		return constantInstruction(b, op.String(), block, offset)
	case bytecode.OpConstantLong:
		return longConstantInstruction(b, op.String(), block, offset)
	case bytecode.OpJumpIfFalse, bytecode.OpJump:
		return jumpInstruction(b, op.String(), 1, block, offset)
	case bytecode.OpLoop:
		return jumpInstruction(b, op.String(), -1, block, offset)
	case bytecode.OpDefineGlobal, bytecode.OpGetGlobal, bytecode.OpSetGlobal:
		return nameInstruction(b, op.String(), block, offset)
	case bytecode.OpGetLocal, bytecode.OpSetLocal:
		return nameInstruction(b, op.String(), block, offset)
	default:
		return simpleInstruction(b, op.String(), offset)
	}
}

func simpleInstruction(b *strings.Builder, name string, offset int) int {
	fmt.Fprintf(b, "%s\n", name)
	return offset + 1
}

func constantInstruction(b *strings.Builder, name string, block *bytecode.Block, offset int) int {
	index := int(block.At(offset + 1))
	fmt.Fprintf(b, "%-20s Index: %4d Value: '%s'\n", name, index, block.Constants[index].Display())
	return offset + 2
}

func longConstantInstruction(b *strings.Builder, name string, block *bytecode.Block, offset int) int {
	index := int(block.At(offset+1)) | int(block.At(offset+2))<<8 | int(block.At(offset+3))<<16
	fmt.Fprintf(b, "%-20s Index: %4d Value: '%s'\n", name, index, block.Constants[index].Display())
	return offset + 4
}

func jumpInstruction(b *strings.Builder, name string, sign int, block *bytecode.Block, offset int) int {
	jump := int(block.At(offset+1)) | int(block.At(offset+2))<<8
	fmt.Fprintf(b, "%-16s %4d -> %d\n", name, offset, offset+3+sign*jump)
	return offset + 3
}

// nameInstruction disassembles a name-bearing opcode: the subform byte
// following it picks the short (OpConstant) or long (OpConstantLong)
// index form, exactly as Block.WriteConstant picks it on the writing
// side and loadInstructions copies it on the loading side.
func nameInstruction(b *strings.Builder, name string, block *bytecode.Block, offset int) int {
	subform := bytecode.Opcode(block.At(offset + 1))
	if subform == bytecode.OpConstantLong {
		return longConstantInstruction(b, name, block, offset+1)
	}
	return constantInstruction(b, name, block, offset+1)
}
