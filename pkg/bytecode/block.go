package bytecode

import "github.com/arcbyte/timidvm/pkg/value"

// constantIndexMax is one past the largest index OpConstant's single
// index byte can address (255); from it on, WriteConstant switches to
// the 3-byte OpConstantLong form.
const constantIndexMax = 256

// Block is a growable instruction byte sequence paired with a constant
// pool. Growth is managed explicitly (capacity 8, doubling) rather than
// left to append()'s amortized growth, matching the original VM's
// GROW_CAPACITY macro byte for byte.
type Block struct {
	code      []byte
	Constants []value.Value
}

// NewBlock returns an empty Block, ready to be written to directly (for
// tests and tooling) or populated by Load.
func NewBlock() *Block {
	return &Block{}
}

// Code returns the instruction byte stream.
func (b *Block) Code() []byte { return b.code }

// Len returns the number of instruction bytes written so far.
func (b *Block) Len() int { return len(b.code) }

// At returns the instruction byte at offset.
func (b *Block) At(offset int) byte { return b.code[offset] }

// Write appends byte to the instruction stream, growing the backing
// array by doubling (floor 8) whenever it's full.
func (b *Block) Write(byt byte) {
	if len(b.code) == cap(b.code) {
		grown := make([]byte, len(b.code), growCapacity(cap(b.code)))
		copy(grown, b.code)
		b.code = grown
	}
	b.code = append(b.code, byt)
}

// growCapacity doubles oldCapacity with a floor of 8, the same growth
// policy value.Table uses for its entry array.
func growCapacity(oldCapacity int) int {
	if oldCapacity < 8 {
		return 8
	}
	return oldCapacity * 2
}

// AddConstant appends v to the constant pool and returns its index.
func (b *Block) AddConstant(v value.Value) int {
	b.Constants = append(b.Constants, v)
	return len(b.Constants) - 1
}

// WriteConstant emits the instructions that push v: OpConstant plus a
// 1-byte index when the constant pool has fewer than 256 entries,
// otherwise OpConstantLong plus a 3-byte little-endian index.
func (b *Block) WriteConstant(v value.Value) {
	index := b.AddConstant(v)
	if index < constantIndexMax {
		b.Write(byte(OpConstant))
		b.Write(byte(index))
		return
	}
	b.Write(byte(OpConstantLong))
	b.Write(byte(index & 0xff))
	b.Write(byte((index >> 8) & 0xff))
	b.Write(byte((index >> 16) & 0xff))
}
