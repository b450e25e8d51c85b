package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/arcbyte/timidvm/pkg/value"
)

// Wire-format section markers.
const (
	sentinelFirst  byte = 0xFA
	sentinelSecond byte = 0xCC
)

// Constant record type tags.
const (
	tagInt    byte = 0x00
	tagFloat  byte = 0x01
	tagString byte = 0x02
)

// ErrTruncated is returned when the buffer ends mid-record or before the
// sentinel is reached.
var ErrTruncated = errors.New("bytecode: truncated buffer")

// ErrBadFormat is returned when a constant record's type tag is neither
// a known constant type nor the 0xFA 0xCC sentinel.
var ErrBadFormat = errors.New("bytecode: invalid constant record")

// reader walks buf with a cursor, the same shape as the C loader's
// READ_BYTE()/PEEK() macros.
type reader struct {
	buf    []byte
	offset int
}

func (r *reader) remaining() int { return len(r.buf) - r.offset }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.offset]
	r.offset++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrTruncated
	}
	out := r.buf[r.offset : r.offset+n]
	r.offset += n
	return out, nil
}

// Load parses a complete bytecode buffer — constant section, 0xFA 0xCC
// sentinel, instruction section — into a fresh Block. in is the VM's
// intern table: every string constant the loader reads is interned
// through it immediately, exactly as the
// original C loader interns constant-pool strings through the VM's
// global string table as it parses them. The returned error wraps
// ErrTruncated or ErrBadFormat so a caller can distinguish "ran out of
// bytes" from "malformed record."
func Load(buf []byte, in *value.Interner) (*Block, error) {
	block := NewBlock()
	r := &reader{buf: buf}

	if err := loadConstants(r, block, in); err != nil {
		return nil, err
	}
	if err := loadInstructions(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

// loadConstants reads typed constant records until it reaches the
// 0xFA 0xCC sentinel, appending each one to block's constant pool in
// source order.
func loadConstants(r *reader, block *Block, in *value.Interner) error {
	for {
		tag, err := r.readByte()
		if err != nil {
			return errors.Wrap(ErrTruncated, "reading constant tag")
		}

		switch tag {
		case tagInt:
			raw, err := r.readBytes(8)
			if err != nil {
				return errors.Wrap(err, "reading int constant")
			}
			n := int64(binary.LittleEndian.Uint64(raw))
			block.AddConstant(value.Int64(n))

		case tagFloat:
			raw, err := r.readBytes(8)
			if err != nil {
				return errors.Wrap(err, "reading float constant")
			}
			bits := binary.LittleEndian.Uint64(raw)
			block.AddConstant(value.Float64(math.Float64frombits(bits)))

		case tagString:
			raw, err := r.readBytes(4)
			if err != nil {
				return errors.Wrap(err, "reading string length")
			}
			length := binary.LittleEndian.Uint32(raw)
			data, err := r.readBytes(int(length))
			if err != nil {
				return errors.Wrap(err, "reading string constant")
			}
			// Borrowed, not owned: the bytes live in the loader's
			// buffer for the lifetime of the Block built from it.
			s := in.MakeBorrowed(data)
			block.AddConstant(value.FromString(s))

		case sentinelFirst:
			second, err := r.readByte()
			if err != nil {
				return errors.Wrap(ErrTruncated, "reading sentinel")
			}
			if second != sentinelSecond {
				return errors.Wrapf(ErrBadFormat, "expected sentinel 0xCC after 0xFA, got 0x%02X", second)
			}
			return nil

		default:
			return errors.Wrapf(ErrBadFormat, "unexpected constant tag 0x%02X", tag)
		}
	}
}

// loadInstructions copies the instruction section verbatim into
// block's instruction stream. Most opcodes are opaque single bytes to
// the loader; the five name-bearing opcodes are followed
// by a subform byte selecting 1- or 3-byte index width, which the
// loader must copy along with the index bytes rather than guess at.
func loadInstructions(r *reader, block *Block) error {
	for r.remaining() > 0 {
		opByte, err := r.readByte()
		if err != nil {
			return err
		}
		block.Write(opByte)

		if !nameBearing(Opcode(opByte)) {
			continue
		}

		subform, err := r.readByte()
		if err != nil {
			return errors.Wrap(ErrTruncated, "reading subform byte")
		}
		block.Write(subform)

		width := 1
		if Opcode(subform) == OpConstantLong {
			width = 3
		}
		indexBytes, err := r.readBytes(width)
		if err != nil {
			return errors.Wrap(ErrTruncated, "reading name index")
		}
		for _, b := range indexBytes {
			block.Write(b)
		}
	}
	return nil
}
