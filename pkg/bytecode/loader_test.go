package bytecode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbyte/timidvm/pkg/value"
)

func appendInt(buf []byte, n int64) []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(n))
	return append(append(buf, tagInt), raw...)
}

func appendFloat(buf []byte, f float64) []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, math.Float64bits(f))
	return append(append(buf, tagFloat), raw...)
}

func appendString(buf []byte, s string) []byte {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(len(s)))
	buf = append(buf, tagString)
	buf = append(buf, raw...)
	return append(buf, []byte(s)...)
}

func sentinel(buf []byte) []byte {
	return append(buf, sentinelFirst, sentinelSecond)
}

func TestLoadIntConstantsPlusAdd(t *testing.T) {
	var buf []byte
	buf = appendInt(buf, 2)
	buf = appendInt(buf, 3)
	buf = sentinel(buf)
	buf = append(buf, byte(OpConstant), 0, byte(OpConstant), 1, byte(OpAdd), byte(OpReturn))

	in := value.NewInterner()
	block, err := Load(buf, in)
	require.NoError(t, err)
	require.Len(t, block.Constants, 2)
	require.Equal(t, int64(2), block.Constants[0].AsInt())
	require.Equal(t, int64(3), block.Constants[1].AsInt())
	require.Equal(t, []byte{byte(OpConstant), 0, byte(OpConstant), 1, byte(OpAdd), byte(OpReturn)}, block.Code())
}

func TestLoadFloatConstant(t *testing.T) {
	var buf []byte
	buf = appendFloat(buf, 1.5)
	buf = sentinel(buf)
	buf = append(buf, byte(OpReturn))

	block, err := Load(buf, value.NewInterner())
	require.NoError(t, err)
	require.Equal(t, 1.5, block.Constants[0].AsFloat())
}

func TestLoadStringConstantInternsThroughGivenTable(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "hello")
	buf = sentinel(buf)
	buf = append(buf, byte(OpReturn))

	in := value.NewInterner()
	block, err := Load(buf, in)
	require.NoError(t, err)
	require.True(t, block.Constants[0].IsString())
	require.Equal(t, "hello", string(block.Constants[0].AsString().Bytes))
	require.Equal(t, 1, in.Strings.Len())
}

func TestLoadNameBearingOpcodeCopiesSubformAndIndex(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "x")
	buf = sentinel(buf)
	buf = append(buf, byte(OpDefineGlobal), byte(OpConstant), 0, byte(OpReturn))

	block, err := Load(buf, value.NewInterner())
	require.NoError(t, err)
	require.Equal(t, []byte{byte(OpDefineGlobal), byte(OpConstant), 0, byte(OpReturn)}, block.Code())
}

func TestLoadNameBearingOpcodeLongForm(t *testing.T) {
	var buf []byte
	buf = appendString(buf, "x")
	buf = sentinel(buf)
	buf = append(buf, byte(OpGetGlobal), byte(OpConstantLong), 10, 0, 0, byte(OpReturn))

	block, err := Load(buf, value.NewInterner())
	require.NoError(t, err)
	require.Equal(t, []byte{byte(OpGetGlobal), byte(OpConstantLong), 10, 0, 0, byte(OpReturn)}, block.Code())
}

func TestLoadRejectsBadSentinel(t *testing.T) {
	var buf []byte
	buf = appendInt(buf, 1)
	buf = append(buf, sentinelFirst, 0x00)

	_, err := Load(buf, value.NewInterner())
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestLoadRejectsUnknownTag(t *testing.T) {
	buf := []byte{0x7F}
	_, err := Load(buf, value.NewInterner())
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestLoadRejectsTruncatedBuffer(t *testing.T) {
	buf := []byte{tagInt, 0x01, 0x02}
	_, err := Load(buf, value.NewInterner())
	require.ErrorIs(t, err, ErrTruncated)
}
