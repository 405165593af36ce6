package dbus

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeDecode(t *testing.T, v Value) Value {
	t.Helper()
	enc := NewEncoder(binary.LittleEndian)
	require.NoError(t, enc.EncodeValue(v))

	dec := NewDecoder(enc.Bytes(), binary.LittleEndian)
	out, err := dec.DecodeValue(v.Type)
	require.NoError(t, err)
	assert.Equal(t, dec.Pos(), len(enc.Bytes()))
	return out
}

func TestCodecScalarRoundTrip(t *testing.T) {
	assert.Equal(t, byte(7), encodeDecode(t, NewByte(7)).Byte())
	assert.True(t, encodeDecode(t, NewBool(true)).Bool())
	assert.Equal(t, int32(-42), encodeDecode(t, NewInt32(-42)).Int32())
	assert.Equal(t, uint64(123456789), encodeDecode(t, NewUint64(123456789)).Uint64())
	assert.Equal(t, 2.5, encodeDecode(t, NewDouble(2.5)).Double())
}

func TestCodecStringRoundTrip(t *testing.T) {
	v, err := NewString("hello, world")
	require.NoError(t, err)
	out := encodeDecode(t, v)
	assert.Equal(t, "hello, world", out.Str())
}

func TestCodecBooleanRejectsNonZeroOne(t *testing.T) {
	enc := NewEncoder(binary.LittleEndian)
	enc.writeUint32(7)
	dec := NewDecoder(enc.Bytes(), binary.LittleEndian)
	_, err := dec.DecodeValue(basicType(KindBool))
	assert.Error(t, err)
	var invalidValueErr *InvalidValueError
	assert.ErrorAs(t, err, &invalidValueErr)
}

func TestCodecArrayRoundTrip(t *testing.T) {
	arr, err := NewArray(basicType(KindInt32), []Value{NewInt32(1), NewInt32(2), NewInt32(3)})
	require.NoError(t, err)
	out := encodeDecode(t, arr)
	require.Len(t, out.Elems(), 3)
	assert.Equal(t, int32(2), out.Elems()[1].Int32())
}

func TestCodecEmptyArrayRoundTrip(t *testing.T) {
	arr, err := NewArray(basicType(KindInt32), nil)
	require.NoError(t, err)
	out := encodeDecode(t, arr)
	assert.Empty(t, out.Elems())
}

func TestCodecStructRoundTrip(t *testing.T) {
	s := NewStruct([]Value{NewByte(1), NewInt64(-2)})
	out := encodeDecode(t, s)
	require.Len(t, out.Elems(), 2)
	assert.Equal(t, byte(1), out.Elems()[0].Byte())
	assert.Equal(t, int64(-2), out.Elems()[1].Int64())
}

func TestCodecDictEntryArrayRoundTrip(t *testing.T) {
	e1, err := NewDictEntry(mustString("a"), NewInt32(1))
	require.NoError(t, err)
	arr, err := NewArray(&Type{Kind: KindDictEntry, Children: []*Type{basicType(KindString), basicType(KindInt32)}}, []Value{e1})
	require.NoError(t, err)
	out := encodeDecode(t, arr)
	require.Len(t, out.Elems(), 1)
	assert.Equal(t, "a", out.Elems()[0].Elems()[0].Str())
	assert.Equal(t, int32(1), out.Elems()[0].Elems()[1].Int32())
}

func TestCodecVariantRoundTrip(t *testing.T) {
	v := NewVariant(NewInt32(99))
	out := encodeDecode(t, v)
	assert.Equal(t, int32(99), out.Inner().Int32())
}

func TestCodecArrayLengthExcludesElementAlignmentPadding(t *testing.T) {
	// ax where x needs 8-byte alignment: the array body length is the byte
	// length of the array body *excluding* the padding between the 4-byte
	// length field and the first 8-byte aligned element (§4.3).
	arr, err := NewArray(basicType(KindInt64), []Value{NewInt64(1)})
	require.NoError(t, err)

	enc := NewEncoder(binary.LittleEndian)
	require.NoError(t, enc.EncodeValue(arr))
	buf := enc.Bytes()

	bodyLen := binary.LittleEndian.Uint32(buf[0:4])
	// 8 bytes for the one int64 element; the 4 bytes of padding to reach
	// the 8-byte boundary are not counted.
	assert.EqualValues(t, 8, bodyLen)
}

func TestDecoderRejectsTruncatedArray(t *testing.T) {
	arr, err := NewArray(basicType(KindInt32), []Value{NewInt32(1), NewInt32(2)})
	require.NoError(t, err)
	enc := NewEncoder(binary.LittleEndian)
	require.NoError(t, enc.EncodeValue(arr))

	truncated := enc.Bytes()[:len(enc.Bytes())-2]
	dec := NewDecoder(truncated, binary.LittleEndian)
	_, err = dec.DecodeValue(arr.Type)
	assert.Error(t, err)
}

func TestDecoderRejectsMissingStringNUL(t *testing.T) {
	enc := NewEncoder(binary.LittleEndian)
	enc.writeUint32(3)
	enc.writeBytes([]byte("abc"))
	enc.writeByte('X') // not NUL

	dec := NewDecoder(enc.Bytes(), binary.LittleEndian)
	_, err := dec.DecodeValue(basicType(KindString))
	assert.Error(t, err)
}
