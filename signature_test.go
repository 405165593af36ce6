package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignatureRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"y", "b", "n", "q", "i", "u", "x", "t", "d", "s", "o", "g", "h",
		"ai",
		"a{sv}",
		"(iu)",
		"a(iu)",
		"(a{sv}as)",
		"aa{sv}",
	}
	for _, sig := range cases {
		types, err := ParseSignature(Signature(sig))
		require.NoError(t, err, sig)
		assert.Equal(t, sig, string(RenderSignature(types)), sig)
	}
}

func TestParseSignatureRejectsDictEntryOutsideArray(t *testing.T) {
	_, err := ParseSignature(Signature("{sv}"))
	assert.Error(t, err)

	_, err = ParseSignature(Signature("({sv}i)"))
	assert.Error(t, err)
}

func TestParseSignatureRejectsUnbalancedStruct(t *testing.T) {
	_, err := ParseSignature(Signature("(i"))
	assert.Error(t, err)

	_, err = ParseSignature(Signature("i)"))
	assert.Error(t, err)
}

func TestParseSignatureRejectsEmptyStruct(t *testing.T) {
	_, err := ParseSignature(Signature("()"))
	assert.Error(t, err)
}

func TestParseSignatureRejectsWrongDictEntryArity(t *testing.T) {
	_, err := ParseSignature(Signature("a{s}"))
	assert.Error(t, err)

	_, err = ParseSignature(Signature("a{siv}"))
	assert.Error(t, err)
}

func TestParseSignatureRejectsNonBasicDictKey(t *testing.T) {
	_, err := ParseSignature(Signature("a{(i)v}"))
	assert.Error(t, err)
}

func TestParseSignatureEnforcesMaxDepth(t *testing.T) {
	deep := ""
	for i := 0; i < MaxContainerDepth+1; i++ {
		deep += "a"
	}
	deep += "i"
	_, err := ParseSignature(Signature(deep))
	assert.Error(t, err)
}

func TestParseSignatureEnforcesMaxLength(t *testing.T) {
	long := ""
	for i := 0; i < MaxSignatureLength+1; i++ {
		long += "y"
	}
	_, err := ParseSignature(Signature(long))
	assert.Error(t, err)
}

func TestParseSingleTypeRequiresExactlyOne(t *testing.T) {
	_, err := ParseSingleType(Signature("ii"))
	assert.Error(t, err)

	_, err = ParseSingleType(Signature(""))
	assert.Error(t, err)

	typ, err := ParseSingleType(Signature("a{sv}"))
	require.NoError(t, err)
	assert.Equal(t, KindArray, typ.Kind)
}

func TestTypeAlign(t *testing.T) {
	cases := map[string]int{
		"y": 1, "g": 1, "v": 1,
		"n": 2, "q": 2,
		"b": 4, "i": 4, "u": 4, "h": 4, "s": 4, "o": 4, "ai": 4,
		"x": 8, "t": 8, "d": 8, "(i)": 8, "a{sv}": 4,
	}
	for sig, want := range cases {
		typ, err := ParseSingleType(Signature(sig))
		require.NoError(t, err, sig)
		assert.Equal(t, want, typ.Align(), sig)
	}
}
