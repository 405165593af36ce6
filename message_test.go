package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMarshalUnmarshalRoundTrip(t *testing.T) {
	msg := NewMethodCall("org.example.Dest", "/org/example/Obj", "org.example.Iface", "DoThing")
	msg.Serial = 7
	arg, err := NewString("payload")
	require.NoError(t, err)
	msg.Body = []Value{arg, NewInt32(42)}

	buf, err := msg.Marshal()
	require.NoError(t, err)

	out, n, err := UnmarshalMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	assert.Equal(t, TypeMethodCall, out.Type)
	assert.Equal(t, uint32(7), out.Serial)
	path, ok := out.Path()
	require.True(t, ok)
	assert.EqualValues(t, "/org/example/Obj", path)
	iface, _ := out.Interface()
	assert.Equal(t, "org.example.Iface", iface)
	member, _ := out.Member()
	assert.Equal(t, "DoThing", member)
	require.Len(t, out.Body, 2)
	assert.Equal(t, "payload", out.Body[0].Str())
	assert.Equal(t, int32(42), out.Body[1].Int32())
}

func TestMessageMarshalRejectsMissingRequiredField(t *testing.T) {
	msg := &Message{Type: TypeMethodCall}
	_, err := msg.Marshal()
	assert.Error(t, err)
}

func TestMessageMarshalRejectsForbiddenField(t *testing.T) {
	msg := NewSignal("/a", "a.b", "C")
	msg.setField(FieldReplySerial, NewUint32(1))
	_, err := msg.Marshal()
	assert.Error(t, err)
}

func TestMessageMethodReturnCarriesReplySerial(t *testing.T) {
	call := NewMethodCall("dest", "/p", "i", "M")
	call.Serial = 55
	ret := NewMethodReturn(call)
	serial, ok := ret.ReplySerial()
	require.True(t, ok)
	assert.Equal(t, uint32(55), serial)
}

func TestMessageErrorCarriesErrorName(t *testing.T) {
	call := NewMethodCall("dest", "/p", "i", "M")
	call.Serial = 1
	errMsg := NewError(call, ErrUnknownMethod, "no such method")
	name, ok := errMsg.ErrorName()
	require.True(t, ok)
	assert.Equal(t, ErrUnknownMethod, name)
	require.Len(t, errMsg.Body, 1)
	assert.Equal(t, "no such method", errMsg.Body[0].Str())
}

func TestUnmarshalMessageRejectsShortBuffer(t *testing.T) {
	_, _, err := UnmarshalMessage([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMessageSignatureFieldMatchesBody(t *testing.T) {
	msg := NewSignal("/a", "a.b", "C")
	msg.Body = []Value{NewInt32(1), NewUint32(2)}
	buf, err := msg.Marshal()
	require.NoError(t, err)

	out, _, err := UnmarshalMessage(buf)
	require.NoError(t, err)
	sig, ok := out.field(FieldSignature)
	require.True(t, ok)
	assert.Equal(t, "iu", sig.Str())
}
