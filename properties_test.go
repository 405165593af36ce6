package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchPropertiesGetAllReturnsEveryProperty(t *testing.T) {
	tree := newObjectTree()
	tree.AddInterface("/obj", &Interface{
		Name: "com.example.Thing",
		Properties: map[string]*Property{
			"Count": {Type: basicType(KindInt32), Get: func() (Value, error) { return NewInt32(10), nil }},
			"Name":  {Type: basicType(KindString), Get: func() (Value, error) { return mustString("widget"), nil }},
		},
	})

	call := NewMethodCall("", "/obj", ifaceProperties, "GetAll")
	call.Serial = 1
	call.Body = []Value{mustString("com.example.Thing")}
	reply, err := tree.dispatch(nil, call)
	require.NoError(t, err)
	require.Len(t, reply.Body, 1)
	assert.Len(t, reply.Body[0].Elems(), 2)
}

func TestDispatchPropertiesGetUnknownProperty(t *testing.T) {
	tree := newObjectTree()
	tree.AddInterface("/obj", &Interface{Name: "com.example.Thing", Properties: map[string]*Property{}})

	call := NewMethodCall("", "/obj", ifaceProperties, "Get")
	call.Serial = 1
	call.Body = []Value{mustString("com.example.Thing"), mustString("Missing")}
	_, err := tree.dispatch(nil, call)
	var unknownProp *unknownPropertyError
	assert.ErrorAs(t, err, &unknownProp)
}

func TestDispatchPropertiesSetRejectsReadOnly(t *testing.T) {
	tree := newObjectTree()
	tree.AddInterface("/obj", &Interface{
		Name: "com.example.Thing",
		Properties: map[string]*Property{
			"Count": {Type: basicType(KindInt32), Get: func() (Value, error) { return NewInt32(1), nil }},
		},
	})

	call := NewMethodCall("", "/obj", ifaceProperties, "Set")
	call.Serial = 1
	call.Body = []Value{mustString("com.example.Thing"), mustString("Count"), NewVariant(NewInt32(2))}
	_, err := tree.dispatch(nil, call)
	var remoteErr *RemoteError
	assert.ErrorAs(t, err, &remoteErr)
}
