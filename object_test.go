package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectTreeDispatchesPeerPing(t *testing.T) {
	tree := newObjectTree()
	call := NewMethodCall("", "/obj", ifacePeer, "Ping")
	call.Serial = 1
	reply, err := tree.dispatch(nil, call)
	require.NoError(t, err)
	assert.Equal(t, TypeMethodReturn, reply.Type)
}

func TestObjectTreeUnknownObject(t *testing.T) {
	tree := newObjectTree()
	call := NewMethodCall("", "/nope", "some.iface", "M")
	call.Serial = 1
	_, err := tree.dispatch(nil, call)
	var unknownObj *unknownObjectError
	assert.ErrorAs(t, err, &unknownObj)
}

func TestObjectTreeUnknownInterfaceAndMethod(t *testing.T) {
	tree := newObjectTree()
	tree.AddInterface("/obj", &Interface{
		Name:    "com.example.Thing",
		Methods: map[string]*Method{"Foo": {Handler: func(*Connection, *Message, []Value) ([]Value, error) { return nil, nil }}},
	})

	call := NewMethodCall("", "/obj", "com.example.Other", "Foo")
	call.Serial = 1
	_, err := tree.dispatch(nil, call)
	var unknownIface *unknownInterfaceError
	assert.ErrorAs(t, err, &unknownIface)

	call2 := NewMethodCall("", "/obj", "com.example.Thing", "Bar")
	call2.Serial = 2
	_, err = tree.dispatch(nil, call2)
	var unknownMethod *unknownMethodError
	assert.ErrorAs(t, err, &unknownMethod)
}

func TestObjectTreeDispatchesRegisteredMethod(t *testing.T) {
	tree := newObjectTree()
	tree.AddInterface("/obj", &Interface{
		Name: "com.example.Thing",
		Methods: map[string]*Method{
			"Double": {
				Handler: func(_ *Connection, _ *Message, args []Value) ([]Value, error) {
					return []Value{NewInt32(args[0].Int32() * 2)}, nil
				},
			},
		},
	})

	call := NewMethodCall("", "/obj", "com.example.Thing", "Double")
	call.Serial = 1
	call.Body = []Value{NewInt32(21)}
	reply, err := tree.dispatch(nil, call)
	require.NoError(t, err)
	require.Len(t, reply.Body, 1)
	assert.Equal(t, int32(42), reply.Body[0].Int32())
}

func TestObjectTreePropertiesGetSet(t *testing.T) {
	tree := newObjectTree()
	value := NewInt32(10)
	tree.AddInterface("/obj", &Interface{
		Name: "com.example.Thing",
		Properties: map[string]*Property{
			"Count": {
				Type: basicType(KindInt32),
				Get:  func() (Value, error) { return value, nil },
				Set:  func(v Value) error { value = v; return nil },
			},
		},
	})

	get := NewMethodCall("", "/obj", ifaceProperties, "Get")
	get.Serial = 1
	get.Body = []Value{mustString("com.example.Thing"), mustString("Count")}
	reply, err := tree.dispatch(nil, get)
	require.NoError(t, err)
	assert.Equal(t, int32(10), reply.Body[0].Inner().Int32())

	set := NewMethodCall("", "/obj", ifaceProperties, "Set")
	set.Serial = 2
	set.Body = []Value{mustString("com.example.Thing"), mustString("Count"), NewVariant(NewInt32(99))}
	_, err = tree.dispatch(nil, set)
	require.NoError(t, err)
	assert.Equal(t, int32(99), value.Int32())
}

func TestObjectTreeIntrospectIncludesStandardInterfaces(t *testing.T) {
	tree := newObjectTree()
	call := NewMethodCall("", "/obj", ifaceIntrospectable, "Introspect")
	call.Serial = 1
	reply, err := tree.dispatch(nil, call)
	require.NoError(t, err)
	require.Len(t, reply.Body, 1)
	xml := reply.Body[0].Str()
	assert.Contains(t, xml, ifacePeer)
	assert.Contains(t, xml, ifaceProperties)
}
