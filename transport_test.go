package dbus

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientTransport := NewTransport(client, false)
	serverTransport := NewTransport(server, false)

	msg := NewSignal("/a", "x.y", "Z")
	msg.Serial = 3
	arg, err := NewString("hi")
	require.NoError(t, err)
	msg.Body = []Value{arg}

	done := make(chan error, 1)
	go func() { done <- clientTransport.WriteMessage(msg) }()

	got, err := serverTransport.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, TypeSignal, got.Type)
	assert.Equal(t, uint32(3), got.Serial)
	require.Len(t, got.Body, 1)
	assert.Equal(t, "hi", got.Body[0].Str())
}

func TestTransportRejectsUnixFDsOverTCP(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientTransport := NewTransport(client, true)

	msg := NewSignal("/a", "x.y", "Z")
	msg.Serial = 1
	msg.setField(FieldUnixFDs, NewUint32(1))

	err := clientTransport.WriteMessage(msg)
	assert.Error(t, err)
}

func TestAlign8(t *testing.T) {
	assert.Equal(t, 0, align8(0))
	assert.Equal(t, 8, align8(1))
	assert.Equal(t, 8, align8(8))
	assert.Equal(t, 16, align8(9))
}
