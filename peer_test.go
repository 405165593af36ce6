package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchPeerPingReturnsEmptyReply(t *testing.T) {
	call := NewMethodCall("", "/obj", ifacePeer, "Ping")
	call.Serial = 1
	reply, err := dispatchPeer(call, "Ping")
	require.NoError(t, err)
	assert.Equal(t, TypeMethodReturn, reply.Type)
	assert.Empty(t, reply.Body)
}

func TestDispatchPeerGetMachineIdReturnsStableID(t *testing.T) {
	call := NewMethodCall("", "/obj", ifacePeer, "GetMachineId")
	call.Serial = 1
	reply, err := dispatchPeer(call, "GetMachineId")
	require.NoError(t, err)
	require.Len(t, reply.Body, 1)
	first := reply.Body[0].Str()
	assert.NotEmpty(t, first)

	reply2, err := dispatchPeer(call, "GetMachineId")
	require.NoError(t, err)
	assert.Equal(t, first, reply2.Body[0].Str())
}

func TestDispatchPeerUnknownMethod(t *testing.T) {
	call := NewMethodCall("", "/obj", ifacePeer, "Bogus")
	call.Serial = 1
	_, err := dispatchPeer(call, "Bogus")
	var unknownMethod *unknownMethodError
	assert.ErrorAs(t, err, &unknownMethod)
}
