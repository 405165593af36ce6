package dbus

import "github.com/google/uuid"

const ifacePeer = "org.freedesktop.DBus.Peer"

// machineID is generated once per process lifetime and returned from
// GetMachineId. Real daemons read /var/lib/dbus/machine-id; this core
// has no filesystem dependency, so it mints a stand-in UUID instead.
var machineID = uuid.New().String()

func dispatchPeer(msg *Message, member string) (*Message, error) {
	switch member {
	case "Ping":
		return NewMethodReturn(msg), nil
	case "GetMachineId":
		reply := NewMethodReturn(msg)
		v, err := NewString(machineID)
		if err != nil {
			return nil, err
		}
		reply.Body = []Value{v}
		return reply, nil
	}
	return nil, &unknownMethodError{member}
}
