package dbus

import "fmt"

// SignatureError reports a malformed or unsupported type signature.
type SignatureError struct {
	Signature string
	Reason    string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("dbus: bad signature %q: %s", e.Signature, e.Reason)
}

// AlignmentError reports that honoring a type's alignment would read or
// write past the end of the buffer.
type AlignmentError struct {
	Offset    int
	Alignment int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("dbus: alignment to %d at offset %d overruns buffer", e.Alignment, e.Offset)
}

// ReadBufferError reports a short read, a missing NUL terminator, or an
// invalid object path encountered while decoding.
type ReadBufferError struct {
	Offset int
	Reason string
}

func (e *ReadBufferError) Error() string {
	return fmt.Sprintf("dbus: read error at offset %d: %s", e.Offset, e.Reason)
}

// InvalidValueError reports an out-of-range numeric value or a boolean
// that decoded to neither 0 nor 1.
type InvalidValueError struct {
	Offset int
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("dbus: invalid value at offset %d: %s", e.Offset, e.Reason)
}

// HandshakeError reports a SASL authentication failure.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("dbus: handshake failed: %s", e.Reason)
}

// ConnectionError reports that the transport was lost or the connection
// was never fully established.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("dbus: connection error: %s", e.Reason)
}

// ProtocolError reports a required header field missing, or a forbidden
// field present, on an inbound or outbound message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("dbus: protocol error: %s", e.Reason)
}

// RemoteError is the value handed to a waiter when the daemon, or the
// remote peer, replies with a D-Bus ERROR message. The codec and the
// call machinery never return it for their own failures. Local method
// handlers, and the Properties dispatcher on a Set of a read-only
// property, return it to choose the error name of the ERROR reply sent
// back to the caller.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// TimeoutError reports that an outgoing call's deadline elapsed before a
// reply arrived.
type TimeoutError struct {
	Serial uint32
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dbus: call (serial %d) timed out", e.Serial)
}

// CancelledError reports that an outgoing call was cancelled by its
// caller before a reply arrived.
type CancelledError struct {
	Serial uint32
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("dbus: call (serial %d) cancelled", e.Serial)
}

// Well-known daemon error names, used both when recognizing replies and
// when the local object dispatcher synthesizes its own ERROR replies.
const (
	ErrUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrFailed           = "org.freedesktop.DBus.Error.Failed"
	ErrNoReply          = "org.freedesktop.DBus.Error.NoReply"
)
