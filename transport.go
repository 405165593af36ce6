package dbus

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
)

// Transport frames messages over an already-open byte stream. Per the
// core/non-core split, it never dials a socket itself: callers hand it
// a live io.ReadWriteCloser (obtained from the busaddr package, a net.Conn,
// an in-memory pipe for tests, or anything else that satisfies the
// interface) plus metadata describing where that stream came from.
type Transport struct {
	conn   io.ReadWriteCloser
	r      *bufio.Reader
	isTCP  bool // drives the UNIX_FDS-over-TCP rejection (Open Question c)
	writeMu sync.Mutex
}

// NewTransport wraps conn. isTCP should be true when conn rides over a
// TCP-family address (no ancillary-data channel exists to carry
// UNIX_FDS payloads, so messages naming file descriptors are rejected).
func NewTransport(conn io.ReadWriteCloser, isTCP bool) *Transport {
	return &Transport{conn: conn, r: bufio.NewReaderSize(conn, 4096), isTCP: isTCP}
}

// Close closes the underlying stream.
func (t *Transport) Close() error { return t.conn.Close() }

// RawConn exposes the underlying stream, bypassing message framing. Dial
// runs the SASL handshake on the stream before wrapping it in a
// Transport, so the handshake does not go through RawConn.
func (t *Transport) RawConn() io.ReadWriteCloser { return t.conn }

// WriteMessage marshals m and writes it to the stream as a single framed
// unit, serializing concurrent writers.
func (t *Transport) WriteMessage(m *Message) error {
	if t.isTCP && carriesUnixFDs(m) {
		return &ProtocolError{Reason: "UNIX_FDS header field is not supported over a TCP transport"}
	}
	buf, err := m.Marshal()
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.conn.Write(buf)
	return err
}

func carriesUnixFDs(m *Message) bool {
	_, ok := m.field(FieldUnixFDs)
	return ok
}

// ReadMessage blocks until one full, well-formed message has been read
// off the stream and returns it; a fully framed message that fails to
// parse is logged and skipped. It computes the total frame length from the 16-byte
// fixed header (fields_len lives at offset 12) before reading the body,
// per §4.5: total = 16 + align8(fields_len) + body_len.
func (t *Transport) ReadMessage() (*Message, error) {
	prefix, err := t.peekHeaderPrefix()
	if err != nil {
		return nil, err
	}

	var order binary.ByteOrder
	switch prefix[0] {
	case 'l':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return nil, &ProtocolError{Reason: "unknown endianness tag in message header"}
	}
	fieldsLen := order.Uint32(prefix[12:16])
	bodyLen := order.Uint32(prefix[4:8])

	total := 16 + align8(int(fieldsLen)) + int(bodyLen)
	if total > MaxMessageSize {
		return nil, &ProtocolError{Reason: "message exceeds the 128MiB size limit"}
	}

	full := make([]byte, total)
	if _, err := io.ReadFull(t.r, full); err != nil {
		return nil, &ConnectionError{Reason: "short read while framing message: " + err.Error()}
	}

	m, _, err := UnmarshalMessage(full)
	if err == nil && t.isTCP && carriesUnixFDs(m) {
		err = &ProtocolError{Reason: "received UNIX_FDS header field over a TCP transport"}
	}
	if err != nil {
		// The whole frame has been consumed, so a malformed message is
		// logged and skipped and the stream stays usable.
		connLog.Warningf("dbus: dropping malformed inbound message: %v", err)
		return t.ReadMessage()
	}
	return m, nil
}

func (t *Transport) peekHeaderPrefix() ([]byte, error) {
	b, err := t.r.Peek(16)
	if err != nil {
		return nil, &ConnectionError{Reason: "short read while peeking message prefix: " + err.Error()}
	}
	return b, nil
}

func align8(n int) int { return (n + 7) &^ 7 }
