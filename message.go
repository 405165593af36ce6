package dbus

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies one of the four D-Bus message types (§3).
type MessageType byte

const (
	TypeInvalid MessageType = iota
	TypeMethodCall
	TypeMethodReturn
	TypeError
	TypeSignal
)

func (t MessageType) String() string {
	switch t {
	case TypeMethodCall:
		return "method_call"
	case TypeMethodReturn:
		return "method_return"
	case TypeError:
		return "error"
	case TypeSignal:
		return "signal"
	default:
		return "invalid"
	}
}

// MessageFlag is a bitmask of the flags carried in the fixed header.
type MessageFlag byte

const (
	FlagNoReplyExpected MessageFlag = 1 << iota
	FlagNoAutoStart
	FlagAllowInteractiveAuth
)

// Header field codes recognized by the protocol (§3).
const (
	FieldPath byte = iota + 1
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFDs
)

var headerFieldType = map[byte]*Type{
	FieldPath:        basicType(KindObjectPath),
	FieldInterface:   basicType(KindString),
	FieldMember:      basicType(KindString),
	FieldErrorName:   basicType(KindString),
	FieldReplySerial: basicType(KindUint32),
	FieldDestination: basicType(KindString),
	FieldSender:      basicType(KindString),
	FieldSignature:   basicType(KindSignature),
	FieldUnixFDs:     basicType(KindUint32),
}

var headerFieldStructType = &Type{Kind: KindStruct, Children: []*Type{basicType(KindByte), basicType(KindVariant)}}
var headerFieldArrayType = &Type{Kind: KindArray, Children: []*Type{headerFieldStructType}}

// HeaderFieldEntry is one (code, variant) pair of the header field table.
type HeaderFieldEntry struct {
	Code  byte
	Value Value
}

// Message is a complete D-Bus message: fixed header, header field table,
// and body (§3, §4.4).
type Message struct {
	Order    binary.ByteOrder
	Type     MessageType
	Flags    MessageFlag
	Protocol byte
	Serial   uint32
	Fields   []HeaderFieldEntry
	Body     []Value
}

// NewMethodCall builds an outgoing METHOD_CALL message. serial must be
// assigned by the caller (the Connection Core owns serial allocation).
func NewMethodCall(destination string, path ObjectPath, iface, member string) *Message {
	m := &Message{Order: binary.LittleEndian, Type: TypeMethodCall, Protocol: 1}
	m.setField(FieldPath, mustObjectPath(path))
	m.setField(FieldMember, mustString(member))
	if iface != "" {
		m.setField(FieldInterface, mustString(iface))
	}
	if destination != "" {
		m.setField(FieldDestination, mustString(destination))
	}
	return m
}

// NewSignal builds an outgoing SIGNAL message.
func NewSignal(path ObjectPath, iface, member string) *Message {
	m := &Message{Order: binary.LittleEndian, Type: TypeSignal, Protocol: 1}
	m.setField(FieldPath, mustObjectPath(path))
	m.setField(FieldInterface, mustString(iface))
	m.setField(FieldMember, mustString(member))
	return m
}

// NewMethodReturn builds the METHOD_RETURN reply to call.
func NewMethodReturn(call *Message) *Message {
	m := &Message{Order: binary.LittleEndian, Type: TypeMethodReturn, Protocol: 1}
	m.setField(FieldReplySerial, NewUint32(call.Serial))
	if dest, ok := call.Sender(); ok {
		m.setField(FieldDestination, mustString(dest))
	}
	return m
}

// NewError builds the ERROR reply to call.
func NewError(call *Message, name, message string) *Message {
	m := &Message{Order: binary.LittleEndian, Type: TypeError, Protocol: 1}
	m.setField(FieldReplySerial, NewUint32(call.Serial))
	m.setField(FieldErrorName, mustString(name))
	if dest, ok := call.Sender(); ok {
		m.setField(FieldDestination, mustString(dest))
	}
	if message != "" {
		m.Body = []Value{mustString(message)}
	}
	return m
}

func mustString(s string) Value {
	v, err := NewString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustObjectPath(p ObjectPath) Value {
	v, err := NewObjectPath(string(p))
	if err != nil {
		panic(err)
	}
	return v
}

func (m *Message) setField(code byte, v Value) {
	for i, f := range m.Fields {
		if f.Code == code {
			m.Fields[i].Value = v
			return
		}
	}
	m.Fields = append(m.Fields, HeaderFieldEntry{Code: code, Value: v})
}

func (m *Message) field(code byte) (Value, bool) {
	for _, f := range m.Fields {
		if f.Code == code {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Path returns the PATH header field, if present.
func (m *Message) Path() (ObjectPath, bool) {
	v, ok := m.field(FieldPath)
	if !ok {
		return "", false
	}
	return ObjectPath(v.Str()), true
}

// Interface returns the INTERFACE header field, if present.
func (m *Message) Interface() (string, bool) {
	v, ok := m.field(FieldInterface)
	return v.Str(), ok
}

// Member returns the MEMBER header field, if present.
func (m *Message) Member() (string, bool) {
	v, ok := m.field(FieldMember)
	return v.Str(), ok
}

// ErrorName returns the ERROR_NAME header field, if present.
func (m *Message) ErrorName() (string, bool) {
	v, ok := m.field(FieldErrorName)
	return v.Str(), ok
}

// ReplySerial returns the REPLY_SERIAL header field, if present.
func (m *Message) ReplySerial() (uint32, bool) {
	v, ok := m.field(FieldReplySerial)
	if !ok {
		return 0, false
	}
	return v.Uint32(), true
}

// Destination returns the DESTINATION header field, if present.
func (m *Message) Destination() (string, bool) {
	v, ok := m.field(FieldDestination)
	return v.Str(), ok
}

// Sender returns the SENDER header field, if present.
func (m *Message) Sender() (string, bool) {
	v, ok := m.field(FieldSender)
	return v.Str(), ok
}

// SetDestination sets or replaces the DESTINATION header field.
func (m *Message) SetDestination(dest string) { m.setField(FieldDestination, mustString(dest)) }

// SetSender sets or replaces the SENDER header field (used by
// in-process signal-matching tests that bypass a real daemon).
func (m *Message) SetSender(sender string) { m.setField(FieldSender, mustString(sender)) }

// BodySignature returns the concatenated signature of the message body.
func (m *Message) BodySignature() Signature {
	var sig Signature
	for _, v := range m.Body {
		sig += Signature(v.Type.String())
	}
	return sig
}

// requiredFields and forbiddenFields implement the table in §4.4.
func requiredFields(t MessageType) []byte {
	switch t {
	case TypeMethodCall:
		return []byte{FieldPath, FieldMember}
	case TypeMethodReturn:
		return []byte{FieldReplySerial}
	case TypeError:
		return []byte{FieldReplySerial, FieldErrorName}
	case TypeSignal:
		return []byte{FieldPath, FieldInterface, FieldMember}
	}
	return nil
}

func forbiddenFields(t MessageType) []byte {
	switch t {
	case TypeMethodCall:
		return []byte{FieldReplySerial, FieldErrorName}
	case TypeMethodReturn:
		return []byte{FieldMember, FieldErrorName}
	case TypeError:
		return []byte{FieldMember}
	case TypeSignal:
		return []byte{FieldReplySerial, FieldErrorName}
	}
	return nil
}

func fieldName(code byte) string {
	switch code {
	case FieldPath:
		return "PATH"
	case FieldInterface:
		return "INTERFACE"
	case FieldMember:
		return "MEMBER"
	case FieldErrorName:
		return "ERROR_NAME"
	case FieldReplySerial:
		return "REPLY_SERIAL"
	case FieldDestination:
		return "DESTINATION"
	case FieldSender:
		return "SENDER"
	case FieldSignature:
		return "SIGNATURE"
	case FieldUnixFDs:
		return "UNIX_FDS"
	}
	return fmt.Sprintf("field(%d)", code)
}

// Validate checks the required/forbidden field table and the
// body/SIGNATURE consistency rule from §4.4.
func (m *Message) Validate() error {
	present := map[byte]bool{}
	for _, f := range m.Fields {
		present[f.Code] = true
	}
	for _, code := range requiredFields(m.Type) {
		if !present[code] {
			return &ProtocolError{Reason: fmt.Sprintf("%s message missing required field %s", m.Type, fieldName(code))}
		}
	}
	for _, code := range forbiddenFields(m.Type) {
		if present[code] {
			return &ProtocolError{Reason: fmt.Sprintf("%s message carries forbidden field %s", m.Type, fieldName(code))}
		}
	}
	sig := m.BodySignature()
	sigField, hasSig := m.field(FieldSignature)
	if len(m.Body) > 0 {
		if !hasSig {
			return &ProtocolError{Reason: "message has a body but no SIGNATURE field"}
		}
		if sigField.Str() != string(sig) {
			return &ProtocolError{Reason: "SIGNATURE field does not match body"}
		}
	} else if hasSig && sigField.Str() != "" {
		return &ProtocolError{Reason: "SIGNATURE field present but body is empty"}
	}
	return nil
}

// Marshal serializes the message to wire bytes. It computes and installs
// the SIGNATURE header field from m.Body automatically.
func (m *Message) Marshal() ([]byte, error) {
	order := m.Order
	if order == nil {
		order = binary.LittleEndian
	}

	bodyEnc := NewEncoder(order)
	for _, v := range m.Body {
		if err := bodyEnc.EncodeValue(v); err != nil {
			return nil, err
		}
	}
	body := bodyEnc.Bytes()

	sig := m.BodySignature()
	if sig != "" {
		sv, err := NewSignatureValue(sig)
		if err != nil {
			return nil, err
		}
		m.setField(FieldSignature, sv)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	entries := make([]Value, len(m.Fields))
	for i, f := range m.Fields {
		entries[i] = NewStruct([]Value{NewByte(f.Code), NewVariant(f.Value)})
	}
	fieldsValue, err := NewArray(headerFieldStructType, entries)
	if err != nil {
		return nil, err
	}

	headerEnc := NewEncoder(order)
	var endianByte byte
	if order == binary.LittleEndian {
		endianByte = 'l'
	} else {
		endianByte = 'B'
	}
	headerEnc.writeByte(endianByte)
	headerEnc.writeByte(byte(m.Type))
	headerEnc.writeByte(byte(m.Flags))
	headerEnc.writeByte(m.protocolOrDefault())
	headerEnc.writeUint32(uint32(len(body)))
	headerEnc.writeUint32(m.Serial)
	if err := headerEnc.EncodeValue(fieldsValue); err != nil {
		return nil, err
	}
	headerEnc.align(8)

	full := append(headerEnc.Bytes(), body...)
	if len(full) > MaxMessageSize {
		return nil, &InvalidValueError{Reason: "message exceeds 128MiB"}
	}
	return full, nil
}

func (m *Message) protocolOrDefault() byte {
	if m.Protocol == 0 {
		return 1
	}
	return m.Protocol
}

// UnmarshalMessage parses a complete message from buf, returning the
// message and the number of bytes consumed.
func UnmarshalMessage(buf []byte) (*Message, int, error) {
	if len(buf) < 16 {
		return nil, 0, &ReadBufferError{Reason: "short read: less than the 16-byte fixed header"}
	}
	var order binary.ByteOrder
	switch buf[0] {
	case 'l':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return nil, 0, &ProtocolError{Reason: "unknown endianness tag " + string(buf[0])}
	}

	d := NewDecoder(buf, order)
	d.pos = 1
	mtype, _ := d.readByte()
	flags, _ := d.readByte()
	proto, _ := d.readByte()
	bodyLen, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}
	serial, err := d.readUint32()
	if err != nil {
		return nil, 0, err
	}

	fieldsVal, err := d.DecodeValue(headerFieldArrayType)
	if err != nil {
		return nil, 0, err
	}
	if err := d.align(8); err != nil {
		return nil, 0, err
	}

	m := &Message{
		Order:    order,
		Type:     MessageType(mtype),
		Flags:    MessageFlag(flags),
		Protocol: proto,
		Serial:   serial,
	}
	for _, entry := range fieldsVal.Elems() {
		code := entry.Elems()[0].Byte()
		variant := entry.Elems()[1]
		m.Fields = append(m.Fields, HeaderFieldEntry{Code: code, Value: *variant.Inner()})
	}

	bodyStart := d.pos
	bodyEnd := bodyStart + int(bodyLen)
	if bodyEnd > len(buf) {
		return nil, 0, &ReadBufferError{Offset: bodyStart, Reason: "declared body length overruns buffer"}
	}
	if sigField, ok := m.field(FieldSignature); ok && bodyLen > 0 {
		types, err := ParseSignature(Signature(sigField.Str()))
		if err != nil {
			return nil, 0, err
		}
		bodyDec := NewDecoder(buf[bodyStart:bodyEnd], order)
		for _, t := range types {
			v, err := bodyDec.DecodeValue(t)
			if err != nil {
				return nil, 0, err
			}
			m.Body = append(m.Body, v)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, 0, err
	}

	return m, bodyEnd, nil
}
