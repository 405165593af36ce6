package dbus

import (
	"encoding/binary"
	"math"
)

// MaxArrayBodySize and MaxMessageSize bound the codec per §4.3.
const (
	MaxArrayBodySize = 64 * 1024 * 1024
	MaxMessageSize   = 128 * 1024 * 1024
)

// Encoder writes D-Bus values into a growable byte buffer, honoring
// alignment and endianness as it goes (§4.3).
type Encoder struct {
	buf   []byte
	order binary.ByteOrder
}

// NewEncoder returns an Encoder that writes multi-byte values in order.
func NewEncoder(order binary.ByteOrder) *Encoder {
	return &Encoder{order: order}
}

// Bytes returns the bytes written so far. The slice aliases the
// Encoder's internal buffer and must be copied before further writes if
// retained independently.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the current write offset.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) writeByte(b byte) { e.buf = append(e.buf, b) }
func (e *Encoder) writeBytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) writeUint16(v uint16) {
	e.align(2)
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) writeUint32(v uint32) {
	e.align(4)
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) writeUint64(v uint64) {
	e.align(8)
	var b [8]byte
	e.order.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// patchUint32 overwrites four already-written bytes at pos with v, used
// to back-patch array body lengths once the body has been written.
func (e *Encoder) patchUint32(pos int, v uint32) {
	e.order.PutUint32(e.buf[pos:pos+4], v)
}

// EncodeValue appends v to the buffer, honoring v.Type's alignment.
func (e *Encoder) EncodeValue(v Value) error {
	t := v.Type
	e.align(t.Align())
	switch t.Kind {
	case KindByte:
		e.writeByte(v.Byte())
	case KindBool:
		n := uint32(0)
		if v.Bool() {
			n = 1
		}
		e.writeUint32(n)
	case KindInt16:
		e.writeUint16(uint16(v.Int16()))
	case KindUint16:
		e.writeUint16(v.Uint16())
	case KindInt32:
		e.writeUint32(uint32(v.Int32()))
	case KindUint32:
		e.writeUint32(v.Uint32())
	case KindUnixFD:
		e.writeUint32(v.UnixFD())
	case KindInt64:
		e.writeUint64(uint64(v.Int64()))
	case KindUint64:
		e.writeUint64(v.Uint64())
	case KindDouble:
		e.writeUint64(math.Float64bits(v.Double()))
	case KindString, KindObjectPath:
		return e.encodeString(v.Str())
	case KindSignature:
		return e.encodeSignature(v.Str())
	case KindArray:
		return e.encodeArray(v)
	case KindStruct, KindDictEntry:
		return e.encodeFields(v.Elems())
	case KindVariant:
		return e.encodeVariant(*v.Inner())
	default:
		return &SignatureError{Reason: "cannot encode value of unknown kind"}
	}
	return nil
}

func (e *Encoder) encodeString(s string) error {
	if err := validateStringContent(s); err != nil {
		return err
	}
	e.writeUint32(uint32(len(s)))
	e.writeBytes([]byte(s))
	e.writeByte(0)
	return nil
}

func (e *Encoder) encodeSignature(s string) error {
	if len(s) > 255 {
		return &SignatureError{Signature: s, Reason: "signature exceeds 255 bytes"}
	}
	e.writeByte(byte(len(s)))
	e.writeBytes([]byte(s))
	e.writeByte(0)
	return nil
}

func (e *Encoder) encodeFields(fields []Value) error {
	e.align(8)
	for _, f := range fields {
		if err := e.EncodeValue(f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeArray(v Value) error {
	elemType := v.Type.Children[0]
	e.align(4)
	lenPos := len(e.buf)
	e.writeBytes([]byte{0, 0, 0, 0})
	e.align(elemType.Align())
	bodyStart := len(e.buf)
	for _, elem := range v.Elems() {
		if err := e.EncodeValue(elem); err != nil {
			return err
		}
	}
	bodyLen := len(e.buf) - bodyStart
	if bodyLen > MaxArrayBodySize {
		return &InvalidValueError{Offset: bodyStart, Reason: "array body exceeds 64MiB"}
	}
	e.patchUint32(lenPos, uint32(bodyLen))
	return nil
}

func (e *Encoder) encodeVariant(inner Value) error {
	sig := inner.Type.String()
	if err := e.encodeSignature(sig); err != nil {
		return err
	}
	return e.EncodeValue(inner)
}

// Decoder reads D-Bus values out of an immutable byte slice, honoring
// alignment and endianness (§4.3). Errors about the buffer contents
// (*ReadBufferError, *AlignmentError, *InvalidValueError) carry the offset
// at which they were raised; a malformed signature yields a
// *SignatureError, which names the signature but carries no offset.
type Decoder struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewDecoder returns a Decoder reading buf in the given byte order.
func NewDecoder(buf []byte, order binary.ByteOrder) *Decoder {
	return &Decoder{buf: buf, order: order}
}

// Pos returns the current read offset.
func (d *Decoder) Pos() int { return d.pos }

func (d *Decoder) align(n int) error {
	for d.pos%n != 0 {
		if d.pos >= len(d.buf) {
			return &AlignmentError{Offset: d.pos, Alignment: n}
		}
		d.pos++
	}
	return nil
}

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.buf) {
		return &ReadBufferError{Offset: d.pos, Reason: "short read"}
	}
	return nil
}

func (d *Decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) readUint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) readUint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// DecodeValue reads one value of type t from the buffer.
func (d *Decoder) DecodeValue(t *Type) (Value, error) {
	if err := d.align(t.Align()); err != nil {
		return Value{}, err
	}
	switch t.Kind {
	case KindByte:
		b, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		return NewByte(b), nil
	case KindBool:
		n, err := d.readUint32()
		if err != nil {
			return Value{}, err
		}
		if n != 0 && n != 1 {
			return Value{}, &InvalidValueError{Offset: d.pos - 4, Reason: "boolean is neither 0 nor 1"}
		}
		return NewBool(n == 1), nil
	case KindInt16:
		n, err := d.readUint16()
		if err != nil {
			return Value{}, err
		}
		return NewInt16(int16(n)), nil
	case KindUint16:
		n, err := d.readUint16()
		if err != nil {
			return Value{}, err
		}
		return NewUint16(n), nil
	case KindInt32:
		n, err := d.readUint32()
		if err != nil {
			return Value{}, err
		}
		return NewInt32(int32(n)), nil
	case KindUint32:
		n, err := d.readUint32()
		if err != nil {
			return Value{}, err
		}
		return NewUint32(n), nil
	case KindUnixFD:
		n, err := d.readUint32()
		if err != nil {
			return Value{}, err
		}
		return NewUnixFD(n), nil
	case KindInt64:
		n, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return NewInt64(int64(n)), nil
	case KindUint64:
		n, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return NewUint64(n), nil
	case KindDouble:
		n, err := d.readUint64()
		if err != nil {
			return Value{}, err
		}
		return NewDouble(math.Float64frombits(n)), nil
	case KindString, KindObjectPath:
		start := d.pos
		s, err := d.readString()
		if err != nil {
			return Value{}, err
		}
		var v Value
		if t.Kind == KindString {
			v, err = NewString(s)
		} else {
			v, err = NewObjectPath(s)
		}
		if rbe, ok := err.(*ReadBufferError); ok {
			rbe.Offset = start
		}
		return v, err
	case KindSignature:
		s, err := d.readSignature()
		if err != nil {
			return Value{}, err
		}
		return NewSignatureValue(Signature(s))
	case KindArray:
		return d.decodeArray(t)
	case KindStruct, KindDictEntry:
		return d.decodeFields(t)
	case KindVariant:
		return d.decodeVariant()
	}
	return Value{}, &SignatureError{Reason: "cannot decode value of unknown kind"}
}

func (d *Decoder) readString() (string, error) {
	n, err := d.readUint32()
	if err != nil {
		return "", err
	}
	start := d.pos
	if err := d.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(d.buf[start : start+int(n)])
	if d.buf[start+int(n)] != 0 {
		return "", &ReadBufferError{Offset: start + int(n), Reason: "missing NUL terminator"}
	}
	d.pos += int(n) + 1
	return s, nil
}

func (d *Decoder) readSignature() (string, error) {
	n, err := d.readByte()
	if err != nil {
		return "", err
	}
	start := d.pos
	if err := d.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(d.buf[start : start+int(n)])
	if d.buf[start+int(n)] != 0 {
		return "", &ReadBufferError{Offset: start + int(n), Reason: "missing NUL terminator"}
	}
	d.pos += int(n) + 1
	return s, nil
}

func (d *Decoder) decodeFields(t *Type) (Value, error) {
	if err := d.align(8); err != nil {
		return Value{}, err
	}
	fields := make([]Value, len(t.Children))
	for i, c := range t.Children {
		v, err := d.DecodeValue(c)
		if err != nil {
			return Value{}, err
		}
		fields[i] = v
	}
	if t.Kind == KindDictEntry {
		return NewDictEntry(fields[0], fields[1])
	}
	return NewStruct(fields), nil
}

func (d *Decoder) decodeArray(t *Type) (Value, error) {
	bodyLen, err := d.readUint32()
	if err != nil {
		return Value{}, err
	}
	if bodyLen > MaxArrayBodySize {
		return Value{}, &InvalidValueError{Offset: d.pos - 4, Reason: "array body exceeds 64MiB"}
	}
	elemType := t.Children[0]
	if err := d.align(elemType.Align()); err != nil {
		return Value{}, err
	}
	bodyStart := d.pos
	end := bodyStart + int(bodyLen)
	if end > len(d.buf) {
		return Value{}, &ReadBufferError{Offset: bodyStart, Reason: "array declared length overruns buffer"}
	}
	var elems []Value
	for d.pos < end {
		v, err := d.DecodeValue(elemType)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	if d.pos != end {
		return Value{}, &ReadBufferError{Offset: end, Reason: "array declared length mismatched element boundary"}
	}
	return NewArray(elemType, elems)
}

func (d *Decoder) decodeVariant() (Value, error) {
	sig, err := d.readSignature()
	if err != nil {
		return Value{}, err
	}
	t, err := ParseSingleType(Signature(sig))
	if err != nil {
		return Value{}, err
	}
	inner, err := d.DecodeValue(t)
	if err != nil {
		return Value{}, err
	}
	return NewVariant(inner), nil
}
