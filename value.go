package dbus

import (
	"fmt"
	"unicode/utf8"
)

// Value is a single D-Bus value paired with its type, per §4.2. It is
// implemented as a tagged struct rather than an interface-typed sum so
// that scalars never need boxing: exactly one of the fields below is
// meaningful, selected by Type.Kind.
type Value struct {
	Type *Type

	num uint64  // byte, bool, int16/uint16, int32/uint32, int64/uint64 (bit pattern)
	f   float64 // double
	str string  // string, object path, signature

	elems []Value // array elements, struct/dict-entry fields (in order)
	inner *Value  // variant's wrapped value
}

func basicType(k Kind) *Type { return &Type{Kind: k} }

// NewByte constructs a byte value.
func NewByte(v byte) Value { return Value{Type: basicType(KindByte), num: uint64(v)} }

// NewBool constructs a boolean value.
func NewBool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{Type: basicType(KindBool), num: n}
}

// NewInt16 constructs a signed 16-bit value.
func NewInt16(v int16) Value { return Value{Type: basicType(KindInt16), num: uint64(uint16(v))} }

// NewUint16 constructs an unsigned 16-bit value.
func NewUint16(v uint16) Value { return Value{Type: basicType(KindUint16), num: uint64(v)} }

// NewInt32 constructs a signed 32-bit value.
func NewInt32(v int32) Value { return Value{Type: basicType(KindInt32), num: uint64(uint32(v))} }

// NewUint32 constructs an unsigned 32-bit value.
func NewUint32(v uint32) Value { return Value{Type: basicType(KindUint32), num: uint64(v)} }

// NewInt64 constructs a signed 64-bit value.
func NewInt64(v int64) Value { return Value{Type: basicType(KindInt64), num: uint64(v)} }

// NewUint64 constructs an unsigned 64-bit value.
func NewUint64(v uint64) Value { return Value{Type: basicType(KindUint64), num: v} }

// NewUnixFD constructs a UNIX_FDS value. The core only reserves the type
// code; no descriptor is actually transferred (§1 Non-goals).
func NewUnixFD(v uint32) Value { return Value{Type: basicType(KindUnixFD), num: uint64(v)} }

// NewDouble constructs a 64-bit IEEE-754 value.
func NewDouble(v float64) Value { return Value{Type: basicType(KindDouble), f: v} }

// NewString constructs a string value, validating UTF-8 and the absence
// of an interior NUL.
func NewString(v string) (Value, error) {
	if err := validateStringContent(v); err != nil {
		return Value{}, err
	}
	return Value{Type: basicType(KindString), str: v}, nil
}

// NewObjectPath constructs an object-path value, validating the object
// path grammar from §4.3.
func NewObjectPath(v string) (Value, error) {
	if !isValidObjectPath(v) {
		return Value{}, &ReadBufferError{Reason: "invalid object path " + quote(v)}
	}
	return Value{Type: basicType(KindObjectPath), str: v}, nil
}

// NewSignatureValue constructs a SIGNATURE-typed value (a signature
// carried as payload, e.g. the SIGNATURE header field).
func NewSignatureValue(v Signature) (Value, error) {
	if _, err := ParseSignature(v); err != nil {
		return Value{}, err
	}
	return Value{Type: basicType(KindSignature), str: string(v)}, nil
}

// NewArray constructs an array value; every element must share elemType.
func NewArray(elemType *Type, elems []Value) (Value, error) {
	for i, e := range elems {
		if !typesEqual(e.Type, elemType) {
			return Value{}, &SignatureError{Reason: fmt.Sprintf("array element %d has type %s, want %s", i, e.Type, elemType)}
		}
	}
	cp := append([]Value(nil), elems...)
	return Value{Type: &Type{Kind: KindArray, Children: []*Type{elemType}}, elems: cp}, nil
}

// NewStruct constructs a struct value from its ordered fields.
func NewStruct(fields []Value) Value {
	children := make([]*Type, len(fields))
	for i, f := range fields {
		children[i] = f.Type
	}
	cp := append([]Value(nil), fields...)
	return Value{Type: &Type{Kind: KindStruct, Children: children}, elems: cp}
}

// NewDictEntry constructs a dict-entry value; key must have a basic type.
func NewDictEntry(key, val Value) (Value, error) {
	if !key.Type.Kind.isBasic() {
		return Value{}, &SignatureError{Reason: "dict-entry key must be a basic type"}
	}
	return Value{
		Type:  &Type{Kind: KindDictEntry, Children: []*Type{key.Type, val.Type}},
		elems: []Value{key, val},
	}, nil
}

// NewVariant constructs a variant wrapping inner, whose own type becomes
// the variant's inner signature. Per REDESIGN note (Open Question a),
// there is no type-guessing path: the caller always provides inner's
// type by constructing it first.
func NewVariant(inner Value) Value {
	v := inner
	return Value{Type: basicType(KindVariant), inner: &v}
}

func typesEqual(a, b *Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !typesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func validateStringContent(s string) error {
	if !utf8.ValidString(s) {
		return &ReadBufferError{Reason: "string is not valid UTF-8"}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return &ReadBufferError{Reason: "string contains interior NUL"}
		}
	}
	return nil
}

func isValidObjectPath(p string) bool {
	if p == "/" {
		return true
	}
	if p == "" || p[0] != '/' {
		return false
	}
	for _, seg := range splitPathSegments(p[1:]) {
		if seg == "" {
			return false
		}
		for i := 0; i < len(seg); i++ {
			c := seg[i]
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
				return false
			}
		}
	}
	return true
}

func splitPathSegments(s string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			segs = append(segs, s[start:i])
			start = i + 1
		}
	}
	return segs
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

// Byte, Bool, Int16, Uint16, Int32, Uint32, Int64, Uint64, UnixFD, and
// Double accessors panic if called against the wrong Kind; callers are
// expected to switch on Type.Kind first (as the decoder and Raw() do).
// Str, Elems, and Inner do no kind check: Str serves strings, object
// paths, and signatures alike, and all three return the zero value for a
// Value of any other kind.

func (v Value) Byte() byte       { v.mustKind(KindByte); return byte(v.num) }
func (v Value) Bool() bool       { v.mustKind(KindBool); return v.num != 0 }
func (v Value) Int16() int16     { v.mustKind(KindInt16); return int16(uint16(v.num)) }
func (v Value) Uint16() uint16   { v.mustKind(KindUint16); return uint16(v.num) }
func (v Value) Int32() int32     { v.mustKind(KindInt32); return int32(uint32(v.num)) }
func (v Value) Uint32() uint32   { v.mustKind(KindUint32); return uint32(v.num) }
func (v Value) Int64() int64     { v.mustKind(KindInt64); return int64(v.num) }
func (v Value) Uint64() uint64   { v.mustKind(KindUint64); return v.num }
func (v Value) UnixFD() uint32   { v.mustKind(KindUnixFD); return uint32(v.num) }
func (v Value) Double() float64  { v.mustKind(KindDouble); return v.f }
func (v Value) Str() string      { return v.str }
func (v Value) Elems() []Value   { return v.elems }
func (v Value) Inner() *Value    { return v.inner }

func (v Value) mustKind(k Kind) {
	if v.Type == nil || v.Type.Kind != k {
		panic(fmt.Sprintf("dbus: Value accessor called for kind %q on value of kind %v", k, v.Type))
	}
}

// Raw projects a typed Value into a plain Go value tree for application
// consumption, per §4.2: dict-entry arrays become maps, structs become
// ordered slices, and a variant's inner value is unwrapped.
func (v Value) Raw() (interface{}, error) {
	switch v.Type.Kind {
	case KindByte:
		return v.Byte(), nil
	case KindBool:
		return v.Bool(), nil
	case KindInt16:
		return v.Int16(), nil
	case KindUint16:
		return v.Uint16(), nil
	case KindInt32:
		return v.Int32(), nil
	case KindUint32:
		return v.Uint32(), nil
	case KindInt64:
		return v.Int64(), nil
	case KindUint64:
		return v.Uint64(), nil
	case KindUnixFD:
		return v.UnixFD(), nil
	case KindDouble:
		return v.Double(), nil
	case KindString, KindObjectPath, KindSignature:
		return v.str, nil
	case KindVariant:
		return v.inner.Raw()
	case KindArray:
		if v.Type.Children[0].Kind == KindDictEntry {
			m := make(map[interface{}]interface{}, len(v.elems))
			for _, e := range v.elems {
				k, err := e.elems[0].Raw()
				if err != nil {
					return nil, err
				}
				val, err := e.elems[1].Raw()
				if err != nil {
					return nil, err
				}
				m[k] = val
			}
			return m, nil
		}
		out := make([]interface{}, len(v.elems))
		for i, e := range v.elems {
			raw, err := e.Raw()
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	case KindStruct:
		out := make([]interface{}, len(v.elems))
		for i, e := range v.elems {
			raw, err := e.Raw()
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	}
	return nil, &SignatureError{Reason: "cannot project value of unknown kind"}
}
