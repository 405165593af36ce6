package dbus

import (
	"fmt"
	"reflect"
)

// FromRaw attaches types to a raw Go value tree given a signature,
// the inverse of Value.Raw (§4.2). raw mirrors the shape an application
// would build by hand: basic Go types for basic D-Bus types, a slice for
// an array or struct, and a map for an array of dict-entries.
func FromRaw(sig Signature, raw interface{}) (Value, error) {
	t, err := ParseSingleType(sig)
	if err != nil {
		return Value{}, err
	}
	return fromRawType(t, raw)
}

// FromRawSequence attaches types to a sequence of raw values against a
// multi-type signature, as used for a message body.
func FromRawSequence(sig Signature, args []interface{}) ([]Value, error) {
	types, err := ParseSignature(sig)
	if err != nil {
		return nil, err
	}
	if len(types) != len(args) {
		return nil, &SignatureError{Signature: string(sig), Reason: fmt.Sprintf("signature has %d types but %d arguments given", len(types), len(args))}
	}
	out := make([]Value, len(args))
	for i, t := range types {
		v, err := fromRawType(t, args[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fromRawType(t *Type, raw interface{}) (Value, error) {
	if vv, ok := raw.(Value); ok {
		if typesEqual(vv.Type, t) {
			return vv, nil
		}
		if t.Kind != KindVariant {
			return Value{}, &SignatureError{Reason: fmt.Sprintf("value has type %s, want %s", vv.Type, t)}
		}
	}

	switch t.Kind {
	case KindByte:
		v, ok := raw.(byte)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewByte(v), nil
	case KindBool:
		v, ok := raw.(bool)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewBool(v), nil
	case KindInt16:
		v, ok := raw.(int16)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewInt16(v), nil
	case KindUint16:
		v, ok := raw.(uint16)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewUint16(v), nil
	case KindInt32:
		v, ok := raw.(int32)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewInt32(v), nil
	case KindUint32:
		v, ok := raw.(uint32)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewUint32(v), nil
	case KindInt64:
		v, ok := raw.(int64)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewInt64(v), nil
	case KindUint64:
		v, ok := raw.(uint64)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewUint64(v), nil
	case KindUnixFD:
		v, ok := raw.(uint32)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewUnixFD(v), nil
	case KindDouble:
		v, ok := raw.(float64)
		if !ok {
			return Value{}, typeMismatch(t, raw)
		}
		return NewDouble(v), nil
	case KindString:
		v, ok := raw.(string)
		if !ok {
			if op, ok2 := raw.(ObjectPath); ok2 {
				v = string(op)
			} else {
				return Value{}, typeMismatch(t, raw)
			}
		}
		return NewString(v)
	case KindObjectPath:
		switch v := raw.(type) {
		case ObjectPath:
			return NewObjectPath(string(v))
		case string:
			return NewObjectPath(v)
		default:
			return Value{}, typeMismatch(t, raw)
		}
	case KindSignature:
		switch v := raw.(type) {
		case Signature:
			return NewSignatureValue(v)
		case string:
			return NewSignatureValue(Signature(v))
		default:
			return Value{}, typeMismatch(t, raw)
		}
	case KindVariant:
		inner, ok := raw.(Value)
		if !ok {
			return Value{}, &SignatureError{Reason: "variant payload must be a pre-typed Value (no inference, see Open Question a)"}
		}
		return NewVariant(inner), nil
	case KindArray:
		return fromRawArray(t, raw)
	case KindStruct:
		return fromRawStruct(t, raw)
	}
	return Value{}, &SignatureError{Reason: "unsupported type for FromRaw"}
}

func fromRawArray(t *Type, raw interface{}) (Value, error) {
	elemType := t.Children[0]
	if elemType.Kind == KindDictEntry {
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Map {
			return Value{}, typeMismatch(t, raw)
		}
		keyType, valType := elemType.Children[0], elemType.Children[1]
		entries := make([]Value, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			kv, err := fromRawType(keyType, k.Interface())
			if err != nil {
				return Value{}, err
			}
			vv, err := fromRawType(valType, rv.MapIndex(k).Interface())
			if err != nil {
				return Value{}, err
			}
			entry, err := NewDictEntry(kv, vv)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, entry)
		}
		return NewArray(elemType, entries)
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return Value{}, typeMismatch(t, raw)
	}
	elems := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := fromRawType(elemType, rv.Index(i).Interface())
		if err != nil {
			return Value{}, err
		}
		elems[i] = v
	}
	return NewArray(elemType, elems)
}

func fromRawStruct(t *Type, raw interface{}) (Value, error) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return Value{}, typeMismatch(t, raw)
	}
	if rv.Len() != len(t.Children) {
		return Value{}, &SignatureError{Reason: fmt.Sprintf("struct has %d fields, signature wants %d", rv.Len(), len(t.Children))}
	}
	fields := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := fromRawType(t.Children[i], rv.Index(i).Interface())
		if err != nil {
			return Value{}, err
		}
		fields[i] = v
	}
	return NewStruct(fields), nil
}

func typeMismatch(t *Type, raw interface{}) error {
	return &SignatureError{Reason: fmt.Sprintf("cannot represent %T as %s", raw, t)}
}
