package dbus

const ifaceProperties = "org.freedesktop.DBus.Properties"

type unknownPropertyError struct{ name string }

func (e *unknownPropertyError) Error() string { return "unknown property " + e.name }

var dictEntryStringVariantType = &Type{Kind: KindDictEntry, Children: []*Type{basicType(KindString), basicType(KindVariant)}}

func (t *objectTree) dispatchProperties(conn *Connection, msg *Message, path ObjectPath, member string) (*Message, error) {
	switch member {
	case "Get":
		ifaceName, propName := msg.Body[0].Str(), msg.Body[1].Str()
		prop, err := t.lookupProperty(path, ifaceName, propName)
		if err != nil {
			return nil, err
		}
		val, err := prop.Get()
		if err != nil {
			return nil, err
		}
		reply := NewMethodReturn(msg)
		reply.Body = []Value{NewVariant(val)}
		return reply, nil

	case "Set":
		ifaceName, propName := msg.Body[0].Str(), msg.Body[1].Str()
		prop, err := t.lookupProperty(path, ifaceName, propName)
		if err != nil {
			return nil, err
		}
		if prop.Set == nil {
			return nil, &RemoteError{Name: ErrInvalidArgs, Message: propName + " is read-only"}
		}
		newVal := *msg.Body[2].Inner()
		if err := prop.Set(newVal); err != nil {
			return nil, err
		}
		if prop.Emits && conn != nil {
			t.emitPropertiesChanged(conn, path, ifaceName, propName, newVal)
		}
		return NewMethodReturn(msg), nil

	case "GetAll":
		ifaceName := msg.Body[0].Str()
		ifaces := t.interfacesAt(path)
		if ifaces == nil {
			return nil, &unknownObjectError{path}
		}
		target, ok := ifaces[ifaceName]
		if !ok {
			return nil, &unknownInterfaceError{ifaceName}
		}
		entries := make([]Value, 0, len(target.Properties))
		for name, prop := range target.Properties {
			val, err := prop.Get()
			if err != nil {
				return nil, err
			}
			key, _ := NewString(name)
			entry, err := NewDictEntry(key, NewVariant(val))
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		arr, err := NewArray(dictEntryStringVariantType, entries)
		if err != nil {
			return nil, err
		}
		reply := NewMethodReturn(msg)
		reply.Body = []Value{arr}
		return reply, nil
	}
	return nil, &unknownMethodError{member}
}

func (t *objectTree) lookupProperty(path ObjectPath, ifaceName, propName string) (*Property, error) {
	ifaces := t.interfacesAt(path)
	if ifaces == nil {
		return nil, &unknownObjectError{path}
	}
	target, ok := ifaces[ifaceName]
	if !ok {
		return nil, &unknownInterfaceError{ifaceName}
	}
	prop, ok := target.Properties[propName]
	if !ok {
		return nil, &unknownPropertyError{propName}
	}
	return prop, nil
}

func (t *objectTree) emitPropertiesChanged(conn *Connection, path ObjectPath, ifaceName, propName string, newVal Value) {
	key, _ := NewString(propName)
	entry, err := NewDictEntry(key, NewVariant(newVal))
	if err != nil {
		return
	}
	changed, err := NewArray(dictEntryStringVariantType, []Value{entry})
	if err != nil {
		return
	}
	invalidated, err := NewArray(basicType(KindString), nil)
	if err != nil {
		return
	}
	ifaceNameVal, _ := NewString(ifaceName)
	conn.Emit(path, ifaceProperties, "PropertiesChanged", ifaceNameVal, changed, invalidated)
}
