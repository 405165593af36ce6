package dbus

const ifaceObjectManager = "org.freedesktop.DBus.ObjectManager"

// ifacePropsEntryType is one (interfaceName, properties) entry as it
// appears inside a{sa{sv}}.
var ifacePropsEntryType = &Type{
	Kind: KindDictEntry,
	Children: []*Type{
		basicType(KindString),
		{Kind: KindArray, Children: []*Type{dictEntryStringVariantType}},
	},
}

// pathEntryType is one (objectPath, a{sa{sv}}) entry as it appears
// inside GetManagedObjects' a{oa{sa{sv}}} return value.
var pathEntryType = &Type{
	Kind:     KindDictEntry,
	Children: []*Type{basicType(KindObjectPath), {Kind: KindArray, Children: []*Type{ifacePropsEntryType}}},
}

func (t *objectTree) dispatchObjectManager(msg *Message, path ObjectPath, member string) (*Message, error) {
	if member != "GetManagedObjects" {
		return nil, &unknownMethodError{member}
	}

	t.mu.RLock()
	paths := make([]ObjectPath, 0, len(t.objects))
	for p := range t.objects {
		paths = append(paths, p)
	}
	t.mu.RUnlock()

	var outerEntries []Value
	for _, p := range paths {
		if !isDescendantOf(path, p) {
			continue
		}
		ifaceEntries, err := t.interfacePropertiesValue(p)
		if err != nil {
			return nil, err
		}
		if len(ifaceEntries) == 0 {
			continue
		}
		ifaceMap, err := NewArray(ifacePropsEntryType, ifaceEntries)
		if err != nil {
			return nil, err
		}
		pv, err := NewObjectPath(string(p))
		if err != nil {
			return nil, err
		}
		entry, err := NewDictEntry(pv, ifaceMap)
		if err != nil {
			return nil, err
		}
		outerEntries = append(outerEntries, entry)
	}

	arr, err := NewArray(pathEntryType, outerEntries)
	if err != nil {
		return nil, err
	}
	reply := NewMethodReturn(msg)
	reply.Body = []Value{arr}
	return reply, nil
}

// interfacePropertiesValue builds the (interfaceName, a{sv}) entries for
// every interface registered at path, used by both GetManagedObjects and
// the InterfacesAdded signal.
func (t *objectTree) interfacePropertiesValue(path ObjectPath) ([]Value, error) {
	ifaces := t.interfacesAt(path)
	var entries []Value
	for name, iface := range ifaces {
		var propEntries []Value
		for propName, prop := range iface.Properties {
			val, err := prop.Get()
			if err != nil {
				return nil, err
			}
			key, _ := NewString(propName)
			pe, err := NewDictEntry(key, NewVariant(val))
			if err != nil {
				return nil, err
			}
			propEntries = append(propEntries, pe)
		}
		propsArr, err := NewArray(dictEntryStringVariantType, propEntries)
		if err != nil {
			return nil, err
		}
		ifaceName, _ := NewString(name)
		entry, err := NewDictEntry(ifaceName, propsArr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func isDescendantOf(root, candidate ObjectPath) bool {
	if root == "/" {
		return true
	}
	r, c := string(root), string(candidate)
	return c == r || (len(c) > len(r) && c[:len(r)] == r && c[len(r)] == '/')
}

// RegisterInterface adds iface at path and announces it on the
// ObjectManager's InterfacesAdded signal.
func (c *Connection) RegisterInterface(path ObjectPath, iface *Interface) error {
	c.objects.AddInterface(path, iface)

	entries, err := c.objects.interfacePropertiesValue(path)
	if err != nil {
		return err
	}
	var justAdded Value
	for _, e := range entries {
		if e.Elems()[0].Str() == iface.Name {
			justAdded = e
			break
		}
	}
	if justAdded.Type == nil {
		return nil
	}

	ifaceMap, err := NewArray(ifacePropsEntryType, []Value{justAdded})
	if err != nil {
		return err
	}
	pv, err := NewObjectPath(string(path))
	if err != nil {
		return err
	}
	return c.Emit("/", ifaceObjectManager, "InterfacesAdded", pv, ifaceMap)
}

// UnregisterInterface removes name from path and announces it on the
// ObjectManager's InterfacesRemoved signal.
func (c *Connection) UnregisterInterface(path ObjectPath, name string) error {
	c.objects.RemoveInterface(path, name)
	pv, err := NewObjectPath(string(path))
	if err != nil {
		return err
	}
	nameVal, _ := NewString(name)
	namesArr, err := NewArray(basicType(KindString), []Value{nameVal})
	if err != nil {
		return err
	}
	return c.Emit("/", ifaceObjectManager, "InterfacesRemoved", pv, namesArr)
}
