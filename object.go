package dbus

import "sync"

// Method is a single callable member of a registered local interface.
// Handler receives the already-decoded call arguments and returns the
// method-return body.
type Method struct {
	InArgs  []*Type
	OutArgs []*Type
	Handler func(conn *Connection, msg *Message, args []Value) ([]Value, error)
}

// Property is a single member of a registered local interface's property
// table, dispatched through org.freedesktop.DBus.Properties (§4.8).
type Property struct {
	Type     *Type
	Get      func() (Value, error)
	Set      func(Value) error // nil for a read-only property
	Emits    bool              // whether Set should emit PropertiesChanged
}

// SignalDef declares the argument shape of a signal a local interface
// may emit, for introspection purposes.
type SignalDef struct {
	Args []*Type
}

// Interface is one interface's worth of methods, properties, and signal
// declarations, attached to an object path.
type Interface struct {
	Name       string
	Methods    map[string]*Method
	Properties map[string]*Property
	Signals    map[string]*SignalDef
}

// objectTree is the connection's local-object path table: which
// interfaces (and their methods/properties) are registered at which
// object paths, plus dispatch for the standard interfaces every
// registered object implicitly supports (§4.8).
type objectTree struct {
	mu      sync.RWMutex
	objects map[ObjectPath]map[string]*Interface
}

func newObjectTree() *objectTree {
	return &objectTree{objects: make(map[ObjectPath]map[string]*Interface)}
}

// registerStandardInterfaces exists so Dial's wiring reads uniformly;
// Peer/Introspectable/Properties/ObjectManager dispatch is implemented
// inline in dispatch below rather than via static per-path registration,
// since it applies identically to every path in the tree.
func (t *objectTree) registerStandardInterfaces(conn *Connection) {}

// AddInterface registers iface at path, replacing any prior interface of
// the same name at that path.
func (t *objectTree) AddInterface(path ObjectPath, iface *Interface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ifaces, ok := t.objects[path]
	if !ok {
		ifaces = make(map[string]*Interface)
		t.objects[path] = ifaces
	}
	ifaces[iface.Name] = iface
}

// RemoveInterface unregisters the named interface from path.
func (t *objectTree) RemoveInterface(path ObjectPath, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ifaces, ok := t.objects[path]
	if !ok {
		return
	}
	delete(ifaces, name)
	if len(ifaces) == 0 {
		delete(t.objects, path)
	}
}

// Paths returns every object path with at least one registered interface,
// used by ObjectManager.GetManagedObjects.
func (t *objectTree) Paths() []ObjectPath {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ObjectPath, 0, len(t.objects))
	for p := range t.objects {
		out = append(out, p)
	}
	return out
}

func (t *objectTree) interfacesAt(path ObjectPath) map[string]*Interface {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.objects[path]
}

type unknownObjectError struct{ path ObjectPath }

func (e *unknownObjectError) Error() string { return "unknown object " + string(e.path) }

type unknownInterfaceError struct{ name string }

func (e *unknownInterfaceError) Error() string { return "unknown interface " + e.name }

type unknownMethodError struct{ name string }

func (e *unknownMethodError) Error() string { return "unknown method " + e.name }

// dispatch routes an inbound METHOD_CALL to the standard interfaces or to
// a registered Interface's Method, returning the reply message to send
// (nil meaning "use a default empty method return").
func (t *objectTree) dispatch(conn *Connection, msg *Message) (*Message, error) {
	path, _ := msg.Path()
	iface, _ := msg.Interface()
	member, _ := msg.Member()

	switch iface {
	case ifacePeer:
		return dispatchPeer(msg, member)
	case ifaceProperties:
		return t.dispatchProperties(conn, msg, path, member)
	case ifaceIntrospectable:
		return t.dispatchIntrospectable(msg, path, member)
	case ifaceObjectManager:
		return t.dispatchObjectManager(msg, path, member)
	}

	ifaces := t.interfacesAt(path)
	if ifaces == nil {
		return nil, &unknownObjectError{path}
	}

	target, ok := ifaces[iface]
	if !ok && iface == "" {
		for _, cand := range ifaces {
			if _, has := cand.Methods[member]; has {
				target = cand
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, &unknownInterfaceError{iface}
	}

	method, ok := target.Methods[member]
	if !ok {
		return nil, &unknownMethodError{member}
	}

	outArgs, err := method.Handler(conn, msg, msg.Body)
	if err != nil {
		return nil, err
	}
	reply := NewMethodReturn(msg)
	reply.Body = outArgs
	return reply, nil
}
