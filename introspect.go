package dbus

import (
	"strings"

	"github.com/marmos91/godbus-core/introspectxml"
)

const ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"

func (t *objectTree) dispatchIntrospectable(msg *Message, path ObjectPath, member string) (*Message, error) {
	if member != "Introspect" {
		return nil, &unknownMethodError{member}
	}

	node := &introspectxml.Node{}
	node.Interfaces = append(node.Interfaces, standardInterfacesXML(path)...)

	if ifaces := t.interfacesAt(path); ifaces != nil {
		for _, iface := range ifaces {
			node.Interfaces = append(node.Interfaces, interfaceToXML(iface))
		}
	}

	for _, child := range t.directChildren(path) {
		node.AddChild(child)
	}

	xmlText, err := introspectxml.Render(node)
	if err != nil {
		return nil, err
	}
	v, err := NewString(xmlText)
	if err != nil {
		return nil, err
	}
	reply := NewMethodReturn(msg)
	reply.Body = []Value{v}
	return reply, nil
}

// directChildren returns the immediate child path segments of path among
// all registered object paths, per the Introspectable child-node rule.
func (t *objectTree) directChildren(path ObjectPath) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	prefix := string(path)
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	var out []string
	for p := range t.objects {
		s := string(p)
		if !strings.HasPrefix(s, prefix) || s == string(path) {
			continue
		}
		rest := s[len(prefix):]
		seg := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seg = rest[:i]
		}
		if seg != "" && !seen[seg] {
			seen[seg] = true
			out = append(out, seg)
		}
	}
	return out
}

func interfaceToXML(iface *Interface) introspectxml.Interface {
	out := introspectxml.Interface{Name: iface.Name}
	for name, m := range iface.Methods {
		xm := introspectxml.Method{Name: name}
		for _, t := range m.InArgs {
			xm.Args = append(xm.Args, introspectxml.Arg{Type: t.String(), Direction: "in"})
		}
		for _, t := range m.OutArgs {
			xm.Args = append(xm.Args, introspectxml.Arg{Type: t.String(), Direction: "out"})
		}
		out.Methods = append(out.Methods, xm)
	}
	for name, p := range iface.Properties {
		access := "read"
		if p.Set != nil {
			access = "readwrite"
		}
		out.Properties = append(out.Properties, introspectxml.Property{Name: name, Type: p.Type.String(), Access: access})
	}
	for name, s := range iface.Signals {
		xs := introspectxml.Signal{Name: name}
		for _, t := range s.Args {
			xs.Args = append(xs.Args, introspectxml.Arg{Type: t.String()})
		}
		out.Signals = append(out.Signals, xs)
	}
	return out
}

func standardInterfacesXML(path ObjectPath) []introspectxml.Interface {
	return []introspectxml.Interface{
		{
			Name: ifacePeer,
			Methods: []introspectxml.Method{
				{Name: "Ping"},
				{Name: "GetMachineId", Args: []introspectxml.Arg{{Type: "s", Direction: "out"}}},
			},
		},
		{
			Name: ifaceIntrospectable,
			Methods: []introspectxml.Method{
				{Name: "Introspect", Args: []introspectxml.Arg{{Type: "s", Direction: "out"}}},
			},
		},
		{
			Name: ifaceProperties,
			Methods: []introspectxml.Method{
				{Name: "Get", Args: []introspectxml.Arg{{Type: "s", Direction: "in"}, {Type: "s", Direction: "in"}, {Type: "v", Direction: "out"}}},
				{Name: "Set", Args: []introspectxml.Arg{{Type: "s", Direction: "in"}, {Type: "s", Direction: "in"}, {Type: "v", Direction: "in"}}},
				{Name: "GetAll", Args: []introspectxml.Arg{{Type: "s", Direction: "in"}, {Type: "a{sv}", Direction: "out"}}},
			},
			Signals: []introspectxml.Signal{
				{Name: "PropertiesChanged", Args: []introspectxml.Arg{{Type: "s"}, {Type: "a{sv}"}, {Type: "as"}}},
			},
		},
	}
}
