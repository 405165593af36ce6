// Package introspectxml renders the introspection data a local object
// exposes into the XML document format org.freedesktop.DBus.Introspectable
// returns. It is the mirror image of what the teacher's introspect.go
// did: that code parsed a remote object's introspection XML into Go
// structures; this one takes Go structures describing a LOCAL object and
// renders them to XML for a remote caller to parse.
package introspectxml

import "encoding/xml"

// Arg is one method/signal argument.
type Arg struct {
	XMLName   xml.Name `xml:"arg"`
	Name      string   `xml:"name,attr,omitempty"`
	Type      string   `xml:"type,attr"`
	Direction string   `xml:"direction,attr,omitempty"`
}

// Method describes one callable method.
type Method struct {
	XMLName xml.Name `xml:"method"`
	Name    string   `xml:"name,attr"`
	Args    []Arg    `xml:"arg"`
}

// Property describes one property, with access "read", "write", or
// "readwrite".
type Property struct {
	XMLName xml.Name `xml:"property"`
	Name    string   `xml:"name,attr"`
	Type    string   `xml:"type,attr"`
	Access  string   `xml:"access,attr"`
}

// Signal describes one signal an interface may emit.
type Signal struct {
	XMLName xml.Name `xml:"signal"`
	Name    string   `xml:"name,attr"`
	Args    []Arg    `xml:"arg"`
}

// Interface is one interface's full introspection data.
type Interface struct {
	XMLName    xml.Name   `xml:"interface"`
	Name       string     `xml:"name,attr"`
	Methods    []Method   `xml:"method"`
	Properties []Property `xml:"property"`
	Signals    []Signal   `xml:"signal"`
}

// Node is everything introspectable at a single object path: its own
// interfaces plus the relative names of its children in the path tree.
type Node struct {
	XMLName    xml.Name    `xml:"node"`
	Name       string      `xml:"name,attr,omitempty"`
	Interfaces []Interface `xml:"interface"`
	Children   []nodeRef   `xml:"node"`
}

type nodeRef struct {
	XMLName xml.Name `xml:"node"`
	Name    string   `xml:"name,attr"`
}

// AddChild appends a child node reference by its relative path segment.
func (n *Node) AddChild(name string) {
	n.Children = append(n.Children, nodeRef{Name: name})
}

const doctype = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
`

// Render serializes n into a complete introspection XML document,
// including the standard DOCTYPE declaration.
func Render(n *Node) (string, error) {
	body, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + doctype + string(body) + "\n", nil
}
