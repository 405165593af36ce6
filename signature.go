package dbus

import "strings"

// Kind identifies a D-Bus type code.
type Kind byte

// Basic and container type codes, per the D-Bus specification.
const (
	KindByte       Kind = 'y'
	KindBool       Kind = 'b'
	KindInt16      Kind = 'n'
	KindUint16     Kind = 'q'
	KindInt32      Kind = 'i'
	KindUint32     Kind = 'u'
	KindInt64      Kind = 'x'
	KindUint64     Kind = 't'
	KindDouble     Kind = 'd'
	KindString     Kind = 's'
	KindObjectPath Kind = 'o'
	KindSignature  Kind = 'g'
	KindUnixFD     Kind = 'h'
	KindArray      Kind = 'a'
	KindStruct     Kind = '('
	KindStructEnd  Kind = ')'
	KindDictEntry  Kind = '{'
	KindDictEnd    Kind = '}'
	KindVariant    Kind = 'v'
)

// MaxSignatureLength and MaxContainerDepth bound the signature grammar
// per the D-Bus specification.
const (
	MaxSignatureLength = 255
	MaxContainerDepth  = 32
)

func (k Kind) isBasic() bool {
	switch k {
	case KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindInt64, KindUint64, KindDouble, KindString, KindObjectPath,
		KindSignature, KindUnixFD:
		return true
	}
	return false
}

// Type is one node of a parsed signature: a basic type, or a container
// type together with its children (array: 1 child; struct: >=1; dict
// entry: exactly 2, key first).
type Type struct {
	Kind     Kind
	Children []*Type
}

// String renders the canonical signature for a single type node. It is
// the inverse of parsing: for any signature S, render(parse(S)) == S.
func (t *Type) String() string {
	var b strings.Builder
	t.render(&b)
	return b.String()
}

func (t *Type) render(b *strings.Builder) {
	switch t.Kind {
	case KindArray:
		b.WriteByte('a')
		t.Children[0].render(b)
	case KindStruct:
		b.WriteByte('(')
		for _, c := range t.Children {
			c.render(b)
		}
		b.WriteByte(')')
	case KindDictEntry:
		b.WriteByte('{')
		for _, c := range t.Children {
			c.render(b)
		}
		b.WriteByte('}')
	default:
		b.WriteByte(byte(t.Kind))
	}
}

// Signature is the ASCII string representation of a sequence of types.
type Signature string

// RenderSignature renders the sequence of parsed types back to its
// signature string form.
func RenderSignature(types []*Type) Signature {
	var b strings.Builder
	for _, t := range types {
		t.render(&b)
	}
	return Signature(b.String())
}

type sigParser struct {
	s     string
	pos   int
	depth int
}

// ParseSignature parses a complete signature string (zero or more
// top-level types) into a type tree. An empty string is a valid, empty
// signature.
func ParseSignature(sig Signature) ([]*Type, error) {
	s := string(sig)
	if len(s) > MaxSignatureLength {
		return nil, &SignatureError{Signature: s, Reason: "signature exceeds 255 bytes"}
	}
	p := &sigParser{s: s}
	var types []*Type
	for p.pos < len(p.s) {
		t, err := p.parseOne(false)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// ParseSingleType parses a signature that must describe exactly one
// type, as required for a variant's inner signature.
func ParseSingleType(sig Signature) (*Type, error) {
	types, err := ParseSignature(sig)
	if err != nil {
		return nil, err
	}
	if len(types) != 1 {
		return nil, &SignatureError{Signature: string(sig), Reason: "variant signature must describe exactly one type"}
	}
	return types[0], nil
}

// parseOne parses a single type starting at the current position.
// dictEntryOK is true only when the type being parsed is the sole child
// of an array, the one position a dict-entry type is legal.
func (p *sigParser) parseOne(dictEntryOK bool) (*Type, error) {
	if p.pos >= len(p.s) {
		return nil, &SignatureError{Signature: p.s, Reason: "unexpected end of signature"}
	}
	c := Kind(p.s[p.pos])
	switch {
	case c.isBasic() || c == KindVariant:
		p.pos++
		return &Type{Kind: c}, nil
	case c == KindArray:
		p.pos++
		p.depth++
		if p.depth > MaxContainerDepth {
			return nil, &SignatureError{Signature: p.s, Reason: "nesting exceeds 32 levels"}
		}
		elem, err := p.parseOne(true)
		p.depth--
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindArray, Children: []*Type{elem}}, nil
	case c == KindStruct:
		return p.parseBracketed(KindStruct, KindStructEnd, -1, "struct")
	case c == KindDictEntry:
		if !dictEntryOK {
			return nil, &SignatureError{Signature: p.s, Reason: "dict-entry outside an array"}
		}
		t, err := p.parseBracketed(KindDictEntry, KindDictEnd, 2, "dict entry")
		if err != nil {
			return nil, err
		}
		if !t.Children[0].Kind.isBasic() {
			return nil, &SignatureError{Signature: p.s, Reason: "dict-entry key must be a basic type"}
		}
		return t, nil
	default:
		return nil, &SignatureError{Signature: p.s, Reason: "unknown type code '" + string(c) + "'"}
	}
}

// parseBracketed parses the child types of a struct or dict entry, from
// just before the opening bracket to just after the matching close.
// want == -1 means "at least one"; otherwise exactly that many.
func (p *sigParser) parseBracketed(open, close Kind, want int, label string) (*Type, error) {
	p.pos++ // consume opening bracket
	p.depth++
	if p.depth > MaxContainerDepth {
		return nil, &SignatureError{Signature: p.s, Reason: "nesting exceeds 32 levels"}
	}
	var children []*Type
	for {
		if p.pos >= len(p.s) {
			return nil, &SignatureError{Signature: p.s, Reason: "unterminated " + label}
		}
		if Kind(p.s[p.pos]) == close {
			p.pos++
			break
		}
		if want >= 0 && len(children) == want {
			// dict-entry: key and value consumed, next must be close
			return nil, &SignatureError{Signature: p.s, Reason: label + " must have exactly two types"}
		}
		child, err := p.parseOne(false)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	p.depth--
	if want >= 0 && len(children) != want {
		return nil, &SignatureError{Signature: p.s, Reason: label + " must have exactly two types"}
	}
	if want < 0 && len(children) == 0 {
		return nil, &SignatureError{Signature: p.s, Reason: label + " must have at least one type"}
	}
	return &Type{Kind: open, Children: children}, nil
}

// Align returns the wire alignment, in bytes, for the given type.
func (t *Type) Align() int {
	switch t.Kind {
	case KindByte, KindSignature, KindVariant:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindBool, KindInt32, KindUint32, KindUnixFD, KindString, KindObjectPath, KindArray:
		return 4
	case KindInt64, KindUint64, KindDouble, KindStruct, KindDictEntry:
		return 8
	}
	return 1
}
