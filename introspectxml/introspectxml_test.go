package introspectxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIncludesHeaderAndDoctype(t *testing.T) {
	n := &Node{}
	out, err := Render(n)
	require.NoError(t, err)
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, "DTD D-BUS Object Introspection 1.0")
}

func TestRenderIncludesInterfaceMethodsPropertiesAndSignals(t *testing.T) {
	n := &Node{
		Interfaces: []Interface{
			{
				Name: "com.example.Thing",
				Methods: []Method{
					{Name: "Double", Args: []Arg{
						{Name: "in", Type: "i", Direction: "in"},
						{Name: "out", Type: "i", Direction: "out"},
					}},
				},
				Properties: []Property{
					{Name: "Count", Type: "i", Access: "readwrite"},
				},
				Signals: []Signal{
					{Name: "Changed", Args: []Arg{{Type: "i"}}},
				},
			},
		},
	}
	out, err := Render(n)
	require.NoError(t, err)
	assert.Contains(t, out, `name="com.example.Thing"`)
	assert.Contains(t, out, `name="Double"`)
	assert.Contains(t, out, `name="Count"`)
	assert.Contains(t, out, `access="readwrite"`)
	assert.Contains(t, out, `name="Changed"`)
}

func TestAddChildAppendsNodeReference(t *testing.T) {
	n := &Node{}
	n.AddChild("sub")
	out, err := Render(n)
	require.NoError(t, err)
	assert.Contains(t, out, `name="sub"`)
}
