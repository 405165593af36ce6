package dbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func signalMsg(path ObjectPath, iface, member string) *Message {
	m := NewSignal(path, iface, member)
	m.Serial = 1
	return m
}

func TestSubscriptionSpecWildcardMatchesEverything(t *testing.T) {
	spec := SubscriptionSpec{}
	assert.True(t, spec.matches(signalMsg("/a/b", "x.y", "Z"), ""))
}

func TestSubscriptionSpecMatchesExactPath(t *testing.T) {
	spec := SubscriptionSpec{Path: "/a/b"}
	assert.True(t, spec.matches(signalMsg("/a/b", "x.y", "Z"), ""))
	assert.False(t, spec.matches(signalMsg("/a/c", "x.y", "Z"), ""))
}

func TestSubscriptionSpecMatchesInterfaceAndMember(t *testing.T) {
	spec := SubscriptionSpec{Interface: "x.y", Member: "Z"}
	assert.True(t, spec.matches(signalMsg("/a/b", "x.y", "Z"), ""))
	assert.False(t, spec.matches(signalMsg("/a/b", "x.y", "Other"), ""))
	assert.False(t, spec.matches(signalMsg("/a/b", "other.iface", "Z"), ""))
}

func TestSubscriptionSpecMatchesSenderAgainstResolvedUniqueName(t *testing.T) {
	spec := SubscriptionSpec{Sender: ":1.42"}
	msg := signalMsg("/a", "x.y", "Z")
	msg.SetSender(":1.42")
	assert.True(t, spec.matches(msg, ":1.42"))

	msg.SetSender(":1.99")
	assert.False(t, spec.matches(msg, ":1.42"))
}

func TestSubscriptionIndexDispatchesOnlyToMatchingSubscriptions(t *testing.T) {
	idx := newSubscriptionIndex()

	var matchedA, matchedB int
	subA, err := idx.Subscribe(nil, SubscriptionSpec{Path: "/a"}, func(*Message) { matchedA++ })
	assert.NoError(t, err)
	defer subA.Close()

	subB, err := idx.Subscribe(nil, SubscriptionSpec{Path: "/b"}, func(*Message) { matchedB++ })
	assert.NoError(t, err)
	defer subB.Close()

	idx.dispatch(signalMsg("/a", "x.y", "Z"))
	assert.Equal(t, 1, matchedA)
	assert.Equal(t, 0, matchedB)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	idx := newSubscriptionIndex()
	var count int
	sub, err := idx.Subscribe(nil, SubscriptionSpec{Path: "/a"}, func(*Message) { count++ })
	assert.NoError(t, err)

	idx.dispatch(signalMsg("/a", "x.y", "Z"))
	assert.Equal(t, 1, count)

	assert.NoError(t, sub.Close())
	idx.dispatch(signalMsg("/a", "x.y", "Z"))
	assert.Equal(t, 1, count)
}

func TestSubscriptionMatchRuleRendersWellFormed(t *testing.T) {
	spec := SubscriptionSpec{Path: "/a", Interface: "x.y", Member: "Z"}
	rule := spec.matchRule()
	assert.Contains(t, rule, "type='signal'")
	assert.Contains(t, rule, "path='/a'")
	assert.Contains(t, rule, "interface='x.y'")
	assert.Contains(t, rule, "member='Z'")
}
