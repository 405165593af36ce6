package dbus

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// SubscriptionSpec describes which signals a Subscribe call wants to
// receive. An empty field acts as a wildcard for that component, per
// §4.7: a Path of "" matches signals from any path, and so on.
type SubscriptionSpec struct {
	Sender    string
	Path      ObjectPath
	Interface string
	Member    string
}

func (s SubscriptionSpec) matchRule() string {
	var parts []string
	parts = append(parts, "type='signal'")
	if s.Sender != "" {
		parts = append(parts, "sender='"+s.Sender+"'")
	}
	if s.Path != "" {
		parts = append(parts, "path='"+string(s.Path)+"'")
	}
	if s.Interface != "" {
		parts = append(parts, "interface='"+s.Interface+"'")
	}
	if s.Member != "" {
		parts = append(parts, "member='"+s.Member+"'")
	}
	return strings.Join(parts, ",")
}

// matches reports whether msg satisfies s, given resolvedSender — the
// unique name s.Sender currently resolves to (or s.Sender itself, if it
// was already a unique name or empty).
func (s SubscriptionSpec) matches(msg *Message, resolvedSender string) bool {
	if resolvedSender != "" {
		if sender, ok := msg.Sender(); !ok || sender != resolvedSender {
			return false
		}
	}
	if path, ok := msg.Path(); s.Path != "" && (!ok || path != s.Path) {
		return false
	}
	if iface, ok := msg.Interface(); s.Interface != "" && (!ok || iface != s.Interface) {
		return false
	}
	if member, ok := msg.Member(); s.Member != "" && (!ok || member != s.Member) {
		return false
	}
	return true
}

// Subscription is the handle returned by Connection.Subscribe. Closing
// it decrements the match rule's refcount and, when it reaches zero,
// removes the rule from the daemon.
type Subscription struct {
	idx  *subscriptionIndex
	id   uint64
	rule string

	closeOnce sync.Once
}

// Close stops delivery to this subscription's handler and, if no other
// subscription shares its match rule, removes the rule from the daemon.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.idx.remove(s)
	})
	return err
}

type subEntry struct {
	id      uint64
	spec    SubscriptionSpec
	handler func(*Message)
}

// subscriptionIndex is the connection-owned signal subscription table
// (§4.7): match-rule refcounting against the daemon, dispatch of inbound
// SIGNAL messages to matching subscriptions, and a bounded cache mapping
// well-known names to their current unique-name owner so subscriptions
// on a well-known Sender can be matched against the SENDER field the
// daemon actually fills in (always a unique name).
type subscriptionIndex struct {
	conn *Connection

	mu      sync.Mutex
	subs    map[uint64]*subEntry
	byRule  map[string][]uint64
	refcount map[string]int

	nextID uint64

	owners *lru.Cache // well-known name -> unique name
}

func newSubscriptionIndex() *subscriptionIndex {
	cache, _ := lru.New(256)
	return &subscriptionIndex{
		subs:     make(map[uint64]*subEntry),
		byRule:   make(map[string][]uint64),
		refcount: make(map[string]int),
		owners:   cache,
	}
}

func (idx *subscriptionIndex) onNameOwnerChanged(msg *Message) {
	if len(msg.Body) != 3 {
		return
	}
	name := msg.Body[0].Str()
	newOwner := msg.Body[2].Str()
	if newOwner == "" {
		idx.owners.Remove(name)
	} else {
		idx.owners.Add(name, newOwner)
	}
}

// Subscribe installs spec's match rule (sharing daemon-side refcounting
// with any identical existing rule) and returns a handle that delivers
// matching signals to handler until Close is called.
func (idx *subscriptionIndex) Subscribe(ctx context.Context, spec SubscriptionSpec, handler func(*Message)) (*Subscription, error) {
	return idx.subscribeLocked(spec, handler, true)
}

func (idx *subscriptionIndex) subscribeLocked(spec SubscriptionSpec, handler func(*Message), installOnBus bool) (*Subscription, error) {
	rule := spec.matchRule()

	idx.mu.Lock()
	firstForRule := idx.refcount[rule] == 0
	idx.refcount[rule]++
	id := atomic.AddUint64(&idx.nextID, 1)
	idx.subs[id] = &subEntry{id: id, spec: spec, handler: handler}
	idx.byRule[rule] = append(idx.byRule[rule], id)
	idx.mu.Unlock()

	if installOnBus && firstForRule && idx.conn != nil {
		if err := idx.conn.AddMatch(context.Background(), rule); err != nil {
			idx.removeByID(id, rule)
			return nil, err
		}
	}

	return &Subscription{idx: idx, id: id, rule: rule}, nil
}

func (idx *subscriptionIndex) remove(s *Subscription) error {
	return idx.removeByID(s.id, s.rule)
}

func (idx *subscriptionIndex) removeByID(id uint64, rule string) error {
	idx.mu.Lock()
	delete(idx.subs, id)
	ids := idx.byRule[rule]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(idx.byRule, rule)
	} else {
		idx.byRule[rule] = ids
	}
	idx.refcount[rule]--
	last := idx.refcount[rule] <= 0
	if last {
		delete(idx.refcount, rule)
	}
	idx.mu.Unlock()

	if last && idx.conn != nil {
		return idx.conn.RemoveMatch(context.Background(), rule)
	}
	return nil
}

// resolveSender returns the unique name that owns name, consulting the
// cache first and falling back to a live GetNameOwner call.
func (idx *subscriptionIndex) resolveSender(name string) string {
	if name == "" || strings.HasPrefix(name, ":") {
		return name
	}
	if v, ok := idx.owners.Get(name); ok {
		return v.(string)
	}
	if idx.conn == nil {
		return name
	}
	owner, err := idx.conn.GetNameOwner(context.Background(), name)
	if err != nil {
		return name
	}
	idx.owners.Add(name, owner)
	return owner
}

func (idx *subscriptionIndex) dispatch(msg *Message) {
	idx.mu.Lock()
	var matched []*subEntry
	for _, e := range idx.subs {
		matched = append(matched, e)
	}
	idx.mu.Unlock()

	// §4.7 requires sinks to be invoked in registration order; map
	// iteration above is randomized, so sort by the monotonically
	// increasing subscription id before firing any handler.
	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })

	for _, e := range matched {
		resolved := e.spec.Sender
		if resolved != "" && !strings.HasPrefix(resolved, ":") {
			resolved = idx.resolveSender(resolved)
		}
		if e.spec.matches(msg, resolved) {
			e.handler(msg)
		}
	}
}

// Subscribe installs a signal subscription on this connection. See
// subscriptionIndex.Subscribe for match-rule refcounting semantics.
func (c *Connection) Subscribe(ctx context.Context, spec SubscriptionSpec, handler func(*Message)) (*Subscription, error) {
	return c.subs.Subscribe(ctx, spec, handler)
}
