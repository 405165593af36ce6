package dbus

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/op/go-logging"
)

var connLog = logging.MustGetLogger("dbus")

const (
	busDaemonName  = "org.freedesktop.DBus"
	busDaemonPath  = ObjectPath("/org/freedesktop/DBus")
	busDaemonIface = "org.freedesktop.DBus"
)

// Connection is a live connection to a message bus. It owns the
// transport, the outgoing serial counter, the outgoing-call slot table,
// the signal subscription index, and the local object tree (§4.6). All
// of this state is private to the Connection; application goroutines
// only ever talk to it through Call/Go/Emit/Subscribe, never touching
// the transport directly.
type Connection struct {
	transport  *Transport
	uniqueName string

	lastSerial uint32 // atomic

	pendingMu sync.Mutex
	pending   map[uint32]*Call

	objects *objectTree
	subs    *subscriptionIndex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial authenticates over conn and starts a Connection's dispatch loop.
// conn must already be open; dialing the address is the caller's job
// (see package busaddr). isTCP controls whether UNIX_FDS-bearing
// messages are rejected (Open Question c).
func Dial(conn io.ReadWriteCloser, isTCP bool) (*Connection, error) {
	if err := Authenticate(conn, false); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Connection{
		transport: NewTransport(conn, isTCP),
		pending:   make(map[uint32]*Call),
		objects:   newObjectTree(),
		subs:      newSubscriptionIndex(),
		closed:    make(chan struct{}),
	}
	c.objects.registerStandardInterfaces(c)
	c.subs.conn = c

	go c.dispatchLoop()

	reply, err := c.Call(context.Background(), busDaemonName, busDaemonPath, busDaemonIface, "Hello")
	if err != nil {
		c.Close()
		return nil, err
	}
	if len(reply.Body) != 1 {
		c.Close()
		return nil, &ProtocolError{Reason: "Hello did not return exactly one string"}
	}
	c.uniqueName = reply.Body[0].Str()

	// Installed only now: AddMatch requires Hello to have completed.
	if _, err := c.subs.Subscribe(context.Background(), SubscriptionSpec{
		Sender:    busDaemonName,
		Path:      busDaemonPath,
		Interface: busDaemonIface,
		Member:    "NameOwnerChanged",
	}, c.subs.onNameOwnerChanged); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// UniqueName returns the name the daemon assigned this connection.
func (c *Connection) UniqueName() string { return c.uniqueName }

// Close shuts down the dispatch loop and the underlying transport.
// Pending calls are completed with a CancelledError.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
		c.pendingMu.Lock()
		for serial, call := range c.pending {
			delete(c.pending, serial)
			call.completeLocked(nil, &CancelledError{Serial: serial})
		}
		c.pendingMu.Unlock()
	})
	return err
}

func (c *Connection) nextSerial() uint32 {
	for {
		s := atomic.AddUint32(&c.lastSerial, 1)
		if s != 0 {
			return s
		}
	}
}

// Call is the non-blocking handle for an in-flight or completed method
// call, in the style of net/rpc's Call: Go returns immediately and sends
// the Call on Done once a reply (or a local error) is available.
type Call struct {
	Destination string
	Path        ObjectPath
	Interface   string
	Method      string
	Args        []Value

	Reply *Message
	Err   error
	Done  chan *Call

	serial   uint32
	replied  bool
}

func (call *Call) completeLocked(reply *Message, err error) {
	if call.replied {
		return
	}
	call.replied = true
	call.Reply = reply
	call.Err = err
	if call.Done != nil {
		call.Done <- call
	}
}

// Go starts an asynchronous method call and returns immediately. done
// must be nil (a channel of capacity 1 is allocated) or have room for one
// send; the call is delivered on it exactly once.
func (c *Connection) Go(destination string, path ObjectPath, iface, method string, args []Value, done chan *Call) (*Call, error) {
	if done == nil {
		done = make(chan *Call, 1)
	}
	msg := NewMethodCall(destination, path, iface, method)
	msg.Body = args
	msg.Serial = c.nextSerial()

	call := &Call{
		Destination: destination,
		Path:        path,
		Interface:   iface,
		Method:      method,
		Args:        args,
		Done:        done,
		serial:      msg.Serial,
	}

	c.pendingMu.Lock()
	c.pending[msg.Serial] = call
	c.pendingMu.Unlock()

	if err := c.transport.WriteMessage(msg); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, msg.Serial)
		c.pendingMu.Unlock()
		call.completeLocked(nil, err)
		return call, err
	}
	return call, nil
}

// Call blocks until destination.iface.method on path replies or ctx is
// done. A context cancellation or deadline retires the call's serial
// slot (a late reply is silently dropped, per §4.6) and returns
// CancelledError or TimeoutError.
func (c *Connection) Call(ctx context.Context, destination string, path ObjectPath, iface, method string, args ...Value) (*Message, error) {
	call, err := c.Go(destination, path, iface, method, args, nil)
	if err != nil {
		return nil, err
	}

	select {
	case done := <-call.Done:
		if done.Err != nil {
			return nil, done.Err
		}
		if done.Reply.Type == TypeError {
			name, _ := done.Reply.ErrorName()
			msg := ""
			if len(done.Reply.Body) > 0 {
				msg = done.Reply.Body[0].Str()
			}
			return nil, &RemoteError{Name: name, Message: msg}
		}
		return done.Reply, nil
	case <-ctx.Done():
		c.retire(call.serial)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Serial: call.serial}
		}
		return nil, &CancelledError{Serial: call.serial}
	case <-c.closed:
		return nil, &ConnectionError{Reason: "connection closed while call was in flight"}
	}
}

// Emit sends a signal message with no reply expected.
func (c *Connection) Emit(path ObjectPath, iface, member string, args ...Value) error {
	msg := NewSignal(path, iface, member)
	msg.Body = args
	msg.Serial = c.nextSerial()
	return c.transport.WriteMessage(msg)
}

// Send writes an already-built message (a method return or error reply
// from a local object handler) using a freshly allocated serial.
func (c *Connection) Send(msg *Message) error {
	msg.Serial = c.nextSerial()
	return c.transport.WriteMessage(msg)
}

func (c *Connection) retire(serial uint32) {
	c.pendingMu.Lock()
	delete(c.pending, serial)
	c.pendingMu.Unlock()
}

func (c *Connection) dispatchLoop() {
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			connLog.Warningf("dbus: connection read loop terminating: %v", err)
			c.Close()
			return
		}
		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg *Message) {
	switch msg.Type {
	case TypeMethodReturn, TypeError:
		serial, ok := msg.ReplySerial()
		if !ok {
			connLog.Warningf("dbus: dropping %s message with no REPLY_SERIAL field", msg.Type)
			return
		}
		c.pendingMu.Lock()
		call, ok := c.pending[serial]
		if ok {
			delete(c.pending, serial)
		}
		c.pendingMu.Unlock()
		if !ok {
			// No slot: either a stale reply after cancellation, or (per
			// Open Question b) the reply to a NO_REPLY_EXPECTED call.
			// Both are silently dropped.
			return
		}
		call.completeLocked(msg, nil)

	case TypeSignal:
		c.subs.dispatch(msg)

	case TypeMethodCall:
		c.dispatchMethodCall(msg)

	default:
		connLog.Warningf("dbus: dropping message of invalid type")
	}
}

func (c *Connection) dispatchMethodCall(msg *Message) {
	path, _ := msg.Path()
	iface, _ := msg.Interface()
	member, _ := msg.Member()

	reply, err := c.objects.dispatch(c, msg)
	if err != nil {
		if msg.Flags&FlagNoReplyExpected != 0 {
			return
		}
		errName, errMsg := errorNameAndMessage(err)
		if sendErr := c.Send(NewError(msg, errName, errMsg)); sendErr != nil {
			connLog.Warningf("dbus: failed sending error reply for %s.%s: %v", iface, member, sendErr)
		}
		return
	}
	if msg.Flags&FlagNoReplyExpected != 0 {
		return
	}
	if reply == nil {
		reply = NewMethodReturn(msg)
	}
	if err := c.Send(reply); err != nil {
		connLog.Warningf("dbus: failed sending reply for %s%s.%s: %v", path, iface, member, err)
	}
}

func errorNameAndMessage(err error) (string, string) {
	switch e := err.(type) {
	case *RemoteError:
		return e.Name, e.Message
	case *unknownObjectError:
		return ErrUnknownObject, e.Error()
	case *unknownInterfaceError:
		return ErrUnknownInterface, e.Error()
	case *unknownMethodError:
		return ErrUnknownMethod, e.Error()
	case *unknownPropertyError:
		return ErrUnknownProperty, e.Error()
	default:
		return ErrFailed, err.Error()
	}
}

// --- name-owner convenience wrappers over the bus driver (§4.6) ---

// RequestName asks the daemon to assign name to this connection.
func (c *Connection) RequestName(ctx context.Context, name string, flags uint32) (uint32, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "RequestName", mustString(name), NewUint32(flags))
	if err != nil {
		return 0, err
	}
	return reply.Body[0].Uint32(), nil
}

// ReleaseName releases a previously acquired name.
func (c *Connection) ReleaseName(ctx context.Context, name string) (uint32, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "ReleaseName", mustString(name))
	if err != nil {
		return 0, err
	}
	return reply.Body[0].Uint32(), nil
}

// ListNames returns every name currently registered on the bus.
func (c *Connection) ListNames(ctx context.Context) ([]string, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "ListNames")
	if err != nil {
		return nil, err
	}
	return stringsOf(reply.Body[0]), nil
}

// ListActivatableNames returns every name the daemon can activate.
func (c *Connection) ListActivatableNames(ctx context.Context) ([]string, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "ListActivatableNames")
	if err != nil {
		return nil, err
	}
	return stringsOf(reply.Body[0]), nil
}

// NameHasOwner reports whether name currently has an owner.
func (c *Connection) NameHasOwner(ctx context.Context, name string) (bool, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "NameHasOwner", mustString(name))
	if err != nil {
		return false, err
	}
	return reply.Body[0].Bool(), nil
}

// GetNameOwner resolves a well-known name to its current unique name.
func (c *Connection) GetNameOwner(ctx context.Context, name string) (string, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "GetNameOwner", mustString(name))
	if err != nil {
		return "", err
	}
	return reply.Body[0].Str(), nil
}

// GetConnectionUnixProcessID returns the PID backing a bus name.
func (c *Connection) GetConnectionUnixProcessID(ctx context.Context, name string) (uint32, error) {
	reply, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "GetConnectionUnixProcessID", mustString(name))
	if err != nil {
		return 0, err
	}
	return reply.Body[0].Uint32(), nil
}

// AddMatch installs a match rule on the daemon directly. Most callers
// should prefer Subscribe, which manages match-rule refcounting.
func (c *Connection) AddMatch(ctx context.Context, rule string) error {
	_, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "AddMatch", mustString(rule))
	return err
}

// RemoveMatch removes a match rule installed with AddMatch.
func (c *Connection) RemoveMatch(ctx context.Context, rule string) error {
	_, err := c.Call(ctx, busDaemonName, busDaemonPath, busDaemonIface, "RemoveMatch", mustString(rule))
	return err
}

func stringsOf(v Value) []string {
	elems := v.Elems()
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.Str()
	}
	return out
}
