// Package busaddr parses D-Bus server address strings and dials the
// corresponding OS transport. This is explicitly a non-core collaborator:
// the core Connection/Transport types never dial a socket themselves,
// they only ever accept an already-open io.ReadWriteCloser (see
// Dial returning one here, and dbus.Dial consuming it).
package busaddr

import (
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/Microsoft/go-winio"
)

// Address is one parsed `transport:key=value,...` segment of a D-Bus
// server address (a full address is semicolon-separated alternatives,
// tried in order by Dial).
type Address struct {
	Transport string
	Options   map[string]string
}

// IsTCP reports whether this address rides over a TCP-family transport,
// relevant to the core's UNIX_FDS-over-TCP rejection rule.
func (a Address) IsTCP() bool {
	return a.Transport == "tcp" || a.Transport == "nonce-tcp"
}

// Parse splits a full D-Bus address string (semicolon-separated
// alternatives) into its component Addresses.
func Parse(address string) ([]Address, error) {
	if address == "" {
		return nil, errors.New("busaddr: empty address")
	}
	var out []Address
	for _, segment := range strings.Split(address, ";") {
		if segment == "" {
			continue
		}
		a, err := parseOne(segment)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, errors.New("busaddr: no usable address in " + address)
	}
	return out, nil
}

func parseOne(segment string) (Address, error) {
	i := strings.IndexByte(segment, ':')
	if i < 0 {
		return Address{}, errors.New("busaddr: malformed address segment " + segment)
	}
	transport := segment[:i]
	opts := make(map[string]string)
	for _, kv := range strings.Split(segment[i+1:], ",") {
		if kv == "" {
			continue
		}
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			return Address{}, errors.New("busaddr: malformed option " + kv)
		}
		key, err := url.QueryUnescape(pair[0])
		if err != nil {
			return Address{}, err
		}
		val, err := url.QueryUnescape(pair[1])
		if err != nil {
			return Address{}, err
		}
		opts[key] = val
	}
	return Address{Transport: transport, Options: opts}, nil
}

// SessionBusAddress returns the process's session bus address, as set by
// DBUS_SESSION_BUS_ADDRESS.
func SessionBusAddress() (string, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return "", errors.New("busaddr: DBUS_SESSION_BUS_ADDRESS is not set")
	}
	return addr, nil
}

// SystemBusAddress returns the process's system bus address, defaulting
// to the standard UNIX socket path when DBUS_SYSTEM_BUS_ADDRESS is unset.
func SystemBusAddress() string {
	if addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); addr != "" {
		return addr
	}
	return "unix:path=/var/run/dbus/system_bus_socket"
}

// Dial tries each alternative in address in order and returns the first
// stream that connects successfully, along with whether that transport
// is TCP-family.
func Dial(address string) (io.ReadWriteCloser, bool, error) {
	addrs, err := Parse(address)
	if err != nil {
		return nil, false, err
	}
	var lastErr error
	for _, a := range addrs {
		conn, err := dialOne(a)
		if err == nil {
			return conn, a.IsTCP(), nil
		}
		lastErr = err
	}
	return nil, false, lastErr
}

func dialOne(a Address) (io.ReadWriteCloser, error) {
	switch a.Transport {
	case "unix":
		return dialUnix(a)
	case "tcp", "nonce-tcp":
		return dialTCP(a)
	case "winpipe":
		return dialWinPipe(a)
	default:
		return nil, errors.New("busaddr: unsupported transport " + a.Transport)
	}
}

func dialUnix(a Address) (io.ReadWriteCloser, error) {
	if abstract, ok := a.Options["abstract"]; ok {
		return dialAbstractUnix(abstract)
	}
	if path, ok := a.Options["path"]; ok {
		return net.Dial("unix", path)
	}
	return nil, errors.New("busaddr: unix transport requires 'path' or 'abstract'")
}

func dialTCP(a Address) (io.ReadWriteCloser, error) {
	addr := a.Options["host"] + ":" + a.Options["port"]
	family := "tcp4"
	switch a.Options["family"] {
	case "", "ipv4":
		family = "tcp4"
	case "ipv6":
		family = "tcp6"
	default:
		return nil, errors.New("busaddr: unknown tcp family " + a.Options["family"])
	}
	conn, err := net.Dial(family, addr)
	if err != nil {
		return nil, err
	}
	if a.Transport == "nonce-tcp" {
		data, err := os.ReadFile(a.Options["noncefile"])
		if err != nil {
			conn.Close()
			return nil, err
		}
		if _, err := conn.Write(data); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func dialWinPipe(a Address) (io.ReadWriteCloser, error) {
	path, ok := a.Options["path"]
	if !ok {
		return nil, errors.New("busaddr: winpipe transport requires 'path'")
	}
	return winio.DialPipe(path, nil)
}
