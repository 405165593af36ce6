//go:build linux

package busaddr

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// dialAbstractUnix connects to a Linux abstract-namespace UNIX socket:
// the kernel recognizes a leading NUL byte in the socket path as meaning
// "not backed by the filesystem", which net.Dial's net.UnixAddr handling
// does not expose directly, so this goes through unix.Socket/Connect.
func dialAbstractUnix(name string) (io.ReadWriteCloser, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrUnix{Name: "\x00" + name}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	f := os.NewFile(uintptr(fd), "abstract:"+name)
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return conn, nil
}
