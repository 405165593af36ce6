//go:build !linux

package busaddr

import (
	"errors"
	"io"
)

// dialAbstractUnix is only meaningful on Linux, where the kernel
// implements the abstract UNIX socket namespace.
func dialAbstractUnix(name string) (io.ReadWriteCloser, error) {
	return nil, errors.New("busaddr: abstract UNIX sockets are only supported on linux")
}
