//go:build linux

package serial_link

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ttyPort adds input queue control to the *os.File that go-serial returns.
type ttyPort struct {
	*os.File
}

func (p ttyPort) InputQueued() (int, error) {
	return unix.IoctlGetInt(int(p.Fd()), unix.TIOCINQ)
}

func (p ttyPort) ResetInputBuffer() error {
	return unix.IoctlSetInt(int(p.Fd()), unix.TCFLSH, unix.TCIFLUSH)
}

func wrapTTY(port io.ReadWriteCloser) io.ReadWriteCloser {
	if f, ok := port.(*os.File); ok {
		return ttyPort{File: f}
	}
	return port
}
