//go:build !linux

package serial_link

import "io"

// Only the pending partial line counts towards the stale backlog here.
func wrapTTY(port io.ReadWriteCloser) io.ReadWriteCloser {
	return port
}
