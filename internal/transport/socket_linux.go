//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// PlatformControl configures SO_REUSEADDR and SO_REUSEPORT on the listening
// socket so multiple processes (and multiple address families within this
// one) can bind the same mDNS port concurrently.
func PlatformControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
