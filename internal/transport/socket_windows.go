//go:build windows

package transport

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// PlatformControl configures SO_REUSEADDR on the listening socket.
// SO_REUSEPORT has no Windows equivalent; SO_REUSEADDR alone lets the
// IPv4 and IPv6 listeners share the mDNS port.
func PlatformControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
