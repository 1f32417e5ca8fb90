//go:build !windows

package p2p

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketReuseAddr is the net.ListenConfig control hook for listeners.
// It sets SO_REUSEADDR so a restarted tracker or peer can bind the same port
// while old connections are still in TIME_WAIT. SO_REUSEPORT stays off: a
// second process must not share a port with a live listener.
func setSocketReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
