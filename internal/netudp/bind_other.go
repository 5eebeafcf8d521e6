//go:build !linux

package netudp

import "syscall"

// bindToInterface is a no-op outside Linux: SO_BINDTODEVICE is Linux-only,
// and these demo binaries don't attempt an equivalent on other platforms.
func bindToInterface(name string) func(network, address string, c syscall.RawConn) error {
	return nil
}
