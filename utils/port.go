package utils

import (
	"fmt"
	"net"
)

// FreePort asks the kernel for an unused TCP port on the loopback interface.
// The port is released before returning, so there is a small window in which
// another process can grab it; callers start the owning process right away.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate port: %w", err)
	}
	defer ln.Close() //nolint:errcheck
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("allocate port: unexpected addr %T", ln.Addr())
	}
	return addr.Port, nil
}
