package grpc

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/mdlayher/vsock"
)

// Listen opens the dispatch listener. Supported kinds are tcp, unix and
// vsock; for vsock the address is the numeric port. AF_VSOCK lets guests
// reach a host-side daemon without a network stack.
func Listen(kind, addr string) (net.Listener, error) {
	switch kind {
	case "", "tcp":
		return net.Listen("tcp", addr)
	case "unix":
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket %s: %w", addr, err)
		}
		return net.Listen("unix", addr)
	case "vsock":
		port, err := strconv.ParseUint(addr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vsock port %q: %w", addr, err)
		}
		return vsock.Listen(uint32(port), nil)
	default:
		return nil, fmt.Errorf("unsupported listener kind %q", kind)
	}
}
