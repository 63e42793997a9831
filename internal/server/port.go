package server

import (
	stderrors "errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when every candidate port is taken.
var ErrNoFreePort = stderrors.New("no free port")

// FindPort binds the first free TCP port in [start, start+attempts) on host
// and returns the open listener, so the port cannot be taken between the
// search and the server starting.
func FindPort(host string, start, attempts int) (net.Listener, error) {
	if start < 1 || start > 65535 {
		return nil, fmt.Errorf("start port %d out of range", start)
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for port := start; port < start+attempts && port <= 65535; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return l, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w in %d..%d on %s: %v", ErrNoFreePort, start, start+attempts-1, host, lastErr)
}

// PortOf returns the TCP port l is bound to.
func PortOf(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
