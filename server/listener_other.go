//go:build !linux

package server

import (
	"context"
	"net"
	"strconv"
)

// Listen binds an IPv4 TCP listener. The runtime sets SO_REUSEADDR on Unix
// listeners; the backlog is left to the platform default.
func Listen(host string, port, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
}
