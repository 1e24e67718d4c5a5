package internal

import (
	"net"
	"strconv"
)

// Endpoint is the fixed remote a link talks to.
type Endpoint struct {
	Net  string
	Host string
	Port int
}

func (e Endpoint) Network() string {
	return e.Net
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ListenAddress is the wildcard address for a local port.
func ListenAddress(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
