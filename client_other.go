//go:build !unix

package link

import "net"

func peerClosed(net.Conn) (closed, ok bool) {
	return false, false
}
