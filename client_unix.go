//go:build unix

package link

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerClosed peeks at the socket without consuming data. ok is false when
// conn exposes no file descriptor to peek at.
func peerClosed(conn net.Conn) (closed, ok bool) {
	sc, isSyscall := conn.(syscall.Conn)
	if !isSyscall {
		return false, false
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return false, false
	}

	var buf [1]byte

	err = raw.Read(func(fd uintptr) bool {
		n, _, err := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)

		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		case err != nil:
			closed = true
		case n == 0:
			// orderly shutdown by the peer
			closed = true
		}

		return true
	})
	if err != nil {
		// the descriptor itself is gone
		return true, true
	}

	return closed, true
}
