package internal

import (
	"context"
	"io"
	"net"

	"golang.org/x/xerrors"
)

// Dialer matches net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ErrPanicked wraps a panic recovered inside an operation or its completion.
var ErrPanicked = xerrors.New("async operation panicked")

// run executes fn on its own goroutine. A panic raised before the completion
// ran is handed to onPanic so the owner still sees a completion; a panic
// raised by the completion itself is logged and dropped.
func run(op *Op, fn func(), onPanic func(err error)) {
	go func() {
		defer func() {
			if v := recover(); v != nil {
				op.log.WithField("op", op.String()).Errorf("panicked: %v", v)

				defer func() {
					if v := recover(); v != nil {
						op.log.WithField("op", op.String()).Errorf("completion panicked: %v", v)
					}
				}()

				onPanic(xerrors.Errorf("%s: %v: %w", op, v, ErrPanicked))
			}
		}()

		fn()
	}()
}

// Connect dials address and calls done with the connection or the error.
func Connect(ctx context.Context, d Dialer, network, address string, op *Op, done func(op *Op, conn net.Conn, err error)) {
	completed := false

	run(op, func() {
		conn, err := d.DialContext(ctx, network, address)
		completed = true
		done(op, conn, err)
	}, func(err error) {
		if !completed {
			done(op, nil, err)
		}
	})
}

// Read issues one read into buf.
func Read(r io.Reader, buf []byte, op *Op, done func(op *Op, n int, err error)) {
	completed := false

	run(op, func() {
		n, err := r.Read(buf)
		completed = true
		done(op, n, err)
	}, func(err error) {
		if !completed {
			done(op, 0, err)
		}
	})
}

// Write writes all of p.
func Write(w io.Writer, p []byte, op *Op, done func(op *Op, err error)) {
	completed := false

	run(op, func() {
		n, err := w.Write(p)
		if err == nil && n != len(p) {
			err = io.ErrShortWrite
		}
		completed = true
		done(op, err)
	}, func(err error) {
		if !completed {
			done(op, err)
		}
	})
}

// Accept waits for the next inbound connection on l.
func Accept(l net.Listener, op *Op, done func(op *Op, conn net.Conn, err error)) {
	completed := false

	run(op, func() {
		conn, err := l.Accept()
		completed = true
		done(op, conn, err)
	}, func(err error) {
		if !completed {
			done(op, nil, err)
		}
	})
}

// ReadFrom receives one datagram into buf.
func ReadFrom(pc net.PacketConn, buf []byte, op *Op, done func(op *Op, n int, from net.Addr, err error)) {
	completed := false

	run(op, func() {
		n, from, err := pc.ReadFrom(buf)
		completed = true
		done(op, n, from, err)
	}, func(err error) {
		if !completed {
			done(op, 0, nil, err)
		}
	})
}

// WriteTo sends p as one datagram to addr.
func WriteTo(pc net.PacketConn, p []byte, addr net.Addr, op *Op, done func(op *Op, err error)) {
	completed := false

	run(op, func() {
		_, err := pc.WriteTo(p, addr)
		completed = true
		done(op, err)
	}, func(err error) {
		if !completed {
			done(op, err)
		}
	})
}
